package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOffsetTrackerAdvance(t *testing.T) {
	tr := &offsetTracker{}
	tr.reset(0)
	tr.addDemand(10)

	tr.advance(10, 9)

	require.Equal(t, int64(10), tr.current)
	require.Equal(t, int64(10), tr.acked)
	require.Equal(t, 0, tr.demand)
}

func TestOffsetTrackerAdvanceClampsDemandAtZero(t *testing.T) {
	// spec.md §9 Open Question: this spec clamps at 0 rather than letting
	// demand go negative on overshoot.
	tr := &offsetTracker{}
	tr.reset(0)
	tr.addDemand(3)

	tr.advance(10, 9)

	require.Equal(t, 0, tr.demand)
}

func TestOffsetTrackerReset(t *testing.T) {
	tr := &offsetTracker{current: 50, acked: 50, committed: 40}
	tr.reset(100)

	require.Equal(t, int64(100), tr.current)
	require.Equal(t, int64(100), tr.acked)
	require.Equal(t, int64(100), tr.committed)
}

func TestOffsetTrackerMarkAckedIsMonotone(t *testing.T) {
	tr := &offsetTracker{acked: 20, committed: 20}

	require.True(t, tr.markAcked(30))
	require.Equal(t, int64(30), tr.acked)

	// Idempotence law (spec.md §8): offset <= acked_offset is a no-op.
	changed := tr.markAcked(30)
	require.False(t, changed)
	require.Equal(t, int64(30), tr.acked)

	changed = tr.markAcked(10)
	require.False(t, changed)
	require.Equal(t, int64(30), tr.acked)
}

func TestOffsetTrackerPendingProgress(t *testing.T) {
	tr := &offsetTracker{acked: 10, committed: 10}
	require.False(t, tr.pendingProgress())

	tr.acked = 15
	require.True(t, tr.pendingProgress())
}

func TestOffsetTrackerAddDemandAccumulates(t *testing.T) {
	tr := &offsetTracker{}
	tr.addDemand(5)
	tr.addDemand(5)
	require.Equal(t, 10, tr.demand)

	// Demand of 0 is a documented no-op (spec.md §4.D).
	tr.addDemand(0)
	require.Equal(t, 10, tr.demand)
}

func TestOffsetTrackerLastCommitTSUntouchedByReset(t *testing.T) {
	tr := &offsetTracker{}
	before := time.Now()
	tr.reset(0)
	require.True(t, tr.lastCommitTS.Before(before) || tr.lastCommitTS.IsZero())
}
