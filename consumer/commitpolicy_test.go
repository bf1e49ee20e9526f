package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/progressions/gruntle/internal/actor"
)

// newPolicyTestConsumer builds a PartitionConsumer with no running
// goroutine, enough to exercise applyCommitPolicy/commitNow directly.
func newPolicyTestConsumer(broker BrokerClient, opts Options) *PartitionConsumer {
	return &PartitionConsumer{
		group:     "g",
		topic:     "orders",
		partition: 0,
		broker:    broker,
		options:   opts,
		cid:       actor.RootID.NewChild("test"),
	}
}

func TestCommitPolicyNoneNeverCommits(t *testing.T) {
	b := newFakeBroker()
	pc := newPolicyTestConsumer(b, Options{CommitStrategy: CommitNone})
	pc.tracker = offsetTracker{acked: 10, committed: 0}

	err := pc.applyCommitPolicy(context.Background(), CommitNone, time.Now())

	require.NoError(t, err)
	require.Equal(t, 0, b.commitCount())
	require.Equal(t, int64(0), pc.tracker.committed)
}

func TestCommitPolicySyncCommitsWheneverPending(t *testing.T) {
	b := newFakeBroker()
	pc := newPolicyTestConsumer(b, Options{})
	pc.tracker = offsetTracker{acked: 10, committed: 0}

	err := pc.applyCommitPolicy(context.Background(), CommitSync, time.Now())

	require.NoError(t, err)
	require.Equal(t, 1, b.commitCount())
	require.Equal(t, int64(10), pc.tracker.committed)
}

func TestCommitPolicySyncNoOpWithoutProgress(t *testing.T) {
	b := newFakeBroker()
	pc := newPolicyTestConsumer(b, Options{})
	pc.tracker = offsetTracker{acked: 10, committed: 10}

	err := pc.applyCommitPolicy(context.Background(), CommitSync, time.Now())

	require.NoError(t, err)
	require.Equal(t, 0, b.commitCount())
}

func TestCommitPolicyAsyncByThreshold(t *testing.T) {
	// Scenario 2 (spec.md §8): commit_threshold=5.
	b := newFakeBroker()
	pc := newPolicyTestConsumer(b, Options{CommitThreshold: 5, CommitInterval: time.Minute})
	pc.tracker = offsetTracker{acked: 5, committed: 0, lastCommitTS: time.Now()}

	err := pc.applyCommitPolicy(context.Background(), CommitAsync, time.Now())

	require.NoError(t, err)
	require.Equal(t, int64(5), b.lastCommit())
	require.Equal(t, int64(5), pc.tracker.committed)
}

func TestCommitPolicyAsyncBelowThresholdDoesNotCommit(t *testing.T) {
	b := newFakeBroker()
	pc := newPolicyTestConsumer(b, Options{CommitThreshold: 100, CommitInterval: time.Minute})
	pc.tracker = offsetTracker{acked: 5, committed: 0, lastCommitTS: time.Now()}

	err := pc.applyCommitPolicy(context.Background(), CommitAsync, time.Now())

	require.NoError(t, err)
	require.Equal(t, 0, b.commitCount())
}

func TestCommitPolicyAsyncByInterval(t *testing.T) {
	// Scenario 3 (spec.md §8): commit_interval elapses with pending progress.
	b := newFakeBroker()
	pc := newPolicyTestConsumer(b, Options{CommitThreshold: 1000, CommitInterval: 100 * time.Millisecond})
	pc.tracker = offsetTracker{acked: 3, committed: 0, lastCommitTS: time.Now().Add(-120 * time.Millisecond)}

	err := pc.applyCommitPolicy(context.Background(), CommitAsync, time.Now())

	require.NoError(t, err)
	require.Equal(t, int64(3), b.lastCommit())
}

func TestCommitPolicyAsyncTouchesTimerWithoutProgress(t *testing.T) {
	b := newFakeBroker()
	pc := newPolicyTestConsumer(b, Options{CommitThreshold: 100, CommitInterval: 100 * time.Millisecond})
	old := time.Now().Add(-time.Hour)
	pc.tracker = offsetTracker{acked: 10, committed: 10, lastCommitTS: old}

	now := time.Now()
	err := pc.applyCommitPolicy(context.Background(), CommitAsync, now)

	require.NoError(t, err)
	require.Equal(t, 0, b.commitCount())
	require.Equal(t, now, pc.tracker.lastCommitTS)
}

func TestCommitPolicyFailureLeavesCommittedUnchanged(t *testing.T) {
	b := &erroringBroker{fakeBroker: *newFakeBroker()}
	pc := newPolicyTestConsumer(b, Options{})
	pc.tracker = offsetTracker{acked: 10, committed: 0}

	err := pc.applyCommitPolicy(context.Background(), CommitSync, time.Now())

	require.Error(t, err)
	require.Equal(t, int64(0), pc.tracker.committed)
}

type erroringBroker struct {
	fakeBroker
}

func (b *erroringBroker) CommitOffset(ctx context.Context, group, topic string, partition int32, offset int64) error {
	return errCommitAlwaysFails
}

var errCommitAlwaysFails = &commitAlwaysFailsError{}

type commitAlwaysFailsError struct{}

func (*commitAlwaysFailsError) Error() string { return "commit always fails (test double)" }
