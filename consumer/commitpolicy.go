package consumer

import (
	"context"
	"time"

	"github.com/mailgun/log"
)

// applyCommitPolicy implements spec.md §4.B for the given strategy. It is
// called once per fetch step (with pc.options.CommitStrategy, possibly
// downgraded to CommitAsync per the empty-batch rule in §4.C step 4) and
// once per trigger_commit that raises acked_offset (with the caller-supplied
// strategy).
func (pc *PartitionConsumer) applyCommitPolicy(ctx context.Context, strategy CommitStrategy, now time.Time) error {
	switch strategy {
	case CommitNone:
		return nil

	case CommitSync:
		if pc.tracker.pendingProgress() {
			return pc.commitNow(ctx, now)
		}
		return nil

	default: // CommitAsync, and the fallback for an unrecognized strategy value
		if pc.tracker.acked-pc.tracker.committed >= pc.options.CommitThreshold {
			return pc.commitNow(ctx, now)
		}
		if pc.tracker.pendingProgress() && now.Sub(pc.tracker.lastCommitTS) >= pc.options.CommitInterval {
			return pc.commitNow(ctx, now)
		}
		if !pc.tracker.pendingProgress() {
			// Touch the interval timer without a broker call, per §4.B.
			pc.tracker.lastCommitTS = now
		}
		return nil
	}
}

// commitNow performs the broker commit RPC and advances committed_offset on
// success. Failure leaves committed_offset untouched so the next eligible
// tick retries (spec.md §7 "Commit failure").
func (pc *PartitionConsumer) commitNow(ctx context.Context, now time.Time) error {
	offset := pc.tracker.acked
	if err := pc.broker.CommitOffset(ctx, pc.group, pc.topic, pc.partition, offset); err != nil {
		commitsTotal.WithLabelValues("error").Inc()
		log.Errorf("<%s> commit offset=%d failed: %s", pc.cid, offset, err)
		return err
	}
	pc.tracker.committed = offset
	pc.tracker.lastCommitTS = now
	commitsTotal.WithLabelValues("ok").Inc()
	return nil
}
