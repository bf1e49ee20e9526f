package consumer

import (
	"context"
	"strconv"
	"time"

	"github.com/mailgun/log"
	"github.com/pkg/errors"

	"github.com/progressions/gruntle/internal/actor"
	"github.com/progressions/gruntle/internal/none"
)

// Self-scheduled demand ticks. These are backpressure-friendly yield
// points, not algorithmic requirements (spec.md §9); they keep the single
// writer goroutine from busy-looping while still giving demand signals,
// fetch results and commits a chance to interleave between steps.
const (
	initialLoadTickDelay = 5 * time.Millisecond
	demandTickDelay      = 5 * time.Millisecond
	fetchStepTickDelay   = 10 * time.Millisecond
)

type triggerCommitRequest struct {
	strategy CommitStrategy
	offset   int64
}

type stopRequest struct {
	reason string
	done   chan none.T
}

type snapshotRequest struct {
	reply chan Snapshot
}

// Snapshot is a point-in-time, race-free read of a partition consumer's
// offset-tracker state, used by tests and by adminhttp's /partitions
// endpoint (spec.md §6 operability).
type Snapshot struct {
	Group     string
	Topic     string
	Partition int32

	CurrentOffset   int64
	AckedOffset     int64
	CommittedOffset int64
	Demand          int
}

// PartitionConsumer is the core of this module: one instance per
// (group, topic, partition), per spec.md §3. All mutation of its state
// happens on the single goroutine started by Start (spec.md §5); every
// other method only ever sends on a channel that goroutine reads.
type PartitionConsumer struct {
	group     string
	topic     string
	partition int32

	broker  BrokerClient
	options Options

	subscriber Subscriber

	tracker             offsetTracker
	tickOutstanding     bool
	deliveryOutstanding bool
	pendingStrategy     CommitStrategy

	demandCh      chan int
	tickCh        chan none.T
	commitCh      chan triggerCommitRequest
	stopCh        chan stopRequest
	snapshotCh    chan snapshotRequest
	deliverCh     chan []Record
	deliverDoneCh chan error
	doneCh        chan struct{}

	fatalErr error
	finalErr error

	ctx    context.Context
	cancel context.CancelFunc

	cid *actor.ID
}

// Start creates a partition consumer: it constructs no broker connection of
// its own (the caller supplies a BrokerClient, already scoped to this
// partition's worker, per spec.md §4.F "Creates broker worker"), then spawns
// and links the subscriber via factory. No offsets are loaded yet; that
// happens on the first demand signal (spec.md §4.D).
func Start(group, topic string, partition int32, broker BrokerClient, factory SubscriberFactory, options Options) (*PartitionConsumer, error) {
	ctx, cancel := context.WithCancel(context.Background())

	pc := &PartitionConsumer{
		group:         group,
		topic:         topic,
		partition:     partition,
		broker:        broker,
		options:       options,
		demandCh:      make(chan int),
		tickCh:        make(chan none.T, 1),
		commitCh:      make(chan triggerCommitRequest),
		stopCh:        make(chan stopRequest),
		snapshotCh:    make(chan snapshotRequest),
		deliverCh:     make(chan []Record),
		deliverDoneCh: make(chan error),
		doneCh:        make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		cid:           actor.RootID.NewChild(group).NewChild(topic).NewChild(strconv.Itoa(int(partition))),
	}

	sub, err := factory(pc, topic, partition, options.ExtraConsumerArgs)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "start subscriber")
	}
	pc.subscriber = sub

	go pc.run()
	go pc.deliverLoop()
	return pc, nil
}

// Partition implements Handle: a synchronous query, safe without going
// through the single writer goroutine because topic/partition are
// immutable after init (spec.md §3).
func (pc *PartitionConsumer) Partition() (string, int32) {
	return pc.topic, pc.partition
}

// RequestMore implements Handle; it is the demand signal of spec.md §4.D.
func (pc *PartitionConsumer) RequestMore(n int) {
	select {
	case pc.demandCh <- n:
	case <-pc.doneCh:
	}
}

// TriggerCommit implements Handle and spec.md §4.F trigger_commit.
func (pc *PartitionConsumer) TriggerCommit(strategy CommitStrategy, offset int64) {
	select {
	case pc.commitCh <- triggerCommitRequest{strategy: strategy, offset: offset}:
	case <-pc.doneCh:
	}
}

// Terminate implements the external terminate(reason) operation of
// spec.md §4.F: one final commit attempt, broker worker released, unlinked
// from the subscriber. It blocks until shutdown completes.
func (pc *PartitionConsumer) Terminate(reason string) {
	done := make(chan none.T)
	select {
	case pc.stopCh <- stopRequest{reason: reason, done: done}:
		<-done
	case <-pc.doneCh:
	}
}

// Snapshot returns a consistent point-in-time read of the offset tracker.
// If the partition consumer has already terminated, it returns the final
// state instead of blocking (safe: pc.tracker is no longer mutated once
// doneCh is closed, and the channel close establishes a happens-before
// edge to this read).
func (pc *PartitionConsumer) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case pc.snapshotCh <- snapshotRequest{reply: reply}:
		return <-reply
	case <-pc.doneCh:
		return pc.snapshotLocked()
	}
}

func (pc *PartitionConsumer) snapshotLocked() Snapshot {
	return Snapshot{
		Group:           pc.group,
		Topic:           pc.topic,
		Partition:       pc.partition,
		CurrentOffset:   pc.tracker.current,
		AckedOffset:     pc.tracker.acked,
		CommittedOffset: pc.tracker.committed,
		Demand:          pc.tracker.demand,
	}
}

// Done is closed once the partition consumer has fully terminated.
func (pc *PartitionConsumer) Done() <-chan struct{} { return pc.doneCh }

// Err returns the reason the partition consumer terminated, if any. Only
// meaningful after Done is closed.
func (pc *PartitionConsumer) Err() error { return pc.finalErr }

// run is the single writer: the state machine of spec.md §4.F's diagram,
// collapsing AwaitingDemand/LoadingOffsets into the pre-load branch of
// handleDemand and Serving into the tick/commit/demand cases below.
func (pc *PartitionConsumer) run() {
	defer close(pc.doneCh)

	for {
		select {
		case n := <-pc.demandCh:
			pc.handleDemand(n)

		case <-pc.tickCh:
			pc.tickOutstanding = false
			if pc.tracker.demand > 0 && !pc.deliveryOutstanding {
				pc.runFetchStep()
			}

		case req := <-pc.commitCh:
			pc.handleTriggerCommit(req)

		case req := <-pc.snapshotCh:
			req.reply <- pc.snapshotLocked()

		case err := <-pc.deliverDoneCh:
			pc.handleDeliveryDone(err)

		case <-pc.subscriber.Done():
			pc.finalErr = errors.Wrap(ErrSubscriberDied, errString(pc.subscriber.Err()))
			pc.shutdown("subscriber exited")
			return

		case req := <-pc.stopCh:
			pc.shutdown(req.reason)
			close(req.done)
			return
		}

		if pc.fatalErr != nil {
			pc.finalErr = pc.fatalErr
			pc.shutdown(pc.fatalErr.Error())
			return
		}
	}
}

// handleDemand implements spec.md §4.D.
func (pc *PartitionConsumer) handleDemand(n int) {
	if !pc.tracker.loaded {
		pc.initialOffsetLoad()
		if pc.fatalErr != nil {
			return
		}
		pc.tracker.lastCommitTS = time.Now()
		pc.tracker.addDemand(n)
		pc.scheduleTick(initialLoadTickDelay)
		pc.updateMetrics()
		return
	}

	if n > 0 {
		pc.tracker.addDemand(n)
		pc.scheduleTick(demandTickDelay)
		pc.updateMetrics()
	}
	// n == 0: store (a no-op addDemand) and do nothing further.
}

// handleTriggerCommit implements spec.md §4.F trigger_commit's effect,
// honoring the idempotence law in §8: a non-advancing offset changes
// nothing, including not re-running the commit policy.
func (pc *PartitionConsumer) handleTriggerCommit(req triggerCommitRequest) {
	if !pc.tracker.markAcked(req.offset) {
		return
	}
	if err := pc.applyCommitPolicy(pc.ctx, req.strategy, time.Now()); err != nil {
		logCommitFailure(pc.cid, err)
	}
	pc.updateMetrics()
}

// deliverLoop runs on its own goroutine for the life of the partition
// consumer, calling Subscriber.Deliver outside the single writer goroutine.
// Deliver must be allowed to call back into Handle (RequestMore,
// TriggerCommit) without deadlocking the writer that is waiting to receive
// those very calls, so it cannot run on run()'s goroutine (spec.md §6
// "Subscriber factory contract": the subscriber is expected to ack/request
// more from within or around Deliver).
func (pc *PartitionConsumer) deliverLoop() {
	for {
		select {
		case batch, ok := <-pc.deliverCh:
			if !ok {
				return
			}
			err := pc.subscriber.Deliver(pc.ctx, batch)
			select {
			case pc.deliverDoneCh <- err:
			case <-pc.ctx.Done():
				return
			}

		case <-pc.ctx.Done():
			return
		}
	}
}

// beginDelivery implements spec.md §4.C steps 3-4: advance offsets (or not,
// for the defensive empty/missing-offset case), then hand batch off to
// deliverLoop. The Fetch Loop does not advance to another step until
// handleDeliveryDone reports the outcome, preserving one-step-at-a-time
// ordering even though delivery itself runs off the writer goroutine.
func (pc *PartitionConsumer) beginDelivery(batch []Record) {
	effectiveStrategy := pc.options.CommitStrategy

	if len(batch) == 0 || !batch[len(batch)-1].OffsetValid {
		// §4.C step 4: empty batches, and batches whose last record is
		// missing an offset, must not escalate to a forced sync commit and
		// must not provoke threshold math on unchanged offsets. Preserved
		// as specified; whether deliberate or incidental is an open
		// question this code does not resolve (spec.md §9).
		effectiveStrategy = CommitAsync
	} else {
		last := batch[len(batch)-1].Offset
		pc.tracker.advance(len(batch), last)
	}

	fetchBatchSize.WithLabelValues(pc.group, pc.topic, partitionLabel(pc.partition)).Observe(float64(len(batch)))

	pc.pendingStrategy = effectiveStrategy
	pc.deliveryOutstanding = true
	select {
	case pc.deliverCh <- batch:
	case <-pc.ctx.Done():
	}
}

// handleDeliveryDone implements spec.md §4.C steps 5-6, run once deliverLoop
// reports the outcome of the step's Deliver call. A non-nil err is treated
// exactly like the subscriber exiting on its own (spec.md §4.E).
func (pc *PartitionConsumer) handleDeliveryDone(err error) {
	pc.deliveryOutstanding = false

	if err != nil {
		pc.finalErr = errors.Wrap(ErrSubscriberDied, err.Error())
		pc.fatalErr = pc.finalErr
		return
	}

	if cerr := pc.applyCommitPolicy(pc.ctx, pc.pendingStrategy, time.Now()); cerr != nil {
		logCommitFailure(pc.cid, cerr)
	}
	pc.updateMetrics()
	pc.scheduleTick(fetchStepTickDelay)
}

// scheduleTick arranges for a single tick to arrive on tickCh after d. Ticks
// are idempotent to duplicate (spec.md §9), so no harm is done if more than
// one is ever in flight; tickOutstanding just avoids piling up timers when
// one is already pending.
func (pc *PartitionConsumer) scheduleTick(d time.Duration) {
	if pc.tickOutstanding {
		return
	}
	pc.tickOutstanding = true
	time.AfterFunc(d, func() {
		select {
		case pc.tickCh <- none.T{}:
		case <-pc.ctx.Done():
		}
	})
}

// shutdown performs the terminate path common to every exit route: a final
// best-effort commit, then context cancellation (unlinking the subscriber)
// and releasing the broker worker (spec.md §4.F, §8 scenario 6).
func (pc *PartitionConsumer) shutdown(reason string) {
	log.Infof("<%s> terminating: %s", pc.cid, reason)
	if pc.tracker.pendingProgress() {
		if err := pc.commitNow(context.Background(), time.Now()); err != nil {
			logCommitFailure(pc.cid, err)
		}
	}
	pc.cancel()
	if err := pc.broker.Close(); err != nil {
		logCloseFailure(pc.cid, err)
	}
	pc.updateMetrics()
}

func errString(err error) string {
	if err == nil {
		return "no reason given"
	}
	return err.Error()
}
