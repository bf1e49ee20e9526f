package consumer

import (
	"context"
	"sync"
)

// Handle is the self_handle a SubscriberFactory receives (spec.md §4.E,
// §6 "Subscriber factory contract"). It is the surface the subscriber uses
// to signal demand and to ask for commits; it deliberately does not expose
// the partition consumer's internal state directly, mirroring the teacher's
// distinction between a PartitionConsumer and the ConsumerMessage/demand
// channel contract it hands out to callers.
type Handle interface {
	// Partition returns the (topic, partition) this handle belongs to.
	Partition() (string, int32)

	// RequestMore signals downstream demand for n additional records
	// (spec.md §4.D). n must be non-negative.
	RequestMore(n int)

	// TriggerCommit asks the partition consumer to raise acked_offset to
	// offset and run the commit policy with strategy (spec.md §4.F).
	TriggerCommit(strategy CommitStrategy, offset int64)

	// Done is closed once the partition consumer has terminated. A
	// subscriber blocked waiting for work (rather than reacting to Deliver
	// calls) should select on this to unwind, completing the other half of
	// the link spec.md §4.E/§9 describe: "death of either terminates the
	// other."
	Done() <-chan struct{}
}

// Subscriber is the user-supplied downstream process spec.md §4.E links to
// the partition consumer: death of either terminates the other. Deliver is
// called from the partition consumer's dedicated delivery goroutine, not its
// single writer goroutine, once per Fetch Loop step, including steps that
// yield zero records (spec.md §4.C step 4); a non-nil return is treated
// exactly like the subscriber exiting on its own.
type Subscriber interface {
	Deliver(ctx context.Context, records []Record) error

	// Done is closed when the subscriber has exited on its own (outside of
	// a Deliver call returning an error), completing the "link" half of
	// spec.md §4.E that a Deliver error alone cannot express.
	Done() <-chan struct{}

	// Err returns the reason the subscriber exited, valid only after Done
	// is closed.
	Err() error
}

// SubscriberFactory is the capability spec.md §6 calls "subscriber_factory":
// it must accept (self_handle, topic, partition, extra_consumer_args) and
// return a started, linked subscriber.
type SubscriberFactory func(self Handle, topic string, partition int32, extra interface{}) (Subscriber, error)

// BaseSubscriber is a convenience embeddable implementing the Done/Err half
// of Subscriber, so a user-defined subscriber only has to implement
// Deliver and call Fail when it decides to exit on its own.
type BaseSubscriber struct {
	mu   sync.Mutex
	done chan struct{}
	err  error
}

// NewBaseSubscriber returns a BaseSubscriber ready to embed.
func NewBaseSubscriber() BaseSubscriber {
	return BaseSubscriber{done: make(chan struct{})}
}

func (b *BaseSubscriber) Done() <-chan struct{} { return b.done }

func (b *BaseSubscriber) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Fail records err as the exit reason and closes Done, at most once.
func (b *BaseSubscriber) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return
	}
	if err == nil {
		err = context.Canceled
	}
	b.err = err
	close(b.done)
}
