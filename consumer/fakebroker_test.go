package consumer

import (
	"context"
	"sync"
)

// fakeBroker is a scripted, in-memory BrokerClient used to drive the
// scenarios in spec.md §8 without a live Kafka cluster, following the
// teacher's style of testing the partition consumer against a stand-in
// broker rather than sarama directly.
type fakeBroker struct {
	mu sync.Mutex

	committedOffset int64
	haveCommitted   bool

	earliest int64
	latest   int64

	// fetchPlan is consumed one entry per Fetch call; a step's err lets a
	// scenario script offset_out_of_range or a fatal error on a given call.
	fetchPlan    []fakeFetchStep
	fetchIdx     int
	fetchOffsets []int64

	commits []int64
	closed  bool
}

type fakeFetchStep struct {
	records []Record
	err     error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{}
}

func (b *fakeBroker) withCommitted(offset int64) *fakeBroker {
	b.haveCommitted = true
	b.committedOffset = offset
	return b
}

func (b *fakeBroker) withFetchPlan(steps ...fakeFetchStep) *fakeBroker {
	b.fetchPlan = steps
	return b
}

func (b *fakeBroker) Fetch(ctx context.Context, topic string, partition int32, offset int64, opts FetchOptions) ([]Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fetchOffsets = append(b.fetchOffsets, offset)
	if b.fetchIdx >= len(b.fetchPlan) {
		return nil, nil
	}
	step := b.fetchPlan[b.fetchIdx]
	b.fetchIdx++
	return step.records, step.err
}

func (b *fakeBroker) CommitOffset(ctx context.Context, group, topic string, partition int32, offset int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.committedOffset = offset
	b.haveCommitted = true
	b.commits = append(b.commits, offset)
	return nil
}

func (b *fakeBroker) FetchCommittedOffset(ctx context.Context, group, topic string, partition int32) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.haveCommitted {
		return 0, ErrUnknownTopicOrPartition
	}
	return b.committedOffset, nil
}

func (b *fakeBroker) EarliestOffset(ctx context.Context, topic string, partition int32) (int64, error) {
	return b.earliest, nil
}

func (b *fakeBroker) LatestOffset(ctx context.Context, topic string, partition int32) (int64, error) {
	return b.latest, nil
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBroker) commitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.commits)
}

func (b *fakeBroker) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fetchOffsets)
}

func (b *fakeBroker) offsetAt(i int) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetchOffsets[i]
}

func (b *fakeBroker) lastCommit() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.commits) == 0 {
		return -1
	}
	return b.commits[len(b.commits)-1]
}

// recordingSubscriber captures every batch Deliver receives, for assertions
// against spec.md §8's "delivered in ascending offset order" property.
type recordingSubscriber struct {
	BaseSubscriber

	mu      sync.Mutex
	batches [][]Record
}

func newRecordingSubscriber() *recordingSubscriber {
	s := &recordingSubscriber{BaseSubscriber: NewBaseSubscriber()}
	return s
}

func (s *recordingSubscriber) Deliver(ctx context.Context, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, records)
	return nil
}

func (s *recordingSubscriber) delivered() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []Record
	for _, batch := range s.batches {
		all = append(all, batch...)
	}
	return all
}

func recordingFactory(sub *recordingSubscriber) SubscriberFactory {
	return func(self Handle, topic string, partition int32, extra interface{}) (Subscriber, error) {
		return sub, nil
	}
}

func recs(offsets ...int64) []Record {
	out := make([]Record, len(offsets))
	for i, off := range offsets {
		out[i] = Record{Offset: off, OffsetValid: true}
	}
	return out
}
