package consumer

import (
	"context"
	"time"
)

// Record is a single Kafka record as delivered downstream, carrying the
// fields spec.md §6 requires: offset, key, value, timestamp.
type Record struct {
	Offset      int64
	OffsetValid bool
	Key         []byte
	Value       []byte
	Timestamp   time.Time
}

// FetchOptions configures a single Fetch RPC. It corresponds to spec.md §6's
// fetch_options, merged over {auto_commit: false, worker: ...}; this
// adapter never performs broker-side auto-commit, so AutoCommit is implicit
// and always false.
type FetchOptions struct {
	MinBytes    int32         `envconfig:"FETCH_MIN_BYTES" default:"1"`
	MaxBytes    int32         `envconfig:"FETCH_MAX_BYTES" default:"1048576"`
	MaxWaitTime time.Duration `envconfig:"FETCH_MAX_WAIT" default:"250ms"`
	Timeout     time.Duration `envconfig:"FETCH_TIMEOUT" default:"10s"`
}

// BrokerClient is the opaque broker capability spec.md §1 and §6 describe:
// the Kafka wire protocol client (fetch / offset-fetch / offset-commit /
// earliest-offset / latest-offset RPCs). The core consumes it without
// knowledge of how it is implemented; consumer/sarambroker supplies the
// concrete, sarama-backed implementation.
type BrokerClient interface {
	// Fetch issues one fetch RPC for (topic, partition) starting at offset.
	// Returns ErrOffsetOutOfRange when the broker reports that condition;
	// any other non-nil error is treated as a transient or fatal fetch
	// error per spec.md §7.
	Fetch(ctx context.Context, topic string, partition int32, offset int64, opts FetchOptions) ([]Record, error)

	// CommitOffset performs the offset-commit RPC, carrying
	// (group, topic, partition, offset) as spec.md §4.B specifies.
	CommitOffset(ctx context.Context, group, topic string, partition int32, offset int64) error

	// FetchCommittedOffset performs the offset-fetch RPC used by initial
	// offset load (spec.md §4.D). Returns ErrUnknownTopicOrPartition when
	// the group has no committed offset for this partition.
	FetchCommittedOffset(ctx context.Context, group, topic string, partition int32) (int64, error)

	// EarliestOffset performs the earliest-offset RPC.
	EarliestOffset(ctx context.Context, topic string, partition int32) (int64, error)

	// LatestOffset performs the latest-offset RPC.
	LatestOffset(ctx context.Context, topic string, partition int32) (int64, error)

	// Close releases the broker worker. Called once, from terminate.
	Close() error
}
