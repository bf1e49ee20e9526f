package consumer

import "github.com/pkg/errors"

// Sentinel errors a BrokerClient implementation reports and that the core
// state machine recognizes and handles per spec.md §7.
var (
	// ErrOffsetOutOfRange is returned by Fetch when current_offset has
	// fallen outside the partition's retained range. Recovered via Offset
	// Reset when auto_offset_reset is earliest or latest.
	ErrOffsetOutOfRange = errors.New("gruntle: offset out of range")

	// ErrUnknownTopicOrPartition is returned by FetchCommittedOffset when
	// the consumer group has never committed for this partition.
	ErrUnknownTopicOrPartition = errors.New("gruntle: unknown topic or partition")
)

// Errors the core itself produces.
var (
	// ErrAutoResetDisabled is the fatal error surfaced when an
	// offset_out_of_range fetch result arrives but auto_offset_reset is
	// "none".
	ErrAutoResetDisabled = errors.New("gruntle: offset out of range, auto_offset_reset disabled")

	// ErrSubscriberDied wraps the reason a linked subscriber terminated;
	// it is the terminal error for the partition consumer when the
	// subscriber, not the broker, caused the shutdown.
	ErrSubscriberDied = errors.New("gruntle: subscriber terminated")
)
