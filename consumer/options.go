package consumer

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// CommitStrategy names the three commit policy variants spec.md §4.B
// describes.
type CommitStrategy string

const (
	CommitNone  CommitStrategy = "none"
	CommitSync  CommitStrategy = "sync_commit"
	CommitAsync CommitStrategy = "async_commit"
)

// AutoOffsetReset names the out-of-range recovery policy from spec.md §4.C.
type AutoOffsetReset string

const (
	ResetNone     AutoOffsetReset = "none"
	ResetEarliest AutoOffsetReset = "earliest"
	ResetLatest   AutoOffsetReset = "latest"
)

// Options holds the configuration spec.md §6 "Recognized options" lists.
// Zero values mean "not explicitly set" for the purposes of LoadOptions'
// precedence merge; this means an explicit CommitThreshold of 0 cannot be
// distinguished from "unset" and falls back to the environment/default
// layers. See DESIGN.md for why this tradeoff was accepted.
type Options struct {
	CommitInterval  time.Duration   `envconfig:"COMMIT_INTERVAL" default:"5s"`
	CommitThreshold int64           `envconfig:"COMMIT_THRESHOLD" default:"100"`
	AutoOffsetReset AutoOffsetReset `envconfig:"AUTO_OFFSET_RESET" default:"none"`
	CommitStrategy  CommitStrategy  `envconfig:"COMMIT_STRATEGY" default:"async_commit"`
	FetchOptions    FetchOptions

	// ExtraConsumerArgs is forwarded verbatim as the fourth tuple element
	// to the subscriber factory (spec.md §6).
	ExtraConsumerArgs interface{}

	// ProducerOptions is forwarded to the downstream producer-stage
	// configuration; the core never inspects it (spec.md §6).
	ProducerOptions interface{}

	// Brokers is the broker-endpoint list used to construct the broker
	// worker (spec.md §6 "uris").
	Brokers []string `envconfig:"BROKERS"`
}

// DefaultOptions returns the hard-coded defaults from spec.md §4.B.
func DefaultOptions() Options {
	return Options{
		CommitInterval:  5 * time.Second,
		CommitThreshold: 100,
		AutoOffsetReset: ResetNone,
		CommitStrategy:  CommitAsync,
		FetchOptions: FetchOptions{
			MinBytes:    1,
			MaxBytes:    1 << 20,
			MaxWaitTime: 250 * time.Millisecond,
			Timeout:     10 * time.Second,
		},
	}
}

// LoadOptions applies the three-layer configuration precedence spec.md §9
// calls for: explicit option > process-wide environment configuration >
// hard-coded default. The environment layer is bound under the "GRUNTLE"
// prefix via envconfig, whose own `default` struct tags supply the
// hard-coded defaults, so layers two and three are read in one pass; any
// non-zero field in explicit then overrides the result.
func LoadOptions(explicit Options) (Options, error) {
	var merged Options
	if err := envconfig.Process("gruntle", &merged); err != nil {
		return Options{}, errors.Wrap(err, "bind environment configuration")
	}

	if explicit.CommitInterval != 0 {
		merged.CommitInterval = explicit.CommitInterval
	}
	if explicit.CommitThreshold != 0 {
		merged.CommitThreshold = explicit.CommitThreshold
	}
	if explicit.AutoOffsetReset != "" {
		merged.AutoOffsetReset = explicit.AutoOffsetReset
	}
	if explicit.CommitStrategy != "" {
		merged.CommitStrategy = explicit.CommitStrategy
	}
	if explicit.FetchOptions != (FetchOptions{}) {
		merged.FetchOptions = explicit.FetchOptions
	}
	if explicit.ExtraConsumerArgs != nil {
		merged.ExtraConsumerArgs = explicit.ExtraConsumerArgs
	}
	if explicit.ProducerOptions != nil {
		merged.ProducerOptions = explicit.ProducerOptions
	}
	if len(explicit.Brokers) > 0 {
		merged.Brokers = explicit.Brokers
	}
	return merged, nil
}
