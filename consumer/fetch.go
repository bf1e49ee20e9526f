package consumer

import (
	"github.com/pkg/errors"

	"github.com/mailgun/log"
)

// initialOffsetLoad implements spec.md §4.D "Initial offset load". It runs
// once, on the first demand signal, before any fetch is attempted.
func (pc *PartitionConsumer) initialOffsetLoad() {
	committed, err := pc.broker.FetchCommittedOffset(pc.ctx, pc.group, pc.topic, pc.partition)
	switch {
	case err == nil:
		pc.tracker.reset(committed)

	case errors.Is(err, ErrUnknownTopicOrPartition):
		earliest, eerr := pc.broker.EarliestOffset(pc.ctx, pc.topic, pc.partition)
		if eerr != nil {
			pc.fatalErr = errors.Wrap(eerr, "earliest offset after unknown topic/partition")
			return
		}
		pc.tracker.reset(earliest)

	default:
		pc.fatalErr = errors.Wrap(err, "fetch committed offset")
	}
}

// runFetchStep implements one step of the Fetch Loop, spec.md §4.C.
func (pc *PartitionConsumer) runFetchStep() {
	records, err := pc.broker.Fetch(pc.ctx, pc.topic, pc.partition, pc.tracker.current, pc.options.FetchOptions)

	switch {
	case err == nil:
		pc.beginDelivery(records)

	case errors.Is(err, ErrOffsetOutOfRange):
		if resetErr := pc.handleOffsetReset(); resetErr != nil {
			pc.fatalErr = resetErr
			return
		}
		// "Treat this step as yielding zero records" (§4.C step 2).
		pc.beginDelivery(nil)

	default:
		log.Errorf("<%s> fatal fetch error: %s", pc.cid, err)
		pc.fatalErr = errors.Wrap(err, "fetch")
	}
}

// handleOffsetReset implements spec.md §4.C "Offset Reset".
func (pc *PartitionConsumer) handleOffsetReset() error {
	switch pc.options.AutoOffsetReset {
	case ResetEarliest:
		off, err := pc.broker.EarliestOffset(pc.ctx, pc.topic, pc.partition)
		if err != nil {
			return errors.Wrap(err, "earliest offset")
		}
		pc.tracker.reset(off)
		offsetResetsTotal.WithLabelValues("earliest").Inc()
		return nil

	case ResetLatest:
		off, err := pc.broker.LatestOffset(pc.ctx, pc.topic, pc.partition)
		if err != nil {
			return errors.Wrap(err, "latest offset")
		}
		pc.tracker.reset(off)
		offsetResetsTotal.WithLabelValues("latest").Inc()
		return nil

	default:
		log.Errorf("<%s> offset out of range, auto_offset_reset=none, terminating", pc.cid)
		return ErrAutoResetDisabled
	}
}
