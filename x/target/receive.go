package target

import (
	"context"
	"fmt"
)

// Receive accumulates interpolated samples for id.
//
// Deliveries for completed epochs are dropped. Deliveries for an epoch that was never
// dispatched, and malformed batches, are protocol violations that abort the coordinator.
// Offsets already filled are discarded, so repeated and overlapping batches are harmless.
// If the epoch becomes complete, the completion callback runs before Receive returns.
func (c *Coordinator[T]) Receive(ctx context.Context, id T, batches []Batch) error {
	if err := c.checkAborted(); err != nil {
		return err
	}
	if !c.started {
		return ErrNotStarted
	}

	rec, ok := c.records[id]
	if !ok {
		if c.completed.contains(id) && !c.active.contains(id) {
			c.metrics.LateDeliveries.Inc()
			c.log.Debug().Interface("temporal_id", id).Msg("Dropping late delivery for completed epoch")
			return nil
		}
		return c.abort(fmt.Errorf("%w: received points for epoch %v which was never requested", ErrProtocolViolation, id))
	}

	if err := validateBatches(batches, rec.expected); err != nil {
		return c.abort(fmt.Errorf("%w: epoch %v: %w", ErrProtocolViolation, id, err))
	}

	var written, duplicates, invalid int
	for _, b := range batches {
		for i, off := range b.Offsets {
			if rec.accept(off, b.Values[i]) {
				written++
				continue
			}
			if _, bad := rec.invalid[off]; bad {
				invalid++
			} else {
				duplicates++
			}
		}
	}
	c.metrics.PointsReceived.Add(float64(written))
	c.metrics.PointsDropped.WithLabelValues("duplicate").Add(float64(duplicates))
	c.metrics.PointsDropped.WithLabelValues("invalid").Add(float64(invalid))

	c.log.Debug().
		Interface("temporal_id", id).
		Int("written", written).
		Int("duplicates", duplicates).
		Int("filled", len(rec.filled)).
		Int("expected", rec.expected).
		Msg("Received interpolated points")

	if !rec.complete() || rec.notified {
		return nil
	}
	return c.complete(ctx, id, rec)
}
