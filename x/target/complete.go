package target

import (
	"context"
	"fmt"
)

// complete runs the completion callback for a record that just became complete.
func (c *Coordinator[T]) complete(ctx context.Context, id T, rec *epochRecord) error {
	rec.notified = true

	decision, err := c.cfg.Callback.OnComplete(ctx, id, rec.view(c.cfg.Transform))
	if err != nil {
		return fmt.Errorf("%w: epoch %v: %w", ErrCallbackFailed, id, err)
	}
	c.metrics.RecordCompletion(decision, c.cfg.Now().Sub(rec.dispatchedAt))

	if decision == KeepEpoch {
		c.log.Info().Interface("temporal_id", id).Msg("Epoch complete, cleanup suppressed by callback")
		return nil
	}
	return c.cleanUp(ctx, id, rec)
}

// Finalize cleans up an epoch whose callback fired but suppressed cleanup,
// then advances to the next epoch. Finalizing an already completed epoch is a no-op.
func (c *Coordinator[T]) Finalize(ctx context.Context, id T) error {
	if err := c.checkAborted(); err != nil {
		return err
	}

	rec, ok := c.records[id]
	if !ok {
		if c.completed.contains(id) && !c.active.contains(id) {
			return nil
		}
		if c.known(id) {
			return fmt.Errorf("%w: epoch %v was not dispatched", ErrNotComplete, id)
		}
		return fmt.Errorf("%w: %v", ErrUnknownTemporalID, id)
	}
	if !rec.notified {
		return fmt.Errorf("%w: epoch %v has %d of %d points", ErrNotComplete, id, len(rec.filled)+len(rec.invalid), rec.expected)
	}
	return c.cleanUp(ctx, id, rec)
}

func (c *Coordinator[T]) cleanUp(ctx context.Context, id T, rec *epochRecord) error {
	c.active.remove(id)
	delete(c.records, id)

	entry := CompletedEpoch[T]{
		ID:           id,
		Expected:     rec.expected,
		Invalid:      len(rec.invalid),
		DispatchedAt: rec.dispatchedAt,
		CompletedAt:  c.cfg.Now(),
	}
	c.completed.add(entry)
	if c.cfg.OnCleanedUp != nil {
		c.cfg.OnCleanedUp(entry)
	}

	c.cfg.Messenger.SendCleanUp(id)
	c.metrics.CleanUpsSent.Inc()
	c.observeQueues()

	c.log.Info().
		Interface("temporal_id", id).
		Int("expected", entry.Expected).
		Int("invalid", entry.Invalid).
		Dur("latency", entry.CompletedAt.Sub(entry.DispatchedAt)).
		Msg("Epoch completed and cleaned up")

	return c.advance(ctx)
}
