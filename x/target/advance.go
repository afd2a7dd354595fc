package target

import (
	"context"
	"fmt"
)

// Start seeds the queues from the config and dispatches the first epoch.
func (c *Coordinator[T]) Start(ctx context.Context) error {
	if err := c.checkAborted(); err != nil {
		return err
	}
	if c.started {
		return nil
	}
	c.started = true

	for _, id := range c.cfg.InitialActive {
		c.active.insert(id)
	}
	for _, id := range c.cfg.InitialPending {
		if c.active.contains(id) {
			continue
		}
		c.enqueue(id)
	}

	c.log.Info().
		Bool("time_dependent", c.cfg.TimeDependent).
		Int("active", c.active.len()).
		Int("pending", c.pending.len()).
		Msg("Interpolation target started")

	return c.advance(ctx)
}

// AddTemporalIDs hands new epochs to the coordinator. Known ids are ignored.
// Time-dependent epochs wait in pending, time-independent ones go straight to active.
func (c *Coordinator[T]) AddTemporalIDs(ctx context.Context, ids ...T) error {
	if err := c.checkAborted(); err != nil {
		return err
	}
	added := 0
	for _, id := range ids {
		if c.known(id) {
			continue
		}
		c.enqueue(id)
		added++
	}
	if added == 0 || !c.started {
		c.observeQueues()
		return nil
	}
	return c.advance(ctx)
}

// RequestPoints re-sends the point request of a dispatched epoch. The record is left
// as is: samples that were already delivered are deduplicated on arrival.
func (c *Coordinator[T]) RequestPoints(_ context.Context, id T) error {
	if err := c.checkAborted(); err != nil {
		return err
	}
	rec, ok := c.records[id]
	if !ok {
		return fmt.Errorf("%w: no dispatched epoch %v", ErrUnknownTemporalID, id)
	}
	indices := rec.requestIndices()
	c.cfg.Messenger.SendRequestPoints(id, indices)
	c.metrics.PointRequests.WithLabelValues("repeat").Inc()
	c.log.Debug().Interface("temporal_id", id).Int("points", len(indices)).Msg("Re-sent point request")
	return nil
}

func (c *Coordinator[T]) enqueue(id T) {
	if c.cfg.TimeDependent {
		c.pending.insert(id)
		return
	}
	c.active.insert(id)
}

// advance dispatches the front of active, or promotes the next pending epoch
// once nothing is active.
func (c *Coordinator[T]) advance(ctx context.Context) error {
	defer c.observeQueues()

	if front, ok := c.active.front(); ok {
		if _, dispatched := c.records[front]; dispatched {
			return nil
		}
		return c.dispatch(ctx, front)
	}
	if !c.cfg.TimeDependent || c.awaiting != nil {
		return nil
	}

	id, ok := c.pending.popFront()
	if !ok {
		return nil
	}
	if c.cfg.Gate.IsFresh(id) {
		c.active.insert(id)
		return c.dispatch(ctx, id)
	}
	return c.awaitReadiness(ctx, id)
}

// awaitReadiness parks id until a gate update reports it fresh.
func (c *Coordinator[T]) awaitReadiness(ctx context.Context, id T) error {
	c.awaiting = &id
	c.metrics.GateWaits.Inc()
	c.log.Info().Interface("temporal_id", id).Msg("Coordinate map not fresh, waiting for gate update")

	if c.subscription == nil {
		c.subscription = c.cfg.Gate.Subscribe(func() {
			c.post(c.onGateUpdate)
		})
	}
	// The gate may have moved between the first check and the subscription.
	return c.onGateUpdate(ctx)
}

func (c *Coordinator[T]) onGateUpdate(ctx context.Context) error {
	if c.aborted != nil || c.awaiting == nil {
		return nil
	}
	c.metrics.GateChecks.Inc()

	id := *c.awaiting
	if !c.cfg.Gate.IsFresh(id) {
		return nil
	}
	c.awaiting = nil
	c.unsubscribe()
	c.active.insert(id)
	c.log.Info().Interface("temporal_id", id).Msg("Coordinate map fresh, promoting epoch")
	return c.advance(ctx)
}

// dispatch builds the record for id and asks the volume buffer for its points.
func (c *Coordinator[T]) dispatch(ctx context.Context, id T) error {
	points, err := c.cfg.Points.TargetPoints(ctx, id)
	if err != nil {
		return fmt.Errorf("target points for epoch %v: %w", id, err)
	}
	rec, err := newEpochRecord(points, c.cfg.Sentinel, c.cfg.Now())
	if err != nil {
		return fmt.Errorf("epoch %v: %w", id, err)
	}
	c.records[id] = rec

	indices := rec.requestIndices()
	if len(indices) > 0 {
		c.cfg.Messenger.SendRequestPoints(id, indices)
		c.metrics.PointRequests.WithLabelValues("initial").Inc()
	}
	c.log.Debug().
		Interface("temporal_id", id).
		Int("points", points.Total).
		Int("invalid", len(points.Invalid)).
		Msg("Dispatched point request")

	if rec.complete() {
		return c.complete(ctx, id, rec)
	}
	return nil
}
