package target

import (
	"cmp"
	"fmt"

	"github.com/rs/zerolog"
)

// Coordinator owns the epoch records of one interpolation target.
// It is a single-owner state machine: callers must serialize all calls,
// see the target-runner package for an actor wrapper.
type Coordinator[T cmp.Ordered] struct {
	cfg     Config[T]
	log     zerolog.Logger
	metrics *Metrics
	post    PostFunc

	started bool
	aborted error

	pending   idQueue[T]
	active    idQueue[T]
	records   map[T]*epochRecord
	completed *history[T]

	// awaiting is the pending id popped for promotion while the gate is stale.
	awaiting     *T
	subscription Subscription
}

// New creates a Coordinator using the provided config.
// Required fields: Messenger, Points, Callback, and Gate for time-dependent maps.
func New[T cmp.Ordered](cfg Config[T]) (*Coordinator[T], error) {
	if err := cfg.apply(); err != nil {
		return nil, err
	}

	c := &Coordinator[T]{
		cfg:       cfg,
		log:       cfg.Logger,
		metrics:   NewMetrics(cfg.Registerer, cfg.Name),
		records:   make(map[T]*epochRecord),
		completed: newHistory[T](cfg.MaxCompletedHistory),
	}
	c.post = cfg.post(c.log)
	return c, nil
}

// Name returns the interpolation target name.
func (c *Coordinator[T]) Name() string { return c.cfg.Name }

// Metrics exposes the coordinator's collectors.
func (c *Coordinator[T]) Metrics() *Metrics { return c.metrics }

// Err returns the error that aborted the coordinator, if any.
func (c *Coordinator[T]) Err() error { return c.aborted }

// Status returns a snapshot of the coordinator's queues and records.
func (c *Coordinator[T]) Status() Status[T] {
	st := Status[T]{
		Name:          c.cfg.Name,
		TimeDependent: c.cfg.TimeDependent,
		Started:       c.started,
		Pending:       c.pending.items(),
		Active:        make([]EpochStatus[T], 0, c.active.len()),
		Completed:     c.completed.list(),
		Watermark:     c.completed.watermarkPtr(),
	}
	if c.aborted != nil {
		st.Aborted = c.aborted.Error()
	}
	if c.awaiting != nil {
		id := *c.awaiting
		st.Awaiting = &id
	}
	for _, id := range c.active.items() {
		es := EpochStatus[T]{ID: id}
		if rec, ok := c.records[id]; ok {
			es.Dispatched = true
			es.Expected = rec.expected
			es.Filled = len(rec.filled)
			es.Invalid = len(rec.invalid)
			es.CallbackFired = rec.notified
		}
		st.Active = append(st.Active, es)
	}
	return st
}

// Close drops the gate subscription. The coordinator keeps its state.
func (c *Coordinator[T]) Close() {
	c.unsubscribe()
}

// known reports whether id was ever handed to the coordinator.
func (c *Coordinator[T]) known(id T) bool {
	if c.awaiting != nil && *c.awaiting == id {
		return true
	}
	return c.pending.contains(id) || c.active.contains(id) || c.completed.contains(id)
}

// abort stops the coordinator for good. Every later call returns ErrAborted.
func (c *Coordinator[T]) abort(err error) error {
	c.aborted = err
	c.unsubscribe()
	c.metrics.ProtocolViolations.Inc()
	c.log.Error().Err(err).Msg("Interpolation target aborted")
	return err
}

func (c *Coordinator[T]) checkAborted() error {
	if c.aborted != nil {
		return fmt.Errorf("%w: %w", ErrAborted, c.aborted)
	}
	return nil
}

func (c *Coordinator[T]) unsubscribe() {
	if c.subscription != nil {
		c.subscription.Unsubscribe()
		c.subscription = nil
	}
}

func (c *Coordinator[T]) observeQueues() {
	pending := c.pending.len()
	if c.awaiting != nil {
		pending++
	}
	c.metrics.RecordQueues(c.active.len(), pending)
}
