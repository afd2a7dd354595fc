package targetrunner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/interpolation-target/metrics"
	"github.com/compose-network/interpolation-target/x/target"
)

// ErrStopped is returned for messages sent to a runner that is no longer running.
var ErrStopped = errors.New("target-runner: stopped")

type message[T cmp.Ordered] struct {
	kind  string
	fn    func(ctx context.Context, c *target.Coordinator[T]) error
	reply chan error
}

// Runner serializes every interaction with one coordinator through a single goroutine.
// Each message is handled to completion before the next one is taken from the inbox.
type Runner[T cmp.Ordered] struct {
	mu      sync.Mutex
	log     zerolog.Logger
	cancel  context.CancelFunc
	started bool

	coord *target.Coordinator[T]
	inbox chan message[T]
	done  chan struct{}
	err   error

	inboxDepth prometheus.Gauge
	handled    *prometheus.CounterVec
}

// New builds the coordinator and its runner. Nothing is dispatched before Start.
func New[T cmp.Ordered](cfg Config[T]) (*Runner[T], error) {
	cfg.apply()

	r := &Runner[T]{
		log:   cfg.Logger,
		inbox: make(chan message[T], cfg.InboxSize),
		done:  make(chan struct{}),
	}

	tcfg := cfg.Target
	tcfg.Post = r.postNotification
	coord, err := target.New(tcfg)
	if err != nil {
		return nil, fmt.Errorf("target-runner: %w", err)
	}
	r.coord = coord

	reg := metrics.NewComponentRegistryWith(tcfg.Registerer, "intrp", "runner", prometheus.Labels{"target": coord.Name()})
	r.inboxDepth = reg.NewGauge(prometheus.GaugeOpts{
		Name: "inbox_depth",
		Help: "Messages waiting in the coordinator inbox",
	})
	r.handled = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_handled_total",
		Help: "Messages handled by the coordinator",
	}, []string{"kind"})
	return r, nil
}

// Name returns the coordinator's target name.
func (r *Runner[T]) Name() string { return r.coord.Name() }

// Start launches the actor goroutine and starts the coordinator on it.
func (r *Runner[T]) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	if r.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true

	go r.run(runCtx)
	return nil
}

// Stop halts the actor and waits for it to exit.
func (r *Runner[T]) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the actor exits and returns the error that stopped it, if any.
func (r *Runner[T]) Wait() error {
	<-r.done
	return r.err
}

// Done is closed when the actor exits.
func (r *Runner[T]) Done() <-chan struct{} { return r.done }

func (r *Runner[T]) run(ctx context.Context) {
	defer close(r.done)
	defer r.coord.Close()

	if err := r.coord.Start(ctx); err != nil {
		r.fail(err)
		return
	}
	r.log.Info().Msg("Target runner started")

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Target runner stopped")
			return
		case m := <-r.inbox:
			r.inboxDepth.Set(float64(len(r.inbox)))
			r.handled.WithLabelValues(m.kind).Inc()

			err := m.fn(ctx, r.coord)
			if m.reply != nil {
				m.reply <- err
			}
			if err != nil && (m.reply == nil || fatal(err)) {
				r.fail(err)
				return
			}
		}
	}
}

func (r *Runner[T]) fail(err error) {
	r.err = err
	r.log.Error().Err(err).Msg("Target runner terminated")
}

// fatal reports errors that leave the coordinator unusable.
func fatal(err error) bool {
	return errors.Is(err, target.ErrProtocolViolation) ||
		errors.Is(err, target.ErrAborted) ||
		errors.Is(err, target.ErrCallbackFailed)
}

// post queues a message without waiting for it to be handled.
func (r *Runner[T]) post(ctx context.Context, m message[T]) error {
	select {
	case <-r.done:
		return ErrStopped
	default:
	}
	select {
	case r.inbox <- m:
		r.inboxDepth.Set(float64(len(r.inbox)))
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do queues a message and waits for its result.
func (r *Runner[T]) do(ctx context.Context, kind string, fn func(ctx context.Context, c *target.Coordinator[T]) error) error {
	m := message[T]{kind: kind, fn: fn, reply: make(chan error, 1)}
	if err := r.post(ctx, m); err != nil {
		return err
	}
	select {
	case err := <-m.reply:
		return err
	case <-r.done:
		select {
		case err := <-m.reply:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner[T]) postNotification(fn func(ctx context.Context) error) {
	m := message[T]{
		kind: "gate_update",
		fn: func(ctx context.Context, _ *target.Coordinator[T]) error {
			return fn(ctx)
		},
	}
	if err := r.post(context.Background(), m); err != nil {
		r.log.Debug().Err(err).Msg("Dropping gate notification")
	}
}

// Receive queues a delivery of interpolated points.
func (r *Runner[T]) Receive(ctx context.Context, id T, batches []target.Batch) error {
	return r.post(ctx, message[T]{
		kind: "receive",
		fn: func(ctx context.Context, c *target.Coordinator[T]) error {
			return c.Receive(ctx, id, batches)
		},
	})
}

// AddTemporalIDs queues new epochs.
func (r *Runner[T]) AddTemporalIDs(ctx context.Context, ids ...T) error {
	ids = append([]T(nil), ids...)
	return r.post(ctx, message[T]{
		kind: "add_temporal_ids",
		fn: func(ctx context.Context, c *target.Coordinator[T]) error {
			return c.AddTemporalIDs(ctx, ids...)
		},
	})
}

// Finalize cleans up an epoch whose callback suppressed cleanup.
func (r *Runner[T]) Finalize(ctx context.Context, id T) error {
	return r.do(ctx, "finalize", func(ctx context.Context, c *target.Coordinator[T]) error {
		return c.Finalize(ctx, id)
	})
}

// RequestPoints re-sends the point request of a dispatched epoch.
func (r *Runner[T]) RequestPoints(ctx context.Context, id T) error {
	return r.do(ctx, "request_points", func(ctx context.Context, c *target.Coordinator[T]) error {
		return c.RequestPoints(ctx, id)
	})
}

// Status returns a coordinator snapshot. Once the runner has exited the last state is returned.
func (r *Runner[T]) Status(ctx context.Context) (target.Status[T], error) {
	select {
	case <-r.done:
		return r.coord.Status(), nil
	default:
	}
	r.mu.Lock()
	if !r.started {
		defer r.mu.Unlock()
		return r.coord.Status(), nil
	}
	r.mu.Unlock()

	var st target.Status[T]
	err := r.do(ctx, "status", func(_ context.Context, c *target.Coordinator[T]) error {
		st = c.Status()
		return nil
	})
	if errors.Is(err, ErrStopped) {
		return r.coord.Status(), nil
	}
	return st, err
}
