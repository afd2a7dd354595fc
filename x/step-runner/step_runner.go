package steprunner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StepRunner emits a step at genesis + K * interval, for K = 0,1,2,...
// Steps missed while the handler was busy are emitted in order before waiting again.
type StepRunner struct {
	mu      sync.Mutex
	log     zerolog.Logger
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
	err     error

	handler     StepCallback
	interval    time.Duration
	stepSize    float64
	now         func() time.Time
	genesisTime time.Time
}

// New constructs a StepRunner. A zero GenesisTime means "at Start".
func New(cfg Config) (*StepRunner, error) {
	if cfg.Handler == nil {
		return nil, errors.New("step-runner: handler is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.StepSize <= 0 {
		cfg.StepSize = DefaultStepSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &StepRunner{
		log:         cfg.Logger,
		handler:     cfg.Handler,
		interval:    cfg.Interval,
		stepSize:    cfg.StepSize,
		now:         cfg.Now,
		genesisTime: cfg.GenesisTime,
		done:        make(chan struct{}),
	}, nil
}

// Start begins emitting steps until the context is canceled, Stop is called or the handler fails.
func (r *StepRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.started = true
	if r.genesisTime.IsZero() {
		r.genesisTime = r.now()
	}

	go r.run(runCtx)
	return nil
}

// Stop halts the runner and waits for the loop to exit.
func (r *StepRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
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

// Wait blocks until the loop exits and returns the handler error that stopped it, if any.
func (r *StepRunner) Wait() error {
	<-r.done
	return r.err
}

func (r *StepRunner) run(ctx context.Context) {
	defer close(r.done)

	var lastEmitted uint64
	hasEmitted := false

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		now := r.now()
		if !now.Before(r.genesisTime) {
			current, _ := r.StepForTime(now)
			first := current
			if hasEmitted {
				first = lastEmitted + 1
			}
			for step := first; step <= current; step++ {
				if err := r.emit(ctx, step); err != nil {
					r.err = err
					return
				}
				lastEmitted = step
				hasEmitted = true
			}
		}

		next := r.genesisTime
		if hasEmitted {
			next = r.stepStart(lastEmitted + 1)
		}
		delay := next.Sub(r.now())
		if delay < 0 {
			delay = 0
		}
		timer.Reset(delay)
	}
}

// emit triggers the handler with the provided StepInfo.
func (r *StepRunner) emit(ctx context.Context, step uint64) error {
	info := StepInfo{
		Step:      step,
		Time:      float64(step) * r.stepSize,
		StartedAt: r.stepStart(step),
		Interval:  r.interval,
	}
	if err := r.handler(ctx, info); err != nil {
		r.log.Error().Err(err).Uint64("step", step).Msg("step handler returned error")
		return err
	}
	return nil
}

// StepForTime returns the step and its start time for the given timestamp.
func (r *StepRunner) StepForTime(t time.Time) (uint64, time.Time) {
	if t.Before(r.genesisTime) {
		return 0, r.genesisTime
	}
	step := uint64(t.Sub(r.genesisTime) / r.interval)
	return step, r.stepStart(step)
}

// TimeOfStep returns the simulation time at the start of step.
func (r *StepRunner) TimeOfStep(step uint64) float64 {
	return float64(step) * r.stepSize
}

func (r *StepRunner) stepStart(step uint64) time.Time {
	return r.genesisTime.Add(time.Duration(step) * r.interval)
}
