package target

import (
	"cmp"
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Config contains all dependencies for a Coordinator.
type Config[T cmp.Ordered] struct {
	Logger zerolog.Logger

	// Name identifies the interpolation-target kind in logs, metrics and status.
	Name string

	// Required collaborators
	Messenger Messenger[T]
	Points    PointSource[T]
	Callback  Callback[T]

	// Gate is required when TimeDependent is set.
	Gate          Gate[T]
	TimeDependent bool

	// Sentinel is written into the slots of invalid points.
	Sentinel float64

	// Transform derives the values handed to the callback from the accumulated buffer.
	// dst and src have the same length. Nil hands the buffer over as is.
	Transform func(dst, src []float64)

	// MaxCompletedHistory bounds the completed list; 0 keeps everything.
	// Pruned ids raise a watermark and every id at or below it counts as
	// completed, including ids never requested. A stray Receive for such an id
	// is dropped as late instead of aborting with ErrProtocolViolation.
	MaxCompletedHistory int

	// Epochs known at start. InitialPending is treated as active for time-independent maps.
	InitialActive  []T
	InitialPending []T

	// Post schedules gate notifications. Defaults to running them inline on the
	// goroutine that updates the gate, which is only safe when that goroutine
	// also owns the coordinator. Otherwise post onto the owner, as the runner does.
	Post PostFunc

	// OnCleanedUp observes every epoch that reaches the completed list.
	OnCleanedUp func(CompletedEpoch[T])

	// Registerer receives the coordinator metrics; nil keeps them unregistered.
	Registerer prometheus.Registerer

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a config with sensible defaults for optional fields.
func DefaultConfig[T cmp.Ordered](
	logger zerolog.Logger,
	name string,
	messenger Messenger[T],
	points PointSource[T],
	callback Callback[T],
) Config[T] {
	return Config[T]{
		Logger:              logger.With().Str("component", "interpolation-target").Str("target", name).Logger(),
		Name:                name,
		Messenger:           messenger,
		Points:              points,
		Callback:            callback,
		Sentinel:            DefaultSentinel,
		MaxCompletedHistory: DefaultMaxCompletedHistory,
		Now:                 time.Now,
	}
}

func (c *Config[T]) apply() error {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Messenger == nil {
		return errors.New("target: messenger is required")
	}
	if c.Points == nil {
		return errors.New("target: point source is required")
	}
	if c.Callback == nil {
		return errors.New("target: completion callback is required")
	}
	if c.TimeDependent && c.Gate == nil {
		return errors.New("target: readiness gate is required for time-dependent maps")
	}
	if c.MaxCompletedHistory < 0 {
		return errors.New("target: max completed history must not be negative")
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

func (c *Config[T]) post(log zerolog.Logger) PostFunc {
	if c.Post != nil {
		return c.Post
	}
	return func(fn func(ctx context.Context) error) {
		if err := fn(context.Background()); err != nil {
			log.Error().Err(err).Msg("gate notification handling failed")
		}
	}
}
