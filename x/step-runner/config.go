package steprunner

import (
	"time"

	"github.com/rs/zerolog"
)

// Config configures a StepRunner.
type Config struct {
	// Handler is invoked for every time step.
	Handler StepCallback
	// Interval is the wall-clock duration of one step.
	Interval time.Duration
	// StepSize is the simulation time advanced per step.
	StepSize float64
	// GenesisTime is the wall-clock time at which step 0 starts.
	GenesisTime time.Time
	// Now returns the current time. Useful for deterministic tests. Defaults to time.Now if nil.
	Now    func() time.Time
	Logger zerolog.Logger
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig(logger zerolog.Logger) Config {
	return Config{
		Interval: DefaultInterval,
		StepSize: DefaultStepSize,
		Now:      time.Now,
		Logger:   logger.With().Str("component", "step-runner").Logger(),
	}
}
