package steprunner

import (
	"context"
	"time"
)

// StepCallback is the hook invoked for each new step.
type StepCallback func(context.Context, StepInfo) error

// StepInfo describes one time step of the simulation.
type StepInfo struct {
	Step uint64
	// Time is the simulation time at the start of the step.
	Time      float64
	StartedAt time.Time
	Interval  time.Duration
}
