package steprunner

import "time"

const (
	// DefaultInterval is the wall-clock duration of one step.
	DefaultInterval = time.Second
	// DefaultStepSize is the simulation time per step.
	DefaultStepSize = 1.0 / 16.0
)
