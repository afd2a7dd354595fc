package volume

import (
	"cmp"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/interpolation-target/x/target"
)

// DefaultBatchSize is the number of samples per reply batch.
const DefaultBatchSize = 64

// Sampler evaluates the field at a global point index from the raw data of epoch id.
// Returning false marks the point as not owned by this worker.
type Sampler[T cmp.Ordered] func(id T, index uint64) (float64, bool)

// Replier ships interpolated batches back to the coordinator.
type Replier[T cmp.Ordered] interface {
	SendReceiveVars(id T, batches []target.Batch)
}

// Config configures one volume worker.
type Config[T cmp.Ordered] struct {
	Logger zerolog.Logger
	// Name identifies the worker in logs and metrics.
	Name string
	// Worker and Workers define ownership: this worker answers index i iff i % Workers == Worker.
	Worker  int
	Workers int

	Sampler   Sampler[T]
	Replier   Replier[T]
	BatchSize int

	Registerer prometheus.Registerer
}

func (c *Config[T]) apply() error {
	if c.Sampler == nil {
		return errors.New("volume: sampler is required")
	}
	if c.Replier == nil {
		return errors.New("volume: replier is required")
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Worker < 0 || c.Worker >= c.Workers {
		return errors.New("volume: worker index out of range")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Name == "" {
		c.Name = "volume"
	}
	return nil
}
