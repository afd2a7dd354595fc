package targetrunner

import (
	"cmp"

	"github.com/rs/zerolog"

	"github.com/compose-network/interpolation-target/x/target"
)

// DefaultInboxSize bounds the number of queued messages per coordinator.
const DefaultInboxSize = 1024

// Config wraps a coordinator config. Target.Post is owned by the runner.
type Config[T cmp.Ordered] struct {
	Logger    zerolog.Logger
	Target    target.Config[T]
	InboxSize int
}

// DefaultConfig returns a runner config around a coordinator config.
func DefaultConfig[T cmp.Ordered](logger zerolog.Logger, tcfg target.Config[T]) Config[T] {
	return Config[T]{
		Logger:    logger.With().Str("component", "target-runner").Str("target", tcfg.Name).Logger(),
		Target:    tcfg,
		InboxSize: DefaultInboxSize,
	}
}

func (cfg *Config[T]) apply() {
	if cfg.Logger.GetLevel() == zerolog.NoLevel {
		cfg.Logger = zerolog.Nop()
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
}
