package api

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the HTTP API listener settings.
type Config struct {
	Enabled           bool          `mapstructure:"enabled"             yaml:"enabled"`
	EnableCORS        bool          `mapstructure:"enable_cors"         yaml:"enable_cors"`
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    yaml:"max_header_bytes"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		ListenAddr:        ":8090",
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    64 << 10,
	}
}

// Validate checks an enabled server has an address and no negative limits.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ListenAddr == "" {
		return errors.New("api.listen_addr is required when the API is enabled")
	}
	for name, d := range map[string]time.Duration{
		"read_header_timeout": c.ReadHeaderTimeout,
		"read_timeout":        c.ReadTimeout,
		"write_timeout":       c.WriteTimeout,
		"idle_timeout":        c.IdleTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("api.%s must not be negative, got %s", name, d)
		}
	}
	if c.MaxHeaderBytes < 0 {
		return fmt.Errorf("api.max_header_bytes must not be negative, got %d", c.MaxHeaderBytes)
	}
	return nil
}
