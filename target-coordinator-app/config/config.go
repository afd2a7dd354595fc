package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	apisrv "github.com/compose-network/interpolation-target/server/api"
	"github.com/compose-network/interpolation-target/x/target"
)

// Transform names accepted in target configs.
const (
	TransformNone   = "none"
	TransformSquare = "square"
)

// Config holds the complete application configuration
type Config struct {
	API       apisrv.Config   `mapstructure:"api"       yaml:"api"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
	Log       LogConfig       `mapstructure:"log"       yaml:"log"`
	Steps     StepsConfig     `mapstructure:"steps"     yaml:"steps"`
	Gate      GateConfig      `mapstructure:"gate"      yaml:"gate"`
	Volume    VolumeConfig    `mapstructure:"volume"    yaml:"volume"`
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Audit     AuditConfig     `mapstructure:"audit"     yaml:"audit"`
	Targets   []TargetConfig  `mapstructure:"targets"   yaml:"targets"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"METRICS_PATH"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
	Output string `mapstructure:"output" yaml:"output" env:"LOG_OUTPUT"`
	File   string `mapstructure:"file"   yaml:"file"   env:"LOG_FILE"`
}

// StepsConfig drives the time stepper.
type StepsConfig struct {
	Interval time.Duration `mapstructure:"interval"     yaml:"interval"     env:"STEPS_INTERVAL"`
	StepSize float64       `mapstructure:"step_size"    yaml:"step_size"    env:"STEPS_STEP_SIZE"`
	// GenesisTime is a unix timestamp; 0 starts at process start.
	GenesisTime int64 `mapstructure:"genesis_time" yaml:"genesis_time" env:"STEPS_GENESIS_TIME"`
}

// GateConfig describes the functions of time of the coordinate map.
type GateConfig struct {
	// Functions maps each function of time to its initial expiration.
	Functions map[string]float64 `mapstructure:"functions" yaml:"functions"`
	// Lookahead is how far past the current step each function is refreshed.
	Lookahead float64 `mapstructure:"lookahead" yaml:"lookahead" env:"GATE_LOOKAHEAD"`
}

// VolumeConfig sizes the simulated volume buffer.
type VolumeConfig struct {
	Workers   int `mapstructure:"workers"    yaml:"workers"    env:"VOLUME_WORKERS"`
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size" env:"VOLUME_BATCH_SIZE"`
}

// TransportConfig holds envelope framing limits and the remote volume listener.
type TransportConfig struct {
	MaxMessageSize int `mapstructure:"max_message_size" yaml:"max_message_size" env:"TRANSPORT_MAX_MESSAGE_SIZE"`
	// ListenAddr accepts remote volume workers over TCP; empty disables it.
	ListenAddr     string        `mapstructure:"listen_addr"     yaml:"listen_addr"     env:"TRANSPORT_LISTEN_ADDR"`
	MaxConnections int           `mapstructure:"max_connections" yaml:"max_connections" env:"TRANSPORT_MAX_CONNECTIONS"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"   yaml:"write_timeout"   env:"TRANSPORT_WRITE_TIMEOUT"`
}

// AuditConfig holds the completed-epoch audit store configuration.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" env:"AUDIT_ENABLED"`
	Path    string `mapstructure:"path"    yaml:"path"    env:"AUDIT_PATH"`
}

// TargetConfig describes one interpolation target.
type TargetConfig struct {
	Name                string   `mapstructure:"name"                  yaml:"name"`
	TimeDependent       bool     `mapstructure:"time_dependent"        yaml:"time_dependent"`
	Points              int      `mapstructure:"points"                yaml:"points"`
	Invalid             []uint64 `mapstructure:"invalid"               yaml:"invalid"`
	Sentinel            float64  `mapstructure:"sentinel"              yaml:"sentinel"`
	Transform           string   `mapstructure:"transform"             yaml:"transform"`
	MaxCompletedHistory int      `mapstructure:"max_completed_history" yaml:"max_completed_history"`
	InboxSize           int      `mapstructure:"inbox_size"            yaml:"inbox_size"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for i := range cfg.Targets {
		cfg.Targets[i].applyDefaults()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.enable_cors", d.API.EnableCORS)
	v.SetDefault("api.listen_addr", d.API.ListenAddr)
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", d.API.MaxHeaderBytes)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
	v.SetDefault("log.output", d.Log.Output)

	v.SetDefault("steps.interval", "1s")
	v.SetDefault("steps.step_size", d.Steps.StepSize)
	v.SetDefault("steps.genesis_time", d.Steps.GenesisTime)

	v.SetDefault("gate.functions", map[string]float64{})
	v.SetDefault("gate.lookahead", d.Gate.Lookahead)

	v.SetDefault("volume.workers", d.Volume.Workers)
	v.SetDefault("volume.batch_size", d.Volume.BatchSize)

	v.SetDefault("transport.max_message_size", d.Transport.MaxMessageSize)
	v.SetDefault("transport.listen_addr", d.Transport.ListenAddr)
	v.SetDefault("transport.max_connections", d.Transport.MaxConnections)
	v.SetDefault("transport.write_timeout", "20s")

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.path", d.Audit.Path)
}

func (t *TargetConfig) applyDefaults() {
	if t.Transform == "" {
		t.Transform = TransformNone
	}
	if t.MaxCompletedHistory == 0 {
		t.MaxCompletedHistory = target.DefaultMaxCompletedHistory
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.API.Validate(); err != nil {
		return err
	}
	if err := c.validateSteps(); err != nil {
		return err
	}
	if err := c.validateGate(); err != nil {
		return err
	}
	if err := c.validateVolume(); err != nil {
		return err
	}
	if c.Audit.Enabled && strings.TrimSpace(c.Audit.Path) == "" {
		return errors.New("audit.path is required when audit is enabled")
	}
	return c.validateTargets()
}

func (c *Config) validateSteps() error {
	if c.Steps.Interval <= 0 {
		return errors.New("steps.interval must be positive")
	}
	if c.Steps.StepSize <= 0 || math.IsInf(c.Steps.StepSize, 0) || math.IsNaN(c.Steps.StepSize) {
		return fmt.Errorf("steps.step_size must be a positive number, got %v", c.Steps.StepSize)
	}
	return nil
}

func (c *Config) validateGate() error {
	if c.Gate.Lookahead < 0 || math.IsNaN(c.Gate.Lookahead) {
		return fmt.Errorf("gate.lookahead must not be negative, got %v", c.Gate.Lookahead)
	}
	for name, exp := range c.Gate.Functions {
		if math.IsNaN(exp) {
			return fmt.Errorf("gate.functions[%s] is not a number", name)
		}
	}
	return nil
}

func (c *Config) validateVolume() error {
	if c.Volume.Workers < 0 {
		return fmt.Errorf("volume.workers must not be negative, got %d", c.Volume.Workers)
	}
	if c.Volume.Workers == 0 && strings.TrimSpace(c.Transport.ListenAddr) == "" {
		return errors.New("volume.workers must be positive unless transport.listen_addr accepts remote workers")
	}
	if c.Volume.BatchSize <= 0 {
		return fmt.Errorf("volume.batch_size must be positive, got %d", c.Volume.BatchSize)
	}
	return nil
}

func (c *Config) validateTargets() error {
	if len(c.Targets) == 0 {
		return errors.New("at least one target is required")
	}
	seen := make(map[string]struct{}, len(c.Targets))
	for _, t := range c.Targets {
		if strings.TrimSpace(t.Name) == "" {
			return errors.New("targets contains an entry with empty name")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("targets[%s] is defined twice", t.Name)
		}
		seen[t.Name] = struct{}{}

		if t.Points < 0 {
			return fmt.Errorf("targets[%s].points must not be negative", t.Name)
		}
		for _, idx := range t.Invalid {
			if idx >= uint64(t.Points) {
				return fmt.Errorf("targets[%s].invalid index %d out of range", t.Name, idx)
			}
		}
		switch t.Transform {
		case "", TransformNone, TransformSquare:
		default:
			return fmt.Errorf("targets[%s].transform %q is not supported", t.Name, t.Transform)
		}
		if t.MaxCompletedHistory < 0 {
			return fmt.Errorf("targets[%s].max_completed_history must not be negative", t.Name)
		}
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		API: apisrv.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
			Output: "stdout",
		},
		Steps: StepsConfig{
			Interval: time.Second,
			StepSize: 1.0 / 16.0,
		},
		Gate: GateConfig{
			Functions: map[string]float64{},
			Lookahead: 0.25,
		},
		Volume: VolumeConfig{
			Workers:   3,
			BatchSize: 64,
		},
		Transport: TransportConfig{
			MaxMessageSize: 16 * 1024 * 1024,
			MaxConnections: 256,
			WriteTimeout:   20 * time.Second,
		},
		Audit: AuditConfig{
			Enabled: false,
			Path:    "target-audit.db",
		},
	}
}
