package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/interpolation-target/x/target"
)

func writeConfig(t *testing.T, cfg *Config) string {
	t.Helper()
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func validConfig() *Config {
	cfg := Default()
	cfg.Gate.Functions = map[string]float64{"expansion": 0.5}
	cfg.Targets = []TargetConfig{
		{Name: "lapse", TimeDependent: true, Points: 13, Invalid: []uint64{10, 11, 12}, Sentinel: 15, Transform: TransformSquare},
		{Name: "shift", Points: 8},
	}
	return cfg
}

func TestLoad_RoundTripsYAML(t *testing.T) {
	t.Parallel()

	want := validConfig()
	want.Steps.Interval = 250 * time.Millisecond
	want.Audit = AuditConfig{Enabled: true, Path: "audit.db"}

	got, err := Load(writeConfig(t, want))
	require.NoError(t, err)

	require.Equal(t, 250*time.Millisecond, got.Steps.Interval)
	require.Equal(t, want.Steps.StepSize, got.Steps.StepSize)
	require.Equal(t, map[string]float64{"expansion": 0.5}, got.Gate.Functions)
	require.Equal(t, want.API.ListenAddr, got.API.ListenAddr)
	require.True(t, got.Audit.Enabled)
	require.Len(t, got.Targets, 2)

	lapse := got.Targets[0]
	require.Equal(t, "lapse", lapse.Name)
	require.True(t, lapse.TimeDependent)
	require.Equal(t, 13, lapse.Points)
	require.Equal(t, []uint64{10, 11, 12}, lapse.Invalid)
	require.Equal(t, 15.0, lapse.Sentinel)
	require.Equal(t, TransformSquare, lapse.Transform)

	shift := got.Targets[1]
	require.Equal(t, TransformNone, shift.Transform)
	require.Equal(t, target.DefaultMaxCompletedHistory, shift.MaxCompletedHistory)
}

func TestLoad_DefaultsFillMissingSections(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("targets:\n  - name: lapse\n    points: 4\n"), 0o600))

	got, err := Load(path)
	require.NoError(t, err)
	d := Default()
	require.Equal(t, d.Steps.Interval, got.Steps.Interval)
	require.Equal(t, d.Volume, got.Volume)
	require.Equal(t, d.Log.Level, got.Log.Level)
	require.Equal(t, d.API.ReadTimeout, got.API.ReadTimeout)
	require.True(t, got.Metrics.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("VOLUME_WORKERS", "5")

	got, err := Load(writeConfig(t, validConfig()))
	require.NoError(t, err)
	require.Equal(t, "debug", got.Log.Level)
	require.Equal(t, 5, got.Volume.Workers)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_ShippedConfig(t *testing.T) {
	t.Parallel()

	got, err := Load("../configs/config.yaml")
	require.NoError(t, err)
	require.Len(t, got.Targets, 2)
	require.Len(t, got.Gate.Functions, 2)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"zero interval", func(c *Config) { c.Steps.Interval = 0 }, "steps.interval"},
		{"negative step size", func(c *Config) { c.Steps.StepSize = -1 }, "steps.step_size"},
		{"negative lookahead", func(c *Config) { c.Gate.Lookahead = -0.1 }, "gate.lookahead"},
		{"no workers", func(c *Config) { c.Volume.Workers = 0 }, "volume.workers"},
		{"remote workers only", func(c *Config) { c.Volume.Workers = 0; c.Transport.ListenAddr = ":9090" }, ""},
		{"negative workers", func(c *Config) { c.Volume.Workers = -1 }, "volume.workers"},
		{"audit without path", func(c *Config) { c.Audit = AuditConfig{Enabled: true} }, "audit.path"},
		{"no targets", func(c *Config) { c.Targets = nil }, "at least one target"},
		{"empty name", func(c *Config) { c.Targets[1].Name = " " }, "empty name"},
		{"duplicate name", func(c *Config) { c.Targets[1].Name = "lapse" }, "defined twice"},
		{"invalid out of range", func(c *Config) { c.Targets[0].Invalid = []uint64{13} }, "out of range"},
		{"unknown transform", func(c *Config) { c.Targets[0].Transform = "cube" }, "not supported"},
		{"negative history", func(c *Config) { c.Targets[0].MaxCompletedHistory = -1 }, "max_completed_history"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tc.errMsg)
		})
	}
}
