package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/interpolation-target/target-coordinator-app/config"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.API.ListenAddr = "127.0.0.1:0"
	cfg.Steps.Interval = 5 * time.Millisecond
	cfg.Gate.Functions = map[string]float64{"expansion": 0}
	cfg.Gate.Lookahead = 0.125
	cfg.Audit = config.AuditConfig{Enabled: true, Path: ":memory:"}
	cfg.Targets = []config.TargetConfig{
		{
			Name:                "lapse",
			TimeDependent:       true,
			Points:              13,
			Invalid:             []uint64{10, 11, 12},
			Sentinel:            15,
			Transform:           config.TransformSquare,
			MaxCompletedHistory: 1000,
		},
		{Name: "shift", Points: 8, Transform: config.TransformNone, MaxCompletedHistory: 1000},
	}
	return cfg
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestApp_RunsTargetsUntilCanceled(t *testing.T) {
	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := NewApp(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, app.runners, 2)
	require.Len(t, app.volumes["lapse"], cfg.Volume.Workers)

	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		lapse, err := app.audit.Count(ctx, "lapse")
		if err != nil {
			return false
		}
		shift, err := app.audit.Count(ctx, "shift")
		return err == nil && lapse >= 3 && shift >= 3
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return app.apiServer.Addr() != nil }, time.Second, 5*time.Millisecond)
	base := "http://" + app.apiServer.Addr().String()

	code, body := get(t, base+"/v1/targets")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"targets":["lapse","shift"]}`, body)

	code, _ = get(t, base+"/v1/targets/lapse/status")
	require.Equal(t, http.StatusOK, code)

	code, body = get(t, base+"/metrics")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, body, "intrp_target_epochs_completed_total")
	require.Contains(t, body, "intrp_gate_updates_total")

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}

	for _, r := range app.runners {
		st, err := r.Status(context.Background())
		require.NoError(t, err)
		require.Empty(t, st.Aborted)
		require.NotEmpty(t, st.Completed)
		for i, c := range st.Completed {
			require.Equal(t, float64(i)*cfg.Steps.StepSize, c.ID, "epochs complete in temporal order")
		}
	}
}

func TestNewApp_AuditOpenFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Audit.Path = filepath.Join(t.TempDir(), "missing", "audit.db")

	_, err := NewApp(context.Background(), cfg, zerolog.Nop())
	require.ErrorContains(t, err, "audit store")
}

func TestApplyFlags(t *testing.T) {
	initCommands()
	require.NoError(t, rootCmd.ParseFlags([]string{
		"--log-level", "debug",
		"--step-interval", "250ms",
		"--volume-workers", "7",
		"--audit-db", "audit.db",
	}))

	cfg := testConfig()
	cfg.Audit = config.AuditConfig{}
	applyFlags(rootCmd, cfg)

	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 250*time.Millisecond, cfg.Steps.Interval)
	require.Equal(t, 7, cfg.Volume.Workers)
	require.True(t, cfg.Audit.Enabled)
	require.Equal(t, "audit.db", cfg.Audit.Path)
	require.Equal(t, "127.0.0.1:0", cfg.API.ListenAddr, "untouched flags keep config values")
}

func TestApp_RemoteVolumeWorkers(t *testing.T) {
	cfg := testConfig()
	cfg.API.Enabled = false
	cfg.Volume.Workers = 0
	cfg.Transport.ListenAddr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := NewApp(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Empty(t, app.volumes)

	runErr := make(chan error, 1)
	go func() { runErr <- app.Run(ctx) }()
	require.Eventually(t, func() bool { return app.remote.Addr() != nil }, time.Second, 5*time.Millisecond)

	// Workers join after the first epochs were dispatched; their point
	// requests are repeated on connect.
	time.Sleep(3 * cfg.Steps.Interval)
	for _, tc := range cfg.Targets {
		for k := 0; k < 2; k++ {
			rv, err := startRemoteVolume(ctx, volumeOptions{
				Addr:      app.remote.Addr().String(),
				Target:    tc.Name,
				ID:        fmt.Sprintf("volume/%s/%d", tc.Name, k),
				Worker:    k,
				Workers:   2,
				BatchSize: 4,
			}, zerolog.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { _ = rv.client.Close() })
		}
	}

	require.Eventually(t, func() bool {
		lapse, err := app.audit.Count(ctx, "lapse")
		if err != nil {
			return false
		}
		shift, err := app.audit.Count(ctx, "shift")
		return err == nil && lapse >= 3 && shift >= 3
	}, 5*time.Second, 10*time.Millisecond)
	require.Len(t, app.remote.Peers(), 4)

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not shut down")
	}
}

func TestVolumeOptions_Validate(t *testing.T) {
	t.Parallel()

	opts := volumeOptions{Addr: "127.0.0.1:9090", Target: "lapse", Worker: 2}
	require.NoError(t, opts.validate())
	require.Equal(t, "volume/lapse/2", opts.ID)

	require.Error(t, (&volumeOptions{Target: "lapse"}).validate())
	require.Error(t, (&volumeOptions{Addr: "127.0.0.1:9090"}).validate())
}
