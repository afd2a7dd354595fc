package steprunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

func receive(t *testing.T, events <-chan StepInfo) StepInfo {
	t.Helper()
	select {
	case info := <-events:
		return info
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for step")
		return StepInfo{}
	}
}

func TestStepRunner_InitialEmissionAndCatchUp(t *testing.T) {
	t.Parallel()

	interval := 20 * time.Millisecond
	genesis := time.Unix(1000, 0)
	clock := &manualClock{current: genesis.Add(5 * interval)}

	events := make(chan StepInfo, 10)
	r, err := New(Config{
		Handler: func(_ context.Context, info StepInfo) error {
			events <- info
			return nil
		},
		Interval:    interval,
		StepSize:    1.0 / 16.0,
		GenesisTime: genesis,
		Now:         clock.Now,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	defer func() { _ = r.Stop(context.Background()) }()

	info := receive(t, events)
	require.Equal(t, uint64(5), info.Step)
	require.Equal(t, 5.0/16.0, info.Time)
	require.Equal(t, genesis.Add(5*interval), info.StartedAt)

	clock.Set(genesis.Add(8 * interval))
	for _, want := range []uint64{6, 7, 8} {
		info := receive(t, events)
		require.Equal(t, want, info.Step)
		require.Equal(t, float64(want)/16.0, info.Time)
	}
}

func TestStepRunner_WaitsForGenesis(t *testing.T) {
	t.Parallel()

	interval := 15 * time.Millisecond
	genesis := time.Unix(2000, 0)
	clock := &manualClock{current: genesis.Add(-interval)}

	events := make(chan StepInfo, 2)
	r, err := New(Config{
		Handler: func(_ context.Context, info StepInfo) error {
			events <- info
			return nil
		},
		Interval:    interval,
		GenesisTime: genesis,
		Now:         clock.Now,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	defer func() { _ = r.Stop(context.Background()) }()

	time.Sleep(interval / 2)
	select {
	case <-events:
		t.Fatalf("step emitted before genesis")
	default:
	}

	clock.Set(genesis)
	info := receive(t, events)
	require.Equal(t, uint64(0), info.Step)
}

func TestStepRunner_HandlerErrorStops(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	r, err := New(Config{
		Handler:  func(context.Context, StepInfo) error { return boom },
		Interval: time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background()))
	require.ErrorIs(t, r.Wait(), boom)
}

func TestStepRunner_StepForTime(t *testing.T) {
	t.Parallel()

	genesis := time.Unix(0, 0)
	r, err := New(Config{
		Handler:     func(context.Context, StepInfo) error { return nil },
		Interval:    time.Second,
		StepSize:    0.5,
		GenesisTime: genesis,
	})
	require.NoError(t, err)

	step, start := r.StepForTime(genesis.Add(2500 * time.Millisecond))
	require.Equal(t, uint64(2), step)
	require.Equal(t, genesis.Add(2*time.Second), start)
	require.Equal(t, 1.0, r.TimeOfStep(2))

	step, start = r.StepForTime(genesis.Add(-time.Second))
	require.Equal(t, uint64(0), step)
	require.Equal(t, genesis, start)

	_, err = New(Config{})
	require.Error(t, err)
}
