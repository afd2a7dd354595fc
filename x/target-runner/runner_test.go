package targetrunner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/interpolation-target/x/gate"
	"github.com/compose-network/interpolation-target/x/target"
)

type syncMessenger struct {
	mu       sync.Mutex
	requests []float64
	cleanups []float64
}

func (m *syncMessenger) SendRequestPoints(id float64, _ []uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, id)
}

func (m *syncMessenger) SendCleanUp(id float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, id)
}

func (m *syncMessenger) requested() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.requests...)
}

type harness struct {
	runner    *Runner[float64]
	messenger *syncMessenger
	mu        sync.Mutex
	calls     map[float64]int
}

func (h *harness) completions(id float64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[id]
}

func newHarness(t *testing.T, total int, mutate func(*target.Config[float64])) *harness {
	t.Helper()
	h := &harness{messenger: &syncMessenger{}, calls: make(map[float64]int)}
	cb := target.Unconditional[float64](func(_ context.Context, id float64, _ target.Values) error {
		h.mu.Lock()
		h.calls[id]++
		h.mu.Unlock()
		return nil
	})
	points := target.PointSourceFunc[float64](func(context.Context, float64) (target.Points, error) {
		return target.Points{Total: total}, nil
	})
	tcfg := target.DefaultConfig[float64](zerolog.Nop(), "lapse", h.messenger, points, cb)
	if mutate != nil {
		mutate(&tcfg)
	}
	r, err := New(DefaultConfig(zerolog.Nop(), tcfg))
	require.NoError(t, err)
	h.runner = r
	t.Cleanup(func() { _ = r.Stop(context.Background()) })
	return h
}

func TestRunner_ConcurrentWorkersCompleteOnce(t *testing.T) {
	t.Parallel()

	const total = 64
	h := newHarness(t, total, func(cfg *target.Config[float64]) {
		cfg.InitialActive = []float64{1}
	})
	ctx := context.Background()
	require.NoError(t, h.runner.Start(ctx))

	// Every worker delivers every point, as with overlapping requests.
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < total; i++ {
				b := target.Batch{Offsets: []uint64{uint64(i)}, Values: []float64{float64(i)}}
				assert.NoError(t, h.runner.Receive(ctx, 1, []target.Batch{b}))
			}
		}()
	}
	wg.Wait()

	st, err := h.runner.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st.Completed, 1)
	require.Equal(t, 1, h.completions(1))
}

func TestRunner_GateUpdatesArePosted(t *testing.T) {
	t.Parallel()

	g, err := gate.New(gate.Config{Logger: zerolog.Nop(), Functions: map[string]float64{"expansion": 0.5}})
	require.NoError(t, err)

	h := newHarness(t, 1, func(cfg *target.Config[float64]) {
		cfg.TimeDependent = true
		cfg.Gate = g
		cfg.InitialPending = []float64{1}
	})
	ctx := context.Background()
	require.NoError(t, h.runner.Start(ctx))

	require.Eventually(t, func() bool { return g.Subscribers() == 1 }, time.Second, time.Millisecond)
	require.Empty(t, h.messenger.requested())

	require.NoError(t, g.Update("expansion", 1.5))
	require.Eventually(t, func() bool { return len(h.messenger.requested()) == 1 }, time.Second, time.Millisecond)
	require.Equal(t, 0, g.Subscribers())

	require.NoError(t, h.runner.Receive(ctx, 1, []target.Batch{{Offsets: []uint64{0}, Values: []float64{1}}}))
	require.Eventually(t, func() bool { return h.completions(1) == 1 }, time.Second, time.Millisecond)
}

func TestRunner_ProtocolViolationStops(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, nil)
	ctx := context.Background()
	require.NoError(t, h.runner.Start(ctx))
	require.NoError(t, h.runner.Receive(ctx, 42, []target.Batch{{Offsets: []uint64{0}, Values: []float64{1}}}))

	require.ErrorIs(t, h.runner.Wait(), target.ErrProtocolViolation)
	require.ErrorIs(t, h.runner.Receive(ctx, 42, nil), ErrStopped)
	require.ErrorIs(t, h.runner.Finalize(ctx, 42), ErrStopped)

	st, err := h.runner.Status(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, st.Aborted)
	require.ErrorIs(t, h.runner.Start(ctx), ErrStopped)
}

func TestRunner_CallerErrorsDoNotStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2, func(cfg *target.Config[float64]) {
		cfg.InitialActive = []float64{1}
	})
	ctx := context.Background()
	require.NoError(t, h.runner.Start(ctx))

	require.ErrorIs(t, h.runner.Finalize(ctx, 1), target.ErrNotComplete)
	require.ErrorIs(t, h.runner.RequestPoints(ctx, 7), target.ErrUnknownTemporalID)
	require.NoError(t, h.runner.RequestPoints(ctx, 1))
	require.Equal(t, []float64{1, 1}, h.messenger.requested())

	require.NoError(t, h.runner.AddTemporalIDs(ctx, 2))
	st, err := h.runner.Status(ctx)
	require.NoError(t, err)
	require.Len(t, st.Active, 2)
}

func TestRunner_StatusBeforeStartAndStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1, func(cfg *target.Config[float64]) {
		cfg.InitialActive = []float64{1}
	})
	ctx := context.Background()

	st, err := h.runner.Status(ctx)
	require.NoError(t, err)
	require.False(t, st.Started)

	require.NoError(t, h.runner.Start(ctx))
	require.NoError(t, h.runner.Start(ctx))
	require.NoError(t, h.runner.Stop(ctx))
	require.NoError(t, h.runner.Wait())

	st, err = h.runner.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.Started)
}
