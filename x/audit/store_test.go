package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/interpolation-target/x/target"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndList(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)

	for i, id := range []string{"0.8125", "0.875", "0.9375"} {
		require.NoError(t, s.Record(ctx, Record{
			Target:       "lapse",
			TemporalID:   id,
			Expected:     13,
			Invalid:      3,
			DispatchedAt: base.Add(time.Duration(i) * time.Second),
			CompletedAt:  base.Add(time.Duration(i)*time.Second + time.Millisecond),
		}))
	}
	require.NoError(t, s.Record(ctx, Record{Target: "horizon", TemporalID: "0.8125", Expected: 1}))

	got, err := s.List(ctx, "lapse", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "0.9375", got[0].TemporalID)
	require.Equal(t, "0.875", got[1].TemporalID)
	require.True(t, base.Add(2*time.Second).Equal(got[0].DispatchedAt))
	require.Equal(t, 3, got[0].Invalid)

	all, err := s.List(ctx, "lapse", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	n, err := s.Count(ctx, "horizon")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestStore_DuplicateIsIgnored(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	r := Record{Target: "lapse", TemporalID: "1", Expected: 10}
	require.NoError(t, s.Record(ctx, r))
	r.Expected = 99
	require.NoError(t, s.Record(ctx, r))

	got, err := s.List(ctx, "lapse", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 10, got[0].Expected)
}

func TestStore_InMemory(t *testing.T) {
	t.Parallel()

	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Record(context.Background(), Record{Target: "lapse", TemporalID: "1"}))
	n, err := s.Count(context.Background(), "lapse")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestObserver(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	observe := Observer[float64](s, "lapse", zerolog.Nop())
	now := time.Now()
	observe(target.CompletedEpoch[float64]{ID: 0.8125, Expected: 13, Invalid: 3, DispatchedAt: now, CompletedAt: now})

	got, err := s.List(context.Background(), "lapse", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "0.8125", got[0].TemporalID)
}
