package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

type inbox struct {
	mu  sync.Mutex
	ids []float64
}

func (i *inbox) handler(_ context.Context, msg *structpb.Struct) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.ids = append(i.ids, msg.GetFields()["id"].GetNumberValue())
	return nil
}

func (i *inbox) received() []float64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]float64(nil), i.ids...)
}

func msg(t *testing.T, id float64) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(map[string]any{"id": id})
	require.NoError(t, err)
	return s
}

func TestHub_BroadcastExcludesSenderAndKeepsOrder(t *testing.T) {
	t.Parallel()

	h := NewHub(Config{Logger: zerolog.Nop()})
	var sender, a, b inbox
	require.NoError(t, h.Register("coordinator", sender.handler))
	require.NoError(t, h.Register("volume-0", a.handler))
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(h.Stop)

	// Late registration still receives.
	require.NoError(t, h.Register("volume-1", b.handler))
	require.ErrorIs(t, h.Register("volume-1", b.handler), ErrDuplicateEndpoint)

	want := make([]float64, 0, 100)
	for i := 0; i < 100; i++ {
		require.NoError(t, h.Broadcast(context.Background(), msg(t, float64(i)), "coordinator"))
		want = append(want, float64(i))
	}

	require.Eventually(t, func() bool {
		return len(a.received()) == 100 && len(b.received()) == 100
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, want, a.received())
	require.Equal(t, want, b.received())
	require.Empty(t, sender.received())
	require.Equal(t, []string{"coordinator", "volume-0", "volume-1"}, h.Endpoints())
}

func TestHub_Send(t *testing.T) {
	t.Parallel()

	h := NewHub(Config{Logger: zerolog.Nop()})
	var a, b inbox
	require.NoError(t, h.Register("a", a.handler))
	require.NoError(t, h.Register("b", b.handler))

	// Queued before Start, delivered after.
	require.NoError(t, h.Send(context.Background(), "a", msg(t, 7)))
	require.ErrorIs(t, h.Send(context.Background(), "c", msg(t, 7)), ErrUnknownEndpoint)
	require.NoError(t, h.Start(context.Background()))

	require.Eventually(t, func() bool { return len(a.received()) == 1 }, time.Second, 5*time.Millisecond)
	require.Empty(t, b.received())

	h.Stop()
	require.ErrorIs(t, h.Send(context.Background(), "a", msg(t, 8)), ErrClosed)
	require.ErrorIs(t, h.Register("d", a.handler), ErrClosed)
}

func TestHub_HandlerErrorsDoNotStopDelivery(t *testing.T) {
	t.Parallel()

	h := NewHub(Config{Logger: zerolog.Nop()})
	var mu sync.Mutex
	calls := 0
	require.NoError(t, h.Register("flaky", func(context.Context, *structpb.Struct) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return errors.New("flaky")
	}))
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(h.Stop)

	require.NoError(t, h.Broadcast(context.Background(), msg(t, 1), ""))
	require.NoError(t, h.Broadcast(context.Background(), msg(t, 2), ""))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 2
	}, time.Second, 5*time.Millisecond)
}
