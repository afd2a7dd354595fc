package target

import (
	"cmp"
	"context"
	"sync"
	"time"
)

// --- test doubles ---

type pointRequest[T cmp.Ordered] struct {
	id      T
	indices []uint64
}

type recordingMessenger[T cmp.Ordered] struct {
	mu       sync.Mutex
	requests []pointRequest[T]
	cleanups []T
}

func (m *recordingMessenger[T]) SendRequestPoints(id T, indices []uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, pointRequest[T]{id: id, indices: append([]uint64(nil), indices...)})
}

func (m *recordingMessenger[T]) SendCleanUp(id T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, id)
}

func (m *recordingMessenger[T]) requestedIDs() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]T, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r.id)
	}
	return out
}

func (m *recordingMessenger[T]) cleanedUp() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.cleanups...)
}

func fixedPoints[T cmp.Ordered](points Points) PointSourceFunc[T] {
	return func(context.Context, T) (Points, error) { return points, nil }
}

type completion[T cmp.Ordered] struct {
	id     T
	values []float64
}

// recordingCallback records every invocation and answers with decide.
type recordingCallback[T cmp.Ordered] struct {
	calls  []completion[T]
	decide func(id T) (bool, error)
}

func (r *recordingCallback[T]) callback() Conditional[T] {
	return func(_ context.Context, id T, values Values) (bool, error) {
		r.calls = append(r.calls, completion[T]{id: id, values: values.Slice()})
		if r.decide == nil {
			return true, nil
		}
		return r.decide(id)
	}
}

// expirationGate is fresh through a single expiration time.
type expirationGate struct {
	mu         sync.Mutex
	expiration float64
	next       int
	handlers   map[int]func()
}

func newExpirationGate(expiration float64) *expirationGate {
	return &expirationGate{expiration: expiration, handlers: make(map[int]func())}
}

func (g *expirationGate) IsFresh(id float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return id <= g.expiration
}

func (g *expirationGate) Subscribe(handler func()) Subscription {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := g.next
	g.next++
	g.handlers[key] = handler
	return unsubscribeFunc(func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.handlers, key)
	})
}

func (g *expirationGate) update(expiration float64) {
	g.mu.Lock()
	g.expiration = expiration
	handlers := make([]func(), 0, len(g.handlers))
	for _, h := range g.handlers {
		handlers = append(handlers, h)
	}
	g.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (g *expirationGate) subscribers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handlers)
}

type unsubscribeFunc func()

func (f unsubscribeFunc) Unsubscribe() { f() }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func square(dst, src []float64) {
	for i, v := range src {
		dst[i] = v * v
	}
}

func batch(offsets []uint64, values []float64) Batch {
	return Batch{Offsets: offsets, Values: values}
}
