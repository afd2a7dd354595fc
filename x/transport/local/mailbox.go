package local

import (
	"context"
	"sync"
)

type endpoint struct {
	id      string
	handler Handler

	mu     sync.Mutex
	queue  [][]byte
	closed bool
	signal chan struct{}
}

func newEndpoint(id string, handler Handler) *endpoint {
	return &endpoint{id: id, handler: handler, signal: make(chan struct{}, 1)}
}

func (e *endpoint) push(data []byte) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, data)
	e.mu.Unlock()
	e.wake()
}

// pop blocks until a frame is queued. It reports false once the endpoint is closed
// or ctx is done.
func (e *endpoint) pop(ctx context.Context) ([]byte, bool) {
	for {
		e.mu.Lock()
		if e.closed {
			e.mu.Unlock()
			return nil, false
		}
		if len(e.queue) > 0 {
			data := e.queue[0]
			e.queue[0] = nil
			e.queue = e.queue[1:]
			e.mu.Unlock()
			return data, true
		}
		e.mu.Unlock()

		select {
		case <-e.signal:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (e *endpoint) close() {
	e.mu.Lock()
	e.closed = true
	e.queue = nil
	e.mu.Unlock()
	e.wake()
}

func (e *endpoint) wake() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}
