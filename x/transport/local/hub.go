package local

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/compose-network/interpolation-target/metrics"
	"github.com/compose-network/interpolation-target/x/codec"
	"github.com/compose-network/interpolation-target/x/messenger"
)

var (
	// ErrDuplicateEndpoint indicates a second registration under the same id.
	ErrDuplicateEndpoint = errors.New("transport: endpoint already registered")
	// ErrUnknownEndpoint indicates a direct send to an id nobody registered.
	ErrUnknownEndpoint = errors.New("transport: unknown endpoint")
	// ErrClosed is returned after Stop.
	ErrClosed = errors.New("transport: hub closed")
)

// Handler consumes one decoded envelope. Errors are logged by the hub.
type Handler func(ctx context.Context, msg *structpb.Struct) error

// Config configures a Hub.
type Config struct {
	Logger     zerolog.Logger
	Codec      codec.Codec
	Registerer prometheus.Registerer
}

// Hub is an in-process transport. Every envelope is framed by the codec and
// delivered through the receiving endpoint's unbounded mailbox, one at a time,
// in the order it was sent.
type Hub struct {
	mu        sync.RWMutex
	log       zerolog.Logger
	codec     codec.Codec
	endpoints map[string]*endpoint
	ctx       context.Context
	started   bool
	closed    bool
	wg        sync.WaitGroup

	delivered *prometheus.CounterVec
	failed    *prometheus.CounterVec
	bytesSent prometheus.Counter
}

var _ messenger.Broadcaster = (*Hub)(nil)

// NewHub creates a hub. A nil codec selects the protobuf codec with default limits.
func NewHub(cfg Config) *Hub {
	if cfg.Codec == nil {
		cfg.Codec = codec.NewRegistry(codec.DefaultMaxMessageSize).Default()
	}
	r := metrics.NewComponentRegistryWith(cfg.Registerer, "intrp", "transport", nil)
	return &Hub{
		log:       cfg.Logger.With().Str("component", "local-transport").Logger(),
		codec:     cfg.Codec,
		endpoints: make(map[string]*endpoint),
		delivered: r.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_delivered_total",
			Help: "Envelopes handed to endpoint handlers",
		}, []string{"endpoint"}),
		failed: r.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_failed_total",
			Help: "Envelopes that failed to decode or whose handler returned an error",
		}, []string{"endpoint"}),
		bytesSent: r.NewCounter(prometheus.CounterOpts{
			Name: "bytes_sent_total",
			Help: "Framed bytes enqueued for delivery",
		}),
	}
}

// Register adds an endpoint. Endpoints registered after Start begin delivering immediately.
func (h *Hub) Register(id string, handler Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if _, exists := h.endpoints[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEndpoint, id)
	}
	ep := newEndpoint(id, handler)
	h.endpoints[id] = ep
	if h.started {
		h.launch(ep)
	}
	return nil
}

// Endpoints lists registered ids in sorted order.
func (h *Hub) Endpoints() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.endpoints))
	for id := range h.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start launches one delivery goroutine per endpoint.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if h.started {
		return nil
	}
	h.ctx = ctx
	h.started = true
	for _, ep := range h.endpoints {
		h.launch(ep)
	}
	h.log.Info().Int("endpoints", len(h.endpoints)).Msg("Local transport started")
	return nil
}

// Stop closes every mailbox and waits for in-flight handlers to return.
// Envelopes still queued are dropped.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for _, ep := range h.endpoints {
		ep.close()
	}
	h.mu.Unlock()
	h.wg.Wait()
}

// Broadcast delivers msg to every endpoint except excludeID.
func (h *Hub) Broadcast(_ context.Context, msg *structpb.Struct, excludeID string) error {
	data, err := h.codec.Encode(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for id, ep := range h.endpoints {
		if id == excludeID {
			continue
		}
		ep.push(data)
		h.bytesSent.Add(float64(len(data)))
	}
	return nil
}

// Send delivers msg to a single endpoint.
func (h *Hub) Send(_ context.Context, to string, msg *structpb.Struct) error {
	data, err := h.codec.Encode(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	ep, ok := h.endpoints[to]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, to)
	}
	ep.push(data)
	h.bytesSent.Add(float64(len(data)))
	return nil
}

// launch starts ep's delivery loop. Caller must hold h.mu.
func (h *Hub) launch(ep *endpoint) {
	ctx := h.ctx
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			data, ok := ep.pop(ctx)
			if !ok {
				return
			}
			h.deliver(ctx, ep, data)
		}
	}()
}

func (h *Hub) deliver(ctx context.Context, ep *endpoint, data []byte) {
	var msg structpb.Struct
	if err := h.codec.Decode(data, &msg); err != nil {
		h.failed.WithLabelValues(ep.id).Inc()
		h.log.Error().Err(err).Str("endpoint", ep.id).Msg("Failed to decode envelope")
		return
	}
	if err := ep.handler(ctx, &msg); err != nil {
		h.failed.WithLabelValues(ep.id).Inc()
		h.log.Error().Err(err).Str("endpoint", ep.id).Msg("Endpoint handler failed")
		return
	}
	h.delivered.WithLabelValues(ep.id).Inc()
}
