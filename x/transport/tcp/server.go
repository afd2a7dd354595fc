// Package tcp links remote volume-buffer processes to a coordinator process.
// Envelopes travel as length-prefixed protobuf frames. A link opens with a hello
// exchange in which each side names itself.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
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
	// ErrClosed is returned after Stop.
	ErrClosed = errors.New("tcp: transport closed")
	// ErrDuplicatePeer indicates a second live link announcing the same id.
	ErrDuplicatePeer = errors.New("tcp: duplicate peer id")
	// ErrTooManyPeers indicates MaxConnections was reached.
	ErrTooManyPeers = errors.New("tcp: too many peers")
)

// DefaultMaxConnections bounds concurrent peers.
const DefaultMaxConnections = 256

// Handler consumes one envelope read from a peer.
type Handler func(ctx context.Context, msg *structpb.Struct) error

// Config configures a Server.
type Config struct {
	Logger zerolog.Logger
	// ID is announced to every peer.
	ID             string
	ListenAddr     string
	MaxConnections int
	Codec          codec.StreamCodec
	Timeouts       TimeoutConfig
	Registerer     prometheus.Registerer

	// OnConnect runs on the peer's read goroutine after it is admitted and
	// before its first envelope is read.
	OnConnect func(ctx context.Context, peer string)
}

func (c *Config) apply() {
	if c.ID == "" {
		c.ID = "coordinator"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.Codec == nil {
		c.Codec = codec.NewProtobufCodec(codec.DefaultMaxMessageSize)
	}
}

// Server accepts peers and exchanges envelopes with them.
type Server struct {
	cfg     Config
	log     zerolog.Logger
	handler Handler

	mu       sync.RWMutex
	listener net.Listener
	peers    map[string]*connection
	conns    map[*connection]struct{}
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup

	connected prometheus.Gauge
	received  prometheus.Counter
	sent      prometheus.Counter
	rejected  *prometheus.CounterVec
}

var _ messenger.Broadcaster = (*Server)(nil)

// NewServer creates a server that hands every inbound envelope to handler.
func NewServer(cfg Config, handler Handler) *Server {
	cfg.apply()
	r := metrics.NewComponentRegistryWith(cfg.Registerer, "intrp", "tcp", nil)
	return &Server{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "tcp-transport").Logger(),
		handler: handler,
		peers:   make(map[string]*connection),
		conns:   make(map[*connection]struct{}),
		done:    make(chan struct{}),
		connected: r.NewGauge(prometheus.GaugeOpts{
			Name: "peers",
			Help: "Connected peers",
		}),
		received: r.NewCounter(prometheus.CounterOpts{
			Name: "messages_received_total",
			Help: "Envelopes read from peers",
		}),
		sent: r.NewCounter(prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Envelopes written to peers",
		}),
		rejected: r.NewCounterVec(prometheus.CounterOpts{
			Name: "peers_rejected_total",
			Help: "Links closed during the hello exchange",
		}, []string{"reason"}),
	}
}

// Start listens and accepts peers until ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.listener != nil {
		return nil
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("tcp: listen: %w", err)
	}
	s.listener = ln

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, ln)
	}()
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("TCP transport listening")
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every link, then waits for the link goroutines.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info().Msg("TCP transport stopped")
}

// Peers lists the connected peers ordered by id.
func (s *Server) Peers() []ConnectionInfo {
	s.mu.RLock()
	out := make([]ConnectionInfo, 0, len(s.peers))
	for _, c := range s.peers {
		out = append(out, c.Info())
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Broadcast writes msg to every peer except excludeID. A peer that fails the
// write is dropped; the remaining peers still receive msg.
func (s *Server) Broadcast(_ context.Context, msg *structpb.Struct, excludeID string) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	targets := make([]*connection, 0, len(s.peers))
	for id, c := range s.peers {
		if id != excludeID {
			targets = append(targets, c)
		}
	}
	s.mu.RUnlock()

	var errs []error
	for _, c := range targets {
		if err := c.WriteMessage(msg); err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", c.ID(), err))
			_ = c.Close()
			continue
		}
		s.sent.Inc()
	}
	return errors.Join(errs...)
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		netConn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Error().Err(err).Msg("Accept failed")
			}
			return
		}
		c := newConnection(netConn, s.cfg.Codec, s.log, s.cfg.Timeouts)
		if !s.track(c) {
			_ = c.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			s.serve(ctx, c)
		}()
	}
}

func (s *Server) serve(ctx context.Context, c *connection) {
	defer c.Close()

	id, err := c.readHello()
	if err != nil {
		s.rejected.WithLabelValues("hello").Inc()
		c.log.Warn().Err(err).Msg("Rejecting peer")
		return
	}
	if err := c.sendHello(s.cfg.ID); err != nil {
		c.log.Warn().Err(err).Msg("Failed to answer hello")
		return
	}
	if err := s.admit(id, c); err != nil {
		s.rejected.WithLabelValues("admit").Inc()
		c.log.Warn().Err(err).Msg("Rejecting peer")
		return
	}
	defer s.remove(id, c)
	c.log.Info().Msg("Peer connected")
	if s.cfg.OnConnect != nil {
		s.cfg.OnConnect(ctx, id)
	}

	for {
		msg, err := c.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				c.log.Warn().Err(err).Msg("Peer link failed")
			}
			return
		}
		s.received.Inc()
		if err := s.handler(ctx, msg); err != nil {
			c.log.Error().Err(err).Msg("Envelope handler failed")
		}
	}
}

func (s *Server) track(c *connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *connection) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) admit(id string, c *connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, exists := s.peers[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePeer, id)
	}
	if len(s.peers) >= s.cfg.MaxConnections {
		return ErrTooManyPeers
	}
	s.peers[id] = c
	s.connected.Set(float64(len(s.peers)))
	return nil
}

func (s *Server) remove(id string, c *connection) {
	s.mu.Lock()
	if s.peers[id] == c {
		delete(s.peers, id)
	}
	s.connected.Set(float64(len(s.peers)))
	s.mu.Unlock()
	c.log.Info().Msg("Peer disconnected")
}
