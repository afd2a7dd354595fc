package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/compose-network/interpolation-target/x/codec"
	"github.com/compose-network/interpolation-target/x/messenger"
)

// ClientConfig configures a Client.
type ClientConfig struct {
	Logger zerolog.Logger
	// ID is announced to the server and must be unique among its peers.
	ID          string
	Addr        string
	DialTimeout time.Duration
	Codec       codec.StreamCodec
	Timeouts    TimeoutConfig
}

// Client is one peer link to a Server.
type Client struct {
	cfg     ClientConfig
	log     zerolog.Logger
	handler Handler

	mu     sync.Mutex
	conn   *connection
	server string
	done   chan struct{}
	err    error
}

var _ messenger.Broadcaster = (*Client)(nil)

// NewClient creates a client that hands every envelope from the server to handler.
func NewClient(cfg ClientConfig, handler Handler) (*Client, error) {
	if cfg.ID == "" {
		return nil, errors.New("tcp: client id is required")
	}
	if cfg.Addr == "" {
		return nil, errors.New("tcp: server address is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Codec == nil {
		cfg.Codec = codec.NewProtobufCodec(codec.DefaultMaxMessageSize)
	}
	return &Client{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "tcp-client").Str("id", cfg.ID).Logger(),
		handler: handler,
		done:    make(chan struct{}),
	}, nil
}

// Connect dials the server, exchanges hellos and starts reading.
// The link closes when ctx is done or Close is called.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("tcp: dial %s: %w", c.cfg.Addr, err)
	}

	conn := newConnection(netConn, c.cfg.Codec, c.log, c.cfg.Timeouts)
	if err := conn.sendHello(c.cfg.ID); err != nil {
		_ = conn.Close()
		return fmt.Errorf("tcp: send hello: %w", err)
	}
	server, err := conn.readHello()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("tcp: %w", err)
	}
	c.conn = conn
	c.server = server

	go c.readLoop(ctx, conn)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-c.done:
		}
	}()

	c.log.Info().Str("server", server).Str("addr", c.cfg.Addr).Msg("Connected")
	return nil
}

// Server returns the id the server announced.
func (c *Client) Server() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.server
}

// Broadcast sends msg to the server. excludeID is ignored since the server is the only peer.
func (c *Client) Broadcast(_ context.Context, msg *structpb.Struct, _ string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("tcp: not connected")
	}
	return conn.WriteMessage(msg)
}

// Close drops the link.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Done is closed when the link is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the link; nil after a clean close.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

func (c *Client) readLoop(ctx context.Context, conn *connection) {
	defer close(c.done)
	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				c.err = err
				c.log.Warn().Err(err).Msg("Link failed")
			}
			return
		}
		if err := c.handler(ctx, msg); err != nil {
			c.log.Error().Err(err).Msg("Envelope handler failed")
		}
	}
}
