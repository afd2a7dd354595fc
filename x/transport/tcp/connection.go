package tcp

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/compose-network/interpolation-target/x/codec"
	"github.com/compose-network/interpolation-target/x/wire"
)

// ErrBadHello indicates a peer whose first frame is not a hello envelope.
var ErrBadHello = errors.New("tcp: expected hello")

// TimeoutConfig contains timeout settings for connection operations
type TimeoutConfig struct {
	Hello time.Duration // Timeout for the opening hello exchange (default: 5s)
	Read  time.Duration // Idle timeout between frames; 0 disables it
	Write time.Duration // Timeout for write operations (default: 20s)
}

// DefaultTimeoutConfig returns production-ready timeout defaults
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{
		Hello: 5 * time.Second,
		Write: 20 * time.Second,
	}
}

// ConnectionInfo describes one peer link.
type ConnectionInfo struct {
	ID              string    `json:"id"`
	RemoteAddr      string    `json:"remote_addr"`
	ConnectedAt     time.Time `json:"connected_at"`
	LastSeen        time.Time `json:"last_seen"`
	MessagesRead    uint64    `json:"messages_read"`
	MessagesWritten uint64    `json:"messages_written"`
}

// connection frames envelopes on a net.Conn.
type connection struct {
	net.Conn
	codec    codec.StreamCodec
	log      zerolog.Logger
	timeouts TimeoutConfig

	mu   sync.RWMutex
	info ConnectionInfo

	// Buffered I/O
	reader  *bufio.Reader
	writer  *bufio.Writer
	writeMu sync.Mutex

	messagesRead    uint64
	messagesWritten uint64
}

func newConnection(netConn net.Conn, c codec.StreamCodec, log zerolog.Logger, timeouts TimeoutConfig) *connection {
	now := time.Now()
	return &connection{
		Conn:     netConn,
		codec:    c,
		log:      log.With().Str("remote_addr", netConn.RemoteAddr().String()).Logger(),
		timeouts: timeouts,
		reader:   bufio.NewReaderSize(netConn, 16384),
		writer:   bufio.NewWriterSize(netConn, 16384),
		info: ConnectionInfo{
			RemoteAddr:  netConn.RemoteAddr().String(),
			ConnectedAt: now,
			LastSeen:    now,
		},
	}
}

// sendHello names this side of the link.
func (c *connection) sendHello(id string) error {
	return c.writeMessage(wire.Hello(id), c.timeouts.Hello)
}

// readHello waits for the peer's hello and records its id.
func (c *connection) readHello() (string, error) {
	if c.timeouts.Hello > 0 {
		if err := c.SetReadDeadline(time.Now().Add(c.timeouts.Hello)); err != nil {
			return "", err
		}
		defer c.SetReadDeadline(time.Time{}) //nolint: errcheck // best effort reset
	}

	var msg structpb.Struct
	if err := c.codec.DecodeStream(c.reader, &msg); err != nil {
		return "", fmt.Errorf("read hello: %w", err)
	}
	kind, _ := wire.Peek(&msg)
	id := wire.Sender(&msg)
	if kind != wire.KindHello || id == "" {
		return "", ErrBadHello
	}

	c.mu.Lock()
	c.info.ID = id
	c.mu.Unlock()
	c.log = c.log.With().Str("peer", id).Logger()
	return id, nil
}

// ReadMessage reads one envelope.
func (c *connection) ReadMessage() (*structpb.Struct, error) {
	if c.timeouts.Read > 0 {
		if err := c.SetReadDeadline(time.Now().Add(c.timeouts.Read)); err != nil {
			return nil, fmt.Errorf("failed to set read deadline: %w", err)
		}
	}

	var msg structpb.Struct
	if err := c.codec.DecodeStream(c.reader, &msg); err != nil {
		return nil, err
	}

	c.updateLastSeen()
	atomic.AddUint64(&c.messagesRead, 1)
	return &msg, nil
}

// WriteMessage writes one envelope and flushes it.
func (c *connection) WriteMessage(msg *structpb.Struct) error {
	if err := c.writeMessage(msg, c.timeouts.Write); err != nil {
		return err
	}
	atomic.AddUint64(&c.messagesWritten, 1)
	return nil
}

func (c *connection) writeMessage(msg *structpb.Struct, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if timeout > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	if err := c.codec.EncodeStream(c.writer, msg); err != nil {
		return err
	}
	return c.writer.Flush()
}

// ID returns the peer id announced in its hello.
func (c *connection) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.ID
}

// Info returns connection information.
func (c *connection) Info() ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := c.info
	info.MessagesRead = atomic.LoadUint64(&c.messagesRead)
	info.MessagesWritten = atomic.LoadUint64(&c.messagesWritten)
	return info
}

func (c *connection) updateLastSeen() {
	c.mu.Lock()
	c.info.LastSeen = time.Now()
	c.mu.Unlock()
}
