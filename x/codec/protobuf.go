package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
)

// DefaultMaxMessageSize bounds a single frame.
const DefaultMaxMessageSize = 16 << 20

const prefixSize = 4

var (
	// ErrMessageTooLarge indicates a frame above the configured maximum.
	ErrMessageTooLarge = errors.New("codec: message exceeds max size")
	// ErrShortFrame indicates a frame shorter than its length prefix claims.
	ErrShortFrame = errors.New("codec: data too short")
	// ErrEmptyFrame indicates a zero-length frame on a stream.
	ErrEmptyFrame = errors.New("codec: empty message")
)

// ProtobufCodec frames messages as a 4-byte big-endian length followed by the protobuf encoding.
type ProtobufCodec struct {
	maxMessageSize int
	marshal        proto.MarshalOptions
}

var _ StreamCodec = (*ProtobufCodec)(nil)

// NewProtobufCodec creates a codec rejecting payloads above maxMessageSize bytes.
// Deterministic marshaling keeps map-valued envelopes byte-stable.
func NewProtobufCodec(maxMessageSize int) *ProtobufCodec {
	if maxMessageSize <= 0 {
		maxMessageSize = DefaultMaxMessageSize
	}
	return &ProtobufCodec{
		maxMessageSize: maxMessageSize,
		marshal:        proto.MarshalOptions{Deterministic: true},
	}
}

// Encode marshals msg behind a length prefix.
func (c *ProtobufCodec) Encode(msg proto.Message) ([]byte, error) {
	size := c.marshal.Size(msg)
	if size > c.maxMessageSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, c.maxMessageSize)
	}

	buf := make([]byte, prefixSize, prefixSize+size)
	buf, err := c.marshal.MarshalAppend(buf, msg)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	binary.BigEndian.PutUint32(buf[:prefixSize], uint32(len(buf)-prefixSize))
	return buf, nil
}

// Decode unmarshals one frame. Bytes after the frame are ignored.
func (c *ProtobufCodec) Decode(data []byte, msg proto.Message) error {
	if len(data) < prefixSize {
		return fmt.Errorf("%w: missing length prefix", ErrShortFrame)
	}
	length, err := c.length(data[:prefixSize])
	if err != nil {
		return err
	}
	if len(data)-prefixSize < length {
		return fmt.Errorf("%w: claimed %d bytes, have %d", ErrShortFrame, length, len(data)-prefixSize)
	}
	return proto.Unmarshal(data[prefixSize:prefixSize+length], msg)
}

// DecodeStream reads one frame from r.
func (c *ProtobufCodec) DecodeStream(r io.Reader, msg proto.Message) error {
	var prefix [prefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}
	length, err := c.length(prefix[:])
	if err != nil {
		return err
	}
	if length == 0 {
		return ErrEmptyFrame
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return proto.Unmarshal(payload, msg)
}

// EncodeStream writes one frame to w.
func (c *ProtobufCodec) EncodeStream(w io.Writer, msg proto.Message) error {
	data, err := c.Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (c *ProtobufCodec) MaxMessageSize() int {
	return c.maxMessageSize
}

func (c *ProtobufCodec) length(prefix []byte) (int, error) {
	length := binary.BigEndian.Uint32(prefix)
	if uint64(length) > uint64(c.maxMessageSize) {
		return 0, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, c.maxMessageSize)
	}
	return int(length), nil
}
