package codec

import (
	"io"

	"google.golang.org/protobuf/proto"
)

// Codec turns one envelope into one self-delimiting frame and back.
// Decode rejects frames above MaxMessageSize.
type Codec interface {
	Encode(msg proto.Message) ([]byte, error)
	Decode(frame []byte, msg proto.Message) error
	MaxMessageSize() int
}

// StreamCodec frames envelopes directly onto a connection. Transports between
// processes need it; the in-process hub only needs Codec.
type StreamCodec interface {
	Codec
	EncodeStream(w io.Writer, msg proto.Message) error
	DecodeStream(r io.Reader, msg proto.Message) error
}
