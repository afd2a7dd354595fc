package wire

import (
	"cmp"
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/compose-network/interpolation-target/x/target"
)

// ErrMalformed indicates an envelope that does not decode into a Message.
var ErrMalformed = errors.New("wire: malformed message")

// maxIndex is the largest point index a number value represents exactly.
const maxIndex = 1 << 53

// Kind names the message carried by an envelope.
type Kind string

const (
	KindRequestPoints Kind = "request_points"
	KindCleanUp       Kind = "clean_up"
	KindReceiveVars   Kind = "receive_vars"
	// KindHello opens a stream connection and names the peer.
	KindHello Kind = "hello"
)

const (
	fieldKind    = "kind"
	fieldSender  = "sender"
	fieldTarget  = "target"
	fieldID      = "id"
	fieldIndices = "indices"
	fieldBatches = "batches"
	fieldOffsets = "offsets"
	fieldValues  = "values"
)

// Message is one of RequestPoints, CleanUp or ReceiveVars for a named interpolation target.
type Message[T cmp.Ordered] struct {
	Kind   Kind
	Sender string
	Target string
	ID     T

	// Indices is set on RequestPoints.
	Indices []uint64
	// Batches is set on ReceiveVars.
	Batches []target.Batch
}

// Encode builds the protobuf envelope of m.
func Encode[T cmp.Ordered](m Message[T], ids IDCodec[T]) (*structpb.Struct, error) {
	fields := map[string]*structpb.Value{
		fieldKind:   structpb.NewStringValue(string(m.Kind)),
		fieldSender: structpb.NewStringValue(m.Sender),
		fieldTarget: structpb.NewStringValue(m.Target),
		fieldID:     ids.EncodeID(m.ID),
	}

	switch m.Kind {
	case KindRequestPoints:
		list, err := indexList(m.Indices)
		if err != nil {
			return nil, err
		}
		fields[fieldIndices] = structpb.NewListValue(list)
	case KindReceiveVars:
		batches := make([]*structpb.Value, 0, len(m.Batches))
		for i, b := range m.Batches {
			if len(b.Offsets) != len(b.Values) {
				return nil, fmt.Errorf("%w: batch %d has %d offsets and %d values", ErrMalformed, i, len(b.Offsets), len(b.Values))
			}
			offsets, err := indexList(b.Offsets)
			if err != nil {
				return nil, err
			}
			values := make([]*structpb.Value, len(b.Values))
			for j, v := range b.Values {
				values[j] = structpb.NewNumberValue(v)
			}
			batches = append(batches, structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
				fieldOffsets: structpb.NewListValue(offsets),
				fieldValues:  structpb.NewListValue(&structpb.ListValue{Values: values}),
			}}))
		}
		fields[fieldBatches] = structpb.NewListValue(&structpb.ListValue{Values: batches})
	case KindCleanUp:
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
	return &structpb.Struct{Fields: fields}, nil
}

// Peek returns the kind and target of an envelope without decoding the payload.
func Peek(s *structpb.Struct) (Kind, string) {
	f := s.GetFields()
	return Kind(f[fieldKind].GetStringValue()), f[fieldTarget].GetStringValue()
}

// Hello builds the first envelope a stream peer sends.
func Hello(sender string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKind:   structpb.NewStringValue(string(KindHello)),
		fieldSender: structpb.NewStringValue(sender),
	}}
}

// Sender returns the sender field of any envelope.
func Sender(s *structpb.Struct) string {
	return s.GetFields()[fieldSender].GetStringValue()
}

// Decode parses an envelope produced by Encode.
func Decode[T cmp.Ordered](s *structpb.Struct, ids IDCodec[T]) (Message[T], error) {
	var m Message[T]
	f := s.GetFields()
	if f == nil {
		return m, fmt.Errorf("%w: empty envelope", ErrMalformed)
	}
	m.Kind, m.Target = Peek(s)
	m.Sender = f[fieldSender].GetStringValue()

	idValue, ok := f[fieldID]
	if !ok {
		return m, fmt.Errorf("%w: missing temporal id", ErrMalformed)
	}
	id, err := ids.DecodeID(idValue)
	if err != nil {
		return m, err
	}
	m.ID = id

	switch m.Kind {
	case KindRequestPoints:
		m.Indices, err = decodeIndices(f[fieldIndices].GetListValue())
		if err != nil {
			return m, err
		}
	case KindReceiveVars:
		for i, bv := range f[fieldBatches].GetListValue().GetValues() {
			bf := bv.GetStructValue().GetFields()
			offsets, err := decodeIndices(bf[fieldOffsets].GetListValue())
			if err != nil {
				return m, fmt.Errorf("batch %d: %w", i, err)
			}
			raw := bf[fieldValues].GetListValue().GetValues()
			if len(raw) != len(offsets) {
				return m, fmt.Errorf("%w: batch %d has %d offsets and %d values", ErrMalformed, i, len(offsets), len(raw))
			}
			values := make([]float64, len(raw))
			for j, v := range raw {
				n, ok := v.GetKind().(*structpb.Value_NumberValue)
				if !ok {
					return m, fmt.Errorf("%w: batch %d value %d is not a number", ErrMalformed, i, j)
				}
				values[j] = n.NumberValue
			}
			m.Batches = append(m.Batches, target.Batch{Offsets: offsets, Values: values})
		}
	case KindCleanUp:
	default:
		return m, fmt.Errorf("%w: unknown kind %q", ErrMalformed, m.Kind)
	}
	return m, nil
}

func indexList(indices []uint64) (*structpb.ListValue, error) {
	out := make([]*structpb.Value, len(indices))
	for i, idx := range indices {
		if idx > maxIndex {
			return nil, fmt.Errorf("%w: point index %d not representable", ErrMalformed, idx)
		}
		out[i] = structpb.NewNumberValue(float64(idx))
	}
	return &structpb.ListValue{Values: out}, nil
}

func decodeIndices(list *structpb.ListValue) ([]uint64, error) {
	out := make([]uint64, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		n, ok := v.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return nil, fmt.Errorf("%w: point index is not a number", ErrMalformed)
		}
		f := n.NumberValue
		if f < 0 || f > maxIndex || f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: bad point index %v", ErrMalformed, f)
		}
		out = append(out, uint64(f))
	}
	return out, nil
}
