package wire

import (
	"cmp"
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"
)

// IDCodec maps temporal ids to and from envelope values.
type IDCodec[T cmp.Ordered] interface {
	EncodeID(id T) *structpb.Value
	DecodeID(v *structpb.Value) (T, error)
}

// Float64IDs carries simulation times as plain numbers.
type Float64IDs struct{}

func (Float64IDs) EncodeID(id float64) *structpb.Value { return structpb.NewNumberValue(id) }

func (Float64IDs) DecodeID(v *structpb.Value) (float64, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%w: temporal id is not a number", ErrMalformed)
	}
	if math.IsNaN(n.NumberValue) {
		return 0, fmt.Errorf("%w: temporal id is NaN", ErrMalformed)
	}
	return n.NumberValue, nil
}

// Uint64IDs carries step counters as decimal strings so no precision is lost.
type Uint64IDs struct{}

func (Uint64IDs) EncodeID(id uint64) *structpb.Value {
	return structpb.NewStringValue(strconv.FormatUint(id, 10))
}

func (Uint64IDs) DecodeID(v *structpb.Value) (uint64, error) {
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok {
		return 0, fmt.Errorf("%w: temporal id is not a string", ErrMalformed)
	}
	id, err := strconv.ParseUint(s.StringValue, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: temporal id: %w", ErrMalformed, err)
	}
	return id, nil
}
