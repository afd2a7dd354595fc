package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/compose-network/interpolation-target/x/target"
)

func TestEncodeDecode_ReceiveVars(t *testing.T) {
	t.Parallel()

	in := Message[float64]{
		Kind:   KindReceiveVars,
		Sender: "volume-0",
		Target: "lapse",
		ID:     13.0 / 16.0,
		Batches: []target.Batch{
			{Offsets: []uint64{1, 6}, Values: []float64{1, 888888}},
			{Offsets: []uint64{8, 0, 4}, Values: []float64{8, 0, 4}},
		},
	}
	env, err := Encode(in, Float64IDs{})
	require.NoError(t, err)

	kind, name := Peek(env)
	require.Equal(t, KindReceiveVars, kind)
	require.Equal(t, "lapse", name)

	out, err := Decode(env, Float64IDs{})
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestEncodeDecode_Uint64IDsKeepPrecision(t *testing.T) {
	t.Parallel()

	in := Message[uint64]{Kind: KindRequestPoints, Target: "horizon", ID: 1<<63 + 1, Indices: []uint64{0, 2, 5}}
	env, err := Encode(in, Uint64IDs{})
	require.NoError(t, err)
	out, err := Decode(env, Uint64IDs{})
	require.NoError(t, err)
	require.Equal(t, in.ID, out.ID)
	require.Equal(t, in.Indices, out.Indices)
}

func TestEncode_Rejects(t *testing.T) {
	t.Parallel()

	_, err := Encode(Message[float64]{Kind: "bogus"}, Float64IDs{})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Encode(Message[float64]{Kind: KindReceiveVars, Batches: []target.Batch{{Offsets: []uint64{1}}}}, Float64IDs{})
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Encode(Message[float64]{Kind: KindRequestPoints, Indices: []uint64{1 << 60}}, Float64IDs{})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecode_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{name: "missing id", fields: map[string]any{"kind": "clean_up"}},
		{name: "string id", fields: map[string]any{"kind": "clean_up", "id": "1"}},
		{name: "unknown kind", fields: map[string]any{"kind": "nope", "id": 1.0}},
		{name: "fractional index", fields: map[string]any{"kind": "request_points", "id": 1.0, "indices": []any{1.5}}},
		{name: "negative index", fields: map[string]any{"kind": "request_points", "id": 1.0, "indices": []any{-1.0}}},
		{name: "short values", fields: map[string]any{"kind": "receive_vars", "id": 1.0, "batches": []any{
			map[string]any{"offsets": []any{1.0, 2.0}, "values": []any{1.0}},
		}}},
		{name: "string value", fields: map[string]any{"kind": "receive_vars", "id": 1.0, "batches": []any{
			map[string]any{"offsets": []any{3.0}, "values": []any{"oops"}},
		}}},
		{name: "null value", fields: map[string]any{"kind": "receive_vars", "id": 1.0, "batches": []any{
			map[string]any{"offsets": []any{1.0}, "values": []any{1.0}},
			map[string]any{"offsets": []any{2.0, 3.0}, "values": []any{2.0, nil}},
		}}},
		{name: "bool value", fields: map[string]any{"kind": "receive_vars", "id": 1.0, "batches": []any{
			map[string]any{"offsets": []any{4.0}, "values": []any{true}},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env, err := structpb.NewStruct(tt.fields)
			require.NoError(t, err)
			_, err = Decode(env, Float64IDs{})
			require.ErrorIs(t, err, ErrMalformed)
		})
	}

	_, err := Decode(&structpb.Struct{}, Float64IDs{})
	require.ErrorIs(t, err, ErrMalformed)
}
