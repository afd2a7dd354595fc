package target

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDQueue_KeepsOrder(t *testing.T) {
	t.Parallel()

	var q idQueue[float64]
	require.True(t, q.insert(0.5))
	require.True(t, q.insert(0.25))
	require.True(t, q.insert(0.75))
	require.False(t, q.insert(0.25))
	require.Equal(t, []float64{0.25, 0.5, 0.75}, q.items())

	front, ok := q.popFront()
	require.True(t, ok)
	require.Equal(t, 0.25, front)
	require.True(t, q.remove(0.75))
	require.False(t, q.remove(0.75))
	require.True(t, q.contains(0.5))
	require.Equal(t, 1, q.len())
}

func TestHistory_Unbounded(t *testing.T) {
	t.Parallel()

	h := newHistory[uint64](0)
	for id := uint64(0); id < 50; id++ {
		h.add(CompletedEpoch[uint64]{ID: id})
	}
	require.Len(t, h.list(), 50)
	require.Nil(t, h.watermarkPtr())
	require.False(t, h.contains(50))
}

func TestHistory_WatermarkIsLargestPruned(t *testing.T) {
	t.Parallel()

	h := newHistory[uint64](1)
	// Completion order need not follow id order.
	h.add(CompletedEpoch[uint64]{ID: 5})
	h.add(CompletedEpoch[uint64]{ID: 3})
	h.add(CompletedEpoch[uint64]{ID: 9})

	require.Equal(t, uint64(5), *h.watermarkPtr())
	require.True(t, h.contains(4))
	require.True(t, h.contains(9))
	require.False(t, h.contains(7))
}

func TestEpochRecord_RequestIndicesSkipInvalid(t *testing.T) {
	t.Parallel()

	rec, err := newEpochRecord(Points{Total: 5, Invalid: []uint64{0, 3}}, 7, newFakeClock().Now())
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2, 4}, rec.requestIndices())
	require.Equal(t, []float64{7, 0, 0, 7, 0}, rec.values)
	require.False(t, rec.accept(3, 1))
	require.True(t, rec.accept(1, 1))
	require.False(t, rec.accept(1, 2))
	require.False(t, rec.complete())

	_, err = newEpochRecord(Points{Total: -1}, 0, newFakeClock().Now())
	require.ErrorIs(t, err, ErrInvalidPoints)
}
