package target

import (
	"fmt"
	"time"
)

// epochRecord accumulates the samples of one dispatched epoch.
// filled and invalid never intersect.
type epochRecord struct {
	expected int
	filled   map[uint64]struct{}
	invalid  map[uint64]struct{}
	values   []float64

	// notified is set once the completion callback has been invoked.
	notified     bool
	dispatchedAt time.Time
}

func newEpochRecord(points Points, sentinel float64, now time.Time) (*epochRecord, error) {
	if points.Total < 0 {
		return nil, fmt.Errorf("%w: negative total %d", ErrInvalidPoints, points.Total)
	}

	rec := &epochRecord{
		expected:     points.Total,
		filled:       make(map[uint64]struct{}, points.Total),
		invalid:      make(map[uint64]struct{}, len(points.Invalid)),
		values:       make([]float64, points.Total),
		dispatchedAt: now,
	}
	for _, idx := range points.Invalid {
		if idx >= uint64(points.Total) {
			return nil, fmt.Errorf("%w: invalid index %d out of range [0,%d)", ErrInvalidPoints, idx, points.Total)
		}
		rec.invalid[idx] = struct{}{}
		rec.values[idx] = sentinel
	}
	return rec, nil
}

// accept writes value at offset unless the offset is already filled or invalid.
func (r *epochRecord) accept(offset uint64, value float64) bool {
	if _, seen := r.filled[offset]; seen {
		return false
	}
	if _, bad := r.invalid[offset]; bad {
		return false
	}
	r.values[offset] = value
	r.filled[offset] = struct{}{}
	return true
}

func (r *epochRecord) complete() bool {
	return len(r.filled)+len(r.invalid) == r.expected
}

// requestIndices lists every valid global index in ascending order.
func (r *epochRecord) requestIndices() []uint64 {
	out := make([]uint64, 0, r.expected-len(r.invalid))
	for i := 0; i < r.expected; i++ {
		if _, bad := r.invalid[uint64(i)]; bad {
			continue
		}
		out = append(out, uint64(i))
	}
	return out
}

func (r *epochRecord) view(transform func(dst, src []float64)) Values {
	if transform == nil {
		return NewValues(r.values)
	}
	out := make([]float64, len(r.values))
	transform(out, r.values)
	return NewValues(out)
}

func validateBatches(batches []Batch, expected int) error {
	for i, b := range batches {
		if len(b.Offsets) != len(b.Values) {
			return fmt.Errorf("batch %d: %d offsets but %d values", i, len(b.Offsets), len(b.Values))
		}
		for _, off := range b.Offsets {
			if off >= uint64(expected) {
				return fmt.Errorf("batch %d: offset %d out of range [0,%d)", i, off, expected)
			}
		}
	}
	return nil
}
