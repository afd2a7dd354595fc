package target

import "cmp"

// history is the completed list. Entries evicted by the size bound raise the watermark:
// any id at or below it is treated as completed.
type history[T cmp.Ordered] struct {
	entries []CompletedEpoch[T]
	index   map[T]struct{}
	max     int

	watermark    T
	hasWatermark bool
}

func newHistory[T cmp.Ordered](max int) *history[T] {
	return &history[T]{
		entries: make([]CompletedEpoch[T], 0),
		index:   make(map[T]struct{}),
		max:     max,
	}
}

func (h *history[T]) add(entry CompletedEpoch[T]) {
	h.entries = append(h.entries, entry)
	h.index[entry.ID] = struct{}{}
	h.prune()
}

func (h *history[T]) contains(id T) bool {
	if _, ok := h.index[id]; ok {
		return true
	}
	return h.hasWatermark && id <= h.watermark
}

// prune trims by max size. A zero max keeps everything.
func (h *history[T]) prune() {
	if h.max <= 0 || len(h.entries) <= h.max {
		return
	}
	drop := len(h.entries) - h.max
	for i := 0; i < drop; i++ {
		id := h.entries[i].ID
		delete(h.index, id)
		if !h.hasWatermark || id > h.watermark {
			h.watermark = id
			h.hasWatermark = true
		}
		h.entries[i] = CompletedEpoch[T]{}
	}
	h.entries = h.entries[drop:]
}

func (h *history[T]) list() []CompletedEpoch[T] {
	out := make([]CompletedEpoch[T], len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *history[T]) watermarkPtr() *T {
	if !h.hasWatermark {
		return nil
	}
	w := h.watermark
	return &w
}
