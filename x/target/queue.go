package target

import (
	"cmp"
	"slices"
)

// idQueue is a set of temporal ids kept in ascending order.
type idQueue[T cmp.Ordered] struct {
	ids []T
}

// insert adds id in order; it reports false if id was already present.
func (q *idQueue[T]) insert(id T) bool {
	i, found := slices.BinarySearch(q.ids, id)
	if found {
		return false
	}
	q.ids = slices.Insert(q.ids, i, id)
	return true
}

func (q *idQueue[T]) remove(id T) bool {
	i, found := slices.BinarySearch(q.ids, id)
	if !found {
		return false
	}
	q.ids = slices.Delete(q.ids, i, i+1)
	return true
}

func (q *idQueue[T]) contains(id T) bool {
	_, found := slices.BinarySearch(q.ids, id)
	return found
}

func (q *idQueue[T]) front() (T, bool) {
	if len(q.ids) == 0 {
		var zero T
		return zero, false
	}
	return q.ids[0], true
}

func (q *idQueue[T]) popFront() (T, bool) {
	id, ok := q.front()
	if ok {
		q.ids = q.ids[1:]
	}
	return id, ok
}

func (q *idQueue[T]) len() int { return len(q.ids) }

func (q *idQueue[T]) items() []T {
	return slices.Clone(q.ids)
}
