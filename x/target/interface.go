package target

import (
	"cmp"
	"context"
)

// Messenger carries the coordinator's outbound, fire-and-forget notices to the volume buffer.
type Messenger[T cmp.Ordered] interface {
	// SendRequestPoints asks the volume buffer to interpolate at the given global indices.
	SendRequestPoints(id T, indices []uint64)
	// SendCleanUp tells the volume buffer to discard the raw data buffered for id.
	SendCleanUp(id T)
}

// PointSource decides the point set of an epoch when it is dispatched.
type PointSource[T cmp.Ordered] interface {
	TargetPoints(ctx context.Context, id T) (Points, error)
}

// PointSourceFunc adapts a function to PointSource.
type PointSourceFunc[T cmp.Ordered] func(ctx context.Context, id T) (Points, error)

func (f PointSourceFunc[T]) TargetPoints(ctx context.Context, id T) (Points, error) {
	return f(ctx, id)
}

// Gate answers whether the time-dependent coordinate map is valid through an epoch.
type Gate[T cmp.Ordered] interface {
	IsFresh(id T) bool
	// Subscribe registers handler to be invoked after every gate update.
	Subscribe(handler func()) Subscription
}

// Subscription is returned by Gate.Subscribe.
type Subscription interface {
	Unsubscribe()
}

// PostFunc schedules fn on the coordinator's thread of control.
type PostFunc func(fn func(ctx context.Context) error)
