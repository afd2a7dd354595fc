package target

import (
	"cmp"
	"context"
)

// Callback is invoked once per epoch when its sample set first becomes complete.
type Callback[T cmp.Ordered] interface {
	OnComplete(ctx context.Context, id T, values Values) (CleanupDecision, error)
}

// Unconditional adapts a callback that always lets the coordinator clean up.
type Unconditional[T cmp.Ordered] func(ctx context.Context, id T, values Values) error

func (f Unconditional[T]) OnComplete(ctx context.Context, id T, values Values) (CleanupDecision, error) {
	return CleanUp, f(ctx, id, values)
}

// Conditional adapts a callback that decides about cleanup.
// Returning false keeps the epoch so it can be inspected again later.
type Conditional[T cmp.Ordered] func(ctx context.Context, id T, values Values) (bool, error)

func (f Conditional[T]) OnComplete(ctx context.Context, id T, values Values) (CleanupDecision, error) {
	cleanUp, err := f(ctx, id, values)
	if err != nil {
		return KeepEpoch, err
	}
	if !cleanUp {
		return KeepEpoch, nil
	}
	return CleanUp, nil
}
