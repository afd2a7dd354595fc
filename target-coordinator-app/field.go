package main

import (
	"context"
	"math"

	"github.com/rs/zerolog"

	"github.com/compose-network/interpolation-target/target-coordinator-app/config"
	"github.com/compose-network/interpolation-target/x/target"
)

// sampleField evaluates the analytic test field held by the volume buffer.
func sampleField(t float64, index uint64) (float64, bool) {
	return float64(index) + math.Sin(t), true
}

func transformFor(name string) func(dst, src []float64) {
	switch name {
	case config.TransformSquare:
		return func(dst, src []float64) {
			for i, v := range src {
				dst[i] = v * v
			}
		}
	default:
		return nil
	}
}

// pointsFor returns the fixed point set of a target.
func pointsFor(tc config.TargetConfig) target.PointSource[float64] {
	points := target.Points{Total: tc.Points, Invalid: append([]uint64(nil), tc.Invalid...)}
	return target.PointSourceFunc[float64](func(context.Context, float64) (target.Points, error) {
		return points, nil
	})
}

// reportCompletion logs a summary of every completed epoch.
func reportCompletion(log zerolog.Logger, name string) target.Callback[float64] {
	return target.Unconditional[float64](func(_ context.Context, id float64, values target.Values) error {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := 0; i < values.Len(); i++ {
			v := values.At(i)
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		log.Debug().
			Str("target", name).
			Float64("temporal_id", id).
			Int("points", values.Len()).
			Float64("min", lo).
			Float64("max", hi).
			Msg("Epoch interpolated")
		return nil
	})
}
