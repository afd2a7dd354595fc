package volume

import (
	"cmp"
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/compose-network/interpolation-target/metrics"
	"github.com/compose-network/interpolation-target/x/target"
	"github.com/compose-network/interpolation-target/x/wire"
)

// Worker holds the raw volume data of its elements per epoch and interpolates on request.
type Worker[T cmp.Ordered] struct {
	mu  sync.Mutex
	cfg Config[T]
	log zerolog.Logger

	// ingested marks epochs whose raw data is buffered.
	ingested map[T]struct{}
	// waiting holds requests that arrived before the raw data.
	waiting map[T][][]uint64

	answered prometheus.Counter
	deferred prometheus.Counter
	dropped  prometheus.Counter
	buffered prometheus.Gauge
}

func NewWorker[T cmp.Ordered](cfg Config[T]) (*Worker[T], error) {
	if err := cfg.apply(); err != nil {
		return nil, err
	}
	r := metrics.NewComponentRegistryWith(cfg.Registerer, "intrp", "volume", prometheus.Labels{"worker": cfg.Name})
	return &Worker[T]{
		cfg:      cfg,
		log:      cfg.Logger.With().Str("component", "volume-worker").Str("worker", cfg.Name).Logger(),
		ingested: make(map[T]struct{}),
		waiting:  make(map[T][][]uint64),
		answered: r.NewCounter(prometheus.CounterOpts{
			Name: "points_answered_total",
			Help: "Points interpolated and sent back",
		}),
		deferred: r.NewCounter(prometheus.CounterOpts{
			Name: "requests_deferred_total",
			Help: "Point requests that arrived before the epoch's raw data",
		}),
		dropped: r.NewCounter(prometheus.CounterOpts{
			Name: "epochs_discarded_total",
			Help: "Epochs whose raw data was discarded on cleanup",
		}),
		buffered: r.NewGauge(prometheus.GaugeOpts{
			Name: "epochs_buffered",
			Help: "Epochs with buffered raw data",
		}),
	}, nil
}

// Ingest buffers the raw data of epoch id and answers requests that were waiting for it.
func (w *Worker[T]) Ingest(id T) {
	w.mu.Lock()
	w.ingested[id] = struct{}{}
	pending := w.waiting[id]
	delete(w.waiting, id)
	w.buffered.Set(float64(len(w.ingested)))
	w.mu.Unlock()

	for _, indices := range pending {
		w.answer(id, indices)
	}
}

// RequestPoints interpolates the owned subset of indices, or holds the request until Ingest.
func (w *Worker[T]) RequestPoints(id T, indices []uint64) {
	owned := w.owned(indices)
	if len(owned) == 0 {
		return
	}

	w.mu.Lock()
	if _, ok := w.ingested[id]; !ok {
		w.waiting[id] = append(w.waiting[id], owned)
		w.mu.Unlock()
		w.deferred.Inc()
		w.log.Debug().Interface("temporal_id", id).Int("points", len(owned)).Msg("Raw data not yet available, deferring request")
		return
	}
	w.mu.Unlock()

	w.answer(id, owned)
}

// CleanUp discards everything buffered for id.
func (w *Worker[T]) CleanUp(id T) {
	w.mu.Lock()
	_, had := w.ingested[id]
	delete(w.ingested, id)
	delete(w.waiting, id)
	w.buffered.Set(float64(len(w.ingested)))
	w.mu.Unlock()

	if had {
		w.dropped.Inc()
	}
}

// Buffered reports whether raw data for id is held.
func (w *Worker[T]) Buffered(id T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.ingested[id]
	return ok
}

func (w *Worker[T]) owned(indices []uint64) []uint64 {
	out := make([]uint64, 0, len(indices)/w.cfg.Workers+1)
	for _, idx := range indices {
		if idx%uint64(w.cfg.Workers) == uint64(w.cfg.Worker) {
			out = append(out, idx)
		}
	}
	return out
}

// answer samples indices and ships them in batches of BatchSize.
func (w *Worker[T]) answer(id T, indices []uint64) {
	batches := make([]target.Batch, 0, len(indices)/w.cfg.BatchSize+1)
	current := target.Batch{}
	for _, idx := range indices {
		v, ok := w.cfg.Sampler(id, idx)
		if !ok {
			continue
		}
		current.Offsets = append(current.Offsets, idx)
		current.Values = append(current.Values, v)
		if len(current.Offsets) == w.cfg.BatchSize {
			batches = append(batches, current)
			current = target.Batch{}
		}
	}
	if len(current.Offsets) > 0 {
		batches = append(batches, current)
	}
	if len(batches) == 0 {
		return
	}

	n := 0
	for _, b := range batches {
		n += len(b.Offsets)
	}
	w.answered.Add(float64(n))
	w.cfg.Replier.SendReceiveVars(id, batches)
}

// Handler decodes envelopes for targetName and applies RequestPoints and CleanUp.
// Envelopes of other kinds or other targets are ignored.
func (w *Worker[T]) Handler(targetName string, ids wire.IDCodec[T]) func(ctx context.Context, msg *structpb.Struct) error {
	return func(_ context.Context, msg *structpb.Struct) error {
		kind, name := wire.Peek(msg)
		if name != targetName || (kind != wire.KindRequestPoints && kind != wire.KindCleanUp) {
			return nil
		}
		m, err := wire.Decode(msg, ids)
		if err != nil {
			return fmt.Errorf("volume: %w", err)
		}
		switch m.Kind {
		case wire.KindRequestPoints:
			w.RequestPoints(m.ID, m.Indices)
		case wire.KindCleanUp:
			w.CleanUp(m.ID)
		}
		return nil
	}
}
