package gate

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/compose-network/interpolation-target/metrics"
	"github.com/compose-network/interpolation-target/x/target"
)

var (
	// ErrUnknownFunction indicates an update for a function of time that was never registered.
	ErrUnknownFunction = errors.New("gate: unknown function of time")
	// ErrExpirationDecreased indicates an update that would shorten a validity window.
	ErrExpirationDecreased = errors.New("gate: expiration must not decrease")
	// ErrInvalidExpiration indicates a NaN expiration.
	ErrInvalidExpiration = errors.New("gate: invalid expiration")
)

// Config configures an Expirations gate.
type Config struct {
	Logger zerolog.Logger
	// Functions maps each function-of-time name to its initial expiration.
	Functions map[string]float64
	// Registerer receives the gate metrics; nil keeps them unregistered.
	Registerer prometheus.Registerer
}

// Expirations is the readiness gate of a time-dependent coordinate map.
// The map is fresh through time t when every function of time it depends on
// is valid through t. A gate with no functions is always fresh.
type Expirations struct {
	mu          sync.RWMutex
	log         zerolog.Logger
	expirations map[string]float64
	subscribers map[uuid.UUID]func()

	updates     *prometheus.CounterVec
	subscribed  prometheus.Gauge
	minValidity prometheus.Gauge
}

var _ target.Gate[float64] = (*Expirations)(nil)

// New creates a gate from cfg.
func New(cfg Config) (*Expirations, error) {
	for name, exp := range cfg.Functions {
		if math.IsNaN(exp) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidExpiration, name)
		}
	}
	r := metrics.NewComponentRegistryWith(cfg.Registerer, "intrp", "gate", nil)
	g := &Expirations{
		log:         cfg.Logger.With().Str("component", "readiness-gate").Logger(),
		expirations: make(map[string]float64, len(cfg.Functions)),
		subscribers: make(map[uuid.UUID]func()),
		updates: r.NewCounterVec(prometheus.CounterOpts{
			Name: "updates_total",
			Help: "Expiration updates by outcome",
		}, []string{"result"}),
		subscribed: r.NewGauge(prometheus.GaugeOpts{
			Name: "subscribers",
			Help: "Current update subscribers",
		}),
		minValidity: r.NewGauge(prometheus.GaugeOpts{
			Name: "min_expiration",
			Help: "Time through which the coordinate map is valid",
		}),
	}
	maps.Copy(g.expirations, cfg.Functions)
	g.minValidity.Set(g.minExpirationLocked())
	return g, nil
}

// IsFresh reports whether the map is valid through t.
func (g *Expirations) IsFresh(t float64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return t <= g.minExpirationLocked()
}

// MinExpiration returns the time through which every function is valid.
func (g *Expirations) MinExpiration() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.minExpirationLocked()
}

func (g *Expirations) minExpirationLocked() float64 {
	earliest := math.Inf(1)
	for _, exp := range g.expirations {
		if exp < earliest {
			earliest = exp
		}
	}
	return earliest
}

// Update extends the validity of one function of time and notifies subscribers.
// Handlers run on the caller's goroutine after the gate lock is released.
func (g *Expirations) Update(name string, expiration float64) error {
	if math.IsNaN(expiration) {
		g.updates.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %s", ErrInvalidExpiration, name)
	}

	g.mu.Lock()
	current, ok := g.expirations[name]
	if !ok {
		g.mu.Unlock()
		g.updates.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	if expiration < current {
		g.mu.Unlock()
		g.updates.WithLabelValues("rejected").Inc()
		return fmt.Errorf("%w: %s from %g to %g", ErrExpirationDecreased, name, current, expiration)
	}
	g.expirations[name] = expiration
	earliest := g.minExpirationLocked()
	handlers := make([]func(), 0, len(g.subscribers))
	for _, h := range g.subscribers {
		handlers = append(handlers, h)
	}
	g.mu.Unlock()

	g.updates.WithLabelValues("applied").Inc()
	g.minValidity.Set(earliest)
	g.log.Debug().Str("function", name).Float64("expiration", expiration).Float64("min_expiration", earliest).Msg("Expiration updated")

	for _, h := range handlers {
		h()
	}
	return nil
}

// Snapshot returns the current expirations.
func (g *Expirations) Snapshot() map[string]float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return maps.Clone(g.expirations)
}

// Functions returns the registered names in sorted order.
func (g *Expirations) Functions() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.expirations))
	for name := range g.expirations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Subscribers returns the number of live subscriptions.
func (g *Expirations) Subscribers() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.subscribers)
}

// Subscribe registers handler for every applied update.
func (g *Expirations) Subscribe(handler func()) target.Subscription {
	id := uuid.New()
	g.mu.Lock()
	g.subscribers[id] = handler
	n := len(g.subscribers)
	g.mu.Unlock()
	g.subscribed.Set(float64(n))
	return &subscription{gate: g, id: id}
}

func (g *Expirations) unsubscribe(id uuid.UUID) {
	g.mu.Lock()
	delete(g.subscribers, id)
	n := len(g.subscribers)
	g.mu.Unlock()
	g.subscribed.Set(float64(n))
}

type subscription struct {
	once sync.Once
	gate *Expirations
	id   uuid.UUID
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() { s.gate.unsubscribe(s.id) })
}
