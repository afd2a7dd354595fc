package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/structpb"

	apisrv "github.com/compose-network/interpolation-target/server/api"
	"github.com/compose-network/interpolation-target/target-coordinator-app/config"
	"github.com/compose-network/interpolation-target/x/audit"
	"github.com/compose-network/interpolation-target/x/codec"
	"github.com/compose-network/interpolation-target/x/gate"
	gatehttp "github.com/compose-network/interpolation-target/x/gate/http"
	"github.com/compose-network/interpolation-target/x/messenger"
	steprunner "github.com/compose-network/interpolation-target/x/step-runner"
	"github.com/compose-network/interpolation-target/x/target"
	targethttp "github.com/compose-network/interpolation-target/x/target/http"
	targetrunner "github.com/compose-network/interpolation-target/x/target-runner"
	"github.com/compose-network/interpolation-target/x/transport/local"
	"github.com/compose-network/interpolation-target/x/transport/tcp"
	"github.com/compose-network/interpolation-target/x/volume"
	"github.com/compose-network/interpolation-target/x/wire"
)

const (
	shutdownTimeout = 30 * time.Second
	// remoteEndpoint is the hub endpoint relaying to remote volume workers.
	remoteEndpoint = "tcp-bridge"
)

// App wires the interpolation targets, the simulated volume buffer and the time stepper.
type App struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry

	gate    *gate.Expirations
	codecs  *codec.Registry
	hub     *local.Hub
	remote  *tcp.Server
	audit   *audit.Store
	runners []*targetrunner.Runner[float64]
	volumes map[string][]*volume.Worker[float64]
	steps   *steprunner.StepRunner

	apiServer *apisrv.Server

	shutdownFns []func() error
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg:         cfg,
		log:         log.With().Str("component", "app").Logger(),
		volumes:     make(map[string][]*volume.Worker[float64]),
		shutdownFns: make([]func() error, 0),
	}

	if err := app.initialize(ctx, log); err != nil {
		app.runShutdownFns()
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize(ctx context.Context, log zerolog.Logger) error {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if err := a.initializeGate(log); err != nil {
		return err
	}

	a.codecs = codec.NewRegistry(a.cfg.Transport.MaxMessageSize)
	a.hub = local.NewHub(local.Config{
		Logger:     log,
		Codec:      a.codecs.Default(),
		Registerer: a.registry,
	})

	if err := a.initializeRemoteTransport(log); err != nil {
		return err
	}

	if err := a.initializeAudit(); err != nil {
		return err
	}

	for _, tc := range a.cfg.Targets {
		if err := a.initializeTarget(ctx, log, tc); err != nil {
			return fmt.Errorf("target %s: %w", tc.Name, err)
		}
	}

	if err := a.initializeStepRunner(log); err != nil {
		return err
	}

	a.initializeAPIServer(log)
	return nil
}

func (a *App) initializeGate(log zerolog.Logger) error {
	g, err := gate.New(gate.Config{
		Logger:     log,
		Functions:  a.cfg.Gate.Functions,
		Registerer: a.registry,
	})
	if err != nil {
		return fmt.Errorf("failed to create readiness gate: %w", err)
	}
	a.gate = g
	return nil
}

// initializeRemoteTransport relays point requests and cleanups to remote volume
// workers and feeds their replies into the hub.
func (a *App) initializeRemoteTransport(log zerolog.Logger) error {
	if strings.TrimSpace(a.cfg.Transport.ListenAddr) == "" {
		return nil
	}

	timeouts := tcp.DefaultTimeoutConfig()
	timeouts.Write = a.cfg.Transport.WriteTimeout
	srv := tcp.NewServer(tcp.Config{
		Logger:         log,
		ID:             "coordinator",
		ListenAddr:     a.cfg.Transport.ListenAddr,
		MaxConnections: a.cfg.Transport.MaxConnections,
		Codec:          a.codecs.Default(),
		Timeouts:       timeouts,
		Registerer:     a.registry,
		OnConnect:      a.resendPointRequests,
	}, func(ctx context.Context, msg *structpb.Struct) error {
		return a.hub.Broadcast(ctx, msg, remoteEndpoint)
	})

	err := a.hub.Register(remoteEndpoint, func(ctx context.Context, msg *structpb.Struct) error {
		if kind, _ := wire.Peek(msg); kind == wire.KindReceiveVars {
			return nil
		}
		return srv.Broadcast(ctx, msg, "")
	})
	if err != nil {
		return fmt.Errorf("failed to register remote transport: %w", err)
	}
	a.remote = srv
	return nil
}

// resendPointRequests repeats the outstanding point requests of every target so
// a volume worker that joins late answers epochs dispatched before it connected.
func (a *App) resendPointRequests(ctx context.Context, peer string) {
	for _, r := range a.runners {
		st, err := r.Status(ctx)
		if err != nil {
			a.log.Warn().Err(err).Str("target", r.Name()).Msg("Cannot resend point requests")
			continue
		}
		for _, e := range st.Active {
			if !e.Dispatched || e.CallbackFired {
				continue
			}
			if err := r.RequestPoints(ctx, e.ID); err != nil {
				a.log.Warn().Err(err).Str("target", r.Name()).Float64("temporal_id", e.ID).Msg("Failed to resend point request")
				continue
			}
			a.log.Debug().Str("peer", peer).Str("target", r.Name()).Float64("temporal_id", e.ID).Msg("Point request resent")
		}
	}
}

func (a *App) initializeAudit() error {
	if !a.cfg.Audit.Enabled {
		return nil
	}
	store, err := audit.Open(a.cfg.Audit.Path)
	if err != nil {
		return fmt.Errorf("failed to open audit store: %w", err)
	}
	a.audit = store
	a.shutdownFns = append(a.shutdownFns, store.Close)
	a.log.Info().Str("path", a.cfg.Audit.Path).Msg("Audit log enabled")
	return nil
}

// initializeTarget builds one coordinator runner and the volume workers that serve it.
func (a *App) initializeTarget(ctx context.Context, log zerolog.Logger, tc config.TargetConfig) error {
	endpoint := "coordinator/" + tc.Name
	msgr := messenger.NewMessenger[float64](ctx, log, a.hub, wire.Float64IDs{}, endpoint, tc.Name)

	tcfg := target.DefaultConfig[float64](log, tc.Name, msgr, pointsFor(tc), reportCompletion(log, tc.Name))
	tcfg.TimeDependent = tc.TimeDependent
	if tc.TimeDependent {
		tcfg.Gate = a.gate
	}
	tcfg.Sentinel = tc.Sentinel
	tcfg.Transform = transformFor(tc.Transform)
	tcfg.MaxCompletedHistory = tc.MaxCompletedHistory
	tcfg.Registerer = a.registry
	if a.audit != nil {
		tcfg.OnCleanedUp = audit.Observer[float64](a.audit, tc.Name, log)
	}

	rcfg := targetrunner.DefaultConfig(log, tcfg)
	if tc.InboxSize > 0 {
		rcfg.InboxSize = tc.InboxSize
	}
	runner, err := targetrunner.New(rcfg)
	if err != nil {
		return err
	}
	if err := a.hub.Register(endpoint, runner.Handler(wire.Float64IDs{})); err != nil {
		return err
	}
	a.runners = append(a.runners, runner)

	for k := 0; k < a.cfg.Volume.Workers; k++ {
		name := fmt.Sprintf("volume/%s/%d", tc.Name, k)
		w, err := volume.NewWorker(volume.Config[float64]{
			Logger:     log,
			Name:       name,
			Worker:     k,
			Workers:    a.cfg.Volume.Workers,
			Sampler:    sampleField,
			Replier:    messenger.NewMessenger[float64](ctx, log, a.hub, wire.Float64IDs{}, name, tc.Name),
			BatchSize:  a.cfg.Volume.BatchSize,
			Registerer: a.registry,
		})
		if err != nil {
			return err
		}
		if err := a.hub.Register(name, w.Handler(tc.Name, wire.Float64IDs{})); err != nil {
			return err
		}
		a.volumes[tc.Name] = append(a.volumes[tc.Name], w)
	}

	a.log.Info().
		Str("target", tc.Name).
		Bool("time_dependent", tc.TimeDependent).
		Int("points", tc.Points).
		Int("invalid", len(tc.Invalid)).
		Int("volume_workers", a.cfg.Volume.Workers).
		Msg("Interpolation target configured")
	return nil
}

func (a *App) initializeStepRunner(log zerolog.Logger) error {
	scfg := steprunner.DefaultConfig(log)
	scfg.Handler = a.onStep
	scfg.Interval = a.cfg.Steps.Interval
	scfg.StepSize = a.cfg.Steps.StepSize
	if a.cfg.Steps.GenesisTime > 0 {
		scfg.GenesisTime = time.Unix(a.cfg.Steps.GenesisTime, 0).UTC()
	}

	steps, err := steprunner.New(scfg)
	if err != nil {
		return fmt.Errorf("failed to create step runner: %w", err)
	}
	a.steps = steps
	return nil
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer(log zerolog.Logger) {
	if !a.cfg.API.Enabled {
		return
	}

	s := apisrv.NewServer(a.cfg.API, log)
	s.UseDefaults()
	if a.cfg.API.EnableCORS {
		s.EnableCORS()
	}
	if a.cfg.Metrics.Enabled {
		s.UseMetrics(a.registry)
		s.ExposeMetrics(a.registry, a.cfg.Metrics.Path)
	}

	targets := make([]targethttp.Target[float64], 0, len(a.runners))
	for _, r := range a.runners {
		targets = append(targets, r)
	}
	var auditLog targethttp.AuditLog
	if a.audit != nil {
		auditLog = a.audit
	}

	s.Mount(
		targethttp.NewHandler(targets, auditLog, targethttp.ParseFloat64ID, log),
		gatehttp.NewHandler(a.gate, log),
	)
	a.apiServer = s
}

// onStep feeds one simulation time step into the system: the volume buffer
// receives the step's raw data, every target learns the new temporal id and the
// control system extends the coordinate map.
func (a *App) onStep(ctx context.Context, info steprunner.StepInfo) error {
	for _, workers := range a.volumes {
		for _, w := range workers {
			w.Ingest(info.Time)
		}
	}

	for _, r := range a.runners {
		if err := r.AddTemporalIDs(ctx, info.Time); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("target %s: %w", r.Name(), err)
		}
	}

	expiration := info.Time + a.cfg.Gate.Lookahead
	for _, fn := range a.gate.Functions() {
		err := a.gate.Update(fn, expiration)
		if err != nil && !errors.Is(err, gate.ErrExpirationDecreased) {
			return fmt.Errorf("refresh %s: %w", fn, err)
		}
	}

	a.log.Debug().
		Uint64("step", info.Step).
		Float64("time", info.Time).
		Float64("expiration", expiration).
		Msg("Step emitted")
	return nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if err := a.hub.Start(gctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	if a.remote != nil {
		if err := a.remote.Start(gctx); err != nil {
			return fmt.Errorf("failed to start remote transport: %w", err)
		}
	}

	for _, r := range a.runners {
		if err := r.Start(gctx); err != nil {
			return fmt.Errorf("failed to start target %s: %w", r.Name(), err)
		}
		g.Go(func() error {
			if err := r.Wait(); err != nil {
				return fmt.Errorf("target %s: %w", r.Name(), err)
			}
			return nil
		})
	}

	if err := a.steps.Start(gctx); err != nil {
		return fmt.Errorf("failed to start step runner: %w", err)
	}
	g.Go(a.steps.Wait)

	if a.apiServer != nil {
		g.Go(func() error {
			if err := a.apiServer.Start(gctx); err != nil {
				return fmt.Errorf("api server: %w", err)
			}
			return nil
		})
	}

	a.log.Info().Int("targets", len(a.runners)).Msg("Interpolation target coordinator started")

	<-gctx.Done()
	if ctx.Err() != nil {
		a.log.Info().Msg("Shutdown requested")
	}

	shutdownErr := a.shutdown()
	runErr := g.Wait()
	return errors.Join(runErr, shutdownErr)
}

// shutdown stops the step runner first so no new ids reach stopped targets.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.steps.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop step runner: %w", err))
	}
	for _, r := range a.runners {
		if err := r.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop target %s: %w", r.Name(), err))
		}
	}
	if a.remote != nil {
		a.remote.Stop()
	}
	a.hub.Stop()

	if err := errors.Join(a.runShutdownFns()...); err != nil {
		errs = append(errs, err)
	}

	a.log.Info().Msg("Shutdown complete")
	return errors.Join(errs...)
}

func (a *App) runShutdownFns() []error {
	var errs []error
	for i := len(a.shutdownFns) - 1; i >= 0; i-- {
		if err := a.shutdownFns[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.shutdownFns = nil
	return errs
}
