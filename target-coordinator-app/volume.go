package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/compose-network/interpolation-target/log"
	"github.com/compose-network/interpolation-target/x/messenger"
	"github.com/compose-network/interpolation-target/x/transport/tcp"
	"github.com/compose-network/interpolation-target/x/volume"
	"github.com/compose-network/interpolation-target/x/wire"
)

var volumeCmd = &cobra.Command{
	Use:   "volume",
	Short: "Run a remote volume worker connected to a coordinator",
	RunE:  runVolume,
}

func initVolumeFlags() {
	volumeCmd.Flags().String("connect", "", "coordinator transport address (transport.listen_addr)")
	volumeCmd.Flags().String("target", "", "interpolation target served by this worker")
	volumeCmd.Flags().String("id", "", "peer id announced to the coordinator (default volume/<target>/<worker>)")
	volumeCmd.Flags().Int("worker", 0, "index of this worker")
	volumeCmd.Flags().Int("workers", 1, "number of workers sharing the target's points")
	volumeCmd.Flags().Int("batch-size", volume.DefaultBatchSize, "samples per reply batch")
}

type volumeOptions struct {
	Addr      string
	Target    string
	ID        string
	Worker    int
	Workers   int
	BatchSize int
}

func (o *volumeOptions) validate() error {
	if o.Addr == "" {
		return errors.New("--connect is required")
	}
	if o.Target == "" {
		return errors.New("--target is required")
	}
	if o.ID == "" {
		o.ID = fmt.Sprintf("volume/%s/%d", o.Target, o.Worker)
	}
	return nil
}

func runVolume(cmd *cobra.Command, _ []string) error {
	var opts volumeOptions
	opts.Addr, _ = cmd.Flags().GetString("connect")
	opts.Target, _ = cmd.Flags().GetString("target")
	opts.ID, _ = cmd.Flags().GetString("id")
	opts.Worker, _ = cmd.Flags().GetInt("worker")
	opts.Workers, _ = cmd.Flags().GetInt("workers")
	opts.BatchSize, _ = cmd.Flags().GetInt("batch-size")
	if err := opts.validate(); err != nil {
		return err
	}

	level, _ := cmd.Flags().GetString("log-level")
	pretty, _ := cmd.Flags().GetBool("log-pretty")
	logger := log.New(level, pretty)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rv, err := startRemoteVolume(ctx, opts, logger.Logger)
	if err != nil {
		return err
	}
	defer rv.client.Close()

	select {
	case <-ctx.Done():
		return nil
	case <-rv.client.Done():
		return rv.client.Err()
	}
}

type remoteVolume struct {
	client *tcp.Client
	worker *volume.Worker[float64]
	serve  func(ctx context.Context, msg *structpb.Struct) error
}

// startRemoteVolume connects a volume worker to the coordinator's transport.
// The analytic field is always available, so raw data for an epoch is ingested
// when its first point request arrives.
func startRemoteVolume(ctx context.Context, opts volumeOptions, log zerolog.Logger) (*remoteVolume, error) {
	rv := &remoteVolume{}

	client, err := tcp.NewClient(tcp.ClientConfig{
		Logger:   log,
		ID:       opts.ID,
		Addr:     opts.Addr,
		Timeouts: tcp.DefaultTimeoutConfig(),
	}, func(ctx context.Context, msg *structpb.Struct) error {
		return rv.handle(ctx, msg, opts.Target)
	})
	if err != nil {
		return nil, err
	}
	rv.client = client

	w, err := volume.NewWorker(volume.Config[float64]{
		Logger:    log,
		Name:      opts.ID,
		Worker:    opts.Worker,
		Workers:   opts.Workers,
		Sampler:   sampleField,
		Replier:   messenger.NewMessenger[float64](ctx, log, client, wire.Float64IDs{}, opts.ID, opts.Target),
		BatchSize: opts.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	rv.worker = w
	rv.serve = w.Handler(opts.Target, wire.Float64IDs{})

	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return rv, nil
}

func (rv *remoteVolume) handle(ctx context.Context, msg *structpb.Struct, targetName string) error {
	if kind, name := wire.Peek(msg); kind == wire.KindRequestPoints && name == targetName {
		m, err := wire.Decode(msg, wire.Float64IDs{})
		if err != nil {
			return err
		}
		if !rv.worker.Buffered(m.ID) {
			rv.worker.Ingest(m.ID)
		}
	}
	return rv.serve(ctx, msg)
}
