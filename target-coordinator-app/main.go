package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/compose-network/interpolation-target/log"
	"github.com/compose-network/interpolation-target/target-coordinator-app/config"
)

const defaultConfigPath = "target-coordinator-app/configs/config.yaml"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "target-coordinator",
		Short: "Interpolation target coordinator",
		Long: "Collects interpolated samples from a distributed volume buffer for each " +
			"temporal epoch and fires completion callbacks once every target point has arrived.",
		RunE: runApp,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	initVolumeFlags()
	rootCmd.AddCommand(versionCmd, volumeCmd)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "config file path")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")

	// API flags
	rootCmd.PersistentFlags().String("listen-addr", "", "HTTP API listen address")
	rootCmd.PersistentFlags().Bool("metrics", false, "expose prometheus metrics")

	// Simulation flags
	rootCmd.PersistentFlags().Duration("step-interval", 0, "wall-clock duration of one time step")
	rootCmd.PersistentFlags().Int("volume-workers", 0, "number of volume buffer workers per target")
	rootCmd.PersistentFlags().String("audit-db", "", "enable the audit log at this SQLite path")
}

func runApp(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	out, closeOut, err := log.Output(cfg.Log.Output, cfg.Log.File)
	if err != nil {
		return fmt.Errorf("failed to open log output: %w", err)
	}
	defer func() { _ = closeOut() }()
	logger := log.NewWithWriter(out, cfg.Log.Level, cfg.Log.Pretty)

	logger.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("git_commit", GitCommit).
		Str("go_version", runtime.Version()).
		Msg("Build information")

	logger.Info().
		Str("config_file", cfgFile).
		Str("listen_addr", cfg.API.ListenAddr).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Dur("step_interval", cfg.Steps.Interval).
		Float64("step_size", cfg.Steps.StepSize).
		Int("targets", len(cfg.Targets)).
		Str("log_level", cfg.Log.Level).
		Msg("Configuration loaded")

	application, err := NewApp(cmd.Context(), cfg, logger.Logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(cmd.Context())
}

func runVersion(*cobra.Command, []string) {
	fmt.Printf("Interpolation target coordinator\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flag("log-level").Changed {
		cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flag("log-pretty").Changed {
		cfg.Log.Pretty, _ = cmd.Flags().GetBool("log-pretty")
	}

	if cmd.Flag("listen-addr").Changed {
		cfg.API.ListenAddr, _ = cmd.Flags().GetString("listen-addr")
	}
	if cmd.Flag("metrics").Changed {
		cfg.Metrics.Enabled, _ = cmd.Flags().GetBool("metrics")
	}

	if cmd.Flag("step-interval").Changed {
		cfg.Steps.Interval, _ = cmd.Flags().GetDuration("step-interval")
	}
	if cmd.Flag("volume-workers").Changed {
		cfg.Volume.Workers, _ = cmd.Flags().GetInt("volume-workers")
	}
	if cmd.Flag("audit-db").Changed {
		cfg.Audit.Path, _ = cmd.Flags().GetString("audit-db")
		cfg.Audit.Enabled = cfg.Audit.Path != ""
	}
}
