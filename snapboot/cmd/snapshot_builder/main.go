package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ethfleet/snapboot/snapboot/common/check"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/ethfleet/snapboot/snapboot/internal/cobrax"
	"github.com/ethfleet/snapboot/snapboot/internal/profiling"
	"github.com/ethfleet/snapboot/snapboot/internal/telemetry"
	"github.com/ethfleet/snapboot/snapboot/services/snapshotter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type command uint

const (
	commandRun command = iota + 1
	commandOnce
	commandCreateConfig
)

type appConfig struct {
	command command
	cfgFile string
	builder snapshotter.Config
}

func main() {
	cfg := parseArgs()

	var err error
	switch cfg.command {
	case commandCreateConfig:
		err = processCreateConfig(cfg)
	case commandRun, commandOnce:
		err = processRun(cfg)
	}

	if err != nil {
		fmt.Printf("Snapshot builder failed: %s\n", err.Error())
		os.Exit(1)
	}
	os.Exit(0)
}

func processRun(cfg *appConfig) error {
	ctx := context.Background()
	logger := logging.NewLogger("snapshot_builder")

	telemetryCfg := telemetry.NewDefaultConfig()
	telemetryCfg.PrometheusPort = cfg.builder.PrometheusPort
	if err := telemetry.Init(ctx, telemetryCfg); err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}
	defer telemetry.Shutdown(ctx)

	profiling.Start(profiling.DefaultPort)

	service, err := snapshotter.NewService(&cfg.builder, logger)
	if err != nil {
		return err
	}
	if cfg.command == commandOnce {
		return service.Cycle(ctx)
	}
	return service.Run(ctx)
}

func processCreateConfig(cfg *appConfig) error {
	if cfg.cfgFile == "" {
		cfg.cfgFile = "./snapshot-builder.yaml"
	}

	data, err := yaml.Marshal(cfg.builder)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(cfg.cfgFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Printf("Config file %s has been created\n", cfg.cfgFile)
	return nil
}

func parseArgs() *appConfig {
	cfg := &appConfig{}

	// The config file is loaded before flag parsing so its values become
	// the flag defaults.
	cfg.builder.ResetToDefault()
	cfg.builder.InitFromFile(cobrax.GetConfigNameFromArgs())

	rootCmd := &cobra.Command{
		Use:           "snapshot_builder [global flags] [command]",
		Short:         "Capture and publish node data snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfg.cfgFile, "config", "c", "", "config file")
	rootCmd.PersistentFlags().StringVar(&cfg.builder.Network, "network", cfg.builder.Network, "chain being snapshotted")
	rootCmd.PersistentFlags().StringVar(&cfg.builder.DataDir, "data-dir", cfg.builder.DataDir, "sync node data directory")
	rootCmd.PersistentFlags().StringVar(&cfg.builder.RegistryURL, "registry-url", cfg.builder.RegistryURL, "artifact registry base url")
	rootCmd.PersistentFlags().StringVar(&cfg.builder.Repository, "repository", cfg.builder.Repository, "registry repository override")
	rootCmd.PersistentFlags().StringVar(&cfg.builder.SyncNodeRPCURL, "sync-node-rpc-url", cfg.builder.SyncNodeRPCURL, "sync node json-rpc endpoint for height stamping")
	rootCmd.PersistentFlags().StringVar(&cfg.builder.WorkDir, "work-dir", cfg.builder.WorkDir, "spool directory for archives being built")
	rootCmd.PersistentFlags().StringVar(&cfg.builder.LockFile, "lock-file", cfg.builder.LockFile, "capture pause lock file")
	rootCmd.PersistentFlags().DurationVar(&cfg.builder.Interval, "interval", cfg.builder.Interval, "time between captures")
	rootCmd.PersistentFlags().DurationVar(&cfg.builder.PauseBudget, "pause-budget", cfg.builder.PauseBudget, "max time to wait for the capture lock")
	rootCmd.PersistentFlags().IntVar(&cfg.builder.Keep, "keep", cfg.builder.Keep, "snapshots to retain per network")
	rootCmd.PersistentFlags().StringVar(&cfg.builder.Compression, "compression", cfg.builder.Compression, "layer compression: gzip|zstd")
	rootCmd.PersistentFlags().IntVar(&cfg.builder.PrometheusPort, "prometheus-port", cfg.builder.PrometheusPort, "port to expose prometheus metrics on")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Printf("failed to bind flags: %s\n", err.Error())
		os.Exit(1)
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the periodic snapshot service",
		Run: func(cmd *cobra.Command, args []string) {
			cfg.command = commandRun
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "once",
		Short: "Run a single capture-publish-prune cycle and exit",
		Run: func(cmd *cobra.Command, args []string) {
			cfg.command = commandOnce
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "create-config",
		Short: "Write the current config to a file",
		Run: func(cmd *cobra.Command, args []string) {
			cfg.command = commandCreateConfig
		},
	})

	logLevel := rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level: trace|debug|info|warn|error|fatal|panic")
	logging.SetupGlobalLogger(*logLevel)
	logging.ApplyComponentsFilterEnv()

	check.PanicIfErr(rootCmd.Execute())

	return cfg
}
