package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ethfleet/snapboot/snapboot/client/ethrpc"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/ethfleet/snapboot/snapboot/internal/cobrax"
	"github.com/ethfleet/snapboot/snapboot/internal/profiling"
	"github.com/ethfleet/snapboot/snapboot/internal/telemetry"
	"github.com/ethfleet/snapboot/snapboot/services/bootstrap"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func main() {
	logger := logging.NewLogger("bootstrap_agent")
	cfg := bootstrap.NewDefaultConfig()

	cfgFile := cobrax.GetConfigNameFromArgs()
	if err := cobrax.LoadConfigFromFile(cfgFile, cfg); err != nil {
		logger.Error().Err(err).Msg("failed to load config")
		os.Exit(bootstrap.ExitFailed)
	}

	var logLevel string
	var pprofPort int

	rootCmd := &cobra.Command{
		Use:           "bootstrap_agent",
		Short:         "Bootstrap an Ethereum serve node from registry snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupGlobalLogger(logLevel)
			logging.ApplyComponentsFilterEnv()
		},
	}
	cobrax.AddConfigFlag(rootCmd.PersistentFlags())
	cobrax.AddLogLevelFlag(rootCmd.PersistentFlags(), &logLevel)
	cobrax.AddPprofPortFlag(rootCmd.PersistentFlags(), &pprofPort)

	addRunFlags := func(cmd *cobra.Command) {
		flags := cmd.Flags()
		flags.StringVar(&cfg.Network, "network", cfg.Network, "chain to serve")
		flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "client data directory")
		flags.StringVar(&cfg.RegistryURL, "registry-url", cfg.RegistryURL, "snapshot registry base url, empty disables snapshots")
		flags.StringVar(&cfg.Repository, "repository", cfg.Repository, "registry repository override")
		flags.StringVar(&cfg.ClientKind, "client-kind", cfg.ClientKind, "execution client: geth|nethermind|erigon")
		flags.StringVar(&cfg.ClientRPCURL, "client-rpc-url", cfg.ClientRPCURL, "local client json-rpc endpoint")
		flags.StringSliceVar(&cfg.PeerCandidates, "peer-candidates", cfg.PeerCandidates, "sync node rpc endpoints to probe")
		flags.DurationVar(&cfg.CatchupTimeout, "catchup-timeout", cfg.CatchupTimeout, "overall catch-up deadline")
		flags.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "catch-up polling interval")
		flags.Uint64Var(&cfg.HeadTolerance, "head-tolerance", cfg.HeadTolerance, "max block lag still considered caught up")
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one bootstrap session to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			profiling.Start(pprofPort)
			return runAgent(cmd.Context(), cfg, logger)
		},
	}
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether this node finished bootstrapping",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(cmd.Context(), cfg)
		},
	}
	addRunFlags(statusCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("bootstrap agent failed")
		os.Exit(bootstrap.ExitCode(err))
	}
}

func runAgent(ctx context.Context, cfg *bootstrap.Config, logger logging.Logger) error {
	if cfg.Telemetry != nil {
		if err := telemetry.Init(ctx, cfg.Telemetry); err != nil {
			return fmt.Errorf("failed to init telemetry: %w", err)
		}
		defer telemetry.Shutdown(ctx)
	}

	agent, err := bootstrap.New(cfg, logger)
	if err != nil {
		return err
	}
	return agent.Run(ctx)
}

// printStatus is what readiness probes and operators call. It is a pure
// read: the marker on disk plus a single RPC sample.
func printStatus(ctx context.Context, cfg *bootstrap.Config) error {
	completedAt, ok, err := bootstrap.ReadCompletionMarker(cfg.DataDir)
	if err != nil {
		return err
	}
	if !ok {
		color.Yellow("NOT READY: bootstrap has not completed")
		return fmt.Errorf("no completion marker in %s", cfg.DataDir)
	}

	fmt.Printf("bootstrap completed at %s\n", completedAt.Format(time.RFC3339))

	probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout)
	defer cancel()
	client := ethrpc.NewClient(cfg.ClientRPCURL, logging.NewLogger("status"), ethrpc.WithTimeout(cfg.ProbeTimeout))
	head, err := client.BlockNumber(probeCtx)
	if err != nil {
		color.Yellow("DEGRADED: client rpc not answering: %v", err)
		return err
	}

	peers, err := client.PeerCount(probeCtx)
	if err != nil {
		color.Green("READY: serving at block %d", head)
		return nil
	}

	color.Green("READY: serving at block %d with %d peers", head, peers)
	return nil
}
