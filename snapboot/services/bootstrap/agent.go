package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethfleet/snapboot/snapboot/client/registry"
	"github.com/ethfleet/snapboot/snapboot/common"
	"github.com/ethfleet/snapboot/snapboot/common/check"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/jonboulle/clockwork"
)

// Agent drives one bootstrap session from INIT to READY or FAILED.
type Agent struct {
	config     *Config
	clientKind ClientKind
	registry   *registry.Client
	process    ClientProcess
	metrics    *MetricsHandler
	clock      clockwork.Clock
	logger     logging.Logger

	session *Session
}

func New(cfg *Config, logger logging.Logger) (*Agent, error) {
	kind, err := ParseClientKind(cfg.ClientKind)
	if err != nil {
		return nil, err
	}
	if cfg.Network == "" {
		return nil, errors.New("network is required")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("data directory is required")
	}

	metrics, err := NewMetricsHandler(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}

	agentLogger := logger.With().
		Str(logging.FieldNetwork, cfg.Network).
		Str(logging.FieldClientKind, kind.String()).
		Logger()

	agent := &Agent{
		config:     cfg,
		clientKind: kind,
		process:    NewClientProcess(cfg, agentLogger),
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
		logger:     agentLogger,
	}
	if cfg.RegistryURL != "" {
		// Transient registry failures are retried with jittered delays;
		// a missing tag or manifest is terminal.
		retry := &common.RetryConfig{
			ShouldRetry: common.ComposeRetryPolicies(
				common.LimitRetries(3),
				common.DoNotRetryIf(registry.ErrNotFound, registry.ErrMalformed),
			),
			NextDelay: common.DelayJitter(100*time.Millisecond, 500*time.Millisecond, agentLogger),
		}
		agent.registry, err = registry.NewClient(cfg.RegistryURL, agentLogger, registry.WithRetryConfig(retry))
		if err != nil {
			return nil, fmt.Errorf("failed to init registry client: %w", err)
		}
	}
	return agent, nil
}

// Run executes the state machine once. The returned error classifies the
// failure for the process exit code; nil means the node is ready to serve.
func (a *Agent) Run(ctx context.Context) error {
	a.session = NewSession(a.clock.Now(), a.config.CatchupTimeout)
	a.logger = a.logger.With().Stringer(logging.FieldSessionId, a.session.ID).Logger()

	a.logger.Info().
		Str(logging.FieldDataDir, a.config.DataDir).
		Msg("bootstrap started")

	if err := a.bootstrap(ctx); err != nil {
		a.transition(ctx, PhaseFailed)
		if a.config.StopClientOnFailure {
			if stopErr := a.process.Stop(); stopErr != nil {
				a.logger.Warn().Err(stopErr).Msg("failed to stop client process")
			}
		}
		a.logger.Error().Err(err).
			Stringer(logging.FieldDuration, a.clock.Since(a.session.StartedAt)).
			Msg("bootstrap failed")
		return err
	}

	a.transition(ctx, PhaseReady)
	a.metrics.RecordBootstrapDuration(ctx, a.clock.Since(a.session.StartedAt))
	a.logger.Info().
		Stringer(logging.FieldDuration, a.clock.Since(a.session.StartedAt)).
		Msg("bootstrap complete, node ready to serve")
	return nil
}

func (a *Agent) bootstrap(ctx context.Context) error {
	if err := a.ensureStorageWritable(); err != nil {
		return err
	}

	if completedAt, ok, err := ReadCompletionMarker(a.config.DataDir); err == nil && ok {
		a.logger.Info().
			Time("completedAt", completedAt).
			Msg("completion marker present, bootstrap already done")
		return nil
	} else if err != nil {
		a.logger.Warn().Err(err).Msg("completion marker unreadable, redoing bootstrap")
	}

	hasData := a.clientKind.HasData(a.config.DataDir)
	if hasData {
		a.logger.Info().Msg("existing chain data found, skipping snapshot")
	}

	if !hasData && a.registry != nil {
		a.transition(ctx, PhaseDiscoverSnapshot)
		manifest, err := a.discoverSnapshot(ctx)
		if err != nil {
			return err
		}

		if manifest != nil {
			a.transition(ctx, PhaseMaterialize)
			if info := a.fetchSnapshotInfo(ctx, manifest); info != nil {
				a.logger.Info().
					Uint64(logging.FieldBlockNumber, info.CapturedAtBlock).
					Time("capturedAt", info.CreatedAt).
					Msg("snapshot capture point")
			}
			if err := a.materialize(ctx, manifest); err != nil {
				if errors.Is(err, ErrLocalStorageUnwritable) || ctx.Err() != nil {
					return err
				}
				a.logger.Warn().Err(err).Msg("snapshot materialization failed, syncing from scratch")
				a.metrics.RecordError(ctx, "materialize")
				a.session.SnapshotTag = ""
			}
		}
	}

	a.transition(ctx, PhaseDiscoverPeer)
	a.session.PeerEndpoint = a.discoverPeer(ctx)

	if err := a.process.Start(ctx); err != nil {
		return err
	}

	a.transition(ctx, PhaseCatchup)
	if err := a.catchup(ctx); err != nil {
		return err
	}

	return WriteCompletionMarker(a.config.DataDir, a.clock.Now())
}

func (a *Agent) transition(ctx context.Context, phase Phase) {
	check.PanicIfNotf(!a.session.Phase.Terminal(), "transition out of terminal phase %s", a.session.Phase)
	a.session.Phase = phase
	a.metrics.RecordPhase(ctx, phase)
	a.logger.Info().Str(logging.FieldPhase, phase.String()).Msg("phase entered")
}

// ensureStorageWritable probes the data directory's parent before any
// other work so that a broken volume fails the run immediately instead
// of mid-download.
func (a *Agent) ensureStorageWritable() error {
	parent := filepath.Dir(a.config.DataDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrLocalStorageUnwritable, err)
	}

	probe, err := os.CreateTemp(parent, ".snapboot-probe-")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLocalStorageUnwritable, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
