package snapshotter

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/ethfleet/snapboot/snapboot/client/registry"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/ethfleet/snapboot/snapboot/internal/srv"
	"github.com/jonboulle/clockwork"
)

type Service struct {
	config   *Config
	registry *registry.Client
	metrics  *MetricsHandler
	clock    clockwork.Clock
	logger   logging.Logger
}

func NewService(cfg *Config, logger logging.Logger) (*Service, error) {
	if cfg.RegistryURL == "" {
		return nil, errors.New("registry url is required")
	}
	if cfg.Network == "" {
		return nil, errors.New("network is required")
	}

	serviceLogger := logger.With().Str(logging.FieldNetwork, cfg.Network).Logger()

	registryClient, err := registry.NewClient(cfg.RegistryURL, serviceLogger)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetricsHandler(cfg.Network)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:   cfg,
		registry: registryClient,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
		logger:   serviceLogger,
	}, nil
}

// Run captures on the configured interval until the context is
// cancelled. The first capture starts immediately.
func (s *Service) Run(ctx context.Context) error {
	loop := srv.NewWorkerLoop("snapshotter", s.clock, s.config.Interval, func(ctx context.Context) {
		if err := s.Cycle(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("snapshot cycle failed")
		}
	})
	service := srv.NewService(s.logger, &loop)
	return service.Run(ctx)
}

// Cycle performs one capture-publish-prune round.
func (s *Service) Cycle(ctx context.Context) error {
	started := s.clock.Now()

	artifact, err := s.capture(ctx)
	if errors.Is(err, ErrPauseBudgetExceeded) {
		s.logger.Warn().Err(err).Msg("capture skipped, will retry next cycle")
		s.metrics.RecordCycleSkipped(ctx)
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(artifact.Path)
	}()

	if err := s.publish(ctx, artifact); err != nil {
		return err
	}
	s.metrics.RecordSnapshotCreated(ctx, artifact.Size, s.clock.Since(started))
	s.logger.Info().
		Str(logging.FieldSnapshotTag, artifact.Tag).
		Str(logging.FieldBytes, datasize.ByteSize(artifact.Size).HumanReadable()).
		Stringer(logging.FieldElapsed, s.clock.Since(started).Round(time.Millisecond)).
		Msg("snapshot cycle complete")

	pruned, err := s.prune(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("pruning failed, retained snapshots stay")
		return nil
	}
	if pruned > 0 {
		s.metrics.RecordSnapshotsPruned(ctx, int64(pruned))
	}
	return nil
}
