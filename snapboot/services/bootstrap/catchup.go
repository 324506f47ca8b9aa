package bootstrap

import (
	"context"
	"fmt"

	"github.com/ethfleet/snapboot/snapboot/client/ethrpc"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
)

// catchup polls the local client until it is caught up with the network or
// the session deadline passes. The deadline check runs after every poll so
// a session never fails before its full timeout has elapsed, regardless of
// how the local head moves.
func (a *Agent) catchup(ctx context.Context) error {
	local := ethrpc.NewClient(a.config.ClientRPCURL, a.logger, ethrpc.WithTimeout(a.config.ProbeTimeout))

	var peer *ethrpc.Client
	if a.session.PeerEndpoint != "" {
		peer = ethrpc.NewClient(a.session.PeerEndpoint, a.logger, ethrpc.WithTimeout(a.config.ProbeTimeout))
	}

	for {
		done, err := a.pollOnce(ctx, local, peer)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.clock.After(a.config.PollInterval):
		}

		if a.clock.Now().After(a.session.Deadline) {
			return fmt.Errorf("%w: local block %s after %s",
				ErrCatchupTimeout, formatBlock(a.session.LocalBlock), a.config.CatchupTimeout)
		}
	}
}

// pollOnce samples the local and peer heads and decides whether the node
// is ready to serve. Transient probe failures skip the sample.
func (a *Agent) pollOnce(ctx context.Context, local, peer *ethrpc.Client) (bool, error) {
	a.metrics.RecordPoll(ctx)

	if peer != nil {
		if head, err := peer.BlockNumber(ctx); err == nil {
			a.session.observeTarget(uint64(head))
		} else {
			a.logger.Debug().Err(err).
				Str(logging.FieldPeer, a.session.PeerEndpoint).
				Msg("peer head not sampled")
		}
	}

	block, err := local.BlockNumber(ctx)
	if err != nil {
		a.logger.Debug().Err(err).Msg("local head not sampled")
		return false, nil
	}

	if regressed := a.session.observeLocal(uint64(block)); regressed {
		return false, fmt.Errorf("%w: local head went from %s to %d",
			ErrBlockRegression, formatBlock(a.session.LocalBlock), uint64(block))
	}

	status, err := local.SyncStatus(ctx)
	if err != nil {
		a.logger.Debug().Err(err).Msg("sync status not sampled")
		return false, nil
	}

	event := a.logger.Info().Uint64(logging.FieldLocalBlock, uint64(block))
	if a.session.TargetBlock != nil {
		event = event.
			Uint64(logging.FieldTargetBlock, *a.session.TargetBlock).
			Uint64(logging.FieldLag, lag(*a.session.TargetBlock, uint64(block)))
	}
	event.Bool("syncing", status != nil).Msg("catchup progress")

	return a.isCaughtUp(uint64(block), status), nil
}

// isCaughtUp applies the readiness rule. A quiet sync signal alone is
// trusted only for clients that report it reliably; otherwise the local
// head must be within the configured tolerance of an observed target.
func (a *Agent) isCaughtUp(local uint64, status *ethrpc.SyncStatus) bool {
	target := a.session.TargetBlock

	if target != nil && local+a.config.HeadTolerance >= *target {
		return true
	}
	if status == nil && (a.clientKind.SyncSignalReliable() || target == nil) {
		return local > 0 || target == nil
	}
	return false
}

func lag(target, local uint64) uint64 {
	if local >= target {
		return 0
	}
	return target - local
}

func formatBlock(block *uint64) string {
	if block == nil {
		return "unknown"
	}
	return fmt.Sprintf("%d", *block)
}
