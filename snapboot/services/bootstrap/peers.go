package bootstrap

import (
	"context"

	"github.com/ethfleet/snapboot/snapboot/client/ethrpc"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/ethfleet/snapboot/snapboot/internal/snapshot"
)

// discoverPeer probes the configured candidates in order and returns the
// first endpoint that answers web3_clientVersion within the probe timeout
// and sits on the right network. An empty result is not an error: the
// node then relies on regular p2p discovery alone.
func (a *Agent) discoverPeer(ctx context.Context) string {
	for _, endpoint := range a.config.PeerCandidates {
		probe := ethrpc.NewClient(endpoint, a.logger, ethrpc.WithTimeout(a.config.ProbeTimeout))

		version, err := probe.ClientVersion(ctx)
		if err != nil {
			a.logger.Debug().Err(err).
				Str(logging.FieldPeer, endpoint).
				Msg("peer candidate not responding")
			continue
		}

		if wantID, known := snapshot.NetworkID(a.config.Network); known {
			gotID, err := probe.NetVersion(ctx)
			if err == nil && gotID != wantID {
				a.logger.Warn().
					Str(logging.FieldPeer, endpoint).
					Str(logging.FieldNetwork, a.config.Network).
					Str("peerNetworkId", gotID).
					Msg("peer candidate is on a different network, skipping")
				continue
			}
		}

		a.logger.Info().
			Str(logging.FieldPeer, endpoint).
			Str(logging.FieldClientVersion, version).
			Msg("sync peer selected")
		return endpoint
	}

	if len(a.config.PeerCandidates) > 0 {
		a.logger.Warn().Msg("no peer candidate responded, relying on discovery")
		a.metrics.RecordError(ctx, "peer_discovery")
	}
	return ""
}
