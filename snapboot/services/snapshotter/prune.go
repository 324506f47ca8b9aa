package snapshotter

import (
	"context"
	"sort"

	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/ethfleet/snapboot/snapboot/internal/snapshot"
)

// prune deletes all but the newest snapshots of this network. Tags that
// do not parse as snapshot tags are left alone, as are other networks
// sharing the repository. Returns how many snapshots were removed.
func (s *Service) prune(ctx context.Context) (int, error) {
	repository := s.config.RepositoryName()

	keep := s.config.Keep
	if keep < 1 {
		keep = 1
	}

	tags, err := s.registry.ListTags(ctx, repository)
	if err != nil {
		return 0, err
	}

	var mine []string
	for _, tag := range tags {
		if _, err := snapshot.ParseTagTime(s.config.Network, tag); err == nil {
			mine = append(mine, tag)
		}
	}
	if len(mine) <= keep {
		return 0, nil
	}

	// Timestamp suffixes make lexicographic order chronological.
	sort.Strings(mine)
	expired := mine[:len(mine)-keep]

	pruned := 0
	for _, tag := range expired {
		manifest, err := s.registry.FetchManifest(ctx, repository, tag)
		if err != nil {
			s.logger.Warn().Err(err).Str(logging.FieldSnapshotTag, tag).Msg("expired snapshot not resolved")
			continue
		}
		if err := s.registry.DeleteManifest(ctx, repository, manifest.Digest); err != nil {
			s.logger.Warn().Err(err).Str(logging.FieldSnapshotTag, tag).Msg("expired snapshot not deleted")
			continue
		}
		s.logger.Info().Str(logging.FieldSnapshotTag, tag).Msg("expired snapshot deleted")
		pruned++
	}
	return pruned, nil
}
