package bootstrap

import (
	"context"
	"encoding/json"
	"io"

	"github.com/ethfleet/snapboot/snapboot/client/registry"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/ethfleet/snapboot/snapboot/internal/snapshot"
)

// discoverSnapshot resolves the newest snapshot for the configured network.
// A registry that is unreachable, has no matching tags, or serves a
// malformed manifest yields (nil, nil): the caller falls back to syncing
// from scratch rather than failing the bootstrap.
func (a *Agent) discoverSnapshot(ctx context.Context) (*registry.Manifest, error) {
	repository := a.config.RepositoryName()

	tags, err := a.registry.ListTags(ctx, repository)
	if err != nil {
		a.logger.Warn().Err(err).
			Str(logging.FieldRepository, repository).
			Msg("registry unavailable, proceeding without snapshot")
		a.metrics.RecordError(ctx, "registry_unreachable")
		return nil, nil
	}

	tag, ok := snapshot.Latest(a.config.Network, tags)
	if !ok {
		a.logger.Info().
			Str(logging.FieldRepository, repository).
			Msg("no snapshots published for network")
		return nil, nil
	}

	manifest, err := a.registry.FetchManifest(ctx, repository, tag)
	if err != nil {
		a.logger.Warn().Err(err).
			Str(logging.FieldSnapshotTag, tag).
			Msg("snapshot manifest unusable, proceeding without snapshot")
		a.metrics.RecordError(ctx, "manifest_unusable")
		return nil, nil
	}
	if len(manifest.Layers) == 0 {
		a.logger.Warn().
			Str(logging.FieldSnapshotTag, tag).
			Msg("snapshot manifest has no layers, proceeding without snapshot")
		a.metrics.RecordError(ctx, "manifest_unusable")
		return nil, nil
	}

	a.session.SnapshotTag = tag
	a.logger.Info().
		Str(logging.FieldSnapshotTag, tag).
		Str(logging.FieldSnapshotDigest, manifest.Layers[0].Digest).
		Msg("snapshot selected")
	return manifest, nil
}

// fetchSnapshotInfo reads the config blob carrying capture metadata. The
// blob is advisory: failures are logged, not propagated.
func (a *Agent) fetchSnapshotInfo(ctx context.Context, manifest *registry.Manifest) *snapshot.Info {
	if manifest.Config.Digest == "" {
		return nil
	}

	blob, _, err := a.registry.FetchBlob(ctx, a.config.RepositoryName(), manifest.Config.Digest)
	if err != nil {
		a.logger.Debug().Err(err).Msg("snapshot config blob not fetched")
		return nil
	}
	defer blob.Close()

	raw, err := io.ReadAll(blob)
	if err != nil {
		a.logger.Debug().Err(err).Msg("snapshot config blob not read")
		return nil
	}

	var info snapshot.Info
	if err := json.Unmarshal(raw, &info); err != nil {
		a.logger.Debug().Err(err).Msg("snapshot config blob not decoded")
		return nil
	}
	return &info
}
