package snapshotter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethfleet/snapboot/snapboot/client/registry"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
)

// publish uploads the archive and its metadata and tags the manifest.
// The manifest is read back afterwards so a half-applied upload can
// never be left looking valid.
func (s *Service) publish(ctx context.Context, artifact *Artifact) error {
	repository := s.config.RepositoryName()

	configJSON, err := json.Marshal(artifact.Info)
	if err != nil {
		return err
	}
	configDigest := registry.DigestOf(configJSON)
	if err := s.registry.PushBlob(ctx, repository, configDigest, int64(len(configJSON)), bytes.NewReader(configJSON)); err != nil {
		return fmt.Errorf("pushing config blob: %w", err)
	}

	layer, err := os.Open(artifact.Path)
	if err != nil {
		return err
	}
	defer layer.Close()
	if err := s.registry.PushBlob(ctx, repository, artifact.Digest, artifact.Size, layer); err != nil {
		return fmt.Errorf("pushing layer blob: %w", err)
	}

	manifest := &registry.Manifest{
		SchemaVersion: 2,
		MediaType:     registry.ManifestMediaType,
		Config: registry.Descriptor{
			MediaType: registry.SnapshotConfigMediaType,
			Digest:    configDigest,
			Size:      int64(len(configJSON)),
		},
		Layers: []registry.Descriptor{{
			MediaType: artifact.MediaType,
			Digest:    artifact.Digest,
			Size:      artifact.Size,
		}},
	}

	digest, err := s.registry.PutManifest(ctx, repository, artifact.Tag, manifest)
	if err != nil {
		return fmt.Errorf("putting manifest: %w", err)
	}

	readBack, err := s.registry.FetchManifest(ctx, repository, artifact.Tag)
	if err != nil {
		return fmt.Errorf("verifying published manifest: %w", err)
	}
	if readBack.Digest != digest {
		return fmt.Errorf("published manifest digest mismatch: got %s, want %s", readBack.Digest, digest)
	}

	s.logger.Info().
		Str(logging.FieldSnapshotTag, artifact.Tag).
		Str(logging.FieldSnapshotDigest, artifact.Digest).
		Str(logging.FieldRepository, repository).
		Msg("snapshot published")
	return nil
}
