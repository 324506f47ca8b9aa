package snapshotter

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethfleet/snapboot/snapboot/client/registry"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/ethfleet/snapboot/snapboot/internal/snapshot"
	"github.com/ethfleet/snapboot/snapboot/internal/testaide"
	"github.com/gofrs/flock"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/suite"
)

type SuiteSnapshotter struct {
	suite.Suite

	registry *testaide.FakeRegistry
	syncNode *testaide.FakeEthNode
	config   *Config
}

func (s *SuiteSnapshotter) SetupTest() {
	s.registry = testaide.NewFakeRegistry()
	s.syncNode = testaide.NewFakeEthNode("Geth/v1.14.0-sync")
	s.syncNode.SetHead(1234)

	root := s.T().TempDir()
	s.config = &Config{}
	s.config.ResetToDefault()
	s.config.Network = "sepolia"
	s.config.DataDir = filepath.Join(root, "data")
	s.config.WorkDir = filepath.Join(root, "work")
	s.config.LockFile = filepath.Join(root, "capture.lock")
	s.config.RegistryURL = s.registry.URL()
	s.config.SyncNodeRPCURL = s.syncNode.URL()
	s.config.Keep = 2
	s.config.PauseBudget = 5 * time.Second

	chaindata := filepath.Join(s.config.DataDir, "geth", "chaindata")
	s.Require().NoError(os.MkdirAll(chaindata, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(chaindata, "CURRENT"), []byte("MANIFEST-000001"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(chaindata, "000001.log"), []byte("payload"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(s.config.DataDir, ".delta-sync-completed"), []byte("x"), 0o644))
}

func (s *SuiteSnapshotter) TearDownTest() {
	s.registry.Close()
	s.syncNode.Close()
}

func (s *SuiteSnapshotter) newService() *Service {
	service, err := NewService(s.config, logging.NewLogger("test"))
	s.Require().NoError(err)
	return service
}

func (s *SuiteSnapshotter) TestCyclePublishesSnapshot() {
	service := s.newService()
	s.Require().NoError(service.Cycle(context.Background()))

	tags := s.registry.Tags(s.config.RepositoryName())
	s.Require().Len(tags, 1)

	capturedAt, err := snapshot.ParseTagTime(s.config.Network, tags[0])
	s.Require().NoError(err)
	s.WithinDuration(time.Now().UTC(), capturedAt, time.Minute)

	client, err := registry.NewClient(s.config.RegistryURL, logging.NewLogger("test"))
	s.Require().NoError(err)
	manifest, err := client.FetchManifest(context.Background(), s.config.RepositoryName(), tags[0])
	s.Require().NoError(err)
	s.Require().Len(manifest.Layers, 1)
	s.Equal(registry.SnapshotLayerGzipMediaType, manifest.Layers[0].MediaType)

	// Capture metadata carries the sync node's height.
	blob, _, err := client.FetchBlob(context.Background(), s.config.RepositoryName(), manifest.Config.Digest)
	s.Require().NoError(err)
	var info snapshot.Info
	s.Require().NoError(json.NewDecoder(blob).Decode(&info))
	blob.Close()
	s.Equal("sepolia", info.Network)
	s.EqualValues(1234, info.CapturedAtBlock)

	// Layer must contain the chain data and nothing else.
	s.Equal(map[string]bool{
		"geth":                      true,
		"geth/chaindata":            true,
		"geth/chaindata/000001.log": true,
		"geth/chaindata/CURRENT":    true,
	}, s.layerEntries(client, manifest))

	// The spool file is removed once published.
	entries, err := os.ReadDir(s.config.WorkDir)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *SuiteSnapshotter) layerEntries(client *registry.Client, manifest *registry.Manifest) map[string]bool {
	blob, _, err := client.FetchBlob(context.Background(), s.config.RepositoryName(), manifest.Layers[0].Digest)
	s.Require().NoError(err)
	defer blob.Close()

	gz, err := gzip.NewReader(blob)
	s.Require().NoError(err)
	reader := tar.NewReader(gz)

	entries := make(map[string]bool)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return entries
		}
		s.Require().NoError(err)
		entries[header.Name] = true
		_, err = io.Copy(io.Discard, reader)
		s.Require().NoError(err)
	}
}

func (s *SuiteSnapshotter) TestCycleSkippedWhileLockHeld() {
	holder := flock.New(s.config.LockFile)
	locked, err := holder.TryLock()
	s.Require().NoError(err)
	s.Require().True(locked)
	defer func() {
		s.Require().NoError(holder.Unlock())
	}()

	s.config.PauseBudget = 100 * time.Millisecond

	service := s.newService()
	s.Require().NoError(service.Cycle(context.Background()))

	s.Empty(s.registry.Tags(s.config.RepositoryName()))
}

func (s *SuiteSnapshotter) TestPruneKeepsNewestOfOwnNetwork() {
	repo := s.config.RepositoryName()
	for day := 1; day <= 4; day++ {
		tag := snapshot.Tag(s.config.Network, time.Date(2026, 2, day, 0, 0, 0, 0, time.UTC))
		s.registry.Publish(repo, tag, []byte("{}"), []byte("layer"), registry.SnapshotLayerGzipMediaType)
	}
	foreign := snapshot.Tag("holesky", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s.registry.Publish(repo, foreign, []byte("{}"), []byte("layer"), registry.SnapshotLayerGzipMediaType)
	s.registry.Publish(repo, "latest", []byte("{}"), []byte("layer"), registry.SnapshotLayerGzipMediaType)

	service := s.newService()
	pruned, err := service.prune(context.Background())
	s.Require().NoError(err)
	s.Equal(2, pruned)

	remaining := s.registry.Tags(repo)
	s.ElementsMatch([]string{
		snapshot.Tag(s.config.Network, time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)),
		snapshot.Tag(s.config.Network, time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC)),
		foreign,
		"latest",
	}, remaining)
}

func (s *SuiteSnapshotter) TestPruneClampsKeepToOne() {
	repo := s.config.RepositoryName()
	for day := 1; day <= 3; day++ {
		tag := snapshot.Tag(s.config.Network, time.Date(2026, 2, day, 0, 0, 0, 0, time.UTC))
		s.registry.Publish(repo, tag, []byte("{}"), []byte("layer"), registry.SnapshotLayerGzipMediaType)
	}

	s.config.Keep = 0
	service := s.newService()
	pruned, err := service.prune(context.Background())
	s.Require().NoError(err)
	s.Equal(2, pruned)
	s.Len(s.registry.Tags(repo), 1)
}

func TestSuiteSnapshotter(t *testing.T) {
	t.Parallel()

	suite.Run(t, new(SuiteSnapshotter))
}
