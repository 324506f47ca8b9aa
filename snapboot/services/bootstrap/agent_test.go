package bootstrap

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethfleet/snapboot/snapboot/client/registry"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/ethfleet/snapboot/snapboot/internal/snapshot"
	"github.com/ethfleet/snapboot/snapboot/internal/testaide"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/suite"
)

type recordingProcess struct {
	started int
	stopped int
}

func (p *recordingProcess) Start(context.Context) error { p.started++; return nil }
func (p *recordingProcess) Stop() error                 { p.stopped++; return nil }

type SuiteAgent struct {
	suite.Suite

	registry *testaide.FakeRegistry
	local    *testaide.FakeEthNode
	peer     *testaide.FakeEthNode

	config  *Config
	clock   *clockwork.FakeClock
	process *recordingProcess
}

func (s *SuiteAgent) SetupTest() {
	s.registry = testaide.NewFakeRegistry()
	s.local = testaide.NewFakeEthNode("Geth/v1.14.0")
	s.peer = testaide.NewFakeEthNode("Geth/v1.14.0-sync")

	s.config = NewDefaultConfig()
	s.config.Network = "sepolia"
	s.config.DataDir = filepath.Join(s.T().TempDir(), "data")
	s.config.RegistryURL = s.registry.URL()
	s.config.ClientRPCURL = s.local.URL()
	s.config.PeerCandidates = []string{s.peer.URL()}
	s.config.PollInterval = 15 * time.Second
	s.config.CatchupTimeout = time.Hour
	s.config.ProbeTimeout = time.Second
}

func (s *SuiteAgent) TearDownTest() {
	s.registry.Close()
	s.local.Close()
	s.peer.Close()
}

func (s *SuiteAgent) newAgent() *Agent {
	agent, err := New(s.config, logging.NewLogger("test"))
	s.Require().NoError(err)

	s.clock = clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.process = &recordingProcess{}
	agent.clock = s.clock
	agent.process = s.process
	return agent
}

// run executes the agent while advancing the fake clock whenever the
// catch-up loop sleeps between polls.
func (s *SuiteAgent) run(agent *Agent) error {
	done := make(chan error, 1)
	go func() { done <- agent.Run(context.Background()) }()

	for {
		select {
		case err := <-done:
			return err
		default:
		}

		waitCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		if err := s.clock.BlockUntilContext(waitCtx, 1); err == nil {
			s.clock.Advance(s.config.PollInterval)
		}
		cancel()
	}
}

func (s *SuiteAgent) publishSnapshot(capturedAt time.Time, files map[string][]byte) string {
	info, err := json.Marshal(snapshot.Info{
		Network:         s.config.Network,
		CapturedAtBlock: 100,
		CreatedAt:       capturedAt,
	})
	s.Require().NoError(err)

	tag := snapshot.Tag(s.config.Network, capturedAt)
	s.registry.Publish(s.config.RepositoryName(), tag, info, testaide.TarGz(files), registry.SnapshotLayerGzipMediaType)
	return tag
}

func (s *SuiteAgent) TestSnapshotPathToReady() {
	tag := s.publishSnapshot(time.Date(2026, 2, 28, 6, 0, 0, 0, time.UTC), map[string][]byte{
		"geth/chaindata/CURRENT":    []byte("MANIFEST-000001"),
		"geth/chaindata/000001.log": []byte("payload"),
	})
	// An older snapshot must lose to the newer one.
	s.publishSnapshot(time.Date(2026, 2, 20, 6, 0, 0, 0, time.UTC), map[string][]byte{
		"geth/chaindata/CURRENT": []byte("stale"),
	})

	s.local.SetHead(100)
	s.peer.SetHead(120)

	agent := s.newAgent()
	s.Require().NoError(s.run(agent))

	s.Equal(PhaseReady, agent.session.Phase)
	s.Equal(tag, agent.session.SnapshotTag)
	s.Equal(s.peer.URL(), agent.session.PeerEndpoint)
	s.Equal(1, s.process.started)
	s.Equal(0, s.process.stopped)

	content, err := os.ReadFile(filepath.Join(s.config.DataDir, "geth", "chaindata", "CURRENT"))
	s.Require().NoError(err)
	s.Equal("MANIFEST-000001", string(content))

	_, ok, err := ReadCompletionMarker(s.config.DataDir)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *SuiteAgent) TestCompletionMarkerShortCircuits() {
	s.Require().NoError(os.MkdirAll(s.config.DataDir, 0o755))
	completedAt := time.Date(2026, 2, 27, 9, 30, 0, 0, time.UTC)
	s.Require().NoError(WriteCompletionMarker(s.config.DataDir, completedAt))

	agent := s.newAgent()
	s.Require().NoError(s.run(agent))

	s.Equal(PhaseReady, agent.session.Phase)
	s.Empty(agent.session.SnapshotTag)
	s.Equal(0, s.process.started)

	readBack, ok, err := ReadCompletionMarker(s.config.DataDir)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(completedAt, readBack)
}

func (s *SuiteAgent) TestRegistryUnreachableDegrades() {
	s.registry.Close()
	s.local.SetHead(42)

	agent := s.newAgent()
	s.Require().NoError(s.run(agent))

	s.Equal(PhaseReady, agent.session.Phase)
	s.Empty(agent.session.SnapshotTag)

	_, ok, err := ReadCompletionMarker(s.config.DataDir)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *SuiteAgent) TestExistingDataSkipsSnapshot() {
	s.publishSnapshot(time.Date(2026, 2, 28, 6, 0, 0, 0, time.UTC), map[string][]byte{
		"geth/chaindata/CURRENT": []byte("from-snapshot"),
	})

	existing := filepath.Join(s.config.DataDir, "geth", "chaindata")
	s.Require().NoError(os.MkdirAll(existing, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(existing, "CURRENT"), []byte("local"), 0o644))

	s.local.SetHead(42)

	agent := s.newAgent()
	s.Require().NoError(s.run(agent))

	s.Empty(agent.session.SnapshotTag)
	content, err := os.ReadFile(filepath.Join(existing, "CURRENT"))
	s.Require().NoError(err)
	s.Equal("local", string(content))
}

func (s *SuiteAgent) TestTruncatedSnapshotLeavesNoPartialState() {
	s.publishSnapshot(time.Date(2026, 2, 28, 6, 0, 0, 0, time.UTC), map[string][]byte{
		"geth/chaindata/CURRENT": []byte(strings.Repeat("x", 4096)),
	})
	s.registry.TruncateBlobs = 10
	s.local.SetHead(42)

	agent := s.newAgent()
	s.Require().NoError(s.run(agent))

	// Materialization failed, so bootstrap fell back to a scratch sync.
	s.False(agent.clientKind.HasData(s.config.DataDir))

	entries, err := os.ReadDir(filepath.Dir(s.config.DataDir))
	s.Require().NoError(err)
	for _, entry := range entries {
		s.NotContains(entry.Name(), ".partial-")
	}
}

func (s *SuiteAgent) TestCatchupTimeout() {
	s.config.RegistryURL = ""
	s.config.PeerCandidates = nil
	s.config.CatchupTimeout = 2 * s.config.PollInterval
	s.local.SetHead(0)
	s.local.SetSyncing(true)

	agent := s.newAgent()
	err := s.run(agent)

	s.Require().ErrorIs(err, ErrCatchupTimeout)
	s.Equal(ExitCatchupTimeout, ExitCode(err))
	s.Equal(PhaseFailed, agent.session.Phase)

	_, ok, markerErr := ReadCompletionMarker(s.config.DataDir)
	s.Require().NoError(markerErr)
	s.False(ok)
}

func (s *SuiteAgent) TestBlockRegressionFails() {
	s.config.RegistryURL = ""
	s.config.PeerCandidates = nil
	s.config.StopClientOnFailure = true
	s.local.SetHead(100)
	s.local.SetSyncing(true)

	agent := s.newAgent()

	done := make(chan error, 1)
	go func() { done <- agent.Run(context.Background()) }()

	// First poll observes block 100. Rewind the head before releasing
	// the next poll.
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.clock.BlockUntilContext(waitCtx, 1))
	s.local.SetHead(50)
	s.clock.Advance(s.config.PollInterval)

	err := <-done
	s.Require().ErrorIs(err, ErrBlockRegression)
	s.Equal(ExitRegression, ExitCode(err))
	s.Equal(1, s.process.stopped)
}

func (s *SuiteAgent) TestUnreliableSyncSignalWaitsForPeerTarget() {
	s.config.RegistryURL = ""
	s.config.ClientKind = "nethermind"
	s.config.HeadTolerance = 50
	s.local.SetHead(0)
	s.peer.SetHead(1000)

	agent := s.newAgent()

	done := make(chan error, 1)
	go func() { done <- agent.Run(context.Background()) }()

	// Nethermind reports "not syncing" at block 0; the agent must not
	// trust it while the peer is 1000 blocks ahead.
	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.clock.BlockUntilContext(waitCtx, 1))
	s.local.SetHead(980)
	s.clock.Advance(s.config.PollInterval)

	s.Require().NoError(<-done)
	s.Equal(PhaseReady, agent.session.Phase)
}

func (s *SuiteAgent) TestScratchSyncReachesHead() {
	// Registry is reachable but holds no snapshots; the node syncs from
	// genesis against a peer a million blocks ahead.
	s.local.SetHead(0)
	s.local.SetSyncing(true)
	s.peer.SetHead(1_000_000)

	agent := s.newAgent()

	done := make(chan error, 1)
	go func() { done <- agent.Run(context.Background()) }()

	advance := func(head uint64, syncing bool) {
		waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Require().NoError(s.clock.BlockUntilContext(waitCtx, 1))
		s.local.SetHead(head)
		s.local.SetSyncing(syncing)
		s.clock.Advance(s.config.PollInterval)
	}

	advance(500_000, true)
	advance(1_000_000, false)

	s.Require().NoError(<-done)
	s.Equal(PhaseReady, agent.session.Phase)
	s.Empty(agent.session.SnapshotTag)
}

func (s *SuiteAgent) TestReadyWithinToleranceWhileStillSyncing() {
	// A node trailing the peer by less than the tolerance serves even if
	// eth_syncing still momentarily reports progress.
	s.config.RegistryURL = ""
	s.config.HeadTolerance = 50
	s.local.SetHead(999_000)
	s.local.SetSyncing(true)
	s.peer.SetHead(999_050)

	agent := s.newAgent()
	s.Require().NoError(s.run(agent))

	s.Equal(PhaseReady, agent.session.Phase)

	_, ok, err := ReadCompletionMarker(s.config.DataDir)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *SuiteAgent) TestPeerProbeSkipsDeadCandidates() {
	dead := testaide.NewFakeEthNode("unused")
	dead.SetDown(true)
	defer dead.Close()

	s.config.RegistryURL = ""
	s.config.PeerCandidates = []string{dead.URL(), s.peer.URL()}
	s.local.SetHead(42)
	s.peer.SetHead(42)

	agent := s.newAgent()
	s.Require().NoError(s.run(agent))

	s.Equal(s.peer.URL(), agent.session.PeerEndpoint)
}

func (s *SuiteAgent) TestPeerProbeSkipsWrongNetwork() {
	foreign := testaide.NewFakeEthNode("Geth/v1.16.0")
	foreign.SetNetworkID("1")
	foreign.SetHead(42)
	defer foreign.Close()

	s.config.RegistryURL = ""
	s.config.PeerCandidates = []string{foreign.URL(), s.peer.URL()}
	s.local.SetHead(42)
	s.peer.SetHead(42)

	agent := s.newAgent()
	s.Require().NoError(s.run(agent))

	s.Equal(s.peer.URL(), agent.session.PeerEndpoint)
}

func (s *SuiteAgent) TestUnwritableStorageIsFatal() {
	blocker := filepath.Join(s.T().TempDir(), "occupied")
	s.Require().NoError(os.WriteFile(blocker, []byte("file, not a dir"), 0o644))
	s.config.DataDir = filepath.Join(blocker, "data")

	agent := s.newAgent()
	err := s.run(agent)

	s.Require().ErrorIs(err, ErrLocalStorageUnwritable)
	s.Equal(ExitLocalStorage, ExitCode(err))
}

func TestSuiteAgent(t *testing.T) {
	t.Parallel()

	suite.Run(t, new(SuiteAgent))
}
