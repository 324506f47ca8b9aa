package bootstrap

import (
	"time"

	"github.com/ethfleet/snapboot/snapboot/internal/snapshot"
	"github.com/ethfleet/snapboot/snapboot/internal/telemetry"
)

type Config struct {
	// Network is the chain this node serves, e.g. "sepolia".
	Network string `yaml:"network"`
	// DataDir is the client's data directory.
	DataDir string `yaml:"dataDir"`

	// RegistryURL is the snapshot registry base URL. An empty value
	// disables snapshot discovery entirely (slow-sync bootstrap).
	RegistryURL string `yaml:"registryUrl,omitempty"`
	// Repository overrides the default "snapshots/<network>" repository.
	Repository string `yaml:"repository,omitempty"`

	// ClientKind selects the execution client: geth, nethermind, erigon.
	ClientKind string `yaml:"clientKind"`
	// ClientRPCURL is the local client's JSON-RPC endpoint.
	ClientRPCURL string `yaml:"clientRpcUrl"`

	// ClientCommand, when set, makes the agent spawn the client process
	// itself before catch-up. When empty the client is managed
	// externally and only observed through RPC.
	ClientCommand string   `yaml:"clientCommand,omitempty"`
	ClientArgs    []string `yaml:"clientArgs,omitempty"`
	// StopClientOnFailure stops a spawned client when bootstrap fails.
	StopClientOnFailure bool `yaml:"stopClientOnFailure,omitempty"`

	// PeerCandidates are sync-node RPC endpoints probed for a reference
	// peer, typically one per client kind.
	PeerCandidates []string `yaml:"peerCandidates,omitempty"`

	CatchupTimeout time.Duration `yaml:"catchupTimeout,omitempty"`
	PollInterval   time.Duration `yaml:"pollInterval,omitempty"`
	ProbeTimeout   time.Duration `yaml:"probeTimeout,omitempty"`

	// HeadTolerance is the block lag at which the node is considered
	// caught up even if the client still reports syncing.
	HeadTolerance uint64 `yaml:"headTolerance,omitempty"`

	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

func NewDefaultConfig() *Config {
	return &Config{
		Network:        "sepolia",
		DataDir:        "/data",
		ClientKind:     "geth",
		ClientRPCURL:   "http://127.0.0.1:8545",
		CatchupTimeout: 2 * time.Hour,
		PollInterval:   15 * time.Second,
		ProbeTimeout:   5 * time.Second,
		HeadTolerance:  50,
		Telemetry:      telemetry.NewDefaultConfig(),
	}
}

func (c *Config) RepositoryName() string {
	if c.Repository != "" {
		return c.Repository
	}
	return snapshot.DefaultRepository(c.Network)
}
