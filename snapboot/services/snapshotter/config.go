// Package snapshotter periodically captures the sync node's data
// directory, publishes the archive to the artifact registry and prunes
// superseded snapshots.
package snapshotter

import (
	"time"

	"github.com/ethfleet/snapboot/snapboot/internal/snapshot"
	"github.com/spf13/viper"
)

const (
	NetworkDefault     = "sepolia"
	DataDirDefault     = "/data"
	WorkDirDefault     = "/var/tmp/snapshotter"
	LockFileDefault    = "/data/.capture.lock"
	IntervalDefault    = 24 * time.Hour
	PauseBudgetDefault = 10 * time.Minute
	KeepDefault        = 3
	CompressionDefault = "gzip"
)

type Config struct {
	Network     string `yaml:"network"`
	DataDir     string `yaml:"data-dir"`
	RegistryURL string `yaml:"registry-url"`
	Repository  string `yaml:"repository,omitempty"`

	// SyncNodeRPCURL is used only to stamp the captured block height
	// into the snapshot metadata. Capture proceeds without it.
	SyncNodeRPCURL string `yaml:"sync-node-rpc-url,omitempty"`

	// WorkDir holds the archive being built before upload. It needs as
	// much free space as one compressed snapshot.
	WorkDir string `yaml:"work-dir"`
	// LockFile coordinates capture with the sync node's pause wrapper.
	LockFile string `yaml:"lock-file"`

	Interval time.Duration `yaml:"interval"`
	// PauseBudget bounds how long a capture may hold the lock file, and
	// therefore how long the sync node stays paused. A cycle that cannot
	// acquire the lock within the budget is skipped.
	PauseBudget time.Duration `yaml:"pause-budget"`

	// Keep is the number of most recent snapshots retained per network.
	// Values below 1 are treated as 1 so the registry never goes empty.
	Keep int `yaml:"keep"`
	// Compression selects the layer codec: gzip or zstd.
	Compression string `yaml:"compression"`

	PrometheusPort int `yaml:"prometheus-port,omitempty"`
}

func (c *Config) ResetToDefault() {
	c.Network = NetworkDefault
	c.DataDir = DataDirDefault
	c.WorkDir = WorkDirDefault
	c.LockFile = LockFileDefault
	c.Interval = IntervalDefault
	c.PauseBudget = PauseBudgetDefault
	c.Keep = KeepDefault
	c.Compression = CompressionDefault
}

func (c *Config) InitFromFile(cfgFile string) bool {
	if cfgFile == "" {
		return false
	}
	v := viper.New()
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		c.ResetToDefault()
		return false
	}
	c.Network = v.GetString("network")
	c.DataDir = v.GetString("data-dir")
	c.RegistryURL = v.GetString("registry-url")
	c.Repository = v.GetString("repository")
	c.SyncNodeRPCURL = v.GetString("sync-node-rpc-url")
	c.WorkDir = v.GetString("work-dir")
	c.LockFile = v.GetString("lock-file")
	c.Interval = v.GetDuration("interval")
	c.PauseBudget = v.GetDuration("pause-budget")
	c.Keep = v.GetInt("keep")
	c.Compression = v.GetString("compression")
	c.PrometheusPort = v.GetInt("prometheus-port")
	return true
}

func (c *Config) RepositoryName() string {
	if c.Repository != "" {
		return c.Repository
	}
	return snapshot.DefaultRepository(c.Network)
}
