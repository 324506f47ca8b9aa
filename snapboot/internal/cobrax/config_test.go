package cobrax

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Network string `yaml:"network"`
	Port    int    `yaml:"port"`
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network: sepolia\n"), 0o644))

	cfg := testConfig{Network: "mainnet", Port: 8545}
	require.NoError(t, LoadConfigFromFile(path, &cfg))
	require.Equal(t, "sepolia", cfg.Network)
	require.Equal(t, 8545, cfg.Port) // default survives the overlay

	require.NoError(t, LoadConfigFromFile("", &cfg))
	require.Error(t, LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"), &cfg))
}

func TestGetConfigNameFromArgs(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()

	os.Args = []string{"bin", "run", "--config", "a.yaml"}
	require.Equal(t, "a.yaml", GetConfigNameFromArgs())

	os.Args = []string{"bin", "run", "--config=b.yaml"}
	require.Equal(t, "b.yaml", GetConfigNameFromArgs())

	os.Args = []string{"bin", "run", "-c", "c.yaml"}
	require.Equal(t, "c.yaml", GetConfigNameFromArgs())

	os.Args = []string{"bin", "run", "--config"}
	require.Equal(t, "", GetConfigNameFromArgs())

	os.Args = []string{"bin", "run"}
	require.Equal(t, "", GetConfigNameFromArgs())
}
