package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseClientKind(t *testing.T) {
	t.Parallel()

	for name, kind := range map[string]ClientKind{
		"geth":       ClientGeth,
		"nethermind": ClientNethermind,
		"erigon":     ClientErigon,
	} {
		parsed, err := ParseClientKind(name)
		require.NoError(t, err)
		require.Equal(t, kind, parsed)
		require.Equal(t, name, parsed.String())
	}

	_, err := ParseClientKind("besu")
	require.ErrorContains(t, err, "unknown client kind")
}

func TestHasData(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	require.False(t, ClientGeth.HasData(dataDir))

	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "geth", "chaindata"), 0o755))
	require.False(t, ClientGeth.HasData(dataDir), "empty chaindata dir is not data")

	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "geth", "chaindata", "CURRENT"), nil, 0o644))
	require.True(t, ClientGeth.HasData(dataDir))
	require.False(t, ClientErigon.HasData(dataDir))
}

func TestExitCodes(t *testing.T) {
	t.Parallel()

	require.Equal(t, ExitReady, ExitCode(nil))
	require.Equal(t, ExitCatchupTimeout, ExitCode(ErrCatchupTimeout))
	require.Equal(t, ExitLocalStorage, ExitCode(ErrLocalStorageUnwritable))
	require.Equal(t, ExitRegression, ExitCode(ErrBlockRegression))
	require.Equal(t, ExitFailed, ExitCode(os.ErrClosed))
}
