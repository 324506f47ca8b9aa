package bootstrap

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTarRejectsEscapingPaths(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"../evil", "/etc/passwd", "a/../../evil"} {
		var buf bytes.Buffer
		tw := tar.NewWriter(&buf)
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: 0}))
		require.NoError(t, tw.Close())

		err := extractTar(&buf, t.TempDir())
		require.ErrorContains(t, err, "escapes extraction root", "entry %q", name)
	}
}

func TestExtractTarPreservesLayout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "geth/chaindata", Typeflag: tar.TypeDir, Mode: 0o755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "geth/chaindata/CURRENT", Mode: 0o644, Size: 5}))
	_, err := tw.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "geth/link", Typeflag: tar.TypeSymlink, Linkname: "chaindata", Mode: 0o777}))
	require.NoError(t, tw.Close())

	dest := t.TempDir()
	require.NoError(t, extractTar(&buf, dest))

	content, err := os.ReadFile(filepath.Join(dest, "geth", "chaindata", "CURRENT"))
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))

	target, err := os.Readlink(filepath.Join(dest, "geth", "link"))
	require.NoError(t, err)
	require.Equal(t, "chaindata", target)
}

func TestExtractTarRejectsEscapingSymlinkTargets(t *testing.T) {
	t.Parallel()

	for _, linkname := range []string{"/etc", "../loot", "sub/../../loot"} {
		var buf bytes.Buffer
		tw := tar.NewWriter(&buf)
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: linkname, Mode: 0o777}))
		require.NoError(t, tw.Close())

		err := extractTar(&buf, t.TempDir())
		require.ErrorContains(t, err, "links outside extraction root", "linkname %q", linkname)
	}
}

func TestExtractTarDoesNotWriteThroughPlantedSymlink(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dest := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	// The link comes first so a naive extractor would route the file
	// through it, landing two levels above the extraction root.
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "escape", Typeflag: tar.TypeSymlink, Linkname: "../../loot", Mode: 0o777}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "escape/owned", Mode: 0o644, Size: 4}))
	_, err := tw.Write([]byte("evil"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())

	require.Error(t, extractTar(&buf, dest))

	_, err = os.Stat(filepath.Join(root, "loot"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Lstat(filepath.Join(dest, "escape"))
	require.NoError(t, err) // extracted as a real dir, never as the link
}

func TestNewDecompressorRejectsUnknownMediaType(t *testing.T) {
	t.Parallel()

	_, err := newDecompressor("application/octet-stream", bytes.NewReader(nil))
	require.ErrorContains(t, err, "unsupported layer media type")
}

func TestSwapIntoDataDirWithExistingMountPoint(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(dataDir, 0o755)) // pre-existing empty volume

	partial := filepath.Join(root, "data.partial-x")
	require.NoError(t, os.MkdirAll(filepath.Join(partial, "geth"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(partial, "geth", "CURRENT"), []byte("m"), 0o644))

	require.NoError(t, swapIntoDataDir(partial, dataDir))

	_, err := os.Stat(filepath.Join(dataDir, "geth", "CURRENT"))
	require.NoError(t, err)
	_, err = os.Stat(partial)
	require.True(t, os.IsNotExist(err))
}
