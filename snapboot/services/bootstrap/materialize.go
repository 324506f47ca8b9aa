package bootstrap

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/c2h5oh/datasize"
	"github.com/ethfleet/snapboot/snapboot/client/registry"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Progress is logged roughly every this many downloaded bytes.
const progressLogStep = 512 * datasize.MB

// materialize downloads the snapshot layer and extracts it into the data
// directory. On any failure every partially written byte is discarded so
// that a later run finds the same "no data" state it would without a
// snapshot.
func (a *Agent) materialize(ctx context.Context, manifest *registry.Manifest) (retErr error) {
	layer := manifest.Layers[0]
	repository := a.config.RepositoryName()

	stream, size, err := a.registry.FetchBlob(ctx, repository, layer.Digest)
	if err != nil {
		return err
	}
	defer stream.Close()

	partial := a.config.DataDir + ".partial-" + a.session.ID.String()
	if err := os.MkdirAll(partial, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrLocalStorageUnwritable, err)
	}
	defer func() {
		if retErr != nil {
			_ = os.RemoveAll(partial)
		}
	}()

	verifier := registry.NewDigestVerifier(stream, layer.Digest)
	counting := &progressReader{
		inner:  verifier,
		total:  size,
		step:   int64(progressLogStep.Bytes()),
		logger: a.logger,
	}

	decompressed, err := newDecompressor(layer.MediaType, counting)
	if err != nil {
		return err
	}
	defer decompressed.Close()

	if err := extractTar(decompressed, partial); err != nil {
		return fmt.Errorf("extracting snapshot: %w", err)
	}

	// Consume any trailing bytes (compression footers), then check the
	// digest over the complete stream.
	if _, err := io.Copy(io.Discard, counting); err != nil {
		return err
	}
	if err := verifier.Verify(); err != nil {
		return err
	}

	if err := swapIntoDataDir(partial, a.config.DataDir); err != nil {
		_ = os.RemoveAll(a.config.DataDir)
		return fmt.Errorf("%w: %w", ErrLocalStorageUnwritable, err)
	}

	a.metrics.RecordSnapshotBytes(ctx, counting.read)
	a.logger.Info().
		Str(logging.FieldBytes, datasize.ByteSize(counting.read).HumanReadable()).
		Msg("snapshot materialized")
	return nil
}

func newDecompressor(mediaType string, r io.Reader) (io.ReadCloser, error) {
	switch mediaType {
	case registry.SnapshotLayerGzipMediaType:
		return gzip.NewReader(r)
	case registry.SnapshotLayerZstdMediaType:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return decoder.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported layer media type %q", registry.ErrMalformed, mediaType)
	}
}

type deferredLink struct {
	path     string
	name     string
	linkname string
}

func extractTar(r io.Reader, dest string) error {
	reader := tar.NewReader(r)

	// Symlinks are created only after every other entry, so no dir or
	// file path is ever resolved through a link planted by the archive.
	var links []deferredLink

	for {
		header, err := reader.Next()
		if err == io.EOF {
			return createSymlinks(dest, links)
		}
		if err != nil {
			return err
		}

		path, err := securePath(dest, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, header.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := writeFile(path, reader, header.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			links = append(links, deferredLink{path: path, name: header.Name, linkname: header.Linkname})
		default:
			// Chain data archives contain only dirs, files and symlinks.
			return fmt.Errorf("unsupported tar entry type %d for %q", header.Typeflag, header.Name)
		}
	}
}

func createSymlinks(dest string, links []deferredLink) error {
	for _, link := range links {
		target := filepath.Join(filepath.Dir(link.path), link.linkname)
		if filepath.IsAbs(link.linkname) ||
			(target != dest && !strings.HasPrefix(target, dest+string(filepath.Separator))) {
			return fmt.Errorf("tar entry %q links outside extraction root", link.name)
		}

		if err := os.MkdirAll(filepath.Dir(link.path), 0o755); err != nil {
			return err
		}
		if err := os.Symlink(link.linkname, link.path); err != nil {
			return err
		}
	}
	return nil
}

func securePath(dest, name string) (string, error) {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("tar entry %q escapes extraction root", name)
	}
	return filepath.Join(dest, cleaned), nil
}

func writeFile(path string, r io.Reader, mode os.FileMode) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// swapIntoDataDir moves the fully extracted tree into place. The data
// directory may pre-exist as an empty volume mount point, in which case
// its children are moved instead of the directory itself.
func swapIntoDataDir(partial, dataDir string) error {
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		return os.Rename(partial, dataDir)
	}

	entries, err := os.ReadDir(partial)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.Rename(filepath.Join(partial, entry.Name()), filepath.Join(dataDir, entry.Name())); err != nil {
			return err
		}
	}
	return os.RemoveAll(partial)
}

type progressReader struct {
	inner  io.Reader
	total  int64
	step   int64
	logger logging.Logger

	read       int64
	nextReport int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	r.read += int64(n)

	if r.nextReport == 0 {
		r.nextReport = r.step
	}
	if r.read >= r.nextReport {
		r.nextReport += r.step
		event := r.logger.Info().Str(logging.FieldBytes, datasize.ByteSize(r.read).HumanReadable())
		if r.total > 0 {
			event = event.Int64("percent", r.read*100/r.total)
		}
		event.Msg("downloading snapshot")
	}
	return n, err
}
