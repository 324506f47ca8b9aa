package snapshotter

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethfleet/snapboot/snapboot/client/ethrpc"
	"github.com/ethfleet/snapboot/snapboot/client/registry"
	"github.com/ethfleet/snapboot/snapboot/common"
	"github.com/ethfleet/snapboot/snapboot/common/logging"
	"github.com/ethfleet/snapboot/snapboot/internal/snapshot"
	"github.com/gofrs/flock"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"
)

// ErrPauseBudgetExceeded means the capture lock could not be acquired
// within the pause budget. The cycle is skipped, never forced.
var ErrPauseBudgetExceeded = errors.New("pause budget exceeded")

const lockRetryDelay = time.Second

// Artifact is one finished snapshot archive, spooled on disk and ready
// to publish.
type Artifact struct {
	Path      string
	Digest    string
	Size      int64
	MediaType string
	Tag       string
	Info      snapshot.Info
}

// capture archives the data directory under the capture lock. The lock
// is what keeps the sync node paused; everything after unlock runs with
// the node back online.
func (s *Service) capture(ctx context.Context) (*Artifact, error) {
	lock := flock.New(s.config.LockFile)

	lockCtx, cancel := context.WithTimeout(ctx, s.config.PauseBudget)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s held elsewhere", ErrPauseBudgetExceeded, s.config.LockFile)
	}
	lockedAt := s.clock.Now()
	defer func() {
		_ = lock.Unlock()
		if held := s.clock.Since(lockedAt); held > s.config.PauseBudget {
			s.logger.Warn().
				Stringer(logging.FieldDuration, held).
				Msg("capture held the pause lock beyond the budget")
		}
	}()

	capturedAt := s.clock.Now().UTC()
	info := snapshot.Info{
		Network:         s.config.Network,
		CapturedAtBlock: s.currentHeight(ctx),
		CreatedAt:       capturedAt,
	}

	artifact, err := s.spoolArchive(ctx)
	if err != nil {
		return nil, err
	}
	artifact.Tag = snapshot.Tag(s.config.Network, capturedAt)
	artifact.Info = info
	return artifact, nil
}

// currentHeight is best effort; a snapshot without a height is still
// publishable.
func (s *Service) currentHeight(ctx context.Context) uint64 {
	if s.config.SyncNodeRPCURL == "" {
		return 0
	}
	client := ethrpc.NewClient(s.config.SyncNodeRPCURL, s.logger,
		ethrpc.WithTimeout(10*time.Second),
		ethrpc.WithRetryConfig(&common.RetryConfig{
			ShouldRetry: common.LimitRetries(3),
			NextDelay:   common.DelayExponential(100*time.Millisecond, time.Second),
		}))
	head, err := client.BlockNumber(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("sync node height not read, snapshot will carry none")
		return 0
	}
	return uint64(head)
}

// spoolArchive streams a compressed tar of the data directory into the
// work dir, hashing the compressed bytes on the way through.
func (s *Service) spoolArchive(ctx context.Context) (artifact *Artifact, retErr error) {
	mediaType, compress, err := compressorFor(s.config.Compression)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.config.WorkDir, 0o755); err != nil {
		return nil, err
	}
	spool, err := os.CreateTemp(s.config.WorkDir, "snapshot-*.tar.part")
	if err != nil {
		return nil, err
	}
	defer func() {
		spool.Close()
		if retErr != nil {
			_ = os.Remove(spool.Name())
		}
	}()

	hash := sha256.New()
	pr, pw := io.Pipe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.writeArchive(gctx, pw, compress)
		pw.CloseWithError(err)
		return err
	})

	var size int64
	g.Go(func() error {
		n, err := io.Copy(io.MultiWriter(spool, hash), pr)
		if err != nil {
			pr.CloseWithError(err)
			return err
		}
		size = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := spool.Sync(); err != nil {
		return nil, err
	}

	return &Artifact{
		Path:      spool.Name(),
		Digest:    "sha256:" + hex.EncodeToString(hash.Sum(nil)),
		Size:      size,
		MediaType: mediaType,
	}, nil
}

func compressorFor(name string) (string, func(io.Writer) (io.WriteCloser, error), error) {
	switch name {
	case "gzip", "":
		return registry.SnapshotLayerGzipMediaType, func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		}, nil
	case "zstd":
		return registry.SnapshotLayerZstdMediaType, func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		}, nil
	default:
		return "", nil, fmt.Errorf("unknown compression %q", name)
	}
}

func (s *Service) writeArchive(ctx context.Context, w io.Writer, compress func(io.Writer) (io.WriteCloser, error)) error {
	encoder, err := compress(w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(encoder)

	root := s.config.DataDir
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		// Coordination files (the capture lock, completion markers) are
		// not chain data.
		if strings.HasPrefix(filepath.Base(rel), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		var linkTarget string
		if info.Mode()&fs.ModeSymlink != 0 {
			if linkTarget, err = os.Readlink(path); err != nil {
				return err
			}
		}

		header, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(tw, file)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return encoder.Close()
}
