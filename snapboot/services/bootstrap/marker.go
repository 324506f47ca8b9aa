package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CompletionMarker is the sentinel written into the data directory on
// successful bootstrap. Readiness probes treat its absence as "not
// ready" no matter what the client process is doing.
const CompletionMarker = ".delta-sync-completed"

func markerPath(dataDir string) string {
	return filepath.Join(dataDir, CompletionMarker)
}

// WriteCompletionMarker records the bootstrap completion time. The data
// directory is created if the client has not made it yet.
func WriteCompletionMarker(dataDir string, completedAt time.Time) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrLocalStorageUnwritable, err)
	}
	content := completedAt.UTC().Format(time.RFC3339) + "\n"
	if err := os.WriteFile(markerPath(dataDir), []byte(content), 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrLocalStorageUnwritable, err)
	}
	return nil
}

// ReadCompletionMarker returns the recorded completion time, or ok=false
// when no marker exists.
func ReadCompletionMarker(dataDir string) (completedAt time.Time, ok bool, err error) {
	content, err := os.ReadFile(markerPath(dataDir))
	if os.IsNotExist(err) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	completedAt, err = time.Parse(time.RFC3339, strings.TrimSpace(string(content)))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("malformed completion marker: %w", err)
	}
	return completedAt, true, nil
}
