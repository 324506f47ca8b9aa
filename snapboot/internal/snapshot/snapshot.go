// Package snapshot defines the artifact naming and metadata contract
// shared by the snapshot builder (producer side) and the bootstrap agent
// (consumer side).
package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// Tag timestamps are fixed-width, zero-padded UTC so that plain string
// comparison of tags equals chronological comparison. Snapshot discovery
// relies on this.
const tagTimestampLayout = "20060102T150405Z"

const tagInfix = "_snapshot_"

// Tag builds the registry tag for a snapshot of the given network taken
// at the given time.
func Tag(network string, capturedAt time.Time) string {
	return network + tagInfix + capturedAt.UTC().Format(tagTimestampLayout)
}

// TagPrefix returns the tag prefix shared by all snapshots of a network.
func TagPrefix(network string) string {
	return network + tagInfix
}

// ParseTagTime extracts the capture time from a snapshot tag.
func ParseTagTime(network, tag string) (time.Time, error) {
	suffix, ok := strings.CutPrefix(tag, TagPrefix(network))
	if !ok {
		return time.Time{}, fmt.Errorf("tag %q does not belong to network %q", tag, network)
	}
	ts, err := time.Parse(tagTimestampLayout, suffix)
	if err != nil {
		return time.Time{}, fmt.Errorf("tag %q has malformed timestamp: %w", tag, err)
	}
	return ts, nil
}

// Latest selects the lexicographically greatest tag matching the
// network's snapshot prefix, which by the timestamp format is the most
// recent one. The listing order of tags does not matter. Tags with a
// malformed timestamp suffix are skipped.
func Latest(network string, tags []string) (string, bool) {
	best := ""
	for _, tag := range tags {
		if _, err := ParseTagTime(network, tag); err != nil {
			continue
		}
		if tag > best {
			best = tag
		}
	}
	return best, best != ""
}

// Info is the config-blob payload published alongside every snapshot
// archive. CapturedAtBlock is best effort and may be zero when the sync
// node's height could not be read during capture.
type Info struct {
	Network         string    `json:"network"`
	CapturedAtBlock uint64    `json:"capturedAtBlock"`
	CreatedAt       time.Time `json:"createdAt"`
}

// DefaultRepository derives the registry repository for a network.
func DefaultRepository(network string) string {
	return "snapshots/" + network
}

// net_version ids of the networks the fleet runs on.
var networkIDs = map[string]string{
	"mainnet": "1",
	"holesky": "17000",
	"hoodi":   "560048",
	"sepolia": "11155111",
}

// NetworkID maps a well-known network name to its net_version id. The
// second result is false for names outside the table, in which case
// callers skip the identity check rather than guess.
func NetworkID(network string) (string, bool) {
	id, ok := networkIDs[network]
	return id, ok
}
