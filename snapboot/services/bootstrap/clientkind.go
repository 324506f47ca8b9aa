package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
)

// ClientKind identifies the execution client managed by this agent.
// The kind is resolved from configuration once at startup; all
// behavioral differences between clients hang off this type.
type ClientKind int

const (
	ClientGeth ClientKind = iota
	ClientNethermind
	ClientErigon
)

func ParseClientKind(name string) (ClientKind, error) {
	switch name {
	case "geth":
		return ClientGeth, nil
	case "nethermind":
		return ClientNethermind, nil
	case "erigon":
		return ClientErigon, nil
	default:
		return 0, fmt.Errorf("unknown client kind %q", name)
	}
}

func (k ClientKind) String() string {
	switch k {
	case ClientGeth:
		return "geth"
	case ClientNethermind:
		return "nethermind"
	case ClientErigon:
		return "erigon"
	default:
		return fmt.Sprintf("ClientKind(%d)", int(k))
	}
}

// dataMarker is the path, relative to the data directory, whose presence
// means the client has usable chain data.
func (k ClientKind) dataMarker() string {
	switch k {
	case ClientGeth:
		return filepath.Join("geth", "chaindata", "CURRENT")
	case ClientNethermind:
		return "nethermind_db"
	case ClientErigon:
		return filepath.Join("chaindata", "mdbx.dat")
	default:
		return ""
	}
}

// HasData reports whether the data directory contains client state that
// a fresh start would pick up.
func (k ClientKind) HasData(dataDir string) bool {
	marker := k.dataMarker()
	if marker == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(dataDir, marker))
	return err == nil
}

// SyncSignalReliable reports whether the client's eth_syncing "false"
// can be trusted as "caught up". Nethermind reports false while it is
// still waiting for peers, so for it the head-tolerance comparison is
// the authoritative signal whenever a reference peer is available.
func (k ClientKind) SyncSignalReliable() bool {
	return k != ClientNethermind
}
