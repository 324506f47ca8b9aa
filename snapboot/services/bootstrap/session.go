package bootstrap

import (
	"time"

	"github.com/google/uuid"
)

// Phase enumerates the agent's state machine.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseDiscoverSnapshot
	PhaseMaterialize
	PhaseDiscoverPeer
	PhaseCatchup
	PhaseReady
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseDiscoverSnapshot:
		return "DISCOVER_SNAPSHOT"
	case PhaseMaterialize:
		return "MATERIALIZE"
	case PhaseDiscoverPeer:
		return "DISCOVER_PEER"
	case PhaseCatchup:
		return "CATCHUP"
	case PhaseReady:
		return "READY"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

func (p Phase) Terminal() bool {
	return p == PhaseReady || p == PhaseFailed
}

// Session is the ephemeral state of one bootstrap run. It never survives
// a restart; a fresh session re-evaluates everything from disk.
type Session struct {
	ID        uuid.UUID
	Phase     Phase
	StartedAt time.Time
	Deadline  time.Time

	// TargetBlock is nil until a reference peer has reported a height;
	// LocalBlock is nil until the local client has reported one. The
	// distinction between "unknown" and "zero" is load-bearing for the
	// monotonicity check.
	TargetBlock *uint64
	LocalBlock  *uint64

	// SnapshotTag is set once a snapshot has been materialized.
	SnapshotTag string
	// PeerEndpoint is set once a reference peer has been selected.
	PeerEndpoint string
}

func NewSession(startedAt time.Time, timeout time.Duration) *Session {
	return &Session{
		ID:        uuid.New(),
		Phase:     PhaseInit,
		StartedAt: startedAt,
		Deadline:  startedAt.Add(timeout),
	}
}

func (s *Session) observeLocal(height uint64) (regressed bool) {
	if s.LocalBlock != nil && height < *s.LocalBlock {
		return true
	}
	s.LocalBlock = &height
	return false
}

func (s *Session) observeTarget(height uint64) {
	s.TargetBlock = &height
}
