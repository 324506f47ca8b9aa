package bootstrap

import "errors"

// Fatal failure kinds. Registry, snapshot and peer trouble degrade to
// the slow-sync path instead and never appear here.
var (
	ErrCatchupTimeout         = errors.New("catch-up deadline exceeded")
	ErrLocalStorageUnwritable = errors.New("local storage unwritable")
	ErrBlockRegression        = errors.New("local block height regressed")
	ErrClientProcess          = errors.New("client process failed")
)

// Exit codes per failure category, for the orchestrator's restart policy.
const (
	ExitReady          = 0
	ExitFailed         = 1
	ExitCatchupTimeout = 2
	ExitLocalStorage   = 3
	ExitRegression     = 4
)

func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitReady
	case errors.Is(err, ErrCatchupTimeout):
		return ExitCatchupTimeout
	case errors.Is(err, ErrLocalStorageUnwritable):
		return ExitLocalStorage
	case errors.Is(err, ErrBlockRegression):
		return ExitRegression
	default:
		return ExitFailed
	}
}
