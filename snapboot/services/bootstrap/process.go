package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/rs/zerolog"
)

// ClientProcess is the agent's owned handle to the execution client.
// The agent only ever talks to the running client through RPC; this
// handle exists for controlled startup and (optional) shutdown.
type ClientProcess interface {
	// Start launches the client. It must be idempotent for an already
	// running process.
	Start(ctx context.Context) error

	// Stop asks the client to terminate. Only called when configured to
	// stop the client on bootstrap failure.
	Stop() error
}

// externalProcess is used when the client lifecycle is managed outside
// the agent (e.g. a sidecar container).
type externalProcess struct{}

func (externalProcess) Start(context.Context) error { return nil }
func (externalProcess) Stop() error                 { return nil }

type execProcess struct {
	command string
	args    []string
	logger  zerolog.Logger

	cmd *exec.Cmd
}

// NewClientProcess builds the process handle for the configuration.
// An empty command means the client is managed externally.
func NewClientProcess(cfg *Config, logger zerolog.Logger) ClientProcess {
	if cfg.ClientCommand == "" {
		return externalProcess{}
	}
	return &execProcess{
		command: cfg.ClientCommand,
		args:    cfg.ClientArgs,
		logger:  logger,
	}
}

func (p *execProcess) Start(ctx context.Context) error {
	if p.cmd != nil {
		return nil
	}

	cmd := exec.Command(p.command, p.args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %w", ErrClientProcess, err)
	}
	p.cmd = cmd
	p.logger.Info().Int("pid", cmd.Process.Pid).Msgf("started client process %s", p.command)

	// Reap the child when it exits on its own; the agent itself never
	// waits for it.
	go func() {
		err := cmd.Wait()
		p.logger.Info().Err(err).Msg("client process exited")
	}()

	return nil
}

func (p *execProcess) Stop() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	p.logger.Info().Int("pid", p.cmd.Process.Pid).Msg("stopping client process")
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("%w: %w", ErrClientProcess, err)
	}
	return nil
}
