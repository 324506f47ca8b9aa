package srv

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

type Worker interface {
	// Name returns the name of the Worker. This is typically used for logging and identification.
	Name() string

	// Run starts the worker, signaling its initialization through the started channel.
	Run(ctx context.Context, started chan<- struct{}) error
}

// WorkerLoop runs an action on a fixed interval until its context is cancelled.
// The first iteration runs immediately after start.
type WorkerLoop struct {
	name     string
	clock    clockwork.Clock
	interval time.Duration
	action   func(ctx context.Context)
}

func NewWorkerLoop(name string, clock clockwork.Clock, interval time.Duration, action func(ctx context.Context)) WorkerLoop {
	return WorkerLoop{
		name:     name,
		clock:    clock,
		interval: interval,
		action:   action,
	}
}

func (w *WorkerLoop) Name() string {
	return w.name
}

func (w *WorkerLoop) Run(ctx context.Context, started chan<- struct{}) error {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	close(started)

	w.action(ctx)

	for {
		select {
		case <-ticker.Chan():
			w.action(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
