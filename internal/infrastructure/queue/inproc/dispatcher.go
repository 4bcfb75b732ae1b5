package inproc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// RunFunc executes one queued index run.
type RunFunc func(ctx context.Context, runID string) error

// Dispatcher executes index runs on a detached goroutine inside the API
// process. The request context only donates its values; cancellation does
// not reach the run.
type Dispatcher struct {
	run     RunFunc
	timeout time.Duration

	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func New(run RunFunc, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Dispatcher{run: run, timeout: timeout}
}

func (d *Dispatcher) Dispatch(ctx context.Context, runID string) error {
	if d.run == nil {
		return errors.New("inproc dispatcher: run func is nil")
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errors.New("inproc dispatcher: closed")
	}
	d.wg.Add(1)
	d.mu.Unlock()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	go func() {
		defer d.wg.Done()
		defer cancel()
		if err := d.run(runCtx, runID); err != nil {
			slog.Error("background index run failed", "run_id", runID, "error", err)
		}
	}()
	return nil
}

// Close stops accepting runs and waits for in-flight ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
