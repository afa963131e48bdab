package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/mrhavens/becomingone/pkg/types"
)

// inputRetry is the pause after a failed Read before the input is polled
// again.
const inputRetry = 100 * time.Millisecond

// Offer enqueues s for the tick loop. When the queue is full the oldest
// queued sample is evicted to make room.
func (e *Engine) Offer(s types.Sample) {
	for {
		select {
		case e.queue <- s:
			return
		default:
		}
		select {
		case <-e.queue:
			if n := e.dropped.Add(1); n == 1 || n%1000 == 0 {
				slog.Warn("engine: input queue full, dropped oldest sample",
					"queue_cap", cap(e.queue), "dropped_total", n)
			}
		default:
		}
	}
}

// Run starts the tick loop and blocks until ctx is done or Stop is called.
// The engine is Stopped when Run returns.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	switch e.status {
	case Running:
		e.mu.Unlock()
		return ErrAlreadyRunning
	case Stopped:
		e.mu.Unlock()
		return ErrStopped
	}
	ctx, cancel := context.WithCancel(ctx)
	e.status = Running
	e.cancel = cancel
	e.done = make(chan struct{})
	done := e.done
	inputs := append([]Input(nil), e.inputs...)
	e.mu.Unlock()

	defer func() {
		cancel()
		e.mu.Lock()
		e.status = Stopped
		e.mu.Unlock()
		close(done)
	}()

	slog.Info("engine: running", "inputs", len(inputs), "sync_interval", e.cfg.SyncInterval)
	for _, in := range inputs {
		go e.pump(ctx, in)
	}

	ticker := time.NewTicker(e.cfg.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("engine: stopped")
			return nil
		case <-ticker.C:
			select {
			case s := <-e.queue:
				e.process(ctx, s) //nolint:errcheck // reported through hooks and logs
			default:
			}
		}
	}
}

// Stop ends the tick loop after any in-flight tick completes. Stopping an
// Idle engine moves it straight to Stopped. Stop is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	switch e.status {
	case Idle:
		e.status = Stopped
		e.mu.Unlock()
		return
	case Stopped:
		e.mu.Unlock()
		return
	}
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
}

// pump feeds one input into the queue until it is exhausted or ctx ends.
func (e *Engine) pump(ctx context.Context, in Input) {
	for {
		s, err := in.Read(ctx)
		switch {
		case err == nil:
			e.Offer(s)
			continue
		case ctx.Err() != nil:
			return
		case errors.Is(err, io.EOF):
			slog.Debug("engine: input exhausted")
			return
		}

		slog.Warn("engine: input read failed", "err", err)
		e.report(err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(inputRetry):
		}
	}
}
