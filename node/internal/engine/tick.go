package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mrhavens/becomingone/pkg/types"
)

// Process runs one tick on s and returns the resulting state. It may be
// called on an Idle or Running engine.
//
// A rejected sample returns the previous state with a *types.InputError.
// Overflow and storage failures still produce a new state; their errors are
// returned joined alongside it.
func (e *Engine) Process(s types.Sample) (types.TemporalState, error) {
	return e.process(context.Background(), s)
}

func (e *Engine) process(ctx context.Context, s types.Sample) (types.TemporalState, error) {
	if e.Status() == Stopped {
		return e.State(), ErrStopped
	}

	e.tick.Lock()
	defer e.tick.Unlock()
	// Stop may have completed while this call waited for the tick lock.
	if e.Status() == Stopped {
		return e.State(), ErrStopped
	}

	ctx, span := e.tracer.Start(ctx, "engine.tick")
	defer span.End()
	span.SetAttributes(attribute.Float64("sample.timestamp", s.Timestamp))

	if err := e.admit(s); err != nil {
		slog.Warn("engine: input rejected", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "input rejected")
		e.report(err)
		return e.State(), err
	}

	mo, eo, errs := e.updatePathways(s)

	prev := e.State()
	state, entered := e.sync.Combine(mo, eo, s.Timestamp)

	if _, err := e.witness.Observe(state); err != nil {
		errs = append(errs, err)
	}
	if err := e.memory.Append(state); err != nil {
		errs = append(errs, err)
	}

	e.mu.Lock()
	e.last = state
	onState, onCollapse := e.onState, e.onCollapse
	outputs := e.outputs
	e.mu.Unlock()

	e.logTransitions(prev, state, entered)
	span.SetAttributes(
		attribute.Float64("coherence", state.Coherence),
		attribute.Bool("collapsed", state.Collapsed),
		attribute.Bool("desynced", state.Desynced),
	)

	for _, fn := range onState {
		fn(state)
	}
	if entered {
		for _, fn := range onCollapse {
			fn(state)
		}
	}
	for _, out := range outputs {
		if err := out.Write(ctx, state); err != nil {
			slog.Warn("engine: output write failed", "err", err)
			e.report(err)
		}
	}

	for _, err := range errs {
		switch {
		case errors.Is(err, types.ErrNumericOverflow):
			slog.Warn("engine: numeric overflow, pathway reset", "err", err)
		case errors.Is(err, types.ErrStorage):
			slog.Warn("engine: storage failure", "err", err)
		}
		span.RecordError(err)
		e.report(err)
	}
	if len(errs) > 0 {
		span.SetStatus(codes.Error, "tick completed with errors")
	}
	return state, errors.Join(errs...)
}

// admit rejects non-finite samples and timestamps that do not advance.
// Must be called with tick held.
func (e *Engine) admit(s types.Sample) error {
	if !s.Phase.IsFinite() || math.IsNaN(s.Timestamp) || math.IsInf(s.Timestamp, 0) {
		return &types.InputError{Sample: s, Reason: "non-finite sample"}
	}
	if e.started && s.Timestamp <= e.lastTs {
		return &types.InputError{Sample: s, Reason: "timestamp not after previous sample"}
	}
	e.lastTs, e.started = s.Timestamp, true
	return nil
}

// updatePathways runs both integrators concurrently and joins before
// returning. Must be called with tick held.
func (e *Engine) updatePathways(s types.Sample) (mo, eo types.PathwayOutput, errs []error) {
	var merr, eerr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		mo, merr = e.master.Update(s)
	}()
	go func() {
		defer wg.Done()
		eo, eerr = e.emissary.Update(s)
	}()
	wg.Wait()

	for _, err := range []error{merr, eerr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return mo, eo, errs
}

func (e *Engine) logTransitions(prev, cur types.TemporalState, entered bool) {
	switch {
	case entered:
		slog.Info("engine: collapse entered", "coherence", cur.Coherence, "timestamp", cur.Timestamp)
	case prev.Collapsed && !cur.Collapsed:
		slog.Info("engine: collapse exited", "coherence", cur.Coherence, "timestamp", cur.Timestamp)
	}
	switch {
	case cur.Desynced && !prev.Desynced:
		slog.Warn("engine: pathways desynced, forcing de-collapse",
			"phase_diff", cur.PhaseDiff, "timestamp", cur.Timestamp)
	case prev.Desynced && !cur.Desynced:
		slog.Info("engine: pathways realigned", "phase_diff", cur.PhaseDiff)
	}
}

func (e *Engine) report(err error) {
	e.mu.RLock()
	hooks := e.onError
	e.mu.RUnlock()
	for _, fn := range hooks {
		fn(err)
	}
}
