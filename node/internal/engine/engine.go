package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrhavens/becomingone/node/internal/config"
	"github.com/mrhavens/becomingone/node/internal/integrator"
	"github.com/mrhavens/becomingone/node/internal/memory"
	"github.com/mrhavens/becomingone/node/internal/synclayer"
	"github.com/mrhavens/becomingone/node/internal/witness"
	"github.com/mrhavens/becomingone/pkg/types"
)

const tracerName = "github.com/mrhavens/becomingone/node/internal/engine"

// Lifecycle errors.
var (
	ErrStopped        = errors.New("engine: stopped")
	ErrAlreadyRunning = errors.New("engine: already running")
)

// Status is the engine lifecycle state.
type Status int

const (
	Idle Status = iota
	Running
	Stopped
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Input delivers samples. Read blocks until a sample is available or ctx is
// done and returns io.EOF once the input is exhausted.
type Input interface {
	Read(ctx context.Context) (types.Sample, error)
}

// Output receives every published state.
type Output interface {
	Write(ctx context.Context, state types.TemporalState) error
}

// Option customises an Engine.
type Option func(*Engine)

// WithBackend persists memory signatures. Signatures younger than
// memory_max_age are restored from it at construction.
func WithBackend(b memory.Backend) Option {
	return func(e *Engine) { e.backend = b }
}

// WithRecorder forwards witness records to r.
func WithRecorder(r witness.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithTracer replaces the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock sets the wall clock used to age restored memory.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is a coherence engine instance. All exported methods are safe for
// concurrent use.
type Engine struct {
	cfg config.EngineConfig

	master   *integrator.Integrator
	emissary *integrator.Integrator
	sync     *synclayer.Layer
	witness  *witness.Layer
	memory   *memory.Store

	backend  memory.Backend
	recorder witness.Recorder
	tracer   trace.Tracer
	now      func() time.Time

	// tick serialises ticks; it is held for the whole of one tick.
	tick    sync.Mutex
	lastTs  float64
	started bool // a sample has been accepted

	mu         sync.RWMutex
	status     Status
	last       types.TemporalState
	inputs     []Input
	outputs    []Output
	onCollapse []func(types.TemporalState)
	onState    []func(types.TemporalState)
	onError    []func(error)
	cancel     context.CancelFunc
	done       chan struct{}

	queue   chan types.Sample
	dropped atomic.Uint64
}

// New validates cfg and builds an Idle engine. Invalid parameters return a
// *types.ConfigError.
func New(cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:   cfg,
		now:   time.Now,
		queue: make(chan types.Sample, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}

	var err error
	e.master, err = integrator.New(integrator.Config{
		Name: "master", TauBase: cfg.MasterTauBase, TauMax: cfg.MasterTauMax,
		Omega: cfg.Omega, Threshold: cfg.CoherenceThreshold, StabilizeFraction: cfg.StabilizeFraction,
	})
	if err != nil {
		return nil, err
	}
	e.emissary, err = integrator.New(integrator.Config{
		Name: "emissary", TauBase: cfg.EmissaryTauBase, TauMax: cfg.EmissaryTauMax,
		Omega: cfg.Omega, Threshold: cfg.CoherenceThreshold, StabilizeFraction: cfg.StabilizeFraction,
	})
	if err != nil {
		return nil, err
	}
	e.sync, err = synclayer.New(synclayer.Config{
		Threshold:          cfg.CoherenceThreshold,
		AlignmentThreshold: cfg.PhaseAlignmentThreshold,
		MasterWeight:       cfg.MasterWeight,
		EmissaryWeight:     cfg.EmissaryWeight,
		DesyncBound:        cfg.DesyncBound,
		DesyncTicks:        cfg.DesyncTicks,
		DecayTicks:         cfg.DecayTicks,
	})
	if err != nil {
		return nil, err
	}
	e.witness, err = witness.New(witness.Config{Beta: cfg.WitnessBeta, Capacity: cfg.WitnessCapacity}, e.recorder)
	if err != nil {
		return nil, err
	}
	e.memory, err = memory.New(memory.Config{
		HalfLife: cfg.MemoryHalfLife, MaxAge: cfg.MemoryMaxAge, PruneEvery: cfg.MemoryPruneEvery,
	}, e.backend)
	if err != nil {
		return nil, err
	}

	if e.backend != nil {
		n, err := e.memory.Restore(types.Seconds(e.now()))
		if err != nil {
			slog.Warn("engine: memory restore failed, starting empty", "err", err)
		} else if n > 0 {
			slog.Info("engine: memory restored", "signatures", n)
		}
	}
	return e, nil
}

// Config returns the parameters the engine was built with.
func (e *Engine) Config() config.EngineConfig { return e.cfg }

// Status returns the lifecycle state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// State returns the last published state. Before the first tick it is the
// zero TemporalState.
func (e *Engine) State() types.TemporalState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Coherence returns the coherence of the last published state.
func (e *Engine) Coherence() float64 { return e.State().Coherence }

// IsCollapsed reports the collapse flag of the last published state.
func (e *Engine) IsCollapsed() bool { return e.State().Collapsed }

// Witness exposes the witness layer for diagnostics.
func (e *Engine) Witness() *witness.Layer { return e.witness }

// Memory exposes the memory store for recall and range queries.
func (e *Engine) Memory() *memory.Store { return e.memory }

// Pathways returns snapshots of the Master and Emissary integrators. It
// waits for any in-flight tick.
func (e *Engine) Pathways() (master, emissary integrator.Snapshot) {
	e.tick.Lock()
	defer e.tick.Unlock()
	return e.master.Snapshot(), e.emissary.Snapshot()
}

// CollapseEvents returns the number of collapse-entered events so far.
func (e *Engine) CollapseEvents() int {
	e.tick.Lock()
	defer e.tick.Unlock()
	return e.sync.Events()
}

// Dropped returns the number of samples evicted from the full input queue.
func (e *Engine) Dropped() uint64 { return e.dropped.Load() }

// AddInput registers an input. Inputs added after Run has started are not
// read.
func (e *Engine) AddInput(in Input) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inputs = append(e.inputs, in)
}

// AddOutput registers an output written once per tick.
func (e *Engine) AddOutput(out Output) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs = append(e.outputs, out)
}

// OnCollapse registers fn to run once per collapse-entered event.
func (e *Engine) OnCollapse(fn func(types.TemporalState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCollapse = append(e.onCollapse, fn)
}

// OnState registers fn to run for every published state.
func (e *Engine) OnState(fn func(types.TemporalState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onState = append(e.onState, fn)
}

// OnError registers fn to receive every per-tick error.
func (e *Engine) OnError(fn func(error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onError = append(e.onError, fn)
}

// Close releases the memory backend. Call it after Stop.
func (e *Engine) Close() error {
	return e.memory.Close()
}
