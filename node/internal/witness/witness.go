package witness

import (
	"math"
	"sync"

	"github.com/mrhavens/becomingone/pkg/types"
)

const (
	DefaultBeta     = 0.05
	DefaultCapacity = 100000
	DefaultWindow   = 10
)

// Config parameterises a Layer.
type Config struct {
	// Beta is the contraction constant in (0,1).
	Beta float64
	// Capacity bounds the in-memory record ring.
	Capacity int
	// Window is the default number of records summarised by Stats.
	Window int
	// Initial seeds the self-model.
	Initial float64
}

// Recorder persists witness records. Failures are reported as storage
// errors and never block observation.
type Recorder interface {
	RecordWitness(types.WitnessRecord) error
}

// Stats summarises recent observed coherence.
type Stats struct {
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	Trend     float64 `json:"trend"`
	SelfModel float64 `json:"self_model"`
}

// Layer is the witness. All exported methods are safe for concurrent use.
type Layer struct {
	mu  sync.RWMutex
	cfg Config
	rec Recorder

	self  float64
	ring  []types.WitnessRecord
	head  int // index of the oldest record once the ring is full
	total uint64
}

// New validates cfg and returns a Layer. rec may be nil.
func New(cfg Config, rec Recorder) (*Layer, error) {
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Window == 0 {
		cfg.Window = DefaultWindow
	}
	if !(cfg.Beta > 0 && cfg.Beta < 1) {
		return nil, types.Configf("witness_beta", "must be within (0,1), got %g", cfg.Beta)
	}
	if cfg.Capacity < 0 {
		return nil, types.Configf("witness_capacity", "must be positive")
	}
	if cfg.Window < 0 {
		return nil, types.Configf("witness_window", "must be positive")
	}
	return &Layer{
		cfg:  cfg,
		rec:  rec,
		self: types.Clamp01(cfg.Initial),
		ring: make([]types.WitnessRecord, 0, min(cfg.Capacity, 1024)),
	}, nil
}

// Observe folds state into the self-model and appends the resulting record.
// The returned error is a *types.StorageError from the Recorder, if any; the
// record is kept in memory regardless.
func (l *Layer) Observe(state types.TemporalState) (types.WitnessRecord, error) {
	l.mu.Lock()
	c := types.Clamp01(state.Coherence)
	l.self = types.Clamp01(l.cfg.Beta*c + (1-l.cfg.Beta)*l.self)
	r := types.WitnessRecord{
		Timestamp:         state.Timestamp,
		ObservedCoherence: c,
		SelfModel:         l.self,
	}
	l.push(r)
	rec := l.rec
	l.mu.Unlock()

	if rec == nil {
		return r, nil
	}
	if err := rec.RecordWitness(r); err != nil {
		return r, &types.StorageError{Op: "record witness", Err: err}
	}
	return r, nil
}

// SelfModel returns the current self-model.
func (l *Layer) SelfModel() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.self
}

// Len returns the number of records held in memory.
func (l *Layer) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.ring)
}

// Total returns the number of records observed since construction.
func (l *Layer) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.total
}

// Records returns up to limit of the newest records, oldest first.
// limit <= 0 returns everything held.
func (l *Layer) Records(limit int) []types.WitnessRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tail(limit)
}

// Stats summarises the newest n records. n <= 0 uses the configured window.
func (l *Layer) Stats(n int) Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 {
		n = l.cfg.Window
	}
	recs := l.tail(n)
	s := Stats{Count: len(recs), SelfModel: l.self}
	if len(recs) == 0 {
		return s
	}

	for _, r := range recs {
		s.Mean += r.ObservedCoherence
	}
	s.Mean /= float64(len(recs))

	var ss float64
	for _, r := range recs {
		d := r.ObservedCoherence - s.Mean
		ss += d * d
	}
	s.StdDev = math.Sqrt(ss / float64(len(recs)))
	s.Trend = slope(recs)
	return s
}

func (l *Layer) push(r types.WitnessRecord) {
	l.total++
	if len(l.ring) < l.cfg.Capacity {
		l.ring = append(l.ring, r)
		return
	}
	l.ring[l.head] = r
	l.head = (l.head + 1) % l.cfg.Capacity
}

// tail must be called with mu held.
func (l *Layer) tail(limit int) []types.WitnessRecord {
	n := len(l.ring)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.WitnessRecord, limit)
	start := n - limit
	for i := range out {
		out[i] = l.ring[(l.head+start+i)%n]
	}
	return out
}

// slope is the least-squares gradient of observed coherence over record
// index. Fewer than two records have no trend.
func slope(recs []types.WitnessRecord) float64 {
	n := float64(len(recs))
	if n < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for i, r := range recs {
		x := float64(i)
		sx += x
		sy += r.ObservedCoherence
		sxy += x * r.ObservedCoherence
		sxx += x * x
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0
	}
	return (n*sxy - sx*sy) / den
}
