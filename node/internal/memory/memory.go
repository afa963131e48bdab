package memory

import (
	"math"
	"sort"
	"sync"

	"github.com/mrhavens/becomingone/pkg/types"
)

const (
	DefaultHalfLife   = 3600.0
	DefaultMaxAge     = 86400.0
	DefaultPruneEvery = 100
)

// Config parameterises a Store.
type Config struct {
	HalfLife   float64
	MaxAge     float64
	PruneEvery int
}

// Backend persists signatures. Implementations must support ordered range
// queries by timestamp.
type Backend interface {
	Append(types.MemorySignature) error
	// Prune deletes signatures with timestamp before cutoff and returns how
	// many were removed.
	Prune(cutoff float64) (int, error)
	// Range returns signatures with from <= timestamp <= to, oldest first.
	Range(from, to float64) ([]types.MemorySignature, error)
	Close() error
}

// Store is the BLEND memory. All exported methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	cfg     Config
	backend Backend

	sigs    []types.MemorySignature // ordered by timestamp
	appends int
	latest  float64 // newest timestamp ever inserted
	seen    bool
}

// New validates cfg and returns an empty Store. backend may be nil.
func New(cfg Config, backend Backend) (*Store, error) {
	if cfg.PruneEvery == 0 {
		cfg.PruneEvery = DefaultPruneEvery
	}
	if !(cfg.HalfLife > 0) || math.IsInf(cfg.HalfLife, 0) {
		return nil, types.Configf("memory_half_life", "must be positive and finite, got %g", cfg.HalfLife)
	}
	if !(cfg.MaxAge > 0) {
		return nil, types.Configf("memory_max_age", "must be positive, got %g", cfg.MaxAge)
	}
	if cfg.PruneEvery < 0 {
		return nil, types.Configf("memory_prune_every", "must be positive")
	}
	return &Store{cfg: cfg, backend: backend}, nil
}

// Restore loads signatures younger than max_age relative to now from the
// backend. It is meant to be called once before the first Append.
func (s *Store) Restore(now float64) (int, error) {
	if s.backend == nil {
		return 0, nil
	}
	sigs, err := s.backend.Range(now-s.cfg.MaxAge, math.MaxFloat64)
	if err != nil {
		return 0, &types.StorageError{Op: "restore", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range sigs {
		s.insert(sig)
	}
	return len(sigs), nil
}

// Append records state as a signature of weight 1. Every PruneEvery appends
// the store prunes relative to the newest timestamp seen. The returned error
// is a *types.StorageError from the backend; the in-memory append always
// succeeds.
func (s *Store) Append(state types.TemporalState) error {
	sig := types.MemorySignature{
		Timestamp: state.Timestamp,
		Phase:     state.Phase,
		Coherence: types.Clamp01(state.Coherence),
		Weight:    1,
	}

	s.mu.Lock()
	s.insert(sig)
	s.appends++
	due := s.appends%s.cfg.PruneEvery == 0
	now := s.latest
	s.mu.Unlock()

	var firstErr error
	if s.backend != nil {
		if err := s.backend.Append(sig); err != nil {
			firstErr = &types.StorageError{Op: "append", Err: err}
		}
	}
	if due {
		if _, err := s.Prune(now); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EffectiveWeight is exp(−age/half_life) with age clamped at zero.
func (s *Store) EffectiveWeight(sig types.MemorySignature, now float64) float64 {
	return effectiveWeight(sig, now, s.cfg.HalfLife)
}

// Recall returns the weight-normalised average phase of every retained
// signature as seen at now, or the zero phase when the store is empty.
func (s *Store) Recall(now float64) types.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum types.Phase
	var wsum float64
	for _, sig := range s.sigs {
		w := effectiveWeight(sig, now, s.cfg.HalfLife)
		sum = sum.Add(sig.Phase.Scale(w))
		wsum += w
	}
	if wsum == 0 {
		return types.ZeroPhase
	}
	return sum.Scale(1 / wsum)
}

// Prune removes signatures older than max_age relative to now from memory
// and the backend. It returns the number removed from memory.
func (s *Store) Prune(now float64) (int, error) {
	cutoff := now - s.cfg.MaxAge

	s.mu.Lock()
	k := sort.Search(len(s.sigs), func(i int) bool { return s.sigs[i].Timestamp >= cutoff })
	if k > 0 {
		n := copy(s.sigs, s.sigs[k:])
		clear(s.sigs[n:])
		s.sigs = s.sigs[:n]
	}
	s.mu.Unlock()

	if s.backend != nil {
		if _, err := s.backend.Prune(cutoff); err != nil {
			return k, &types.StorageError{Op: "prune", Err: err}
		}
	}
	return k, nil
}

// Range returns retained signatures with from <= timestamp <= to, oldest
// first.
func (s *Store) Range(from, to float64) []types.MemorySignature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lo := sort.Search(len(s.sigs), func(i int) bool { return s.sigs[i].Timestamp >= from })
	hi := sort.Search(len(s.sigs), func(i int) bool { return s.sigs[i].Timestamp > to })
	if lo >= hi {
		return nil
	}
	out := make([]types.MemorySignature, hi-lo)
	copy(out, s.sigs[lo:hi])
	return out
}

// Len returns the number of retained signatures.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sigs)
}

// Close closes the backend, if any.
func (s *Store) Close() error {
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// insert keeps sigs ordered by timestamp. Must be called with mu held.
func (s *Store) insert(sig types.MemorySignature) {
	if !s.seen || sig.Timestamp > s.latest {
		s.latest, s.seen = sig.Timestamp, true
	}
	n := len(s.sigs)
	if n == 0 || s.sigs[n-1].Timestamp <= sig.Timestamp {
		s.sigs = append(s.sigs, sig)
		return
	}
	i := sort.Search(n, func(i int) bool { return s.sigs[i].Timestamp > sig.Timestamp })
	s.sigs = append(s.sigs, types.MemorySignature{})
	copy(s.sigs[i+1:], s.sigs[i:])
	s.sigs[i] = sig
}

func effectiveWeight(sig types.MemorySignature, now, halfLife float64) float64 {
	age := math.Max(0, now-sig.Timestamp)
	return sig.Weight * math.Exp(-age/halfLife)
}
