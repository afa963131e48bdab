package integrator

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/mrhavens/becomingone/pkg/types"
)

const (
	// GrowthFactor is the per-tick geometric change of tau_eff.
	GrowthFactor = 1.05

	// SafeMagnitude bounds every intermediate quantity. Exceeding it is a
	// numeric overflow and resets the window.
	SafeMagnitude = 1e150

	// DefaultMaxSamples caps the ring independently of TauMax so a long
	// window fed at a high rate stays bounded in memory.
	DefaultMaxSamples = 8192

	// lagEpsilon absorbs float error when a lagged target sits exactly on
	// the oldest buffered timestamp.
	lagEpsilon = 1e-12
)

// Config parameterises one Integrator.
type Config struct {
	// Name labels the pathway in errors and logs ("master", "emissary").
	Name string

	TauBase float64
	TauMax  float64

	// Omega is the angular frequency of the spectral weight.
	Omega float64

	// Threshold and StabilizeFraction decide when tau_eff widens.
	Threshold         float64
	StabilizeFraction float64

	// MaxSamples caps the ring. Zero means DefaultMaxSamples.
	MaxSamples int
}

// Snapshot is a read-only view of integrator state for diagnostics.
type Snapshot struct {
	Name         string      `json:"name"`
	TauEff       float64     `json:"tau_eff"`
	Coherence    float64     `json:"coherence"`
	Phase        types.Phase `json:"phase"`
	Samples      int         `json:"samples"`
	Oldest       float64     `json:"oldest"`
	Newest       float64     `json:"newest"`
	LastVelocity types.Phase `json:"last_velocity"`
}

type entry struct {
	ts    float64
	phase complex128
	vel   complex128
}

// Integrator is a windowed self-correlation estimator with an adaptive
// window length.
type Integrator struct {
	cfg Config

	buf    []entry
	tauEff float64
	coh    float64

	out     complex128
	hasOut  bool
	last    entry
	hasLast bool
}

// New validates cfg and returns an Integrator with tau_eff = TauBase.
func New(cfg Config) (*Integrator, error) {
	if cfg.Name == "" {
		cfg.Name = "integrator"
	}
	if !(cfg.TauBase > 0) || math.IsInf(cfg.TauBase, 0) {
		return nil, types.Configf(cfg.Name+"_tau_base", "must be positive and finite, got %g", cfg.TauBase)
	}
	if math.IsInf(cfg.TauMax, 0) || math.IsNaN(cfg.TauMax) {
		return nil, types.Configf(cfg.Name+"_tau_max", "must be finite, got %g", cfg.TauMax)
	}
	if cfg.TauBase > cfg.TauMax {
		return nil, types.Configf(cfg.Name+"_tau_base", "%g exceeds %s_tau_max %g",
			cfg.TauBase, cfg.Name, cfg.TauMax)
	}
	if !(cfg.Threshold >= 0 && cfg.Threshold <= 1) {
		return nil, types.Configf("coherence_threshold", "must be within [0,1], got %g", cfg.Threshold)
	}
	if !(cfg.StabilizeFraction >= 0 && cfg.StabilizeFraction <= 1) {
		return nil, types.Configf("stabilize_fraction", "must be within [0,1], got %g", cfg.StabilizeFraction)
	}
	if math.IsNaN(cfg.Omega) || math.IsInf(cfg.Omega, 0) {
		return nil, types.Configf("omega", "must be finite, got %g", cfg.Omega)
	}
	if cfg.MaxSamples < 0 {
		return nil, types.Configf(cfg.Name+"_max_samples", "must not be negative")
	}
	if cfg.MaxSamples == 0 {
		cfg.MaxSamples = DefaultMaxSamples
	}
	return &Integrator{cfg: cfg, tauEff: cfg.TauBase}, nil
}

// NewMaster returns the slow pathway.
func NewMaster(tauBase, tauMax, threshold, stabilize float64) (*Integrator, error) {
	return New(Config{Name: "master", TauBase: tauBase, TauMax: tauMax,
		Threshold: threshold, StabilizeFraction: stabilize})
}

// NewEmissary returns the fast pathway.
func NewEmissary(tauBase, tauMax, threshold, stabilize float64) (*Integrator, error) {
	return New(Config{Name: "emissary", TauBase: tauBase, TauMax: tauMax,
		Threshold: threshold, StabilizeFraction: stabilize})
}

// Name returns the pathway label.
func (in *Integrator) Name() string { return in.cfg.Name }

// Coherence returns the last computed coherence.
func (in *Integrator) Coherence() float64 { return in.coh }

// TauEff returns the current effective window length.
func (in *Integrator) TauEff() float64 { return in.tauEff }

// Update folds s into the window and returns the pathway output.
//
// A non-finite phase or a timestamp not after the previous accepted one is
// rejected with *types.InputError and leaves the state untouched. A result
// beyond SafeMagnitude resets the window, reports coherence 0 with the
// previous phase, and returns *types.OverflowError alongside that output.
func (in *Integrator) Update(s types.Sample) (types.PathwayOutput, error) {
	if !s.Phase.IsFinite() || math.IsNaN(s.Timestamp) || math.IsInf(s.Timestamp, 0) {
		return in.output(), &types.InputError{Sample: s, Reason: "non-finite sample"}
	}
	if in.hasLast && s.Timestamp <= in.last.ts {
		return in.output(), &types.InputError{Sample: s, Reason: "timestamp not increasing"}
	}

	a := s.Phase.Complex()
	e := entry{ts: s.Timestamp, phase: a}
	if in.hasLast {
		e.vel = (a - in.last.phase) / complex(s.Timestamp-in.last.ts, 0)
	}
	if !safe(cmplx.Abs(e.vel)) {
		return in.overflow(cmplx.Abs(e.vel))
	}

	in.push(e)
	in.last, in.hasLast = e, true

	if len(in.buf) < 2 {
		in.coh = 0
		in.out, in.hasOut = a, true
		return in.output(), nil
	}

	t, r, ea, eb := in.correlate()
	if !safe(cmplx.Abs(t)) || !safe(ea) || !safe(eb) {
		return in.overflow(math.Max(cmplx.Abs(t), math.Max(ea, eb)))
	}

	in.coh = coherence(t, r, ea, eb)
	if mag := cmplx.Abs(t); mag > 0 {
		in.out = t / complex(mag, 0)
	} else if !in.hasOut {
		in.out = a
	}
	in.hasOut = true
	in.adapt()
	return in.output(), nil
}

// Reset clears the window and restores tau_eff to TauBase. The last output
// phase is kept so callers still see a valid phase.
func (in *Integrator) Reset() {
	in.buf = in.buf[:0]
	in.tauEff = in.cfg.TauBase
	in.coh = 0
	in.last, in.hasLast = entry{}, false
}

// Snapshot returns the current integrator view.
func (in *Integrator) Snapshot() Snapshot {
	s := Snapshot{
		Name:         in.cfg.Name,
		TauEff:       in.tauEff,
		Coherence:    in.coh,
		Phase:        types.PhaseOf(in.out),
		Samples:      len(in.buf),
		LastVelocity: types.PhaseOf(in.last.vel),
	}
	if n := len(in.buf); n > 0 {
		s.Oldest, s.Newest = in.buf[0].ts, in.buf[n-1].ts
	}
	return s
}

func (in *Integrator) output() types.PathwayOutput {
	return types.PathwayOutput{Phase: types.PhaseOf(in.out), Coherence: types.Clamp01(in.coh)}
}

func (in *Integrator) overflow(v float64) (types.PathwayOutput, error) {
	in.Reset()
	return in.output(), &types.OverflowError{Pathway: in.cfg.Name, Value: v}
}

// push appends e and evicts entries older than TauMax or beyond MaxSamples.
func (in *Integrator) push(e entry) {
	in.buf = append(in.buf, e)
	cutoff := e.ts - in.cfg.TauMax
	drop := 0
	for drop < len(in.buf) && in.buf[drop].ts < cutoff {
		drop++
	}
	if over := len(in.buf) - drop - in.cfg.MaxSamples; over > 0 {
		drop += over
	}
	if drop > 0 {
		n := copy(in.buf, in.buf[drop:])
		in.buf = in.buf[:n]
	}
}

// correlate returns the spectrally weighted lagged resonance t, the same sum
// without the spectral weight r, and the energies of both sides.
func (in *Integrator) correlate() (t, r complex128, ea, eb float64) {
	lag := in.tauEff / 2
	oldest := in.buf[0].ts
	for i := 1; i < len(in.buf); i++ {
		cur := in.buf[i]
		target := cur.ts - lag
		if target < oldest-lagEpsilon {
			continue
		}
		j := nearest(in.buf[:i], target)
		cp := in.buf[j].phase
		dt := cur.ts - in.buf[i-1].ts

		x := cmplx.Conj(cur.phase) * cp * complex(dt, 0)
		r += x
		t += x * cmplx.Exp(complex(0, in.cfg.Omega*cur.ts))
		ea += sq(cur.phase) * dt
		eb += sq(cp) * dt
	}
	return t, r, ea, eb
}

// adapt moves tau_eff one geometric step. Growth is capped at twice the
// buffered span so the lag always has counterparts.
func (in *Integrator) adapt() {
	if in.coh >= in.cfg.StabilizeFraction*in.cfg.Threshold {
		span := in.buf[len(in.buf)-1].ts - in.buf[0].ts
		limit := math.Max(in.cfg.TauBase, math.Min(in.cfg.TauMax, 2*span))
		in.tauEff = math.Min(in.tauEff*GrowthFactor, limit)
	} else {
		in.tauEff = math.Max(in.tauEff/GrowthFactor, in.cfg.TauBase)
	}
}

// nearest returns the index in buf of the timestamp closest to target.
// Ties resolve to the older entry.
func nearest(buf []entry, target float64) int {
	k := sort.Search(len(buf), func(i int) bool { return buf[i].ts >= target })
	if k == len(buf) {
		return k - 1
	}
	if k == 0 {
		return 0
	}
	if target-buf[k-1].ts <= buf[k].ts-target {
		return k - 1
	}
	return k
}

// coherence is |t|²/(ea·eb), gated to 0 when the unweighted lagged sum r
// points away from the signal. The spectral weight only rotates t, so the
// gate must not read it.
func coherence(t, r complex128, ea, eb float64) float64 {
	if ea <= 0 || eb <= 0 || real(r) <= 0 {
		return 0
	}
	return types.Clamp01(sq(t) / (ea * eb))
}

func sq(c complex128) float64 {
	return real(c)*real(c) + imag(c)*imag(c)
}

func safe(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v <= SafeMagnitude
}
