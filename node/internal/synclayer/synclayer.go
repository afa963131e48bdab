// Package synclayer merges the Master and Emissary pathway outputs into one
// TemporalState per tick and tracks the collapse condition.
//
// Collapse is edge-triggered: Combine reports entered=true only on the tick
// the combined coherence first reaches the threshold. A sustained phase
// difference above DesyncBound for DesyncTicks consecutive ticks forces the
// layer out of collapse and decays the reported coherence linearly to zero
// over DecayTicks ticks until the pathways realign.
package synclayer

import (
	"math"

	"github.com/mrhavens/becomingone/pkg/types"
)

// Config parameterises a Layer.
type Config struct {
	Threshold          float64
	AlignmentThreshold float64

	// MasterWeight and EmissaryWeight are normalised to sum to 1.
	MasterWeight   float64
	EmissaryWeight float64

	DesyncBound float64
	DesyncTicks int
	DecayTicks  int
}

// DefaultConfig returns equal weights, threshold 0.8, alignment 0.1 and a
// 50-tick desync window with a 50-tick decay.
func DefaultConfig() Config {
	return Config{
		Threshold:          0.8,
		AlignmentThreshold: 0.1,
		MasterWeight:       0.5,
		EmissaryWeight:     0.5,
		DesyncBound:        1.0,
		DesyncTicks:        50,
		DecayTicks:         50,
	}
}

// Layer is the synchronization layer. It is not safe for concurrent use.
type Layer struct {
	cfg    Config
	wm, we float64

	collapsed bool
	divergent int // consecutive ticks with phase_diff above DesyncBound
	events    int
}

// New validates cfg and returns a Layer outside collapse.
func New(cfg Config) (*Layer, error) {
	if !(cfg.Threshold >= 0 && cfg.Threshold <= 1) {
		return nil, types.Configf("coherence_threshold", "must be within [0,1], got %g", cfg.Threshold)
	}
	if !(cfg.AlignmentThreshold >= 0 && cfg.AlignmentThreshold <= 1) {
		return nil, types.Configf("phase_alignment_threshold", "must be within [0,1], got %g", cfg.AlignmentThreshold)
	}
	if cfg.MasterWeight < 0 || cfg.EmissaryWeight < 0 || !(cfg.MasterWeight+cfg.EmissaryWeight > 0) {
		return nil, types.Configf("master_weight", "weights must be non-negative with a positive sum")
	}
	if !(cfg.DesyncBound > 0) {
		return nil, types.Configf("desync_bound", "must be positive, got %g", cfg.DesyncBound)
	}
	if cfg.DesyncTicks <= 0 || cfg.DecayTicks <= 0 {
		return nil, types.Configf("desync_ticks", "desync_ticks and decay_ticks must be positive")
	}
	sum := cfg.MasterWeight + cfg.EmissaryWeight
	return &Layer{cfg: cfg, wm: cfg.MasterWeight / sum, we: cfg.EmissaryWeight / sum}, nil
}

// Combine produces the synchronized state for one tick stamped ts. entered is
// true only on the false→true collapse transition.
func (l *Layer) Combine(m, e types.PathwayOutput, ts float64) (state types.TemporalState, entered bool) {
	diff := math.Abs(m.Phase.Abs() - e.Phase.Abs())

	mc := m.Phase.Scale(l.wm)
	ec := e.Phase.Scale(l.we)
	coh := types.Clamp01(l.wm*types.Clamp01(m.Coherence) + l.we*types.Clamp01(e.Coherence))

	if diff > l.cfg.DesyncBound {
		l.divergent++
	} else {
		l.divergent = 0
	}

	desynced := l.divergent >= l.cfg.DesyncTicks
	collapsed := coh >= l.cfg.Threshold
	if desynced {
		k := float64(l.divergent - l.cfg.DesyncTicks + 1)
		coh = types.Clamp01(coh * math.Max(0, 1-k/float64(l.cfg.DecayTicks)))
		collapsed = false
	}

	entered = collapsed && !l.collapsed
	l.collapsed = collapsed
	if entered {
		l.events++
	}

	return types.TemporalState{
		Phase:                mc.Add(ec),
		Coherence:            coh,
		MasterContribution:   mc,
		EmissaryContribution: ec,
		Collapsed:            collapsed,
		Timestamp:            ts,
		PhaseDiff:            diff,
		Aligned:              diff < l.cfg.AlignmentThreshold,
		Desynced:             desynced,
	}, entered
}

// Collapsed reports the collapse flag of the last combined state.
func (l *Layer) Collapsed() bool { return l.collapsed }

// Desynced reports whether the forced de-collapse is in effect.
func (l *Layer) Desynced() bool { return l.divergent >= l.cfg.DesyncTicks }

// Events returns the number of collapse-entered events so far.
func (l *Layer) Events() int { return l.events }

// Weights returns the normalised master and emissary weights.
func (l *Layer) Weights() (master, emissary float64) { return l.wm, l.we }
