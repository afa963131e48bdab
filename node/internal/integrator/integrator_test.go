package integrator

import (
	"errors"
	"math"
	"testing"

	"github.com/mrhavens/becomingone/pkg/types"
)

const (
	threshold = 0.8
	stabilize = 0.9
)

func newMaster(t *testing.T) *Integrator {
	t.Helper()
	in, err := NewMaster(60, 3600, threshold, stabilize)
	if err != nil {
		t.Fatalf("NewMaster: %v", err)
	}
	return in
}

func newEmissary(t *testing.T) *Integrator {
	t.Helper()
	in, err := NewEmissary(0.01, 1, threshold, stabilize)
	if err != nil {
		t.Fatalf("NewEmissary: %v", err)
	}
	return in
}

func sample(re, im, ts float64) types.Sample {
	return types.Sample{Phase: types.Phase{Re: re, Im: im}, Timestamp: ts}
}

func mustUpdate(t *testing.T, in *Integrator, s types.Sample) types.PathwayOutput {
	t.Helper()
	out, err := in.Update(s)
	if err != nil {
		t.Fatalf("Update(%+v): %v", s, err)
	}
	return out
}

// --- Construction ---

func TestNew_TauBaseAboveMax(t *testing.T) {
	_, err := NewMaster(100, 50, threshold, stabilize)
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
	var ce *types.ConfigError
	if !errors.As(err, &ce) || ce.Field != "master_tau_base" {
		t.Errorf("ConfigError = %+v, want field master_tau_base", ce)
	}
}

func TestNew_InvalidParameters(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"zero base", Config{TauBase: 0, TauMax: 1, Threshold: 0.8}},
		{"infinite max", Config{TauBase: 1, TauMax: math.Inf(1), Threshold: 0.8}},
		{"threshold above one", Config{TauBase: 1, TauMax: 2, Threshold: 1.2}},
		{"negative stabilize", Config{TauBase: 1, TauMax: 2, Threshold: 0.8, StabilizeFraction: -1}},
		{"nan omega", Config{TauBase: 1, TauMax: 2, Threshold: 0.8, Omega: math.NaN()}},
		{"negative max samples", Config{TauBase: 1, TauMax: 2, Threshold: 0.8, MaxSamples: -1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := New(c.cfg); !errors.Is(err, types.ErrConfiguration) {
				t.Errorf("New() err = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestNew_StartsAtTauBase(t *testing.T) {
	in := newEmissary(t)
	if in.TauEff() != 0.01 {
		t.Errorf("TauEff = %v, want 0.01", in.TauEff())
	}
	if in.Name() != "emissary" {
		t.Errorf("Name = %q, want emissary", in.Name())
	}
}

// --- Edge cases ---

func TestUpdate_FirstSampleReturnsInputPhase(t *testing.T) {
	in := newEmissary(t)
	out := mustUpdate(t, in, sample(0.3, 0.4, 0))
	if out.Coherence != 0 {
		t.Errorf("coherence = %v, want 0", out.Coherence)
	}
	if out.Phase != (types.Phase{Re: 0.3, Im: 0.4}) {
		t.Errorf("phase = %+v, want input phase", out.Phase)
	}
}

func TestUpdate_ZeroEnergyIsZeroNotNaN(t *testing.T) {
	in := newEmissary(t)
	for i := 0; i < 20; i++ {
		out := mustUpdate(t, in, sample(0, 0, float64(i)*0.01))
		if math.IsNaN(out.Coherence) || out.Coherence != 0 {
			t.Fatalf("tick %d: coherence = %v, want 0", i, out.Coherence)
		}
	}
}

func TestUpdate_RejectsNonFinite(t *testing.T) {
	in := newEmissary(t)
	mustUpdate(t, in, sample(1, 0, 0))
	mustUpdate(t, in, sample(1, 0, 0.01))
	before := in.Snapshot()

	for _, s := range []types.Sample{
		sample(math.NaN(), 0, 0.02),
		sample(0, math.Inf(1), 0.02),
		sample(1, 0, math.NaN()),
	} {
		out, err := in.Update(s)
		if !errors.Is(err, types.ErrInput) {
			t.Errorf("Update(%+v) err = %v, want ErrInput", s, err)
		}
		if out.Coherence != before.Coherence {
			t.Errorf("rejected sample changed coherence: %v -> %v", before.Coherence, out.Coherence)
		}
	}
	if after := in.Snapshot(); after != before {
		t.Errorf("state mutated by rejected samples:\n before %+v\n after  %+v", before, after)
	}
}

func TestUpdate_RejectsNonIncreasingTimestamp(t *testing.T) {
	in := newEmissary(t)
	mustUpdate(t, in, sample(1, 0, 1))
	_, err := in.Update(sample(1, 0, 1))
	var ie *types.InputError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want *InputError", err)
	}
	if _, err := in.Update(sample(1, 0, 0.5)); !errors.Is(err, types.ErrInput) {
		t.Errorf("older timestamp err = %v, want ErrInput", err)
	}
}

// --- Scenarios ---

// Constant (1+0j) at dt=0.01 for 100 ticks.
func TestScenario_ConstantInput(t *testing.T) {
	m, e := newMaster(t), newEmissary(t)

	emissaryHigh := -1
	for i := 0; i < 100; i++ {
		s := sample(1, 0, float64(i)*0.01)
		mo := mustUpdate(t, m, s)
		eo := mustUpdate(t, e, s)

		if mo.Coherence >= 0.5 {
			t.Fatalf("tick %d: master coherence = %v, want < 0.5", i, mo.Coherence)
		}
		if eo.Coherence > 0.9 && emissaryHigh < 0 {
			emissaryHigh = i
		}
	}
	if emissaryHigh < 0 || emissaryHigh >= 10 {
		t.Errorf("emissary exceeded 0.9 at tick %d, want within the first 10", emissaryHigh)
	}
	if got := e.Snapshot().Phase; math.Abs(got.Re-1) > 1e-9 || math.Abs(got.Im) > 1e-9 {
		t.Errorf("emissary phase = %+v, want 1+0i", got)
	}
}

// Alternating (1+0j), (−1+0j) at dt=0.01 for 100 ticks.
func TestScenario_AlternatingInput(t *testing.T) {
	m, e := newMaster(t), newEmissary(t)

	var prevMaster float64
	for i := 0; i < 100; i++ {
		re := 1.0
		if i%2 == 1 {
			re = -1
		}
		s := sample(re, 0, float64(i)*0.01)
		mo := mustUpdate(t, m, s)
		eo := mustUpdate(t, e, s)

		if eo.Coherence > 0.1 {
			t.Errorf("tick %d: emissary coherence = %v, want low", i, eo.Coherence)
		}
		if i > 0 && math.Abs(mo.Coherence-prevMaster) > 0.1 {
			t.Errorf("tick %d: master coherence jumped %v -> %v", i, prevMaster, mo.Coherence)
		}
		prevMaster = mo.Coherence
	}
	if e.TauEff() != 0.01 {
		t.Errorf("emissary tau_eff = %v, want shrunk to base 0.01", e.TauEff())
	}
}

func TestConvergence_EmissaryBeforeMaster(t *testing.T) {
	m, e := newMaster(t), newEmissary(t)

	firstAbove := func(in *Integrator) int {
		for i := 0; i < 400; i++ {
			out := mustUpdate(t, in, sample(0.6, 0.8, float64(i)*0.5))
			if out.Coherence >= 0.95 {
				return i
			}
		}
		return -1
	}
	me, mm := firstAbove(e), firstAbove(m)
	if me < 0 || mm < 0 {
		t.Fatalf("did not converge: emissary %d, master %d", me, mm)
	}
	if me >= mm {
		t.Errorf("emissary converged at tick %d, master at %d; want emissary first", me, mm)
	}
}

// --- Spectral weight ---

func spectral(t *testing.T) *Integrator {
	t.Helper()
	in, err := New(Config{Name: "emissary", TauBase: 0.01, TauMax: 1, Omega: 2 * math.Pi,
		Threshold: threshold, StabilizeFraction: stabilize})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return in
}

func TestOmega_CoherenceIndependentOfStartTime(t *testing.T) {
	const ticks = 30
	trace := func(start float64) []float64 {
		in := spectral(t)
		out := make([]float64, ticks)
		for i := range out {
			out[i] = mustUpdate(t, in, sample(1, 0, start+float64(i)*0.01)).Coherence
		}
		return out
	}

	want := trace(0)
	if want[2] < 0.9 {
		t.Fatalf("coherence at tick 2 = %v, want > 0.9 for constant input", want[2])
	}
	for _, start := range []float64{0.25, 0.5, 1000.125} {
		got := trace(start)
		for i := range got {
			if math.Abs(got[i]-want[i]) > 1e-6 {
				t.Errorf("start %v tick %d: coherence = %v, want %v", start, i, got[i], want[i])
				break
			}
		}
	}
}

func TestOmega_AlternatingInputStaysLow(t *testing.T) {
	in := spectral(t)
	for i := 0; i < 100; i++ {
		re := 1.0
		if i%2 == 1 {
			re = -1
		}
		if out := mustUpdate(t, in, sample(re, 0, 0.25+float64(i)*0.01)); out.Coherence > 0.1 {
			t.Fatalf("tick %d: coherence = %v, want low", i, out.Coherence)
		}
	}
}

func TestCoherence_Gate(t *testing.T) {
	tests := []struct {
		name string
		t, r complex128
		want float64
	}{
		{"aligned", 1, 1, 1},
		{"rotated by weight", 1i, 1, 1},
		{"anti-correlated", -1, -1, 0},
		{"orthogonal", 1i, 1i, 0},
		{"zero energy", 1, 1, 0},
	}
	for _, tt := range tests {
		ea, eb := 1.0, 1.0
		if tt.name == "zero energy" {
			ea = 0
		}
		if got := coherence(tt.t, tt.r, ea, eb); got != tt.want {
			t.Errorf("%s: coherence = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// --- Properties ---

func TestCoherence_AlwaysInUnitInterval(t *testing.T) {
	in := newEmissary(t)
	// Deterministic pseudo-random walk with large magnitudes.
	x := uint64(42)
	for i := 0; i < 500; i++ {
		x = x*6364136223846793005 + 1442695040888963407
		re := float64(int64(x>>11)%2000-1000) * 1e3
		im := float64(int64(x>>23)%2000-1000) * 1e3
		out := mustUpdate(t, in, sample(re, im, float64(i)*0.003))
		if out.Coherence < 0 || out.Coherence > 1 || math.IsNaN(out.Coherence) {
			t.Fatalf("tick %d: coherence = %v, outside [0,1]", i, out.Coherence)
		}
	}
}

func TestLargeMagnitude_StaysFinite(t *testing.T) {
	in := newEmissary(t)
	for i := 0; i < 100; i++ {
		out := mustUpdate(t, in, sample(1e6, 0, float64(i)*0.01))
		if !out.Phase.IsFinite() {
			t.Fatalf("tick %d: phase not finite: %+v", i, out.Phase)
		}
		if out.Coherence < 0 || out.Coherence > 1 {
			t.Fatalf("tick %d: coherence = %v", i, out.Coherence)
		}
	}
	if in.Coherence() < 0.99 {
		t.Errorf("coherence = %v, want ~1 for constant large input", in.Coherence())
	}
}

func TestBuffer_NeverOlderThanTauMax(t *testing.T) {
	in := newEmissary(t)
	for i := 0; i < 1000; i++ {
		mustUpdate(t, in, sample(1, 0, float64(i)*0.007))
		s := in.Snapshot()
		if s.Newest-s.Oldest > 1+1e-9 {
			t.Fatalf("tick %d: window spans %v s, want <= tau_max 1", i, s.Newest-s.Oldest)
		}
	}
}

func TestBuffer_MaxSamplesCap(t *testing.T) {
	in, err := New(Config{Name: "capped", TauBase: 1, TauMax: 100, Threshold: 0.8, MaxSamples: 16})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		mustUpdate(t, in, sample(1, 0, float64(i)*0.01))
	}
	if got := in.Snapshot().Samples; got != 16 {
		t.Errorf("Samples = %d, want 16", got)
	}
}

func TestTauEff_GrowsWhenCoherentAndStaysBounded(t *testing.T) {
	in := newEmissary(t)
	for i := 0; i < 200; i++ {
		mustUpdate(t, in, sample(1, 0, float64(i)*0.01))
		if tau := in.TauEff(); tau < 0.01 || tau > 1 {
			t.Fatalf("tick %d: tau_eff = %v outside [0.01, 1]", i, tau)
		}
	}
	if in.TauEff() <= 0.01 {
		t.Errorf("tau_eff = %v, want grown above base", in.TauEff())
	}
}

// --- Overflow ---

func TestUpdate_OverflowResetsWindow(t *testing.T) {
	in := newEmissary(t)
	for i := 0; i < 10; i++ {
		mustUpdate(t, in, sample(1, 0, float64(i)*0.01))
	}
	prev := in.Snapshot().Phase

	out, err := in.Update(sample(1e200, 0, 0.1))
	var oe *types.OverflowError
	if !errors.As(err, &oe) {
		t.Fatalf("err = %v, want *OverflowError", err)
	}
	if oe.Pathway != "emissary" {
		t.Errorf("Pathway = %q, want emissary", oe.Pathway)
	}
	if out.Coherence != 0 {
		t.Errorf("coherence = %v, want 0 after overflow", out.Coherence)
	}
	if out.Phase != prev {
		t.Errorf("phase = %+v, want previous %+v", out.Phase, prev)
	}
	s := in.Snapshot()
	if s.Samples != 0 || s.TauEff != 0.01 {
		t.Errorf("after overflow: samples=%d tau=%v, want 0 and base", s.Samples, s.TauEff)
	}

	// The integrator recovers on the next valid samples.
	mustUpdate(t, in, sample(1, 0, 0.2))
	if out := mustUpdate(t, in, sample(1, 0, 0.21)); out.Coherence < 0.9 {
		t.Errorf("coherence after recovery = %v, want high", out.Coherence)
	}
}

// --- Kernel helpers ---

func TestNearest(t *testing.T) {
	buf := []entry{{ts: 0}, {ts: 1}, {ts: 2}, {ts: 4}}
	cases := []struct {
		target float64
		want   int
	}{
		{-1, 0},
		{0.4, 0},
		{0.5, 0}, // tie resolves to the older entry
		{0.6, 1},
		{3, 2}, // tie between 2 and 4
		{3.5, 3},
		{10, 3},
	}
	for _, c := range cases {
		if got := nearest(buf, c.target); got != c.want {
			t.Errorf("nearest(%v) = %d, want %d", c.target, got, c.want)
		}
	}
}
