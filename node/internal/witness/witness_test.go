package witness

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/mrhavens/becomingone/pkg/types"
)

func state(c, ts float64) types.TemporalState {
	return types.TemporalState{Coherence: c, Timestamp: ts}
}

func newLayer(t *testing.T, cfg Config, rec Recorder) *Layer {
	t.Helper()
	if cfg.Beta == 0 {
		cfg.Beta = DefaultBeta
	}
	l, err := New(cfg, rec)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) RecordWitness(types.WitnessRecord) error {
	f.calls++
	return errors.New("disk full")
}

type sliceRecorder struct{ recs []types.WitnessRecord }

func (s *sliceRecorder) RecordWitness(r types.WitnessRecord) error {
	s.recs = append(s.recs, r)
	return nil
}

func TestNew_InvalidBeta(t *testing.T) {
	for _, beta := range []float64{-0.1, 1, 1.5, math.NaN()} {
		if _, err := New(Config{Beta: beta}, nil); !errors.Is(err, types.ErrConfiguration) {
			t.Errorf("beta %v: err = %v, want ErrConfiguration", beta, err)
		}
	}
}

func TestObserve_ExponentialFilter(t *testing.T) {
	l := newLayer(t, Config{}, nil)
	r, err := l.Observe(state(1, 0.5))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(r.SelfModel-0.05) > 1e-12 {
		t.Errorf("SelfModel = %v, want 0.05", r.SelfModel)
	}
	r, _ = l.Observe(state(1, 1))
	if want := 0.05 + 0.95*0.05; math.Abs(r.SelfModel-want) > 1e-12 {
		t.Errorf("SelfModel = %v, want %v", r.SelfModel, want)
	}
	if r.Timestamp != 1 || r.ObservedCoherence != 1 {
		t.Errorf("record = %+v", r)
	}
}

func TestObserve_ClampsInput(t *testing.T) {
	l := newLayer(t, Config{}, nil)
	for i, c := range []float64{7, -3, math.NaN(), math.Inf(1)} {
		r, _ := l.Observe(state(c, float64(i)))
		if r.SelfModel < 0 || r.SelfModel > 1 || r.ObservedCoherence < 0 || r.ObservedCoherence > 1 {
			t.Errorf("c=%v: record %+v outside [0,1]", c, r)
		}
	}
}

func TestObserve_Contraction(t *testing.T) {
	a := newLayer(t, Config{Initial: 0}, nil)
	b := newLayer(t, Config{Initial: 1}, nil)

	x := uint64(7)
	for n := 1; n <= 200; n++ {
		x = x*6364136223846793005 + 1442695040888963407
		c := float64(x>>40) / float64(1<<24)
		ra, _ := a.Observe(state(c, float64(n)))
		rb, _ := b.Observe(state(c, float64(n)))

		bound := math.Pow(1-DefaultBeta, float64(n)) + 1e-12
		if d := math.Abs(ra.SelfModel - rb.SelfModel); d > bound {
			t.Fatalf("n=%d: |a-b| = %v, want <= %v", n, d, bound)
		}
	}
}

func TestRing_Bounded(t *testing.T) {
	l := newLayer(t, Config{Capacity: 5}, nil)
	for i := 0; i < 12; i++ {
		l.Observe(state(0.5, float64(i)))
	}
	if l.Len() != 5 {
		t.Errorf("Len = %d, want 5", l.Len())
	}
	if l.Total() != 12 {
		t.Errorf("Total = %d, want 12", l.Total())
	}
	recs := l.Records(0)
	for i, r := range recs {
		if want := float64(7 + i); r.Timestamp != want {
			t.Errorf("recs[%d].Timestamp = %v, want %v", i, r.Timestamp, want)
		}
	}
	last := l.Records(2)
	if len(last) != 2 || last[0].Timestamp != 10 || last[1].Timestamp != 11 {
		t.Errorf("Records(2) = %+v, want timestamps 10, 11", last)
	}
}

func TestStats(t *testing.T) {
	l := newLayer(t, Config{Window: 4}, nil)
	for i, c := range []float64{0.1, 0.2, 0.3, 0.4} {
		l.Observe(state(c, float64(i)))
	}
	s := l.Stats(0)
	if s.Count != 4 {
		t.Errorf("Count = %d, want 4", s.Count)
	}
	if math.Abs(s.Mean-0.25) > 1e-12 {
		t.Errorf("Mean = %v, want 0.25", s.Mean)
	}
	if want := math.Sqrt(0.0125); math.Abs(s.StdDev-want) > 1e-12 {
		t.Errorf("StdDev = %v, want %v", s.StdDev, want)
	}
	if math.Abs(s.Trend-0.1) > 1e-12 {
		t.Errorf("Trend = %v, want 0.1", s.Trend)
	}
}

func TestStats_Empty(t *testing.T) {
	l := newLayer(t, Config{}, nil)
	if s := l.Stats(10); s.Count != 0 || s.Mean != 0 || s.Trend != 0 {
		t.Errorf("Stats on empty = %+v, want zero", s)
	}
}

func TestObserve_RecorderFailureIsStorageError(t *testing.T) {
	rec := &failingRecorder{}
	l := newLayer(t, Config{}, rec)
	r, err := l.Observe(state(1, 1))
	if !errors.Is(err, types.ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if r.SelfModel == 0 || l.Len() != 1 {
		t.Error("record should still be applied and held in memory")
	}
	if rec.calls != 1 {
		t.Errorf("recorder calls = %d, want 1", rec.calls)
	}
}

func TestObserve_ForwardsToRecorder(t *testing.T) {
	rec := &sliceRecorder{}
	l := newLayer(t, Config{}, rec)
	for i := 0; i < 3; i++ {
		l.Observe(state(0.9, float64(i)))
	}
	if len(rec.recs) != 3 || rec.recs[2].Timestamp != 2 {
		t.Errorf("recorded = %+v", rec.recs)
	}
}

func TestReport(t *testing.T) {
	l := newLayer(t, Config{}, nil)
	for i := 0; i < 10; i++ {
		l.Observe(state(float64(i)/10, float64(i)))
	}
	out := l.Report()
	if !strings.Contains(out, "10 observations") || !strings.Contains(out, "rising") {
		t.Errorf("Report() = %q", out)
	}
}
