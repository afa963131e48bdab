package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/mrhavens/becomingone/node/internal/config"
	"github.com/mrhavens/becomingone/node/internal/engine"
	"github.com/mrhavens/becomingone/pkg/types"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	cfg := config.DefaultEngine()
	cfg.SyncInterval = time.Millisecond
	cfg.MasterTauBase, cfg.MasterTauMax = 0.05, 10
	e, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return e
}

// value returns the value of the first series of family name carrying the
// given label pairs.
func value(t *testing.T, m *Metrics, name string, labels ...string) float64 {
	t.Helper()
	fams, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, fam := range fams {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if !hasLabels(metric, labels) {
				continue
			}
			switch {
			case metric.Gauge != nil:
				return metric.GetGauge().GetValue()
			case metric.Counter != nil:
				return metric.GetCounter().GetValue()
			case metric.Histogram != nil:
				return float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func hasLabels(m *dto.Metric, pairs []string) bool {
	for i := 0; i+1 < len(pairs); i += 2 {
		found := false
		for _, lp := range m.GetLabel() {
			if lp.GetName() == pairs[i] && lp.GetValue() == pairs[i+1] {
				found = true
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func TestAttach_TracksTicksAndCollapse(t *testing.T) {
	e := newEngine(t)
	m := New()
	m.Attach(e)

	n := 0
	for ; n < 200 && !e.IsCollapsed(); n++ {
		if _, err := e.Process(types.Sample{Phase: types.Phase{Re: 1}, Timestamp: float64(n) * 0.01}); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
	if !e.IsCollapsed() {
		t.Fatalf("engine did not collapse")
	}

	if got := value(t, m, "coherence_ticks_total"); got != float64(n) {
		t.Errorf("ticks_total = %v, want %d", got, n)
	}
	if got := value(t, m, "coherence_collapse_events_total"); got != 1 {
		t.Errorf("collapse_events_total = %v, want 1", got)
	}
	if got := value(t, m, "coherence_collapsed"); got != 1 {
		t.Errorf("collapsed = %v, want 1", got)
	}
	if got := value(t, m, "coherence_value"); got != e.Coherence() {
		t.Errorf("value = %v, want %v", got, e.Coherence())
	}
	if got := value(t, m, "coherence_witness_self_model"); got != e.Witness().SelfModel() {
		t.Errorf("self_model = %v, want %v", got, e.Witness().SelfModel())
	}
	if got := value(t, m, "coherence_phase_diff"); got != float64(n) {
		t.Errorf("phase_diff samples = %v, want %d", got, n)
	}
	if got := value(t, m, "coherence_memory_signatures"); got != float64(e.Memory().Len()) {
		t.Errorf("memory_signatures = %v, want %d", got, e.Memory().Len())
	}
	ms, _ := e.Pathways()
	if got := value(t, m, "coherence_pathway_tau_seconds", "pathway", "master"); got != ms.TauEff {
		t.Errorf("master tau = %v, want %v", got, ms.TauEff)
	}
}

func TestAttach_CountsErrorsByKind(t *testing.T) {
	e := newEngine(t)
	m := New()
	m.Attach(e)

	_, _ = e.Process(types.Sample{Phase: types.Phase{Re: 1}, Timestamp: 1})
	_, _ = e.Process(types.Sample{Phase: types.Phase{Re: 1}, Timestamp: 1})

	if got := value(t, m, "coherence_errors_total", "kind", "input"); got != 1 {
		t.Errorf("errors_total{kind=input} = %v, want 1", got)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&types.InputError{Reason: "x"}, "input"},
		{&types.OverflowError{Pathway: "master"}, "overflow"},
		{&types.StorageError{Op: "append", Err: io.ErrUnexpectedEOF}, "storage"},
		{errors.New("sink down"), "output"},
	}
	for _, tt := range tests {
		if got := errorKind(tt.err); got != tt.want {
			t.Errorf("errorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestHandler_ServesExposition(t *testing.T) {
	e := newEngine(t)
	m := New()
	m.Attach(e)
	_, _ = e.Process(types.Sample{Phase: types.Phase{Re: 1}, Timestamp: 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"coherence_value", "coherence_dropped_samples_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}
