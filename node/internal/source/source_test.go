package source

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mrhavens/becomingone/node/internal/config"
	"github.com/mrhavens/becomingone/node/internal/memory"
	"github.com/mrhavens/becomingone/pkg/types"
)

// --- Encoders ---

func TestEncoders(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want types.Phase
	}{
		{"identity", 2.5, types.Phase{Re: 2.5}},
		{"", -1, types.Phase{Re: -1}},
		{"pressure", 950, types.Phase{Re: 0.5}},
		{"spike", 3, types.Phase{Re: 1}},
		{"spike", 0, types.Phase{}},
		{"audio", -0.25, types.Phase{Re: 0.25, Im: -0.25}},
		{"audio", 4, types.Phase{Re: 1, Im: 4}},
		{"vibration", -2, types.Phase{Re: 1, Im: 0.5}},
	}
	for _, c := range cases {
		enc, err := LookupEncoder(c.name)
		if err != nil {
			t.Fatalf("LookupEncoder(%q): %v", c.name, err)
		}
		if got := enc(c.in); got != c.want {
			t.Errorf("%s(%v) = %+v, want %+v", c.name, c.in, got, c.want)
		}
	}
}

func TestEncoder_UnitAngle(t *testing.T) {
	enc, _ := LookupEncoder("unit_angle")
	got := enc(math.Pi / 2)
	if math.Abs(got.Re) > 1e-12 || math.Abs(got.Im-1) > 1e-12 {
		t.Errorf("unit_angle(π/2) = %+v, want 0+1i", got)
	}
	if math.Abs(enc(1.234).Abs()-1) > 1e-12 {
		t.Error("unit_angle should lie on the unit circle")
	}
}

func TestEncoder_Unknown(t *testing.T) {
	if _, err := LookupEncoder("morse"); err == nil {
		t.Error("expected error for unknown encoder")
	}
}

func TestEncoderNames_MatchConfig(t *testing.T) {
	for _, n := range EncoderNames() {
		if !config.KnownEncoder(n) {
			t.Errorf("encoder %q not accepted by config", n)
		}
	}
}

// --- Channel ---

func TestChannel_SendReadClose(t *testing.T) {
	c := NewChannel(2)
	ctx := context.Background()
	if err := c.Send(ctx, types.Sample{Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	c.Close()
	if err := c.Send(ctx, types.Sample{Timestamp: 2}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Send after Close err = %v, want ErrClosedPipe", err)
	}

	s, err := c.Read(ctx)
	if err != nil || s.Timestamp != 1 {
		t.Fatalf("Read = %+v, %v; want buffered sample", s, err)
	}
	if _, err := c.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Read after drain err = %v, want EOF", err)
	}
	c.Close() // idempotent
}

func TestChannel_ReadHonoursContext(t *testing.T) {
	c := NewChannel(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Read err = %v, want DeadlineExceeded", err)
	}
}

// --- Prometheus ---

const nodeMetrics = `
# HELP node_load1 1m load average.
# TYPE node_load1 gauge
node_load1 0.75

# HELP http_requests_total Requests served.
# TYPE http_requests_total counter
http_requests_total{code="200",handler="/api"} 1200
http_requests_total{code="500",handler="/api"} 30
http_requests_total{code="200",handler="/health"} 800
`

func promServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPrometheus_ReadEncodesMetric(t *testing.T) {
	srv := promServer(t, nodeMetrics, http.StatusOK)
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p, err := NewPrometheus(config.InputConfig{
		ID: "load", Type: "prometheus", Endpoint: srv.URL,
		Metric: "node_load1", Encoder: "identity", Interval: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	p.now = func() time.Time { return at }

	s, err := p.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if s.Phase != (types.Phase{Re: 0.75}) {
		t.Errorf("Phase = %+v, want 0.75", s.Phase)
	}
	if s.Timestamp != types.Seconds(at) {
		t.Errorf("Timestamp = %v, want %v", s.Timestamp, types.Seconds(at))
	}
}

func TestPrometheus_LabelFilter(t *testing.T) {
	srv := promServer(t, nodeMetrics, http.StatusOK)
	p, _ := NewPrometheus(config.InputConfig{
		ID: "req", Endpoint: srv.URL, Metric: "http_requests_total",
		Labels: map[string]string{"handler": "/api"},
	})
	s, err := p.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if s.Phase.Re != 1230 {
		t.Errorf("sum = %v, want 1230", s.Phase.Re)
	}
}

func TestPrometheus_Errors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		metric string
		labels map[string]string
	}{
		{"http error", "", http.StatusInternalServerError, "node_load1", nil},
		{"missing metric", nodeMetrics, http.StatusOK, "node_load5", nil},
		{"no matching series", nodeMetrics, http.StatusOK, "http_requests_total", map[string]string{"code": "404"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := promServer(t, c.body, c.status)
			p, _ := NewPrometheus(config.InputConfig{ID: "x", Endpoint: srv.URL, Metric: c.metric, Labels: c.labels})
			if _, err := p.Read(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPrometheus_WaitsForInterval(t *testing.T) {
	srv := promServer(t, nodeMetrics, http.StatusOK)
	p, _ := NewPrometheus(config.InputConfig{ID: "load", Endpoint: srv.URL, Metric: "node_load1", Interval: time.Hour})
	if _, err := p.Read(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := p.Read(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second Read err = %v, want to wait out the interval", err)
	}
}

// --- HTTP ingest ---

func newIngest(t *testing.T) *HTTP {
	t.Helper()
	h, err := NewHTTP(config.InputConfig{ID: "ingest", Type: "http", Encoder: "pressure"}, 16)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/samples", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_AcceptsValuesAndPhases(t *testing.T) {
	h := newIngest(t)
	rec := post(h, `{"samples":[
		{"timestamp": 10, "value": 1000},
		{"timestamp": 11, "phase": {"real": 0.1, "imag": -0.2}}
	]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"accepted":2`) {
		t.Errorf("body = %s", rec.Body)
	}

	ctx := context.Background()
	s1, _ := h.Read(ctx)
	s2, _ := h.Read(ctx)
	if s1.Phase != (types.Phase{Re: 1}) || s1.Timestamp != 10 {
		t.Errorf("first sample = %+v, want pressure-encoded 1 at t=10", s1)
	}
	if s2.Phase != (types.Phase{Re: 0.1, Im: -0.2}) || s2.Timestamp != 11 {
		t.Errorf("second sample = %+v", s2)
	}
}

func TestHTTP_StampsMissingTimestampsIncreasing(t *testing.T) {
	h := newIngest(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return at }

	rec := post(h, `{"samples":[{"value": 950},{"value": 960},{"value": 970}]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var prev float64
	for i := 0; i < 3; i++ {
		s, _ := h.Read(context.Background())
		if i > 0 && s.Timestamp <= prev {
			t.Errorf("sample %d timestamp %v not after %v", i, s.Timestamp, prev)
		}
		prev = s.Timestamp
	}
}

func TestHTTP_RejectsInvalidBodies(t *testing.T) {
	h := newIngest(t)
	for _, body := range []string{
		`not json`,
		`{}`,
		`{"samples": []}`,
		`{"samples": [{"timestamp": 1}]}`,
		`{"samples": [{"value": 1, "phase": {"real": 1, "imag": 0}}]}`,
		`{"samples": [{"value": "high"}]}`,
		`{"samples": [{"phase": {"real": 1}}]}`,
		`{"samples": [{"value": 1}], "extra": true}`,
	} {
		if rec := post(h, body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestHTTP_MethodNotAllowed(t *testing.T) {
	h := newIngest(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/samples", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

// --- Replay ---

func TestReplay_ReadsSignaturesInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	db, err := memory.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	for _, ts := range []float64{3, 1, 2} {
		sig := types.MemorySignature{Timestamp: ts, Phase: types.Phase{Re: ts, Im: -ts}, Coherence: 0.5, Weight: 1}
		if err := db.Append(sig); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	db.Close()

	r, err := NewReplay(config.InputConfig{ID: "rerun", Type: "replay", Path: path})
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}
	if r.Len() != 3 {
		t.Fatalf("Len = %d, want 3", r.Len())
	}
	ctx := context.Background()
	for _, want := range []float64{1, 2, 3} {
		s, err := r.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if s.Timestamp != want || s.Phase != (types.Phase{Re: want, Im: -want}) {
			t.Errorf("sample = %+v, want ts %v", s, want)
		}
	}
	if _, err := r.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Read after end = %v, want io.EOF", err)
	}
}

func TestReplay_MissingFile(t *testing.T) {
	_, err := NewReplay(config.InputConfig{ID: "rerun", Type: "replay", Path: filepath.Join(t.TempDir(), "absent.db")})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReplay_DelayHonoursContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	db, err := memory.OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	db.Append(types.MemorySignature{Timestamp: 1, Weight: 1}) //nolint:errcheck
	db.Append(types.MemorySignature{Timestamp: 2, Weight: 1}) //nolint:errcheck
	db.Close()

	r, err := NewReplay(config.InputConfig{ID: "rerun", Path: path, Interval: time.Hour})
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := r.Read(ctx); err != nil {
		t.Fatalf("first Read should not wait: %v", err)
	}
	cancel()
	if _, err := r.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read = %v, want context.Canceled", err)
	}
}
