package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/mrhavens/becomingone/node/internal/config"
	"github.com/mrhavens/becomingone/pkg/types"
)

const defaultScrapeTimeout = 10 * time.Second

// Prometheus polls a Prometheus text exposition endpoint and turns one metric
// family into a phase sample per scrape.
type Prometheus struct {
	cfg    config.InputConfig
	enc    Encoder
	client *http.Client
	now    func() time.Time

	next time.Time
}

// NewPrometheus builds a scraping input from cfg.
func NewPrometheus(cfg config.InputConfig) (*Prometheus, error) {
	enc, err := LookupEncoder(cfg.Encoder)
	if err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultScrapeEvery
	}
	return &Prometheus{
		cfg:    cfg,
		enc:    enc,
		client: &http.Client{Timeout: defaultScrapeTimeout},
		now:    time.Now,
	}, nil
}

// Read waits for the next scrape slot, fetches the endpoint and returns the
// encoded reading stamped with the scrape time. The first call scrapes
// immediately.
func (p *Prometheus) Read(ctx context.Context) (types.Sample, error) {
	if wait := p.next.Sub(p.now()); !p.next.IsZero() && wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return types.Sample{}, ctx.Err()
		case <-t.C:
		}
	}
	at := p.now()
	p.next = at.Add(p.cfg.Interval)

	mfs, err := fetchMetrics(ctx, p.client, p.cfg.Endpoint)
	if err != nil {
		slog.Warn("source: prometheus fetch failed", "input", p.cfg.ID, "err", err)
		return types.Sample{}, fmt.Errorf("prometheus input %q: %w", p.cfg.ID, err)
	}
	mf, ok := mfs[p.cfg.Metric]
	if !ok {
		return types.Sample{}, fmt.Errorf("prometheus input %q: metric %q not exposed", p.cfg.ID, p.cfg.Metric)
	}
	v, n := sumFamily(mf, p.cfg.Labels)
	if n == 0 {
		return types.Sample{}, fmt.Errorf("prometheus input %q: no series of %q match labels %v",
			p.cfg.ID, p.cfg.Metric, p.cfg.Labels)
	}
	slog.Debug("source: prometheus reading", "input", p.cfg.ID, "metric", p.cfg.Metric, "value", v)
	return types.NewSample(p.enc(v), at), nil
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition. A partial parse that
// still yields families counts as success.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds the counter, gauge or untyped values of every series in mf
// that carries all of labels. It also returns how many series matched.
func sumFamily(mf *dto.MetricFamily, labels map[string]string) (float64, int) {
	var total float64
	var n int
	for _, m := range mf.GetMetric() {
		if !hasLabels(m, labels) {
			continue
		}
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		default:
			continue
		}
		n++
	}
	return total, n
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	if len(want) == 0 {
		return true
	}
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}
