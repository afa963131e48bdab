// Package metrics exposes engine state as Prometheus metrics on a private
// registry.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrhavens/becomingone/node/internal/engine"
	"github.com/mrhavens/becomingone/pkg/types"
)

const namespace = "coherence"

// Metrics holds the node's collectors.
type Metrics struct {
	reg     *prometheus.Registry
	factory promauto.Factory

	coherence prometheus.Gauge
	selfModel prometheus.Gauge
	collapsed prometheus.Gauge
	desynced  prometheus.Gauge
	phaseDiff prometheus.Histogram
	ticks     prometheus.Counter
	collapses prometheus.Counter
	errors    *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, alongside the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg:     reg,
		factory: f,
		coherence: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "value",
			Help: "Coherence of the last synchronized state.",
		}),
		selfModel: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "witness_self_model",
			Help: "Witness self-model after the last observation.",
		}),
		collapsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "collapsed",
			Help: "1 while the engine is in the collapsed state.",
		}),
		desynced: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "desynced",
			Help: "1 while the pathways are forced apart by desync.",
		}),
		phaseDiff: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "phase_diff",
			Help:    "Magnitude difference between master and emissary per tick.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Published states.",
		}),
		collapses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "collapse_events_total",
			Help: "Collapse-entered events.",
		}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Per-tick errors by kind.",
		}, []string{"kind"}),
	}
}

// Attach subscribes to e's hooks and registers the collectors that read
// engine state at scrape time. Call it once per engine.
func (m *Metrics) Attach(e *engine.Engine) {
	w := e.Witness()
	e.OnState(func(st types.TemporalState) {
		m.ObserveState(st)
		m.selfModel.Set(w.SelfModel())
	})
	e.OnCollapse(func(types.TemporalState) { m.collapses.Inc() })
	e.OnError(m.ObserveError)

	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace, Name: "dropped_samples_total",
		Help: "Samples evicted from the full input queue.",
	}, func() float64 { return float64(e.Dropped()) })

	m.factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace, Name: "memory_signatures",
		Help: "Signatures held in memory.",
	}, func() float64 { return float64(e.Memory().Len()) })

	for _, name := range []string{"master", "emissary"} {
		pick := func() float64 {
			ms, es := e.Pathways()
			if name == "master" {
				return ms.TauEff
			}
			return es.TauEff
		}
		m.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pathway_tau_seconds",
			Help:        "Effective integration window of a pathway.",
			ConstLabels: prometheus.Labels{"pathway": name},
		}, pick)
	}
}

// ObserveState records one published state.
func (m *Metrics) ObserveState(st types.TemporalState) {
	m.ticks.Inc()
	m.coherence.Set(st.Coherence)
	m.collapsed.Set(boolFloat(st.Collapsed))
	m.desynced.Set(boolFloat(st.Desynced))
	m.phaseDiff.Observe(st.PhaseDiff)
}

// ObserveError counts err under its kind label.
func (m *Metrics) ObserveError(err error) {
	m.errors.WithLabelValues(errorKind(err)).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, types.ErrInput):
		return "input"
	case errors.Is(err, types.ErrNumericOverflow):
		return "overflow"
	case errors.Is(err, types.ErrStorage):
		return "storage"
	default:
		return "output"
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
