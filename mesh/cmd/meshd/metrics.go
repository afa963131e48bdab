package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrhavens/becomingone/mesh/internal/alerts"
	"github.com/mrhavens/becomingone/mesh/internal/receiver"
	"github.com/mrhavens/becomingone/mesh/internal/store"
	"github.com/mrhavens/becomingone/mesh/internal/ws"
)

// meshMetrics exposes the aggregator's state as scrape-time gauges.
type meshMetrics struct {
	reg *prometheus.Registry
}

func newMetrics(rec *receiver.Receiver, st *store.Store, al *alerts.Engine, hub *ws.Hub) *meshMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mesh_nodes",
		Help: "Live nodes in the registry.",
	}, func() float64 { return float64(len(st.List())) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mesh_coherence_value",
		Help: "Merged coherence of all live nodes.",
	}, func() float64 { return rec.Merged().Coherence })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mesh_collapsed",
		Help: "1 while the merged mesh is collapsed.",
	}, func() float64 {
		if rec.Merged().Collapsed {
			return 1
		}
		return 0
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mesh_alerts_firing",
		Help: "Currently firing alerts.",
	}, func() float64 { return float64(al.Firing()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "mesh_ws_clients",
		Help: "Connected websocket clients.",
	}, func() float64 { return float64(hub.Count()) })

	return &meshMetrics{reg: reg}
}

func (m *meshMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
