// Package api implements the node's HTTP API.
//
// New(opts) returns an http.Handler that serves:
//
//	GET  /api/v1/health           engine status and node id
//	GET  /api/v1/state            last state, pathway snapshots, witness stats
//	GET  /api/v1/witness?limit=n  newest witness records, oldest first
//	GET  /api/v1/memory?from=&to= signatures in a sample-clock range
//	GET  /api/v1/recall           weighted recall of memory
//	POST /api/v1/samples          sample ingestion (when an ingest handler is set)
//	GET  /metrics                 Prometheus exposition (when set)
//
// JSON types are defined in types.go.
package api
