package main

import (
	"encoding/json"
	"net/http"
)

// ingestRouter dispatches POST /api/v1/samples to an http input chosen by
// the ?input= query parameter, defaulting to the first one registered.
type ingestRouter struct {
	order []string
	byID  map[string]http.Handler
}

func newIngestRouter() *ingestRouter {
	return &ingestRouter{byID: make(map[string]http.Handler)}
}

func (r *ingestRouter) add(id string, h http.Handler) {
	r.order = append(r.order, id)
	r.byID[id] = h
}

func (r *ingestRouter) len() int { return len(r.order) }

func (r *ingestRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	id := req.URL.Query().Get("input")
	if id == "" {
		id = r.order[0]
	}
	h, ok := r.byID[id]
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "unknown input " + id}) //nolint:errcheck
		return
	}
	h.ServeHTTP(w, req)
}
