package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/mrhavens/becomingone/node/internal/engine"
	"github.com/mrhavens/becomingone/node/internal/memory"
	"github.com/mrhavens/becomingone/pkg/types"
)

const (
	defaultWitnessLimit = 100
	maxWitnessLimit     = 10000
)

// Options wires the API to a running node.
type Options struct {
	NodeID string
	Engine *engine.Engine

	// Ingest serves POST /api/v1/samples. Nil leaves the route unregistered.
	Ingest http.Handler
	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler
	// Mesh returns the latest merged mesh state, if any.
	Mesh func() (types.MeshState, bool)

	// Now is the wall clock used before the first state exists.
	Now func() time.Time
}

// Handler is the HTTP handler for the node API.
type Handler struct {
	opts Options
	mux  *http.ServeMux
}

// New creates a Handler and registers all routes.
func New(opts Options) http.Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &Handler{opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/state", h.state)
	h.mux.HandleFunc("/api/v1/witness", h.witness)
	h.mux.HandleFunc("/api/v1/memory", h.memory)
	h.mux.HandleFunc("/api/v1/recall", h.recall)
	if opts.Ingest != nil {
		h.mux.Handle("/api/v1/samples", opts.Ingest)
	}
	if opts.Metrics != nil {
		h.mux.Handle("/metrics", opts.Metrics)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		NodeID: h.opts.NodeID,
		Status: h.opts.Engine.Status().String(),
	})
}

// state returns GET /api/v1/state.
func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	e := h.opts.Engine
	master, emissary := e.Pathways()
	resp := StateResponse{
		NodeID:           h.opts.NodeID,
		Status:           e.Status().String(),
		State:            e.State(),
		Master:           master,
		Emissary:         emissary,
		Witness:          e.Witness().Stats(defaultWitnessLimit),
		CollapseEvents:   e.CollapseEvents(),
		DroppedSamples:   e.Dropped(),
		MemorySignatures: e.Memory().Len(),
	}
	if h.opts.Mesh != nil {
		if m, ok := h.opts.Mesh(); ok {
			resp.Mesh = &m
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// witness returns GET /api/v1/witness?limit=n.
func (h *Handler) witness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultWitnessLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxWitnessLimit)
	}
	wl := h.opts.Engine.Witness()
	records := wl.Records(limit)
	if records == nil {
		records = []types.WitnessRecord{}
	}
	jsonResp(w, http.StatusOK, WitnessResponse{
		Records: records,
		Stats:   wl.Stats(limit),
		Total:   wl.Total(),
	})
}

// memory returns GET /api/v1/memory?from=&to=. Bounds are sample-clock
// seconds; either may be omitted.
func (h *Handler) memory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	from, err := floatParam(q.Get("from"), math.Inf(-1))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "from must be a number")
		return
	}
	to, err := floatParam(q.Get("to"), math.Inf(1))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "to must be a number")
		return
	}
	if from > to {
		jsonErr(w, http.StatusBadRequest, "from must not exceed to")
		return
	}

	now := h.now()
	store := h.opts.Engine.Memory()
	sigs := store.Range(from, to)
	out := make([]SignatureResponse, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, SignatureResponse{
			MemorySignature: sig,
			EffectiveWeight: store.EffectiveWeight(sig, now),
			Strength:        memory.StrengthOf(sig.Coherence).String(),
		})
	}
	jsonResp(w, http.StatusOK, MemoryResponse{Now: now, Signatures: out})
}

// recall returns GET /api/v1/recall.
func (h *Handler) recall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	now := h.now()
	store := h.opts.Engine.Memory()
	p := store.Recall(now)
	jsonResp(w, http.StatusOK, RecallResponse{
		Now:        now,
		Phase:      p,
		Magnitude:  p.Abs(),
		Signatures: store.Len(),
	})
}

// --- helpers ----------------------------------------------------------------

// now is the sample clock: the last state's timestamp, or wall time before
// the first tick.
func (h *Handler) now() float64 {
	if ts := h.opts.Engine.State().Timestamp; ts != 0 {
		return ts
	}
	return types.Seconds(h.opts.Now())
}

func floatParam(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
