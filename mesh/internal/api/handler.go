package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/mrhavens/becomingone/mesh/internal/alerts"
	"github.com/mrhavens/becomingone/mesh/internal/store"
	"github.com/mrhavens/becomingone/pkg/types"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	store     *store.Store
	alerts    *alerts.Engine
	threshold float64
	mux       *http.ServeMux
}

// New creates a Handler over st and registers all routes. al may be nil.
// threshold is the mesh collapse threshold.
func New(st *store.Store, al *alerts.Engine, threshold float64) http.Handler {
	h := &Handler{store: st, alerts: al, threshold: threshold, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/nodes", h.listNodes)
	h.mux.HandleFunc("/api/v1/nodes/", h.getNode)
	h.mux.HandleFunc("/api/v1/mesh", h.mesh)
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	resp := HealthResponse{NodeCount: len(entries), State: "unknown"}
	if h.alerts != nil {
		resp.AlertCount = h.alerts.Firing()
	}
	if len(entries) == 0 {
		jsonResp(w, http.StatusOK, resp)
		return
	}

	for _, e := range entries {
		if e.Snapshot.State.Collapsed {
			resp.CollapsedCount++
		}
		if e.Snapshot.State.Desynced {
			resp.DesyncedCount++
		}
	}
	m := h.store.Merge(h.threshold)
	resp.MeshCoherence = m.Coherence
	resp.State = "dispersed"
	if m.Collapsed {
		resp.State = "collapsed"
	}
	jsonResp(w, http.StatusOK, resp)
}

// listNodes returns GET /api/v1/nodes, all live nodes sorted by id.
func (h *Handler) listNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, toNodeResponses(h.store.List()))
}

// getNode returns GET /api/v1/nodes/{id}.
func (h *Handler) getNode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/nodes/")
	if id == "" {
		h.listNodes(w, r)
		return
	}

	e, ok := h.store.Get(id)
	if !ok || !h.store.Live(e) {
		jsonErr(w, http.StatusNotFound, "node not found")
		return
	}
	jsonResp(w, http.StatusOK, toNodeResponse(e))
}

// mesh returns GET /api/v1/mesh, the merged state plus every live node.
func (h *Handler) mesh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildMesh(h.store, h.threshold))
}

// listAlerts returns GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// BuildMesh assembles the merged mesh view from st. It is shared with the
// websocket hub so both surfaces report the same payload.
func BuildMesh(st *store.Store, threshold float64) MeshResponse {
	entries := st.List()
	snaps := make([]types.Snapshot, len(entries))
	for i, e := range entries {
		snaps[i] = e.Snapshot
	}
	return MeshResponse{
		Mesh:        types.Merge(threshold, snaps...),
		Nodes:       toNodeResponses(entries),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func toNodeResponses(entries []store.Entry) []NodeResponse {
	out := make([]NodeResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toNodeResponse(e))
	}
	return out
}

func toNodeResponse(e store.Entry) NodeResponse {
	s := e.Snapshot
	return NodeResponse{
		NodeID:    s.NodeID,
		Timestamp: s.State.Timestamp,
		Phase:     s.State.Phase,
		Coherence: s.State.Coherence,
		Collapsed: s.State.Collapsed,
		Aligned:   s.State.Aligned,
		Desynced:  s.State.Desynced,
		PhaseDiff: s.State.PhaseDiff,
		SelfModel: s.SelfModel,
		LastSeen:  e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
