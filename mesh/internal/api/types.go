package api

import "github.com/mrhavens/becomingone/pkg/types"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State          string  `json:"state"` // "unknown" | "collapsed" | "dispersed"
	MeshCoherence  float64 `json:"mesh_coherence"`
	NodeCount      int     `json:"node_count"`
	CollapsedCount int     `json:"collapsed_count"`
	DesyncedCount  int     `json:"desynced_count"`
	AlertCount     int     `json:"alert_count"`
}

// NodeResponse is one node in GET /api/v1/nodes or GET /api/v1/nodes/{id}.
type NodeResponse struct {
	NodeID    string      `json:"node_id"`
	Timestamp float64     `json:"timestamp"`
	Phase     types.Phase `json:"phase"`
	Coherence float64     `json:"coherence"`
	Collapsed bool        `json:"collapsed"`
	Aligned   bool        `json:"aligned"`
	Desynced  bool        `json:"desynced"`
	PhaseDiff float64     `json:"phase_diff"`
	SelfModel float64     `json:"self_model"`
	LastSeen  string      `json:"last_seen"` // RFC3339
}

// MeshResponse is the payload for GET /api/v1/mesh and the websocket stream.
type MeshResponse struct {
	Mesh        types.MeshState `json:"mesh"`
	Nodes       []NodeResponse  `json:"nodes"`
	GeneratedAt string          `json:"generated_at"` // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
