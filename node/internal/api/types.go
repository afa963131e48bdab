package api

import (
	"github.com/mrhavens/becomingone/node/internal/integrator"
	"github.com/mrhavens/becomingone/node/internal/witness"
	"github.com/mrhavens/becomingone/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	NodeID string `json:"node_id"`
	Status string `json:"status"`
}

// StateResponse is the payload for GET /api/v1/state.
type StateResponse struct {
	NodeID           string              `json:"node_id"`
	Status           string              `json:"status"`
	State            types.TemporalState `json:"state"`
	Master           integrator.Snapshot `json:"master"`
	Emissary         integrator.Snapshot `json:"emissary"`
	Witness          witness.Stats       `json:"witness"`
	CollapseEvents   int                 `json:"collapse_events"`
	DroppedSamples   uint64              `json:"dropped_samples"`
	MemorySignatures int                 `json:"memory_signatures"`
	Mesh             *types.MeshState    `json:"mesh,omitempty"`
}

// WitnessResponse is the payload for GET /api/v1/witness.
type WitnessResponse struct {
	Records []types.WitnessRecord `json:"records"`
	Stats   witness.Stats         `json:"stats"`
	Total   uint64                `json:"total"`
}

// SignatureResponse is one stored signature with its read-time weight.
type SignatureResponse struct {
	types.MemorySignature
	EffectiveWeight float64 `json:"effective_weight"`
	Strength        string  `json:"strength"`
}

// MemoryResponse is the payload for GET /api/v1/memory.
type MemoryResponse struct {
	Now        float64             `json:"now"`
	Signatures []SignatureResponse `json:"signatures"`
}

// RecallResponse is the payload for GET /api/v1/recall.
type RecallResponse struct {
	Now        float64     `json:"now"`
	Phase      types.Phase `json:"phase"`
	Magnitude  float64     `json:"magnitude"`
	Signatures int         `json:"signatures"`
}

type errorResponse struct {
	Error string `json:"error"`
}
