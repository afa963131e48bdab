package types

import "time"

// Sample is one phase reading at a monotonic timestamp in seconds.
type Sample struct {
	Phase     Phase   `json:"phase"`
	Timestamp float64 `json:"timestamp"`
}

// NewSample stamps p with the wall-clock time t.
func NewSample(p Phase, t time.Time) Sample {
	return Sample{Phase: p, Timestamp: Seconds(t)}
}

// Seconds converts t to fractional Unix seconds.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Time converts fractional Unix seconds back to a time.Time.
func Time(sec float64) time.Time {
	whole := int64(sec)
	return time.Unix(whole, int64((sec-float64(whole))*1e9)).UTC()
}

// PathwayOutput is the result of one integrator update.
type PathwayOutput struct {
	Phase     Phase   `json:"phase"`
	Coherence float64 `json:"coherence"`
}

// TemporalState is the synchronized snapshot produced once per tick.
// Consumers must treat it as a value; it carries no identity across ticks.
type TemporalState struct {
	Phase                Phase   `json:"phase"`
	Coherence            float64 `json:"coherence"`
	MasterContribution   Phase   `json:"master_contribution"`
	EmissaryContribution Phase   `json:"emissary_contribution"`
	Collapsed            bool    `json:"collapsed"`
	Timestamp            float64 `json:"timestamp"`

	// PhaseDiff is ||master| - |emissary|| for this tick.
	PhaseDiff float64 `json:"phase_diff"`
	// Aligned is PhaseDiff below the alignment threshold.
	Aligned bool `json:"aligned"`
	// Desynced is set while the forced de-collapse is in effect.
	Desynced bool `json:"desynced"`
}

// WitnessRecord is one entry of the witness audit stream.
type WitnessRecord struct {
	Timestamp         float64 `json:"timestamp"`
	ObservedCoherence float64 `json:"observed_coherence"`
	SelfModel         float64 `json:"self_model"`
}

// MemorySignature is a stored state snapshot. Weight is the insertion-time
// weight; the age-dependent weight is derived at read time.
type MemorySignature struct {
	Timestamp float64 `json:"timestamp"`
	Phase     Phase   `json:"phase"`
	Coherence float64 `json:"coherence"`
	Weight    float64 `json:"weight"`
}

// Snapshot is a TemporalState tagged with the node that produced it.
type Snapshot struct {
	NodeID    string        `json:"node_id"`
	State     TemporalState `json:"state"`
	SelfModel float64       `json:"self_model"`
}
