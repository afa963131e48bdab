package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mrhavens/becomingone/pkg/types"
)

// ErrMissingNodeID is returned by DecodeSnapshot when node_id is empty.
var ErrMissingNodeID = errors.New("wire: node_id is required")

// EncodeSnapshot converts a node snapshot into its Struct encoding.
func EncodeSnapshot(s types.Snapshot) (*structpb.Struct, error) {
	st := s.State
	return structpb.NewStruct(map[string]interface{}{
		"node_id":               s.NodeID,
		"timestamp":             st.Timestamp,
		"phase":                 phaseMap(st.Phase),
		"coherence":             st.Coherence,
		"master_contribution":   phaseMap(st.MasterContribution),
		"emissary_contribution": phaseMap(st.EmissaryContribution),
		"collapsed":             st.Collapsed,
		"phase_diff":            st.PhaseDiff,
		"aligned":               st.Aligned,
		"desynced":              st.Desynced,
		"self_model":            s.SelfModel,
	})
}

// DecodeSnapshot parses a Struct produced by EncodeSnapshot. It rejects
// messages without a node_id and messages carrying non-finite phases.
func DecodeSnapshot(msg *structpb.Struct) (types.Snapshot, error) {
	f := msg.GetFields()
	s := types.Snapshot{
		NodeID:    f["node_id"].GetStringValue(),
		SelfModel: f["self_model"].GetNumberValue(),
		State: types.TemporalState{
			Timestamp:            f["timestamp"].GetNumberValue(),
			Phase:                phaseOf(f["phase"]),
			Coherence:            types.Clamp01(f["coherence"].GetNumberValue()),
			MasterContribution:   phaseOf(f["master_contribution"]),
			EmissaryContribution: phaseOf(f["emissary_contribution"]),
			Collapsed:            f["collapsed"].GetBoolValue(),
			PhaseDiff:            f["phase_diff"].GetNumberValue(),
			Aligned:              f["aligned"].GetBoolValue(),
			Desynced:             f["desynced"].GetBoolValue(),
		},
	}
	if s.NodeID == "" {
		return types.Snapshot{}, ErrMissingNodeID
	}
	if !s.State.Phase.IsFinite() {
		return types.Snapshot{}, fmt.Errorf("wire: node %q: non-finite phase", s.NodeID)
	}
	return s, nil
}

// EncodeMesh converts a merged mesh state into its Struct encoding.
func EncodeMesh(m types.MeshState) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"phase":     phaseMap(m.Phase),
		"coherence": m.Coherence,
		"collapsed": m.Collapsed,
		"nodes":     float64(m.Nodes),
		"timestamp": m.Timestamp,
	})
}

// DecodeMesh parses a Struct produced by EncodeMesh.
func DecodeMesh(msg *structpb.Struct) types.MeshState {
	f := msg.GetFields()
	return types.MeshState{
		Phase:     phaseOf(f["phase"]),
		Coherence: types.Clamp01(f["coherence"].GetNumberValue()),
		Collapsed: f["collapsed"].GetBoolValue(),
		Nodes:     int(f["nodes"].GetNumberValue()),
		Timestamp: f["timestamp"].GetNumberValue(),
	}
}

func phaseMap(p types.Phase) map[string]interface{} {
	return map[string]interface{}{"real": p.Re, "imag": p.Im}
}

func phaseOf(v *structpb.Value) types.Phase {
	f := v.GetStructValue().GetFields()
	return types.Phase{
		Re: f["real"].GetNumberValue(),
		Im: f["imag"].GetNumberValue(),
	}
}
