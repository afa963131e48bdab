package types

import "sort"

// MeshState is the merged view of every known node snapshot.
type MeshState struct {
	Phase     Phase   `json:"phase"`
	Coherence float64 `json:"coherence"`
	Collapsed bool    `json:"collapsed"`
	Nodes     int     `json:"nodes"`
	Timestamp float64 `json:"timestamp"`
}

// Merge combines snapshots into one MeshState using the weighted average of
// the synchronization layer, weighting each node by its own coherence.
//
// Only the newest snapshot per NodeID takes part, so duplicate deliveries
// and stale re-deliveries do not change the result. Nodes are summed in
// NodeID order, which makes the result independent of argument order.
// When every node reports zero coherence the nodes are weighted equally.
func Merge(threshold float64, snaps ...Snapshot) MeshState {
	latest := make(map[string]Snapshot, len(snaps))
	for _, s := range snaps {
		cur, ok := latest[s.NodeID]
		if !ok || Newer(s, cur) {
			latest[s.NodeID] = s
		}
	}
	if len(latest) == 0 {
		return MeshState{}
	}

	ids := make([]string, 0, len(latest))
	for id := range latest {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var wsum float64
	for _, id := range ids {
		wsum += Clamp01(latest[id].State.Coherence)
	}
	equal := wsum == 0
	if equal {
		wsum = float64(len(ids))
	}

	var out MeshState
	for _, id := range ids {
		st := latest[id].State
		w := Clamp01(st.Coherence)
		if equal {
			w = 1
		}
		w /= wsum
		out.Phase = out.Phase.Add(st.Phase.Scale(w))
		out.Coherence += w * Clamp01(st.Coherence)
		if st.Timestamp > out.Timestamp {
			out.Timestamp = st.Timestamp
		}
	}
	out.Coherence = Clamp01(out.Coherence)
	out.Collapsed = out.Coherence >= threshold
	out.Nodes = len(ids)
	return out
}

// Newer orders two snapshots of the same node. Later timestamps win; equal
// timestamps fall back to a total order on the payload so the choice does not
// depend on arrival order.
func Newer(a, b Snapshot) bool {
	if a.State.Timestamp != b.State.Timestamp {
		return a.State.Timestamp > b.State.Timestamp
	}
	if a.State.Coherence != b.State.Coherence {
		return a.State.Coherence > b.State.Coherence
	}
	if a.State.Phase.Re != b.State.Phase.Re {
		return a.State.Phase.Re > b.State.Phase.Re
	}
	if a.State.Phase.Im != b.State.Phase.Im {
		return a.State.Phase.Im > b.State.Phase.Im
	}
	return a.SelfModel > b.SelfModel
}
