package receiver

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mrhavens/becomingone/mesh/internal/alerts"
	"github.com/mrhavens/becomingone/mesh/internal/store"
	"github.com/mrhavens/becomingone/pkg/types"
	"github.com/mrhavens/becomingone/pkg/wire"
)

// Receiver implements wire.MeshServer.
type Receiver struct {
	wire.UnimplementedMeshServer
	store     *store.Store
	alerts    *alerts.Engine
	threshold float64
}

// New creates a Receiver that writes accepted snapshots to st and merges
// with the given coherence threshold. al may be nil.
func New(st *store.Store, al *alerts.Engine, threshold float64) *Receiver {
	return &Receiver{store: st, alerts: al, threshold: threshold}
}

// PushSnapshot is the unary RPC handler called by coherence nodes.
// Authentication is enforced by the server interceptor before this runs.
func (r *Receiver) PushSnapshot(ctx context.Context, msg *structpb.Struct) (*structpb.Struct, error) {
	snap, err := wire.DecodeSnapshot(msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	accepted := r.store.Put(snap)
	slog.Debug("receiver: snapshot",
		"node_id", snap.NodeID,
		"timestamp", snap.State.Timestamp,
		"coherence", snap.State.Coherence,
		"collapsed", snap.State.Collapsed,
		"accepted", accepted,
	)

	merged := r.Merged()
	if r.alerts != nil {
		if accepted {
			r.alerts.Evaluate(snap)
		}
		r.alerts.EvaluateMesh(merged)
	}

	resp, err := wire.EncodeMesh(merged)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return resp, nil
}

// Merged returns the merged state of all live nodes.
func (r *Receiver) Merged() types.MeshState {
	return r.store.Merge(r.threshold)
}
