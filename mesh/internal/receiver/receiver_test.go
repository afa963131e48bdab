package receiver_test

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mrhavens/becomingone/mesh/internal/alerts"
	"github.com/mrhavens/becomingone/mesh/internal/auth"
	"github.com/mrhavens/becomingone/mesh/internal/config"
	"github.com/mrhavens/becomingone/mesh/internal/receiver"
	"github.com/mrhavens/becomingone/mesh/internal/store"
	"github.com/mrhavens/becomingone/pkg/types"
	"github.com/mrhavens/becomingone/pkg/wire"
)

// startServer starts a gRPC server on a random port and returns a connected
// client and the backing store.
func startServer(t *testing.T, interceptor grpc.UnaryServerInterceptor, al *alerts.Engine) (wire.MeshClient, *store.Store) {
	t.Helper()

	st := store.New(5 * time.Minute)
	rec := receiver.New(st, al, 0.8)

	srv := grpc.NewServer(grpc.UnaryInterceptor(interceptor))
	wire.RegisterMeshServer(srv, rec)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(lis) //nolint:errcheck
	t.Cleanup(func() {
		srv.Stop()
		lis.Close()
	})

	conn, err := grpc.NewClient(lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return wire.NewMeshClient(conn), st
}

func allowAll(ctx context.Context, req interface{}, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	return handler(ctx, req)
}

func encode(t *testing.T, node string, ts, coherence float64, collapsed bool) *structpb.Struct {
	t.Helper()
	msg, err := wire.EncodeSnapshot(types.Snapshot{
		NodeID: node,
		State: types.TemporalState{
			Phase:     types.Phase{Re: 1},
			Coherence: coherence,
			Collapsed: collapsed,
			Timestamp: ts,
		},
	})
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	return msg
}

func TestPushSnapshot_StoresAndMerges(t *testing.T) {
	client, st := startServer(t, allowAll, nil)
	ctx := context.Background()

	if _, err := client.PushSnapshot(ctx, encode(t, "a", 10, 0.9, true)); err != nil {
		t.Fatalf("PushSnapshot a: %v", err)
	}
	resp, err := client.PushSnapshot(ctx, encode(t, "b", 11, 0.95, true))
	if err != nil {
		t.Fatalf("PushSnapshot b: %v", err)
	}

	if st.Count() != 2 {
		t.Errorf("Count = %d, want 2", st.Count())
	}
	e, ok := st.Get("a")
	if !ok {
		t.Fatal("store.Get(a): not found")
	}
	if e.Snapshot.State.Coherence != 0.9 {
		t.Errorf("stored coherence = %v, want 0.9", e.Snapshot.State.Coherence)
	}

	mesh := wire.DecodeMesh(resp)
	if mesh.Nodes != 2 {
		t.Errorf("mesh Nodes = %d, want 2", mesh.Nodes)
	}
	if !mesh.Collapsed {
		t.Error("mesh Collapsed = false, want true")
	}
}

func TestPushSnapshot_StaleIgnored(t *testing.T) {
	client, st := startServer(t, allowAll, nil)
	ctx := context.Background()

	client.PushSnapshot(ctx, encode(t, "a", 20, 0.9, false)) //nolint:errcheck
	if _, err := client.PushSnapshot(ctx, encode(t, "a", 10, 0.1, false)); err != nil {
		t.Fatalf("stale push should not error: %v", err)
	}
	e, _ := st.Get("a")
	if e.Snapshot.State.Timestamp != 20 {
		t.Errorf("Timestamp = %v, want 20 (stale snapshot kept out)", e.Snapshot.State.Timestamp)
	}
}

func TestPushSnapshot_MissingNodeID(t *testing.T) {
	client, _ := startServer(t, allowAll, nil)
	_, err := client.PushSnapshot(context.Background(), encode(t, "", 1, 0.5, false))
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", code)
	}
}

func TestPushSnapshot_APIKey(t *testing.T) {
	client, st := startServer(t, auth.APIKeyInterceptor("apikey", "x-api-key", "secret"), nil)

	_, err := client.PushSnapshot(context.Background(), encode(t, "a", 1, 0.5, false))
	if code := status.Code(err); code != codes.Unauthenticated {
		t.Errorf("no key: code = %v, want Unauthenticated", code)
	}

	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", "secret")
	if _, err := client.PushSnapshot(ctx, encode(t, "a", 1, 0.5, false)); err != nil {
		t.Fatalf("with key: %v", err)
	}
	if st.Count() != 1 {
		t.Errorf("Count = %d, want 1", st.Count())
	}
}

func TestPushSnapshot_EvaluatesAlerts(t *testing.T) {
	al, err := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "low", Condition: "coherence < 0.3"},
		{Name: "lonely", Condition: "mesh_nodes < 2"},
	}})
	if err != nil {
		t.Fatalf("alerts.New: %v", err)
	}
	client, _ := startServer(t, allowAll, al)

	if _, err := client.PushSnapshot(context.Background(), encode(t, "a", 1, 0.1, false)); err != nil {
		t.Fatalf("PushSnapshot: %v", err)
	}
	if got := al.Firing(); got != 2 {
		t.Errorf("Firing = %d, want 2", got)
	}
	al.Wait()
}
