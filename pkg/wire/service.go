package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully-qualified gRPC service name.
	ServiceName = "becomingone.mesh.v1.MeshService"

	// PushSnapshotMethod is the full method path of the PushSnapshot RPC.
	PushSnapshotMethod = "/" + ServiceName + "/PushSnapshot"
)

// MeshServer is the server API for MeshService.
type MeshServer interface {
	PushSnapshot(ctx context.Context, snap *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedMeshServer can be embedded to satisfy MeshServer.
type UnimplementedMeshServer struct{}

func (UnimplementedMeshServer) PushSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method PushSnapshot not implemented")
}

// MeshServiceDesc is the grpc.ServiceDesc for MeshService.
var MeshServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MeshServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PushSnapshot", Handler: pushSnapshotHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "becomingone/mesh/v1/mesh.proto",
}

// RegisterMeshServer registers srv on s.
func RegisterMeshServer(s grpc.ServiceRegistrar, srv MeshServer) {
	s.RegisterService(&MeshServiceDesc, srv)
}

func pushSnapshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(MeshServer).PushSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PushSnapshotMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(MeshServer).PushSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// MeshClient is the client API for MeshService.
type MeshClient interface {
	PushSnapshot(ctx context.Context, snap *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type meshClient struct {
	cc grpc.ClientConnInterface
}

// NewMeshClient returns a MeshClient bound to cc.
func NewMeshClient(cc grpc.ClientConnInterface) MeshClient {
	return &meshClient{cc: cc}
}

func (c *meshClient) PushSnapshot(ctx context.Context, snap *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PushSnapshotMethod, snap, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
