// Package wire defines the gRPC MeshService used by nodes to push their
// synchronized state to a mesh aggregator, and the conversion between
// types.Snapshot / types.MeshState and their structpb.Struct encodings.
//
// The service has one unary RPC:
//
//	/becomingone.mesh.v1.MeshService/PushSnapshot(Struct) returns (Struct)
//
// The request carries one node Snapshot; the response carries the
// aggregator's current merged MeshState so a push doubles as a pull.
// Messages are google.protobuf.Struct values, so the default proto codec
// handles them without generated message types.
package wire
