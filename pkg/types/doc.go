// Package types defines shared Go types used by both the node and the mesh
// aggregator. These are the canonical in-memory representations of phase
// samples and synchronized coherence state, separate from the gRPC wire format
// in package wire.
//
// Phase is a fixed two-field complex value with magnitude and argument
// operations. TemporalState is the immutable per-tick snapshot produced by the
// synchronization layer. Merge combines remote Snapshots into a MeshState with
// a coherence-weighted average that is independent of delivery order and
// duplicate delivery.
//
// errors.go holds the error taxonomy shared by every component.
package types
