// Package witness implements the observational self-model that follows the
// synchronized engine state.
//
// Each observed TemporalState moves the self-model one step along a
// contraction:
//
//	self = clamp(β·coherence + (1−β)·self_prev, 0, 1)
//
// so two witnesses started from different self-models converge at rate
// (1−β)^n on the same input. Records are kept in a fixed-capacity ring and
// optionally forwarded to a Recorder for a durable audit trail. The layer
// never feeds back into the pathways or the synchronization layer.
//
// Stats summarises the most recent observed coherences (mean, population
// standard deviation, least-squares trend per record).
package witness
