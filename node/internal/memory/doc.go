// Package memory implements the BLEND memory store: an append-only,
// age-weighted history of synchronized states.
//
// Every appended state becomes a MemorySignature with insertion weight 1.
// The weight used for recall is derived at read time,
//
//	w(age) = exp(−age / half_life)
//
// so signatures are never mutated after insertion. Signatures older than
// max_age are pruned every PruneEvery appends rather than on each one.
//
// A Store may be backed by a Backend for durability (SQLiteBackend). The
// in-memory view is authoritative; backend failures surface as
// *types.StorageError and do not roll back the in-memory append.
//
// Signatures are classed by coherence into strengths, from Transient up to
// Identity, for display and filtering.
package memory
