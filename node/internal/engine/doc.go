// Package engine orchestrates one coherence engine instance.
//
// An Engine owns the Master and Emissary integrators, the synchronization
// layer, the witness and the memory store. Each tick takes one sample and
// runs, in order:
//
//	Master.Update ∥ Emissary.Update → join → Combine → Witness.Observe → Memory.Append
//
// then publishes the resulting TemporalState to callbacks and outputs.
//
// Lifecycle: Idle → Running (Run) → Stopped (Stop, or Run's context ending).
// A stopped engine never runs again. Stop waits for the in-flight tick.
//
// Samples from every registered Input share one bounded queue. When it is
// full the oldest queued sample is dropped, so under load the engine sees
// the most recent samples rather than blocking inputs. Run pops one sample
// per SyncInterval tick; Process drives a single tick synchronously and is
// meant for embedding and tests.
//
// Per-tick errors (rejected input, numeric overflow, storage failure) never
// stop the loop. They are logged, passed to OnError hooks and returned from
// Process joined together.
package engine
