// Package integrator implements the temporal integrator that both engine
// pathways are built from.
//
// An Integrator keeps a ring of recent (timestamp, phase, velocity) entries
// spanning at most TauMax seconds of sample time. Each Update correlates the
// window against itself at a lag of half the effective window tau_eff:
//
//	R  = Σ conj(a(t)) · a(t − lag) · Δt
//	T  = Σ conj(a(t)) · a(t − lag) · e^{iωt} · Δt
//	Ea = Σ |a(t)|² Δt       Eb = Σ |a(t − lag)|² Δt
//	c  = |T|² / (Ea · Eb)   (0 when Re R <= 0)
//
// where a(t − lag) is the nearest older buffered sample. By Cauchy–Schwarz c
// lies in [0,1]. Shifting every timestamp by a constant only rotates T, so c
// does not depend on the absolute clock. A signal whose lagged copy points
// the other way has Re R <= 0 and reads 0. The returned phase is T/|T|.
//
// tau_eff grows by GrowthFactor while coherence stays at or above
// StabilizeFraction × Threshold (never beyond twice the buffered span) and
// shrinks back toward TauBase otherwise. A consistently coherent pathway
// accumulates a longer memory and a noisy one re-acquires quickly.
//
// NewMaster and NewEmissary return the slow and fast pathways with their
// default windows. An Integrator is not safe for concurrent use; the engine
// owns each instance and drives it from one goroutine per tick.
package integrator
