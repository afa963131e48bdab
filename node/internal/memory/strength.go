package memory

// Strength classes a signature by the coherence it was stored with.
type Strength int

const (
	Transient Strength = iota
	Working
	Episodic
	Procedural
	Semantic
	Identity
)

var strengthNames = [...]string{"transient", "working", "episodic", "procedural", "semantic", "identity"}

func (s Strength) String() string {
	if s < Transient || s > Identity {
		return "unknown"
	}
	return strengthNames[s]
}

// StrengthOf maps a coherence value to its strength class.
func StrengthOf(coherence float64) Strength {
	switch {
	case coherence >= 0.95:
		return Identity
	case coherence >= 0.8:
		return Semantic
	case coherence >= 0.7:
		return Procedural
	case coherence >= 0.6:
		return Episodic
	case coherence >= 0.4:
		return Working
	default:
		return Transient
	}
}
