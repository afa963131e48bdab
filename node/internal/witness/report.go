package witness

import (
	"fmt"
	"strings"
)

// Report renders a short human-readable summary of the witness state.
func (l *Layer) Report() string {
	s := l.Stats(0)
	direction := "steady"
	switch {
	case s.Trend > 0.001:
		direction = "rising"
	case s.Trend < -0.001:
		direction = "falling"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "self-model %.3f after %d observations\n", s.SelfModel, l.Total())
	fmt.Fprintf(&b, "last %d: mean %.3f  std %.3f  trend %+.4f (%s)\n",
		s.Count, s.Mean, s.StdDev, s.Trend, direction)
	return b.String()
}
