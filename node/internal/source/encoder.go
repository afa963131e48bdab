package source

import (
	"fmt"
	"math"
	"sort"

	"github.com/mrhavens/becomingone/pkg/types"
)

// Encoder maps one scalar reading to a phase.
type Encoder func(v float64) types.Phase

var encoders = map[string]Encoder{
	"identity": func(v float64) types.Phase { return types.Phase{Re: v} },

	// Reading as an angle on the unit circle.
	"unit_angle": func(v float64) types.Phase { return types.Polar(1, v) },

	// Amplitude capped at 1, the raw sample carried as the angle term.
	"audio": func(v float64) types.Phase { return types.Phase{Re: math.Min(math.Abs(v), 1), Im: v} },

	// Barometric pressure normalised over 900–1000 hPa.
	"pressure": func(v float64) types.Phase { return types.Phase{Re: (v - 900) / 100} },

	// Any positive reading is a spike.
	"spike": func(v float64) types.Phase {
		if v > 0 {
			return types.Phase{Re: 1}
		}
		return types.Phase{}
	},

	// Amplitude capped at 1 at a fixed mid-band frequency.
	"vibration": func(v float64) types.Phase { return types.Phase{Re: math.Min(math.Abs(v), 1), Im: 0.5} },
}

// LookupEncoder returns the named encoder. The empty name is identity.
func LookupEncoder(name string) (Encoder, error) {
	if name == "" {
		name = "identity"
	}
	enc, ok := encoders[name]
	if !ok {
		return nil, fmt.Errorf("source: unknown encoder %q", name)
	}
	return enc, nil
}

// EncoderNames lists the registered encoders in sorted order.
func EncoderNames() []string {
	names := make([]string, 0, len(encoders))
	for n := range encoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
