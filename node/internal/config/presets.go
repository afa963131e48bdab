package config

import "fmt"

// preset holds the pathway and threshold values a named profile seeds.
type preset struct {
	masterBase, masterMax     float64
	emissaryBase, emissaryMax float64
	threshold                 float64
}

var presets = map[string]preset{
	// Slow reflection over a long conversation history, fast replies.
	"assistant": {60, 3600, 0.1, 10, 0.7},
	// Planning horizon of a minute, real-time control loop.
	"robot": {1, 60, 0.001, 0.1, 0.85},
	// Route planning against reaction time; high threshold for safety.
	"vehicle": {10, 600, 0.01, 1, 0.9},
	// Long experiments with quick pattern detection.
	"science": {3600, 86400, 0.1, 60, 0.75},
}

// Presets returns the names of the built-in engine presets.
func Presets() []string {
	return []string{"assistant", "robot", "vehicle", "science"}
}

// ApplyPreset overwrites the pathway windows and collapse threshold of e with
// the named preset.
func ApplyPreset(e *EngineConfig, name string) error {
	p, ok := presets[name]
	if !ok {
		return fmt.Errorf("unknown engine preset %q", name)
	}
	e.Preset = name
	e.MasterTauBase, e.MasterTauMax = p.masterBase, p.masterMax
	e.EmissaryTauBase, e.EmissaryTauMax = p.emissaryBase, p.emissaryMax
	e.CoherenceThreshold = p.threshold
	return nil
}
