package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mrhavens/becomingone/pkg/types"
)

// Condition is a parsed "field op value" rule expression.
//
// Numeric fields: coherence, self_model, phase_diff, mesh_coherence,
// mesh_nodes; operators > >= < <= ==.
// Boolean fields: collapsed, desynced, aligned, mesh_collapsed; operators
// == and != against true or false.
type Condition struct {
	Field     string
	Op        string
	Threshold float64
	Want      bool
	boolean   bool
}

var numericFields = map[string]bool{
	"coherence": true, "self_model": true, "phase_diff": true,
	"mesh_coherence": true, "mesh_nodes": true,
}

var boolFields = map[string]bool{
	"collapsed": true, "desynced": true, "aligned": true, "mesh_collapsed": true,
}

// ParseCondition parses expr.
func ParseCondition(expr string) (Condition, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return Condition{}, fmt.Errorf("condition %q: want \"field op value\"", expr)
	}
	c := Condition{Field: parts[0], Op: parts[1]}
	switch {
	case boolFields[c.Field]:
		if c.Op != "==" && c.Op != "!=" {
			return Condition{}, fmt.Errorf("condition %q: %s supports == and != only", expr, c.Field)
		}
		v, err := strconv.ParseBool(parts[2])
		if err != nil {
			return Condition{}, fmt.Errorf("condition %q: want true or false", expr)
		}
		c.Want, c.boolean = v, true
	case numericFields[c.Field]:
		switch c.Op {
		case ">", ">=", "<", "<=", "==":
		default:
			return Condition{}, fmt.Errorf("condition %q: unknown operator %q", expr, c.Op)
		}
		v, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return Condition{}, fmt.Errorf("condition %q: bad threshold %q", expr, parts[2])
		}
		c.Threshold = v
	default:
		return Condition{}, fmt.Errorf("condition %q: unknown field %q", expr, c.Field)
	}
	return c, nil
}

// Mesh reports whether the condition reads the merged mesh state.
func (c Condition) Mesh() bool { return strings.HasPrefix(c.Field, "mesh_") }

// EvalNode tests the condition against a node snapshot. It returns whether
// it fires and the observed value (1 or 0 for boolean fields).
func (c Condition) EvalNode(s types.Snapshot) (bool, float64) {
	st := s.State
	switch c.Field {
	case "coherence":
		return c.compare(st.Coherence)
	case "self_model":
		return c.compare(s.SelfModel)
	case "phase_diff":
		return c.compare(st.PhaseDiff)
	case "collapsed":
		return c.match(st.Collapsed)
	case "desynced":
		return c.match(st.Desynced)
	case "aligned":
		return c.match(st.Aligned)
	}
	return false, 0
}

// EvalMesh tests the condition against the merged mesh state.
func (c Condition) EvalMesh(m types.MeshState) (bool, float64) {
	switch c.Field {
	case "mesh_coherence":
		return c.compare(m.Coherence)
	case "mesh_nodes":
		return c.compare(float64(m.Nodes))
	case "mesh_collapsed":
		return c.match(m.Collapsed)
	}
	return false, 0
}

func (c Condition) compare(v float64) (bool, float64) {
	switch c.Op {
	case ">":
		return v > c.Threshold, v
	case ">=":
		return v >= c.Threshold, v
	case "<":
		return v < c.Threshold, v
	case "<=":
		return v <= c.Threshold, v
	case "==":
		return v == c.Threshold, v
	}
	return false, v
}

func (c Condition) match(v bool) (bool, float64) {
	f := 0.0
	if v {
		f = 1
	}
	if c.Op == "!=" {
		return v != c.Want, f
	}
	return v == c.Want, f
}
