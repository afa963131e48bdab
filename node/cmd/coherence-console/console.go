package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mrhavens/becomingone/node/internal/engine"
	"github.com/mrhavens/becomingone/node/internal/source"
	"github.com/mrhavens/becomingone/pkg/types"
)

var errQuit = errors.New("quit")

type console struct {
	eng *engine.Engine
	enc source.Encoder
	dt  float64
	ts  float64
	out io.Writer
}

func newConsole(eng *engine.Engine, enc source.Encoder, dt float64, out io.Writer) *console {
	return &console{eng: eng, enc: enc, dt: dt, out: out}
}

// handle runs one input line: a command or a sample.
func (c *console) handle(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	if strings.HasPrefix(line, "/") {
		return c.command(strings.Fields(line))
	}

	p, err := parsePhase(line, c.enc)
	if err != nil {
		return err
	}
	c.ts += c.dt
	st, err := c.eng.Process(types.Sample{Phase: p, Timestamp: c.ts})
	if err != nil && errors.Is(err, types.ErrInput) {
		return err
	}
	marker := ""
	if st.Collapsed {
		marker = "  COLLAPSED"
	}
	if st.Desynced {
		marker += "  DESYNC"
	}
	fmt.Fprintf(c.out, "t=%.3f  coherence=%.4f  phase=%.4f%+.4fi%s\n",
		st.Timestamp, st.Coherence, st.Phase.Re, st.Phase.Im, marker)
	if err != nil {
		fmt.Fprintf(c.out, "warning: %v\n", err)
	}
	return nil
}

func (c *console) command(parts []string) error {
	switch parts[0] {
	case "/quit", "/exit", "/q":
		return errQuit

	case "/help", "/h":
		fmt.Fprintln(c.out, "re [im]       process one sample")
		fmt.Fprintln(c.out, "/state        current state and pathway windows")
		fmt.Fprintln(c.out, "/witness [n]  witness report and the last n records")
		fmt.Fprintln(c.out, "/recall       weighted memory recall")
		fmt.Fprintln(c.out, "/quit         exit")

	case "/state":
		st := c.eng.State()
		m, e := c.eng.Pathways()
		fmt.Fprintf(c.out, "coherence %.4f  collapsed %v  aligned %v  desynced %v  events %d\n",
			st.Coherence, st.Collapsed, st.Aligned, st.Desynced, c.eng.CollapseEvents())
		fmt.Fprintf(c.out, "master   tau %.4g  coherence %.4f  samples %d\n", m.TauEff, m.Coherence, m.Samples)
		fmt.Fprintf(c.out, "emissary tau %.4g  coherence %.4f  samples %d\n", e.TauEff, e.Coherence, e.Samples)

	case "/witness":
		n := 5
		if len(parts) > 1 {
			v, err := strconv.Atoi(parts[1])
			if err != nil || v <= 0 {
				return fmt.Errorf("/witness: n must be a positive integer")
			}
			n = v
		}
		w := c.eng.Witness()
		fmt.Fprint(c.out, w.Report())
		for _, r := range w.Records(n) {
			fmt.Fprintf(c.out, "  t=%.3f  observed %.4f  self-model %.4f\n", r.Timestamp, r.ObservedCoherence, r.SelfModel)
		}

	case "/recall":
		p := c.eng.Memory().Recall(c.ts)
		fmt.Fprintf(c.out, "recall %.4f%+.4fi  |%.4f|  from %d signatures\n",
			p.Re, p.Im, p.Abs(), c.eng.Memory().Len())

	default:
		return fmt.Errorf("unknown command %s", parts[0])
	}
	return nil
}

// parsePhase reads "re" or "re im".
func parsePhase(line string, enc source.Encoder) (types.Phase, error) {
	fields := strings.Fields(line)
	if len(fields) > 2 {
		return types.Phase{}, fmt.Errorf("expected \"re [im]\", got %d fields", len(fields))
	}
	re, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return types.Phase{}, fmt.Errorf("bad real part %q", fields[0])
	}
	if len(fields) == 1 {
		return enc(re), nil
	}
	im, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return types.Phase{}, fmt.Errorf("bad imaginary part %q", fields[1])
	}
	return types.Phase{Re: re, Im: im}, nil
}
