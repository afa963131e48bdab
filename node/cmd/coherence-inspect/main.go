// Command coherence-inspect lists memory signatures or witness audit entries
// from a node's SQLite database.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mrhavens/becomingone/node/internal/memory"
	"github.com/mrhavens/becomingone/pkg/types"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "coherence-inspect:", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("coherence-inspect", flag.ContinueOnError)
	dbPath := fs.String("db", "", "path to the node SQLite database (required)")
	last := fs.Int("last", 20, "show the newest n entries when no range is given")
	from := fs.Float64("from", math.NaN(), "range start, sample-clock seconds")
	to := fs.Float64("to", math.NaN(), "range end, sample-clock seconds")
	witness := fs.Bool("witness", false, "list the witness audit log instead of memory signatures")
	asJSON := fs.Bool("json", false, "emit JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" {
		return errors.New("-db is required")
	}
	if _, err := os.Stat(*dbPath); err != nil {
		return err
	}
	if *last <= 0 {
		return errors.New("-last must be positive")
	}

	db, err := memory.OpenSQLite(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ranged := !math.IsNaN(*from) || !math.IsNaN(*to)
	lo, hi := -math.MaxFloat64, math.MaxFloat64
	if !math.IsNaN(*from) {
		lo = *from
	}
	if !math.IsNaN(*to) {
		hi = *to
	}
	if lo > hi {
		return errors.New("-from must not exceed -to")
	}

	if *witness {
		var entries []memory.WitnessEntry
		if ranged {
			entries, err = db.WitnessRange(lo, hi)
		} else {
			entries, err = db.LastWitness(*last)
		}
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(out, entries)
		}
		return witnessTable(out, entries)
	}

	var sigs []types.MemorySignature
	if ranged {
		sigs, err = db.Range(lo, hi)
	} else {
		sigs, err = db.LastSignatures(*last)
	}
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(out, sigs)
	}
	return signatureTable(out, sigs)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func signatureTable(out io.Writer, sigs []types.MemorySignature) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tTIME\tPHASE\tCOHERENCE\tSTRENGTH")
	for _, s := range sigs {
		fmt.Fprintf(tw, "%.3f\t%s\t%.4f%+.4fi\t%.4f\t%s\n",
			s.Timestamp, types.Time(s.Timestamp).Format(time.RFC3339),
			s.Phase.Re, s.Phase.Im, s.Coherence, memory.StrengthOf(s.Coherence))
	}
	fmt.Fprintf(tw, "(%d signatures)\n", len(sigs))
	return tw.Flush()
}

func witnessTable(out io.Writer, entries []memory.WitnessEntry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIMESTAMP\tOBSERVED\tSELF-MODEL\tRECORD")
	for _, e := range entries {
		fmt.Fprintf(tw, "%.3f\t%.4f\t%.4f\t%s\n", e.Timestamp, e.ObservedCoherence, e.SelfModel, e.RecordID)
	}
	fmt.Fprintf(tw, "(%d records)\n", len(entries))
	return tw.Flush()
}
