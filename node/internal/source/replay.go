package source

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/mrhavens/becomingone/node/internal/config"
	"github.com/mrhavens/becomingone/node/internal/memory"
	"github.com/mrhavens/becomingone/pkg/types"
)

// Replay feeds back the memory signatures recorded in a SQLite store, oldest
// first, as samples carrying their stored phase and timestamp. Read returns
// io.EOF once every signature has been delivered.
type Replay struct {
	id    string
	sigs  []types.MemorySignature
	next  int
	delay time.Duration
}

// NewReplay loads every signature from cfg.Path. The file must exist.
func NewReplay(cfg config.InputConfig) (*Replay, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("replay %q: %w", cfg.ID, err)
	}
	db, err := memory.OpenSQLite(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("replay %q: %w", cfg.ID, err)
	}
	defer db.Close()

	sigs, err := db.Range(-math.MaxFloat64, math.MaxFloat64)
	if err != nil {
		return nil, fmt.Errorf("replay %q: %w", cfg.ID, err)
	}
	return &Replay{id: cfg.ID, sigs: sigs, delay: cfg.Interval}, nil
}

// Len returns the number of signatures not yet delivered.
func (r *Replay) Len() int { return len(r.sigs) - r.next }

// Read returns the next recorded sample, waiting the configured delay first.
func (r *Replay) Read(ctx context.Context) (types.Sample, error) {
	if r.next >= len(r.sigs) {
		return types.Sample{}, io.EOF
	}
	if r.delay > 0 && r.next > 0 {
		t := time.NewTimer(r.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return types.Sample{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return types.Sample{}, err
	}
	sig := r.sigs[r.next]
	r.next++
	return types.Sample{Phase: sig.Phase, Timestamp: sig.Timestamp}, nil
}
