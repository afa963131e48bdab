package memory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mrhavens/becomingone/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS memory_signatures (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          REAL NOT NULL,
	phase_re    REAL NOT NULL,
	phase_im    REAL NOT NULL,
	coherence   REAL NOT NULL,
	weight      REAL NOT NULL,
	strength    TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_signatures_ts ON memory_signatures(ts);

CREATE TABLE IF NOT EXISTS witness_log (
	record_id           TEXT PRIMARY KEY,
	ts                  REAL NOT NULL,
	observed_coherence  REAL NOT NULL,
	self_model          REAL NOT NULL,
	created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_witness_log_ts ON witness_log(ts);
`

// WitnessEntry is a witness record as stored in the audit log.
type WitnessEntry struct {
	RecordID string `json:"record_id"`
	types.WitnessRecord
	CreatedAt time.Time `json:"created_at"`
}

// SQLiteBackend persists memory signatures and the witness audit log in one
// SQLite database. It implements Backend and witness.Recorder.
type SQLiteBackend struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
func OpenSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteBackend{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// Append inserts one signature.
func (b *SQLiteBackend) Append(sig types.MemorySignature) error {
	_, err := b.db.Exec(
		`INSERT INTO memory_signatures (ts, phase_re, phase_im, coherence, weight, strength, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sig.Timestamp, sig.Phase.Re, sig.Phase.Im, sig.Coherence, sig.Weight,
		StrengthOf(sig.Coherence).String(), b.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}
	return nil
}

// Prune deletes signatures and witness records stamped before cutoff.
func (b *SQLiteBackend) Prune(cutoff float64) (int, error) {
	tx, err := b.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM memory_signatures WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune signatures: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM witness_log WHERE ts < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("prune witness log: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Range returns signatures with from <= ts <= to, oldest first.
func (b *SQLiteBackend) Range(from, to float64) ([]types.MemorySignature, error) {
	rows, err := b.db.Query(
		`SELECT ts, phase_re, phase_im, coherence, weight
		 FROM memory_signatures WHERE ts >= ? AND ts <= ? ORDER BY ts, id`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()
	return scanSignatures(rows)
}

// LastSignatures returns the newest n signatures, oldest first.
func (b *SQLiteBackend) LastSignatures(n int) ([]types.MemorySignature, error) {
	rows, err := b.db.Query(
		`SELECT ts, phase_re, phase_im, coherence, weight FROM (
			SELECT id, ts, phase_re, phase_im, coherence, weight
			FROM memory_signatures ORDER BY ts DESC, id DESC LIMIT ?
		 ) ORDER BY ts, id`, n)
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()
	return scanSignatures(rows)
}

// RecordWitness appends a witness record to the audit log under a fresh id.
func (b *SQLiteBackend) RecordWitness(r types.WitnessRecord) error {
	_, err := b.db.Exec(
		`INSERT INTO witness_log (record_id, ts, observed_coherence, self_model, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), r.Timestamp, r.ObservedCoherence, r.SelfModel,
		b.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log witness: %w", err)
	}
	return nil
}

// WitnessRange returns audit entries with from <= ts <= to, oldest first.
func (b *SQLiteBackend) WitnessRange(from, to float64) ([]WitnessEntry, error) {
	rows, err := b.db.Query(
		`SELECT record_id, ts, observed_coherence, self_model, created_at
		 FROM witness_log WHERE ts >= ? AND ts <= ? ORDER BY ts`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query witness log: %w", err)
	}
	defer rows.Close()
	return scanWitness(rows)
}

// LastWitness returns the newest n audit entries, oldest first.
func (b *SQLiteBackend) LastWitness(n int) ([]WitnessEntry, error) {
	rows, err := b.db.Query(
		`SELECT record_id, ts, observed_coherence, self_model, created_at FROM (
			SELECT * FROM witness_log ORDER BY ts DESC LIMIT ?
		 ) ORDER BY ts`, n)
	if err != nil {
		return nil, fmt.Errorf("query witness log: %w", err)
	}
	defer rows.Close()
	return scanWitness(rows)
}

func scanSignatures(rows *sql.Rows) ([]types.MemorySignature, error) {
	var out []types.MemorySignature
	for rows.Next() {
		var s types.MemorySignature
		if err := rows.Scan(&s.Timestamp, &s.Phase.Re, &s.Phase.Im, &s.Coherence, &s.Weight); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanWitness(rows *sql.Rows) ([]WitnessEntry, error) {
	var out []WitnessEntry
	for rows.Next() {
		var e WitnessEntry
		var created string
		if err := rows.Scan(&e.RecordID, &e.Timestamp, &e.ObservedCoherence, &e.SelfModel, &created); err != nil {
			return nil, fmt.Errorf("scan witness: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}
