package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"gsadv/internal"
)

// DB is the run journal: per-run counters, per-row outcomes and a
// small metadata table holding the resume cursor for each mode.
type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  mode TEXT NOT NULL,
  startRow INTEGER NOT NULL,
  endRow INTEGER NOT NULL,
  countsJson TEXT NOT NULL DEFAULT '{}',
  durationMs INTEGER NOT NULL DEFAULT 0,
  startedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  finishedAt TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_mode ON runs(mode);

CREATE TABLE IF NOT EXISTS row_outcomes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId INTEGER NOT NULL,
  rowIdx INTEGER NOT NULL,
  item TEXT,
  status TEXT NOT NULL,
  matches INTEGER NOT NULL DEFAULT 0,
  error TEXT,
  durationMs INTEGER NOT NULL DEFAULT 0,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(runId) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS idx_row_outcomes_run ON row_outcomes(runId);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) BeginRun(traceID, mode string, startRow, endRow int) (int64, error) {
	result, err := d.conn.Exec(`
INSERT INTO runs (traceId, mode, startRow, endRow) VALUES (?, ?, ?, ?)
`, traceID, mode, startRow, endRow)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) FinishRun(runID int64, checkpoint internal.RunCheckpoint, durationMs int64) error {
	counts := map[string]int{
		"matched":  checkpoint.Matched,
		"partial":  checkpoint.Partial,
		"notFound": checkpoint.NotFound,
		"skipped":  checkpoint.Skipped,
		"failed":   checkpoint.Failed,
	}
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`
UPDATE runs SET countsJson = ?, durationMs = ?, finishedAt = CURRENT_TIMESTAMP WHERE id = ?
`, string(countsJSON), durationMs, runID)
	return err
}

func (d *DB) InsertRowOutcome(runID int64, outcome internal.RowOutcome) error {
	_, err := d.conn.Exec(`
INSERT INTO row_outcomes (runId, rowIdx, item, status, matches, error, durationMs)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, runID, outcome.Index, outcome.Item, string(outcome.Status), outcome.Matches, outcome.Error, outcome.DurationMs)
	return err
}

func (d *DB) RunCounts(runID int64) (map[string]int, error) {
	var countsJSON string
	err := d.conn.QueryRow(`SELECT countsJson FROM runs WHERE id = ?`, runID).Scan(&countsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %d", runID)
	}
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	_ = json.Unmarshal([]byte(countsJSON), &counts)
	return counts, nil
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}
