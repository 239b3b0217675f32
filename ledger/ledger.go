// ABOUTME: SQLite-backed idempotency ledger over activity signatures
// ABOUTME: Atomic insert-or-ignore gives at-most-once creation under concurrency
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harperreed/demogen/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS activities (
	signature TEXT PRIMARY KEY,
	record_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	external_id TEXT NOT NULL,
	run_id TEXT NOT NULL,
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_run_id ON activities(run_id);
CREATE INDEX IF NOT EXISTS idx_activities_record_id ON activities(record_id);

CREATE TABLE IF NOT EXISTS processed_records (
	run_id TEXT NOT NULL,
	record_id TEXT NOT NULL,
	done_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, record_id)
);

CREATE TABLE IF NOT EXISTS scorecards (
	run_id TEXT NOT NULL,
	record_id TEXT NOT NULL,
	template TEXT NOT NULL,
	scorecard_id TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, record_id, template)
);
`

// Open opens (creating if needed) the ledger database at path. The ledger
// survives process restarts; an interrupted run resumes by re-running with
// the same seed.
func Open(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ledger: ensure dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}

	// Single connection avoids SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)

	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitSchema creates the ledger tables.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("ledger: init schema: %w", err)
	}
	return nil
}

// Exists reports whether a signature has already been recorded.
func Exists(db *sql.DB, signature string) (bool, error) {
	var one int
	err := db.QueryRow("SELECT 1 FROM activities WHERE signature = ?", signature).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: exists: %w", err)
	}
	return true, nil
}

// Record inserts the signature if absent and returns the row that holds it.
// Concurrent callers recording the same signature all observe the row of
// whichever insert won; no duplicate row is ever created.
func Record(db *sql.DB, signature, recordID, kind, externalID, runID string) (models.LedgerRecord, error) {
	tx, err := db.Begin()
	if err != nil {
		return models.LedgerRecord{}, fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO activities (signature, record_id, kind, external_id, run_id, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, signature, recordID, kind, externalID, runID, time.Now().UTC())
	if err != nil {
		return models.LedgerRecord{}, fmt.Errorf("ledger: record %s: %w", signature, err)
	}

	rec, err := scanRecord(tx.QueryRow(`
		SELECT signature, record_id, kind, external_id, run_id, recorded_at
		FROM activities WHERE signature = ?
	`, signature))
	if err != nil {
		return models.LedgerRecord{}, fmt.Errorf("ledger: reread %s: %w", signature, err)
	}

	if err := tx.Commit(); err != nil {
		return models.LedgerRecord{}, fmt.Errorf("ledger: commit: %w", err)
	}
	return rec, nil
}

// RecordsForRun returns every activity row recorded under runID.
func RecordsForRun(db *sql.DB, runID string) ([]models.LedgerRecord, error) {
	rows, err := db.Query(`
		SELECT signature, record_id, kind, external_id, run_id, recorded_at
		FROM activities WHERE run_id = ?
		ORDER BY recorded_at ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: records for run: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ledger: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteByRun removes every ledger row for a run and returns the count.
// Remote record deletion is the caller's job and must happen first.
func DeleteByRun(db *sql.DB, runID string) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec("DELETE FROM activities WHERE run_id = ?", runID)
	if err != nil {
		return 0, fmt.Errorf("ledger: delete activities: %w", err)
	}
	n, _ := res.RowsAffected()

	if _, err := tx.Exec("DELETE FROM processed_records WHERE run_id = ?", runID); err != nil {
		return 0, fmt.Errorf("ledger: delete processed records: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM scorecards WHERE run_id = ?", runID); err != nil {
		return 0, fmt.Errorf("ledger: delete scorecards: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("ledger: commit: %w", err)
	}
	return int(n), nil
}

// MarkRecordDone notes that a record's full pipeline completed under runID.
func MarkRecordDone(db *sql.DB, runID, recordID string) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO processed_records (run_id, record_id, done_at)
		VALUES (?, ?, ?)
	`, runID, recordID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ledger: mark record done: %w", err)
	}
	return nil
}

// RecordDone reports whether the record already completed under runID.
func RecordDone(db *sql.DB, runID, recordID string) (bool, error) {
	var one int
	err := db.QueryRow(
		"SELECT 1 FROM processed_records WHERE run_id = ? AND record_id = ?",
		runID, recordID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: record done: %w", err)
	}
	return true, nil
}

// RecordScorecard notes a persisted scorecard so resumed runs skip it.
func RecordScorecard(db *sql.DB, runID, recordID, template, scorecardID string) error {
	_, err := db.Exec(`
		INSERT OR IGNORE INTO scorecards (run_id, record_id, template, scorecard_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, recordID, template, scorecardID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("ledger: record scorecard: %w", err)
	}
	return nil
}

// HasScorecard reports whether a scorecard for (record, template) exists
// under runID.
func HasScorecard(db *sql.DB, runID, recordID, template string) (bool, error) {
	var one int
	err := db.QueryRow(
		"SELECT 1 FROM scorecards WHERE run_id = ? AND record_id = ? AND template = ?",
		runID, recordID, template,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger: has scorecard: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (models.LedgerRecord, error) {
	var rec models.LedgerRecord
	err := row.Scan(&rec.Signature, &rec.RecordID, &rec.Kind, &rec.ExternalID, &rec.RunID, &rec.RecordedAt)
	return rec, err
}
