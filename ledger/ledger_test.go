// ABOUTME: Tests for the signature ledger
// ABOUTME: Covers idempotent record, concurrent safety, run queries, and reset
package ledger

import (
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestLedger(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSignatureStable(t *testing.T) {
	at := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	a := Signature("meeting", "rec-1", at, "Discovery Call")
	b := Signature("meeting", "rec-1", at, "Discovery Call")
	if a != b {
		t.Errorf("identical inputs produced different signatures: %s vs %s", a, b)
	}

	// Sub-minute jitter collapses to the same signature.
	c := Signature("meeting", "rec-1", at.Add(30*time.Second), "Discovery Call")
	if a != c {
		t.Error("sub-minute time difference changed the signature")
	}

	// Any derivation input change splits the signature.
	if a == Signature("email", "rec-1", at, "Discovery Call") {
		t.Error("kind change did not change signature")
	}
	if a == Signature("meeting", "rec-2", at, "Discovery Call") {
		t.Error("record change did not change signature")
	}
	if a == Signature("meeting", "rec-1", at.Add(time.Minute), "Discovery Call") {
		t.Error("minute change did not change signature")
	}
	if a == Signature("meeting", "rec-1", at, "Pricing Discussion") {
		t.Error("subject change did not change signature")
	}
}

func TestRecordIdempotent(t *testing.T) {
	db := setupTestLedger(t)
	sig := Signature("meeting", "rec-1", time.Now(), "Discovery Call")

	exists, err := Exists(db, sig)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Fatal("signature exists before any Record")
	}

	first, err := Record(db, sig, "rec-1", "meeting", "ext-001", "run-a")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if first.ExternalID != "ext-001" {
		t.Errorf("Expected ext-001, got %s", first.ExternalID)
	}

	exists, err = Exists(db, sig)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("signature missing after Record")
	}

	// Second record attempt returns the original row unchanged.
	second, err := Record(db, sig, "rec-1", "meeting", "ext-OTHER", "run-b")
	if err != nil {
		t.Fatalf("Second Record failed: %v", err)
	}
	if second.ExternalID != "ext-001" {
		t.Errorf("Duplicate record returned %s, want ext-001", second.ExternalID)
	}
	if second.RunID != "run-a" {
		t.Errorf("Duplicate record returned run %s, want run-a", second.RunID)
	}

	rows, err := RecordsForRun(db, "run-a")
	if err != nil {
		t.Fatalf("RecordsForRun failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected exactly one row, got %d", len(rows))
	}
}

func TestRecordConcurrent(t *testing.T) {
	db := setupTestLedger(t)
	sig := Signature("email", "rec-9", time.Now(), "Proposal for review")

	const workers = 16
	externalIDs := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := Record(db, sig, "rec-9", "email", "ext-"+string(rune('a'+i)), "run-c")
			if err != nil {
				t.Errorf("concurrent Record failed: %v", err)
				return
			}
			externalIDs[i] = rec.ExternalID
		}(i)
	}
	wg.Wait()

	// All callers observed the same winner.
	for i := 1; i < workers; i++ {
		if externalIDs[i] != externalIDs[0] {
			t.Errorf("caller %d saw %s, caller 0 saw %s", i, externalIDs[i], externalIDs[0])
		}
	}

	rows, err := RecordsForRun(db, "run-c")
	if err != nil {
		t.Fatalf("RecordsForRun failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("Expected exactly one persisted row, got %d", len(rows))
	}
}

func TestDeleteByRun(t *testing.T) {
	db := setupTestLedger(t)
	now := time.Now()

	var sigs []string
	for _, subject := range []string{"Discovery Call", "Product Demo", "Pricing Discussion"} {
		sig := Signature("meeting", "rec-1", now, subject)
		sigs = append(sigs, sig)
		if _, err := Record(db, sig, "rec-1", "meeting", "ext-"+subject, "run-x"); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	otherSig := Signature("meeting", "rec-2", now, "Discovery Call")
	if _, err := Record(db, otherSig, "rec-2", "meeting", "ext-z", "run-y"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	n, err := DeleteByRun(db, "run-x")
	if err != nil {
		t.Fatalf("DeleteByRun failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 deleted, got %d", n)
	}

	rows, err := RecordsForRun(db, "run-x")
	if err != nil {
		t.Fatalf("RecordsForRun failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("Expected no rows after reset, got %d", len(rows))
	}
	for _, sig := range sigs {
		exists, err := Exists(db, sig)
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if exists {
			t.Errorf("signature %s survived reset", sig)
		}
	}

	// Other runs are untouched.
	exists, err := Exists(db, otherSig)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("reset of run-x deleted run-y's row")
	}
}

func TestProcessedRecords(t *testing.T) {
	db := setupTestLedger(t)

	done, err := RecordDone(db, "run-a", "rec-1")
	if err != nil {
		t.Fatalf("RecordDone failed: %v", err)
	}
	if done {
		t.Error("record done before MarkRecordDone")
	}

	if err := MarkRecordDone(db, "run-a", "rec-1"); err != nil {
		t.Fatalf("MarkRecordDone failed: %v", err)
	}
	if err := MarkRecordDone(db, "run-a", "rec-1"); err != nil {
		t.Fatalf("Repeated MarkRecordDone failed: %v", err)
	}

	done, err = RecordDone(db, "run-a", "rec-1")
	if err != nil {
		t.Fatalf("RecordDone failed: %v", err)
	}
	if !done {
		t.Error("record not done after MarkRecordDone")
	}

	// Scoped by run.
	done, err = RecordDone(db, "run-b", "rec-1")
	if err != nil {
		t.Fatalf("RecordDone failed: %v", err)
	}
	if done {
		t.Error("done mark leaked across runs")
	}
}

func TestScorecardRows(t *testing.T) {
	db := setupTestLedger(t)

	has, err := HasScorecard(db, "run-a", "rec-1", "MEDDICC")
	if err != nil {
		t.Fatalf("HasScorecard failed: %v", err)
	}
	if has {
		t.Error("scorecard present before RecordScorecard")
	}

	if err := RecordScorecard(db, "run-a", "rec-1", "MEDDICC", "sc_rec-1_meddicc"); err != nil {
		t.Fatalf("RecordScorecard failed: %v", err)
	}

	has, err = HasScorecard(db, "run-a", "rec-1", "MEDDICC")
	if err != nil {
		t.Fatalf("HasScorecard failed: %v", err)
	}
	if !has {
		t.Error("scorecard missing after RecordScorecard")
	}
}
