// ABOUTME: End-to-end tests for the seeding runner
// ABOUTME: Covers idempotent re-runs, failure isolation, reset, and concurrency
package runner

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/demogen/config"
	"github.com/harperreed/demogen/crm"
	"github.com/harperreed/demogen/ledger"
	"github.com/harperreed/demogen/runlog"
)

type fixture struct {
	res  *config.Resolved
	mock *crm.Mock
	db   *sql.DB
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.Activity.RealismLevel = config.RealismNone
	res := config.Resolve(cfg, t.TempDir())

	db, err := ledger.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &fixture{res: res, mock: crm.NewMock(), db: db}
}

// newRunner builds a runner with a fresh logger; each Run finalizes its
// logger, so re-runs need a new one.
func (f *fixture) newRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := New(f.res, f.mock, nil, f.db, runlog.NewDryRun(f.res.RunID))
	require.NoError(t, err)
	return r
}

func TestRunCreatesActivitiesAndScorecards(t *testing.T) {
	f := setupFixture(t)
	r := f.newRunner(t)

	stats, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, stats.RecordsSelected)
	assert.Zero(t, stats.Failures)
	// Planned items that collide on signature are skipped, so bound the
	// planned total rather than the created count per kind.
	planned := stats.MeetingsCreated + stats.EmailsCreated + stats.ActivitiesSkipped
	assert.GreaterOrEqual(t, planned, 10*(4+5)) // meeting and email minimums per record
	assert.Greater(t, stats.MeetingsCreated, 0)
	assert.Greater(t, stats.EmailsCreated, 0)
	assert.Equal(t, 10, stats.ScorecardsCreated)
	assert.Greater(t, stats.AnswersWritten, 0)
	assert.Greater(t, stats.Coverage, 0.0)
	assert.Equal(t, stats.MeetingsCreated+stats.EmailsCreated, f.mock.CreatedCount())

	rows, err := ledger.RecordsForRun(f.db, f.res.RunID)
	require.NoError(t, err)
	assert.Len(t, rows, stats.MeetingsCreated+stats.EmailsCreated)
}

func TestRerunSkipsEverything(t *testing.T) {
	f := setupFixture(t)

	first, err := f.newRunner(t).Run(context.Background())
	require.NoError(t, err)
	created := f.mock.CreatedCount()

	second, err := f.newRunner(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, created, f.mock.CreatedCount(), "re-run must not create remote duplicates")
	assert.Zero(t, second.MeetingsCreated)
	assert.Zero(t, second.EmailsCreated)
	assert.Zero(t, second.ScorecardsCreated)
	assert.Equal(t, first.RecordsSelected, second.RecordsSkipped)
}

func TestResumeSkipsRecordedSignatures(t *testing.T) {
	f := setupFixture(t)

	first, err := f.newRunner(t).Run(context.Background())
	require.NoError(t, err)
	created := f.mock.CreatedCount()

	// Simulate an interrupted run: the completion marks are gone but the
	// activity signatures survive.
	_, err = f.db.Exec("DELETE FROM processed_records WHERE run_id = ?", f.res.RunID)
	require.NoError(t, err)

	second, err := f.newRunner(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, created, f.mock.CreatedCount(), "resume must not re-create recorded activities")
	assert.Zero(t, second.MeetingsCreated)
	assert.Equal(t, first.MeetingsCreated+first.EmailsCreated+first.ActivitiesSkipped, second.ActivitiesSkipped)
	assert.Zero(t, second.ScorecardsCreated, "scorecards are skipped via their ledger rows")
}

func TestPersistenceFailureIsolated(t *testing.T) {
	f := setupFixture(t)
	f.mock.FailWith = errors.New("crm unavailable")

	r := f.newRunner(t)
	stats, err := r.Run(context.Background())
	require.NoError(t, err, "persistence failures never abort the run")

	assert.Zero(t, stats.MeetingsCreated)
	assert.Zero(t, stats.EmailsCreated)
	assert.Greater(t, stats.Failures, 0)

	// Nothing was recorded for the failed creates, so a later healthy run
	// still creates everything.
	rows, err := ledger.RecordsForRun(f.db, f.res.RunID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	f.mock.FailWith = nil
	healthy, err := f.newRunner(t).Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, healthy.MeetingsCreated, 0)
}

func TestReset(t *testing.T) {
	f := setupFixture(t)

	stats, err := f.newRunner(t).Run(context.Background())
	require.NoError(t, err)
	total := stats.MeetingsCreated + stats.EmailsCreated
	require.Greater(t, total, 0)

	r := f.newRunner(t)
	n, err := r.Reset(context.Background(), f.res.RunID)
	require.NoError(t, err)
	assert.Equal(t, total, n)
	assert.Equal(t, total, f.mock.DeletedCount())
	assert.Zero(t, f.mock.CreatedCount())

	rows, err := ledger.RecordsForRun(f.db, f.res.RunID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// After reset, a fresh run recreates from scratch.
	again, err := f.newRunner(t).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stats.MeetingsCreated, again.MeetingsCreated)
	assert.Equal(t, stats.EmailsCreated, again.EmailsCreated)
}

func TestRunDeterministicCounts(t *testing.T) {
	// Independent environments with the same seed and fixtures produce the
	// same structural output.
	a := setupFixture(t)
	b := setupFixture(t)

	sa, err := a.newRunner(t).Run(context.Background())
	require.NoError(t, err)
	sb, err := b.newRunner(t).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sa.MeetingsCreated, sb.MeetingsCreated)
	assert.Equal(t, sa.EmailsCreated, sb.EmailsCreated)
	assert.Equal(t, sa.AnswersWritten, sb.AnswersWritten)
	assert.Equal(t, sa.Coverage, sb.Coverage)
}

func TestRunConcurrencyDegreeIrrelevant(t *testing.T) {
	a := setupFixture(t)
	b := setupFixture(t)

	ra := a.newRunner(t)
	ra.Concurrency = 1
	rb := b.newRunner(t)
	rb.Concurrency = 8

	sa, err := ra.Run(context.Background())
	require.NoError(t, err)
	sb, err := rb.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sa.MeetingsCreated, sb.MeetingsCreated)
	assert.Equal(t, sa.EmailsCreated, sb.EmailsCreated)
}

func TestSmoke(t *testing.T) {
	f := setupFixture(t)
	r := f.newRunner(t)

	report, err := r.Smoke(context.Background(), "rec-003")
	require.NoError(t, err)

	assert.Equal(t, "rec-003", report.RecordID)
	assert.NotEmpty(t, report.MeetingID)
	assert.NotEmpty(t, report.MeetingSubject)
	assert.NotEmpty(t, report.EmailID)
	assert.NotEmpty(t, report.ScorecardID)
	assert.Greater(t, report.Score, 0.0)

	_, err = r.Smoke(context.Background(), "rec-nope")
	assert.Error(t, err)
}

func TestMaxRecords(t *testing.T) {
	f := setupFixture(t)
	r := f.newRunner(t)
	r.MaxRecords = 3

	stats, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RecordsSelected)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Scorecards.CoverageTarget = 2.0
	res := config.Resolve(cfg, t.TempDir())

	_, err := New(res, crm.NewMock(), nil, nil, runlog.NewDryRun(res.RunID))
	var cerr *config.ConfigError
	require.ErrorAs(t, err, &cerr)
}
