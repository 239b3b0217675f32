// ABOUTME: Run reset and single-record smoke test
// ABOUTME: Reset deletes remote activities first, then the ledger rows
package runner

import (
	"context"
	"fmt"

	"github.com/harperreed/demogen/ledger"
	"github.com/harperreed/demogen/models"
	"github.com/harperreed/demogen/scorecard"
)

// Reset removes everything a previous run created: remote activities through
// the CRM, then the run's ledger rows. If any remote delete fails the ledger
// rows are kept so the reset can be retried.
func (r *Runner) Reset(ctx context.Context, runID string) (int, error) {
	if r.db == nil {
		return 0, fmt.Errorf("runner: reset requires the external_state idempotency mode")
	}

	records, err := ledger.RecordsForRun(r.db, runID)
	if err != nil {
		return 0, err
	}

	failures := 0
	for _, rec := range records {
		if err := r.crm.DeleteActivity(ctx, rec.Kind, rec.ExternalID); err != nil {
			failures++
			r.log.Error("reset", err, true, map[string]any{
				"record_id": rec.RecordID,
				"signature": rec.Signature,
			})
		}
	}
	if failures > 0 {
		return 0, fmt.Errorf("runner: reset: %d remote deletes failed, ledger kept for retry", failures)
	}

	n, err := ledger.DeleteByRun(r.db, runID)
	if err != nil {
		return 0, err
	}
	r.log.Event("run_reset", map[string]any{"reset_run_id": runID, "deleted": n})
	return n, nil
}

// SmokeReport is the outcome of a single-record end-to-end check.
type SmokeReport struct {
	RecordID       string  `json:"record_id"`
	MeetingID      string  `json:"meeting_id,omitempty"`
	MeetingSubject string  `json:"meeting_subject,omitempty"`
	EmailID        string  `json:"email_id,omitempty"`
	EmailSubject   string  `json:"email_subject,omitempty"`
	ScorecardID    string  `json:"scorecard_id"`
	Score          float64 `json:"score"`
}

// Smoke runs one record through plan, first-item persistence, and scoring.
func (r *Runner) Smoke(ctx context.Context, recordID string) (*SmokeReport, error) {
	records, err := r.crm.QueryRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("runner: smoke: %w", err)
	}

	var target *models.Record
	for i := range records {
		if records[i].ID == recordID {
			target = &records[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("runner: smoke: record %q not in query results", recordID)
	}

	plan, err := r.planner.Plan(*target)
	if err != nil {
		return nil, err
	}

	report := &SmokeReport{RecordID: recordID}

	if len(plan.Meetings) > 0 {
		m := plan.Meetings[0]
		id, err := r.crm.CreateMeeting(ctx, recordID, m, "")
		if err != nil {
			return nil, fmt.Errorf("runner: smoke meeting: %w", err)
		}
		report.MeetingID = id
		report.MeetingSubject = m.Subject
	}
	if len(plan.Emails) > 0 {
		e := plan.Emails[0]
		id, err := r.crm.CreateEmail(ctx, recordID, e, "")
		if err != nil {
			return nil, fmt.Errorf("runner: smoke email: %w", err)
		}
		report.EmailID = id
		report.EmailSubject = e.Subject
	}

	name := r.res.Config.Scorecards.Templates[0]
	tpl, err := scorecard.Template(name)
	if err != nil {
		return nil, err
	}
	result := r.engine.Score(ctx, *target, tpl, scorecard.Options{
		Mode:            r.res.Config.Scorecards.Mode,
		ConfidenceFloor: r.res.Config.Scorecards.ConfidenceFloor,
		CoverageTarget:  r.res.Config.Scorecards.CoverageTarget,
	})
	report.ScorecardID = result.ScorecardID
	report.Score = result.Score

	return report, nil
}
