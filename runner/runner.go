// ABOUTME: Per-record seeding pipeline with a bounded worker pool
// ABOUTME: Plan, generate content, persist via CRM, record in ledger, score
package runner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harperreed/demogen/config"
	"github.com/harperreed/demogen/content"
	"github.com/harperreed/demogen/crm"
	"github.com/harperreed/demogen/ledger"
	"github.com/harperreed/demogen/models"
	"github.com/harperreed/demogen/planner"
	"github.com/harperreed/demogen/runlog"
	"github.com/harperreed/demogen/scorecard"
)

// Runner drives the seeding pipeline across selected records. Workers share
// nothing mutable except the ledger, whose check-and-insert is atomic.
type Runner struct {
	res     *config.Resolved
	crm     crm.Client
	gen     content.Generator
	planner *planner.Planner
	engine  *scorecard.Engine
	db      *sql.DB // nil in tag mode and dry runs
	log     *runlog.Logger

	Concurrency int
	MaxRecords  int
}

// New wires a runner. gen may be nil (no content generation); db may be nil
// (no local ledger). Config bound violations surface here as ConfigError.
func New(res *config.Resolved, crmClient crm.Client, gen content.Generator, db *sql.DB, log *runlog.Logger) (*Runner, error) {
	if err := res.Config.Validate(); err != nil {
		return nil, err
	}
	p, err := planner.New(res.Config.Activity, res.Config.Run.Seed)
	if err != nil {
		return nil, err
	}
	return &Runner{
		res:         res,
		crm:         crmClient,
		gen:         gen,
		planner:     p,
		engine:      scorecard.NewEngine(gen, res.Config.Run.Seed),
		db:          db,
		log:         log,
		Concurrency: 5,
		MaxRecords:  200,
	}, nil
}

// Run executes the pipeline over every selected record. Only record selection
// failures and cancellation abort the run; per-record failures are logged and
// isolated.
func (r *Runner) Run(ctx context.Context) (runlog.Stats, error) {
	records, err := r.crm.QueryRecords(ctx)
	if err != nil {
		r.log.Error("selection", err, true, nil)
		stats, _ := r.log.Finalize("failed")
		return stats, fmt.Errorf("runner: select records: %w", err)
	}
	if r.MaxRecords > 0 && len(records) > r.MaxRecords {
		records = records[:r.MaxRecords]
	}

	r.log.Add(func(s *runlog.Stats) { s.RecordsSelected = len(records) })
	for _, rec := range records {
		r.log.Event("record_selected", map[string]any{"record_id": rec.ID})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Concurrency)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			// Cancellation granularity is one record: a record that has
			// started runs to completion, the rest are abandoned.
			if err := gctx.Err(); err != nil {
				return err
			}
			r.processRecord(gctx, rec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		stats, ferr := r.log.Finalize("cancelled")
		if ferr != nil {
			return stats, ferr
		}
		return stats, err
	}

	return r.log.Finalize("completed")
}

func (r *Runner) processRecord(ctx context.Context, record models.Record) {
	if r.db != nil {
		done, err := ledger.RecordDone(r.db, r.res.RunID, record.ID)
		if err != nil {
			r.log.Error("ledger", err, true, map[string]any{"record_id": record.ID})
			return
		}
		if done {
			r.log.Event("record_skipped", map[string]any{"record_id": record.ID, "reason": "already_processed"})
			r.log.Add(func(s *runlog.Stats) { s.RecordsSkipped++ })
			return
		}
	}

	plan, err := r.planner.Plan(record)
	if err != nil {
		r.log.Error("planning", err, false, map[string]any{"record_id": record.ID})
		return
	}
	summary := planner.Summarize(plan)
	r.log.Event("plan_created", map[string]any{
		"record_id":       record.ID,
		"past_meetings":   summary.PastMeetings,
		"future_meetings": summary.FutureMeetings,
		"past_emails":     summary.PastEmails,
		"future_emails":   summary.FutureEmails,
	})

	clean := true
	for _, m := range plan.Meetings {
		ok, err := r.createMeeting(ctx, record, m)
		if err != nil {
			return
		}
		clean = clean && ok
	}
	for _, e := range plan.Emails {
		ok, err := r.createEmail(ctx, record, e)
		if err != nil {
			return
		}
		clean = clean && ok
	}

	clean = r.createScorecards(ctx, record) && clean

	// Only a clean pass marks the record done. A record with failed items
	// stays unmarked so the next run retries them; items that did succeed
	// are skipped by their signatures.
	if r.db != nil && clean {
		if err := ledger.MarkRecordDone(r.db, r.res.RunID, record.ID); err != nil {
			r.log.Error("ledger", err, true, map[string]any{"record_id": record.ID})
		}
	}
}

// createMeeting persists one planned meeting. A CRM failure is fatal for the
// item only and reported as ok=false; a ledger failure is fatal for the
// record (idempotency can no longer be guaranteed) and is returned.
func (r *Runner) createMeeting(ctx context.Context, record models.Record, m models.PlannedMeeting) (bool, error) {
	sig := ledger.Signature(models.KindMeeting, record.ID, m.Start, m.Subject)

	skip, err := r.alreadyRecorded(record.ID, sig)
	if err != nil {
		return false, err
	}
	if skip {
		return true, nil
	}

	var roles []string
	for _, p := range m.Participants {
		roles = append(roles, p.Role)
	}
	description := r.describe(ctx, record, content.KindMeetingNotes, content.Context{
		Subject:      m.Subject,
		RecordName:   record.Name,
		Stage:        record.Stage,
		Participants: roles,
		Timeframe:    string(m.Timeframe),
	})

	externalID, err := r.crm.CreateMeeting(ctx, record.ID, m, description)
	if err != nil {
		r.log.Error("persistence", err, true, map[string]any{
			"record_id": record.ID,
			"signature": sig,
			"kind":      models.KindMeeting,
		})
		return false, nil
	}

	if err := r.recordSignature(sig, record.ID, models.KindMeeting, externalID); err != nil {
		return false, err
	}

	r.log.Event("meeting_created", map[string]any{
		"record_id":   record.ID,
		"signature":   sig,
		"external_id": externalID,
		"timeframe":   m.Timeframe,
		"start":       m.Start.Format(time.RFC3339),
	})
	r.log.Add(func(s *runlog.Stats) { s.MeetingsCreated++ })
	return true, nil
}

func (r *Runner) createEmail(ctx context.Context, record models.Record, e models.PlannedEmail) (bool, error) {
	sig := ledger.Signature(models.KindEmail, record.ID, e.SentAt, e.Subject)

	skip, err := r.alreadyRecorded(record.ID, sig)
	if err != nil {
		return false, err
	}
	if skip {
		return true, nil
	}

	body := r.describe(ctx, record, content.KindEmailBody, content.Context{
		Subject:    e.Subject,
		RecordName: record.Name,
		Stage:      record.Stage,
		Timeframe:  string(e.Timeframe),
	})

	externalID, err := r.crm.CreateEmail(ctx, record.ID, e, body)
	if err != nil {
		r.log.Error("persistence", err, true, map[string]any{
			"record_id": record.ID,
			"signature": sig,
			"kind":      models.KindEmail,
		})
		return false, nil
	}

	if err := r.recordSignature(sig, record.ID, models.KindEmail, externalID); err != nil {
		return false, err
	}

	r.log.Event("email_created", map[string]any{
		"record_id":   record.ID,
		"signature":   sig,
		"external_id": externalID,
		"direction":   e.Direction,
		"sent_at":     e.SentAt.Format(time.RFC3339),
	})
	r.log.Add(func(s *runlog.Stats) { s.EmailsCreated++ })
	return true, nil
}

func (r *Runner) createScorecards(ctx context.Context, record models.Record) bool {
	clean := true
	opts := scorecard.Options{
		Mode:            r.res.Config.Scorecards.Mode,
		ConfidenceFloor: r.res.Config.Scorecards.ConfidenceFloor,
		CoverageTarget:  r.res.Config.Scorecards.CoverageTarget,
	}

	for _, name := range r.res.Config.Scorecards.Templates {
		if r.db != nil {
			has, err := ledger.HasScorecard(r.db, r.res.RunID, record.ID, name)
			if err != nil {
				r.log.Error("ledger", err, true, map[string]any{"record_id": record.ID})
				return false
			}
			if has {
				continue
			}
		}

		tpl, err := scorecard.Template(name)
		if err != nil {
			r.log.Error("scorecard", err, false, map[string]any{"record_id": record.ID, "template": name})
			continue
		}

		result := r.engine.Score(ctx, record, tpl, opts)

		externalID, err := r.crm.UpsertScorecard(ctx, result)
		if err != nil {
			r.log.Error("persistence", err, true, map[string]any{
				"record_id":    record.ID,
				"scorecard_id": result.ScorecardID,
			})
			clean = false
			continue
		}

		if r.db != nil {
			if err := ledger.RecordScorecard(r.db, r.res.RunID, record.ID, name, externalID); err != nil {
				r.log.Error("ledger", err, true, map[string]any{"record_id": record.ID})
				return false
			}
		}

		r.log.Event("scorecard_upserted", map[string]any{
			"record_id":    record.ID,
			"scorecard_id": externalID,
			"template":     name,
			"state":        result.State,
			"coverage":     result.Coverage,
		})
		r.log.Add(func(s *runlog.Stats) { s.ScorecardsCreated++ })

		for _, a := range result.Answers {
			r.log.Event("answer_written", map[string]any{
				"record_id":    record.ID,
				"scorecard_id": externalID,
				"question_id":  a.QuestionID,
				"confidence":   a.Confidence,
				"source":       a.Source,
			})
			r.log.Add(func(s *runlog.Stats) { s.AnswersWritten++ })
		}

		coverage := result.Coverage
		r.log.Add(func(s *runlog.Stats) {
			if coverage > s.Coverage {
				s.Coverage = coverage
			}
		})
	}
	return clean
}

// describe asks the content capability for free text, honoring the realism
// gate. Failure always degrades to no description, logged as a warning.
func (r *Runner) describe(ctx context.Context, record models.Record, kind content.Kind, cc content.Context) string {
	if r.gen == nil || r.res.Config.Activity.RealismLevel == config.RealismNone {
		return ""
	}
	text, err := r.gen.Generate(ctx, kind, cc)
	if err != nil {
		if !errors.Is(err, content.ErrUnavailable) {
			r.log.Event("content_fallback", map[string]any{"record_id": record.ID, "reason": err.Error()})
		}
		return ""
	}
	return text
}

func (r *Runner) alreadyRecorded(recordID, sig string) (bool, error) {
	if r.db == nil {
		return false, nil
	}
	exists, err := ledger.Exists(r.db, sig)
	if err != nil {
		r.log.Error("ledger", err, true, map[string]any{"record_id": recordID, "signature": sig})
		return false, err
	}
	if exists {
		r.log.Event("activity_skipped", map[string]any{"record_id": recordID, "signature": sig})
		r.log.Add(func(s *runlog.Stats) { s.ActivitiesSkipped++ })
		return true, nil
	}
	return false, nil
}

func (r *Runner) recordSignature(sig, recordID, kind, externalID string) error {
	if r.db == nil {
		return nil
	}
	if _, err := ledger.Record(r.db, sig, recordID, kind, externalID, r.res.RunID); err != nil {
		r.log.Error("ledger", err, true, map[string]any{"record_id": recordID, "signature": sig})
		return err
	}
	return nil
}
