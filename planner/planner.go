// ABOUTME: Deterministic activity plan generation for one record
// ABOUTME: Seeded per-record PCG streams keep plans independent of scheduling order
package planner

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/harperreed/demogen/config"
	"github.com/harperreed/demogen/models"
)

var roleSlots = []string{
	models.RolePrimary,
	models.RoleEconomicBuyer,
	models.RoleChampion,
	models.RoleTechnicalBuyer,
}

// Planner generates reproducible activity plans. It is pure: the only inputs
// are the record, the seed, the config, and the generation time.
type Planner struct {
	cfg  config.ActivityConfig
	seed int64
}

// New validates the activity bounds and returns a planner. Invalid bounds are
// a ConfigError; a planner that constructs never fails to plan.
func New(cfg config.ActivityConfig, seed int64) (*Planner, error) {
	m := cfg.Meetings
	if m.PastMin < 0 || m.FutureMin < 0 || cfg.Emails.Min < 0 {
		return nil, &config.ConfigError{Field: "activity", Reason: "counts must be non-negative"}
	}
	if m.PastMin > m.PastMax || m.FutureMin > m.FutureMax || cfg.Emails.Min > cfg.Emails.Max {
		return nil, &config.ConfigError{Field: "activity", Reason: "min must not exceed max"}
	}
	if len(cfg.BusinessHours.Weekdays) == 0 || cfg.BusinessHours.StartHour >= cfg.BusinessHours.EndHour {
		return nil, &config.ConfigError{Field: "activity.business_hours", Reason: "empty mask"}
	}
	if len(m.DurationMinutes) == 0 {
		cfg.Meetings.DurationMinutes = []int{30}
	}
	return &Planner{cfg: cfg, seed: seed}, nil
}

// PlanningError reports malformed record input. It is scoped to the one
// record and never aborts other records.
type PlanningError struct {
	RecordID string
	Reason   string
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning %q: %s", e.RecordID, e.Reason)
}

// Plan generates the activity plan for record at the current time.
func (p *Planner) Plan(record models.Record) (models.ActivityPlan, error) {
	return p.PlanAt(record, time.Now().UTC())
}

// PlanAt generates the plan relative to an explicit generation time. Two calls
// with the same record, seed, config, and now produce identical plans.
func (p *Planner) PlanAt(record models.Record, now time.Time) (models.ActivityPlan, error) {
	if record.ID == "" {
		return models.ActivityPlan{}, &PlanningError{Reason: "record has no id"}
	}
	for _, c := range record.Contacts {
		if c.ID == "" {
			return models.ActivityPlan{}, &PlanningError{RecordID: record.ID, Reason: "contact with empty id"}
		}
	}
	rng := streamFor(p.seed, record.ID)

	numPast := drawCount(rng, p.cfg.Meetings.PastMin, p.cfg.Meetings.PastMax)
	numFuture := drawCount(rng, p.cfg.Meetings.FutureMin, p.cfg.Meetings.FutureMax)
	numEmails := drawCount(rng, p.cfg.Emails.Min, p.cfg.Emails.Max)

	pastDays := businessDays(now, -p.cfg.PastDays, p.cfg.BusinessHours)
	futureDays := businessDays(now, p.cfg.FutureDays, p.cfg.BusinessHours)

	plan := models.ActivityPlan{RecordID: record.ID}
	rr := 0

	for i := 0; i < numPast; i++ {
		plan.Meetings = append(plan.Meetings, p.meeting(rng, record, models.TimeframePast, pastDays, i, &rr))
	}
	for i := 0; i < numFuture; i++ {
		plan.Meetings = append(plan.Meetings, p.meeting(rng, record, models.TimeframeFuture, futureDays, numPast+i, &rr))
	}

	numPastEmails := int(float64(numEmails) * p.cfg.Emails.PastRatio)
	for i := 0; i < numEmails; i++ {
		tf := models.TimeframePast
		days := pastDays
		if i >= numPastEmails {
			tf = models.TimeframeFuture
			days = futureDays
		}
		plan.Emails = append(plan.Emails, p.email(rng, record, tf, days, i))
	}

	sort.SliceStable(plan.Meetings, func(a, b int) bool {
		return plan.Meetings[a].Start.Before(plan.Meetings[b].Start)
	})
	sort.SliceStable(plan.Emails, func(a, b int) bool {
		return plan.Emails[a].SentAt.Before(plan.Emails[b].SentAt)
	})
	return plan, nil
}

func (p *Planner) meeting(rng *rand.Rand, record models.Record, tf models.Timeframe, days []time.Time, idx int, rr *int) models.PlannedMeeting {
	subject := meetingSubjects[rng.IntN(len(meetingSubjects))]
	duration := p.cfg.Meetings.DurationMinutes[rng.IntN(len(p.cfg.Meetings.DurationMinutes))]
	start := p.slot(rng, days)
	return models.PlannedMeeting{
		Timeframe:    tf,
		Subject:      subject,
		Start:        start,
		End:          start.Add(time.Duration(duration) * time.Minute),
		Participants: p.participants(rng, record.Contacts, rr),
		ContentRef:   fmt.Sprintf("%s/%s/%d", models.KindMeeting, record.ID, idx),
	}
}

func (p *Planner) email(rng *rand.Rand, record models.Record, tf models.Timeframe, days []time.Time, idx int) models.PlannedEmail {
	subject := emailSubjects[rng.IntN(len(emailSubjects))]
	direction := models.DirectionOutbound
	if rng.IntN(2) == 1 {
		direction = models.DirectionInbound
	}
	return models.PlannedEmail{
		Timeframe:  tf,
		Direction:  direction,
		Subject:    subject,
		SentAt:     p.slot(rng, days),
		ContentRef: fmt.Sprintf("%s/%s/%d", models.KindEmail, record.ID, idx),
	}
}

// slot picks a day from the allowed set and an in-mask hour and minute.
func (p *Planner) slot(rng *rand.Rand, days []time.Time) time.Time {
	day := days[rng.IntN(len(days))]
	hour := p.cfg.BusinessHours.StartHour + rng.IntN(p.cfg.BusinessHours.EndHour-p.cfg.BusinessHours.StartHour)
	minute := rng.IntN(60)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
}

// participants assigns a subset of the record's contacts to role slots by
// round robin over the contact list. An empty contact list yields an empty
// participant set, not an error.
func (p *Planner) participants(rng *rand.Rand, contacts []models.Contact, rr *int) []models.Participant {
	if len(contacts) == 0 {
		return nil
	}
	n := rng.IntN(min(3, len(contacts))) + 1
	out := make([]models.Participant, 0, n)
	for j := 0; j < n; j++ {
		c := contacts[(*rr+j)%len(contacts)]
		out = append(out, models.Participant{ContactID: c.ID, Role: roleSlots[j%len(roleSlots)]})
	}
	*rr++
	return out
}

// Items returns the plan flattened to (kind, subject, time) tuples, sorted
// ascending across both kinds, for logging and diffing.
func Items(plan models.ActivityPlan) []models.PlannedItem {
	items := make([]models.PlannedItem, 0, len(plan.Meetings)+len(plan.Emails))
	for _, m := range plan.Meetings {
		items = append(items, models.PlannedItem{Kind: models.KindMeeting, Subject: m.Subject, ScheduledAt: m.Start})
	}
	for _, e := range plan.Emails {
		items = append(items, models.PlannedItem{Kind: models.KindEmail, Subject: e.Subject, ScheduledAt: e.SentAt})
	}
	sort.SliceStable(items, func(a, b int) bool {
		return items[a].ScheduledAt.Before(items[b].ScheduledAt)
	})
	return items
}

// Summarize counts the plan's contents for event logging.
func Summarize(plan models.ActivityPlan) models.PlanSummary {
	s := models.PlanSummary{RecordID: plan.RecordID}
	for _, m := range plan.Meetings {
		if m.Timeframe == models.TimeframePast {
			s.PastMeetings++
		} else {
			s.FutureMeetings++
		}
	}
	for _, e := range plan.Emails {
		if e.Timeframe == models.TimeframePast {
			s.PastEmails++
		} else {
			s.FutureEmails++
		}
	}
	return s
}

// streamFor derives an independent RNG stream from the run seed and record ID
// so plans are reproducible regardless of worker scheduling.
func streamFor(seed int64, recordID string) *rand.Rand {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", seed, recordID)))
	hi := binary.BigEndian.Uint64(sum[0:8])
	lo := binary.BigEndian.Uint64(sum[8:16])
	return rand.New(rand.NewPCG(hi, lo))
}

func drawCount(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}

// businessDays lists the mask-allowed days strictly on one side of now.
// span < 0 walks into the past, span > 0 into the future. If the window holds
// no allowed weekday, the nearest whole day on the right side is used so
// planning always terminates with a time on the correct side of now.
func businessDays(now time.Time, span int, mask config.BusinessHours) []time.Time {
	step := 1
	if span < 0 {
		step = -1
		span = -span
	}
	var days []time.Time
	for d := 1; d <= span; d++ {
		day := now.AddDate(0, 0, step*d)
		for _, wd := range mask.Weekdays {
			if day.Weekday() == wd {
				days = append(days, day)
				break
			}
		}
	}
	if len(days) == 0 {
		days = append(days, now.AddDate(0, 0, step))
	}
	return days
}
