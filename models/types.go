// ABOUTME: Data models for CRM seeding entities
// ABOUTME: Defines Record, planned activities, ledger rows, and scorecard types
package models

import (
	"time"
)

// Record is an immutable snapshot of the CRM business record being enriched.
type Record struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Stage     string    `json:"stage"`
	Amount    int64     `json:"amount,omitempty"` // in cents
	CloseDate time.Time `json:"close_date"`
	OwnerID   string    `json:"owner_id"`
	Contacts  []Contact `json:"contacts,omitempty"`
}

// Contact is one person associated with a Record, in priority order.
type Contact struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	RoleHint string `json:"role_hint,omitempty"`
}

// Timeframe says whether a planned activity lands before or after generation time.
type Timeframe string

const (
	TimeframePast   Timeframe = "past"
	TimeframeFuture Timeframe = "future"
)

// Direction of a planned email relative to the record owner.
type Direction string

const (
	DirectionOutbound Direction = "outbound"
	DirectionInbound  Direction = "inbound"
)

// ActivityKind constants used in signatures and ledger rows.
const (
	KindMeeting = "meeting"
	KindEmail   = "email"
)

// Participant is a contact assigned to a role slot on a meeting.
type Participant struct {
	ContactID string `json:"contact_id"`
	Role      string `json:"role"`
}

// Participant role slots.
const (
	RolePrimary        = "primary"
	RoleEconomicBuyer  = "economic_buyer"
	RoleChampion       = "champion"
	RoleTechnicalBuyer = "technical_buyer"
)

// PlannedMeeting is one meeting in an activity plan.
type PlannedMeeting struct {
	Timeframe    Timeframe     `json:"timeframe"`
	Subject      string        `json:"subject"`
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	Participants []Participant `json:"participants"`
	ContentRef   string        `json:"content_ref,omitempty"`
}

// PlannedEmail is one email in an activity plan.
type PlannedEmail struct {
	Timeframe  Timeframe `json:"timeframe"`
	Direction  Direction `json:"direction"`
	Subject    string    `json:"subject"`
	SentAt     time.Time `json:"sent_at"`
	ContentRef string    `json:"content_ref,omitempty"`
}

// PlannedItem is the view of one plan entry shared by meetings and emails,
// used for signature derivation and ordering.
type PlannedItem struct {
	Kind        string    `json:"kind"`
	Subject     string    `json:"subject"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

// ActivityPlan is the full set of planned activities for one record,
// sorted ascending by scheduled time across both kinds.
type ActivityPlan struct {
	RecordID string           `json:"record_id"`
	Meetings []PlannedMeeting `json:"meetings"`
	Emails   []PlannedEmail   `json:"emails"`
}

// PlanSummary counts the contents of a plan for logging.
type PlanSummary struct {
	RecordID       string `json:"record_id"`
	PastMeetings   int    `json:"past_meetings"`
	FutureMeetings int    `json:"future_meetings"`
	PastEmails     int    `json:"past_emails"`
	FutureEmails   int    `json:"future_emails"`
}

// LedgerRecord is one idempotency row: a signature that has been persisted.
type LedgerRecord struct {
	Signature  string    `json:"signature"`
	RecordID   string    `json:"record_id"`
	Kind       string    `json:"kind"`
	ExternalID string    `json:"external_id"`
	RunID      string    `json:"run_id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Question is one entry in a scorecard template.
type Question struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Weight   float64 `json:"weight"`
	Prompt   string  `json:"prompt"`
}

// ScorecardTemplate is a named, ordered question set.
type ScorecardTemplate struct {
	Name      string     `json:"name"`
	Questions []Question `json:"questions"`
}

// AnswerSource says where a scorecard answer's text came from.
type AnswerSource string

const (
	SourceExternal  AnswerSource = "external"
	SourceHeuristic AnswerSource = "heuristic"
)

// ScorecardAnswer is one retained answer.
type ScorecardAnswer struct {
	QuestionID string       `json:"question_id"`
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Source     AnswerSource `json:"source"`
}

// ScorecardState is the per-record scoring state machine.
type ScorecardState string

const (
	StatePending         ScorecardState = "pending"
	StateScoring         ScorecardState = "scoring"
	StateScored          ScorecardState = "scored"
	StatePartiallyScored ScorecardState = "partially_scored"
)

// ScorecardResult is the scored answer set for one record and template.
type ScorecardResult struct {
	ScorecardID    string            `json:"scorecard_id"`
	RecordID       string            `json:"record_id"`
	Template       string            `json:"template"`
	Answers        []ScorecardAnswer `json:"answers"`
	Coverage       float64           `json:"coverage"`
	MeanConfidence float64           `json:"mean_confidence"`
	Score          float64           `json:"score"`
	State          ScorecardState    `json:"state"`
}
