// ABOUTME: Configuration schema, YAML loading, and validation
// ABOUTME: Produces a ResolvedConfig carrying the run ID and run directory
package config

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"
)

// ConfigError is fatal for the whole run and is detected before any record
// is processed.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Idempotency modes.
const (
	IdempotencyExternalState = "external_state"
	IdempotencyTag           = "tag"
)

// Realism levels gate whether free-text content generation is attempted.
const (
	RealismNone  = "none"
	RealismLight = "light"
	RealismHeavy = "heavy"
)

// Scorecard modes.
const (
	ModeHeuristic = "heuristic"
	ModeExternal  = "external"
	ModeHybrid    = "hybrid"
)

type RunConfig struct {
	Name            string `yaml:"name"`
	Seed            int64  `yaml:"seed"`
	IdempotencyMode string `yaml:"idempotency_mode"`
	TagField        string `yaml:"tag_field"`
	DryRun          bool   `yaml:"dry_run"`
}

type QueryConfig struct {
	Stages         []string `yaml:"stages"`
	CloseDateStart string   `yaml:"close_date_start"`
	CloseDateEnd   string   `yaml:"close_date_end"`
	Limit          int      `yaml:"limit"`
}

type CRMConfig struct {
	BaseURL string      `yaml:"base_url"`
	Query   QueryConfig `yaml:"query"`
}

type MeetingsConfig struct {
	PastMin         int   `yaml:"past_min"`
	PastMax         int   `yaml:"past_max"`
	FutureMin       int   `yaml:"future_min"`
	FutureMax       int   `yaml:"future_max"`
	DurationMinutes []int `yaml:"duration_minutes"`
}

type EmailsConfig struct {
	Min       int     `yaml:"min"`
	Max       int     `yaml:"max"`
	PastRatio float64 `yaml:"past_ratio"`
}

// BusinessHours is the weekday/hour mask planned activity times must land on.
type BusinessHours struct {
	Weekdays  []time.Weekday `yaml:"weekdays"`
	StartHour int            `yaml:"start_hour"`
	EndHour   int            `yaml:"end_hour"`
}

// Contains reports whether t falls on an allowed weekday and hour.
func (b BusinessHours) Contains(t time.Time) bool {
	if t.Hour() < b.StartHour || t.Hour() >= b.EndHour {
		return false
	}
	for _, d := range b.Weekdays {
		if t.Weekday() == d {
			return true
		}
	}
	return false
}

type ActivityConfig struct {
	PastDays      int            `yaml:"past_days"`
	FutureDays    int            `yaml:"future_days"`
	Meetings      MeetingsConfig `yaml:"meetings"`
	Emails        EmailsConfig   `yaml:"emails"`
	BusinessHours BusinessHours  `yaml:"business_hours"`
	RealismLevel  string         `yaml:"realism_level"`
}

type LLMConfig struct {
	Enabled     bool    `yaml:"enabled"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type ScorecardsConfig struct {
	Templates       []string `yaml:"templates"`
	CoverageTarget  float64  `yaml:"coverage_target"`
	ConfidenceFloor float64  `yaml:"confidence_floor"`
	Mode            string   `yaml:"mode"`
}

// Config models the demogen YAML file.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	CRM        CRMConfig        `yaml:"crm"`
	Activity   ActivityConfig   `yaml:"activity"`
	LLM        LLMConfig        `yaml:"llm"`
	Scorecards ScorecardsConfig `yaml:"scorecards"`
}

// Default fills zero-value sections so a minimal YAML file still yields a
// runnable configuration.
func Default() Config {
	return Config{
		Run: RunConfig{
			Name:            "demo-pack",
			Seed:            42,
			IdempotencyMode: IdempotencyExternalState,
			TagField:        "demo_run_id",
		},
		CRM: CRMConfig{
			Query: QueryConfig{
				Stages: []string{"discovery", "evaluation", "negotiation"},
				Limit:  100,
			},
		},
		Activity: ActivityConfig{
			PastDays:   45,
			FutureDays: 21,
			Meetings: MeetingsConfig{
				PastMin:         3,
				PastMax:         8,
				FutureMin:       1,
				FutureMax:       3,
				DurationMinutes: []int{25, 30, 45, 60},
			},
			Emails: EmailsConfig{Min: 5, Max: 20, PastRatio: 0.85},
			BusinessHours: BusinessHours{
				Weekdays: []time.Weekday{
					time.Monday, time.Tuesday, time.Wednesday,
					time.Thursday, time.Friday,
				},
				StartHour: 9,
				EndHour:   17,
			},
			RealismLevel: RealismLight,
		},
		LLM: LLMConfig{
			Model:       "gpt-4.1-mini",
			Temperature: 0.4,
			MaxTokens:   500,
		},
		Scorecards: ScorecardsConfig{
			Templates:       []string{"MEDDICC"},
			CoverageTarget:  0.8,
			ConfidenceFloor: 0.55,
			Mode:            ModeHybrid,
		},
	}
}

// Validate checks all bounds; violations are ConfigError and abort the run.
func (c *Config) Validate() error {
	m := c.Activity.Meetings
	if m.PastMin < 0 || m.FutureMin < 0 {
		return &ConfigError{Field: "activity.meetings", Reason: "counts must be non-negative"}
	}
	if m.PastMin > m.PastMax {
		return &ConfigError{Field: "activity.meetings", Reason: "past_min > past_max"}
	}
	if m.FutureMin > m.FutureMax {
		return &ConfigError{Field: "activity.meetings", Reason: "future_min > future_max"}
	}
	e := c.Activity.Emails
	if e.Min < 0 {
		return &ConfigError{Field: "activity.emails", Reason: "counts must be non-negative"}
	}
	if e.Min > e.Max {
		return &ConfigError{Field: "activity.emails", Reason: "min > max"}
	}
	if e.PastRatio < 0 || e.PastRatio > 1 {
		return &ConfigError{Field: "activity.emails.past_ratio", Reason: "must be in [0,1]"}
	}
	if c.Activity.PastDays < 0 || c.Activity.FutureDays < 0 {
		return &ConfigError{Field: "activity", Reason: "day windows must be non-negative"}
	}
	bh := c.Activity.BusinessHours
	if len(bh.Weekdays) == 0 {
		return &ConfigError{Field: "activity.business_hours.weekdays", Reason: "must not be empty"}
	}
	if bh.StartHour < 0 || bh.EndHour > 24 || bh.StartHour >= bh.EndHour {
		return &ConfigError{Field: "activity.business_hours", Reason: "hour range must satisfy 0 <= start < end <= 24"}
	}
	switch c.Activity.RealismLevel {
	case RealismNone, RealismLight, RealismHeavy:
	default:
		return &ConfigError{Field: "activity.realism_level", Reason: "must be none, light, or heavy"}
	}
	sc := c.Scorecards
	if sc.CoverageTarget < 0 || sc.CoverageTarget > 1 {
		return &ConfigError{Field: "scorecards.coverage_target", Reason: "must be in [0,1]"}
	}
	if sc.ConfidenceFloor < 0 || sc.ConfidenceFloor > 1 {
		return &ConfigError{Field: "scorecards.confidence_floor", Reason: "must be in [0,1]"}
	}
	switch sc.Mode {
	case ModeHeuristic, ModeExternal, ModeHybrid:
	default:
		return &ConfigError{Field: "scorecards.mode", Reason: "must be heuristic, external, or hybrid"}
	}
	switch c.Run.IdempotencyMode {
	case IdempotencyExternalState, IdempotencyTag:
	default:
		return &ConfigError{Field: "run.idempotency_mode", Reason: "must be external_state or tag"}
	}
	return nil
}

// Resolved is a validated configuration plus run-scoped metadata.
type Resolved struct {
	Config    Config
	RunID     string
	RunDir    string
	StartedAt time.Time
}

// Load reads and validates a YAML config file and assigns a fresh run ID.
// Defaults apply underneath whatever the file sets.
func Load(path, logDir string) (*Resolved, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return Resolve(cfg, logDir), nil
}

// Resolve stamps a validated config with run metadata.
func Resolve(cfg Config, logDir string) *Resolved {
	now := time.Now().UTC()
	runID := newRunID(now)
	return &Resolved{
		Config:    cfg,
		RunID:     runID,
		RunDir:    filepath.Join(logDir, fmt.Sprintf("%s_%s_%s", now.Format("2006-01-02T15-04-05Z"), cfg.Run.Name, runID)),
		StartedAt: now,
	}
}

func newRunID(now time.Time) string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	return "run-" + ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// SaveResolved writes the resolved configuration snapshot into the run dir.
func (r *Resolved) SaveResolved() error {
	if err := os.MkdirAll(r.RunDir, 0755); err != nil {
		return fmt.Errorf("config: ensure run dir: %w", err)
	}
	snapshot := struct {
		RunID     string    `yaml:"run_id"`
		StartedAt time.Time `yaml:"started_at"`
		Config    Config    `yaml:"config"`
	}{r.RunID, r.StartedAt, r.Config}

	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("config: marshal resolved config: %w", err)
	}
	path := filepath.Join(r.RunDir, "config.resolved.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("config: write resolved config: %w", err)
	}
	return nil
}
