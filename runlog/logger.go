// ABOUTME: Append-only JSONL event/error logs plus run status and summary files
// ABOUTME: Structured audit trail: every skip, create, and drop is traceable
package runlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Stats is the run summary written to summary.json.
type Stats struct {
	RunID             string  `json:"run_id"`
	StartedAt         string  `json:"started_at"`
	FinishedAt        string  `json:"finished_at,omitempty"`
	RecordsSelected   int     `json:"records_selected"`
	RecordsSkipped    int     `json:"records_skipped"`
	MeetingsCreated   int     `json:"meetings_created"`
	EmailsCreated     int     `json:"emails_created"`
	ActivitiesSkipped int     `json:"activities_skipped"`
	ScorecardsCreated int     `json:"scorecards_created"`
	AnswersWritten    int     `json:"answers_written"`
	Failures          int     `json:"failures"`
	Coverage          float64 `json:"coverage"`
}

// Logger writes events.jsonl and errors.jsonl under the run directory and
// tracks run statistics. Safe for concurrent workers.
type Logger struct {
	runID  string
	runDir string
	dryRun bool

	mu     sync.Mutex
	events *os.File
	errs   *os.File
	stats  Stats
}

// New creates the run directory and its log files.
func New(runID, runDir string) (*Logger, error) {
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("runlog: ensure run dir: %w", err)
	}
	events, err := os.OpenFile(filepath.Join(runDir, "events.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("runlog: open events log: %w", err)
	}
	errs, err := os.OpenFile(filepath.Join(runDir, "errors.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("runlog: open errors log: %w", err)
	}

	l := &Logger{
		runID:  runID,
		runDir: runDir,
		events: events,
		errs:   errs,
		stats:  Stats{RunID: runID, StartedAt: timestamp()},
	}
	if err := l.writeStatus("running"); err != nil {
		events.Close()
		errs.Close()
		return nil, err
	}
	return l, nil
}

// NewDryRun returns a logger that counts stats but writes no files.
func NewDryRun(runID string) *Logger {
	return &Logger{
		runID:  runID,
		dryRun: true,
		stats:  Stats{RunID: runID, StartedAt: timestamp()},
	}
}

// Event appends one audit record to events.jsonl.
func (l *Logger) Event(action string, fields map[string]any) {
	if l.dryRun {
		return
	}
	event := map[string]any{
		"ts":     timestamp(),
		"run_id": l.runID,
		"action": action,
	}
	for k, v := range fields {
		event[k] = v
	}
	l.append(l.events, event)
}

// Error appends one error record to errors.jsonl and bumps the failure count.
func (l *Logger) Error(stage string, err error, retryable bool, fields map[string]any) {
	l.mu.Lock()
	l.stats.Failures++
	l.mu.Unlock()

	if l.dryRun {
		return
	}
	event := map[string]any{
		"ts":        timestamp(),
		"run_id":    l.runID,
		"stage":     stage,
		"error":     err.Error(),
		"retryable": retryable,
	}
	for k, v := range fields {
		event[k] = v
	}
	l.append(l.errs, event)
}

func (l *Logger) append(f *os.File, event map[string]any) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = f.Write(append(line, '\n'))
}

// Add mutates a counter field under the stats lock.
func (l *Logger) Add(update func(*Stats)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	update(&l.stats)
}

// Snapshot returns a copy of the current stats.
func (l *Logger) Snapshot() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Finalize stamps the finish time, writes run.json and summary.json, and
// closes the log files. Returns the final stats.
func (l *Logger) Finalize(status string) (Stats, error) {
	l.mu.Lock()
	l.stats.FinishedAt = timestamp()
	stats := l.stats
	l.mu.Unlock()

	if l.dryRun {
		return stats, nil
	}

	if err := l.writeStatus(status); err != nil {
		return stats, err
	}
	summary, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return stats, fmt.Errorf("runlog: marshal summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.runDir, "summary.json"), summary, 0644); err != nil {
		return stats, fmt.Errorf("runlog: write summary: %w", err)
	}

	_ = l.events.Close()
	_ = l.errs.Close()
	return stats, nil
}

func (l *Logger) writeStatus(status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	payload, err := json.MarshalIndent(map[string]string{
		"run_id":      l.runID,
		"started_at":  l.stats.StartedAt,
		"finished_at": l.stats.FinishedAt,
		"status":      status,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("runlog: marshal status: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.runDir, "run.json"), payload, 0644); err != nil {
		return fmt.Errorf("runlog: write status: %w", err)
	}
	return nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
