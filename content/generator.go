// ABOUTME: Free-text content capability: chat-completions client and disabled mode
// ABOUTME: Callers treat ErrUnavailable as the signal to use heuristic fallback
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harperreed/demogen/config"
)

// ErrUnavailable means no content could be produced for this request. It is
// never fatal; every caller has a deterministic fallback.
var ErrUnavailable = errors.New("content: unavailable")

// Kind selects the prompt shape.
type Kind string

const (
	KindMeetingNotes    Kind = "meeting_notes"
	KindEmailBody       Kind = "email_body"
	KindScorecardAnswer Kind = "scorecard_answer"
)

// Context carries the record details a prompt is built from.
type Context struct {
	Subject      string   `json:"subject,omitempty"`
	RecordName   string   `json:"record_name,omitempty"`
	Stage        string   `json:"stage,omitempty"`
	Participants []string `json:"participants,omitempty"`
	Timeframe    string   `json:"timeframe,omitempty"`
	Question     string   `json:"question,omitempty"`
}

// Generator is the external content capability consumed by the core.
type Generator interface {
	Generate(ctx context.Context, kind Kind, c Context) (string, error)
}

// Disabled always reports no content, exercising the heuristic path.
type Disabled struct{}

func (Disabled) Generate(context.Context, Kind, Context) (string, error) {
	return "", ErrUnavailable
}

// Static returns a fixed string per kind; used by tests that need a live but
// deterministic external capability.
type Static map[Kind]string

func (s Static) Generate(_ context.Context, kind Kind, _ Context) (string, error) {
	text, ok := s[kind]
	if !ok {
		return "", ErrUnavailable
	}
	return text, nil
}

// Client speaks the chat-completions wire format over plain HTTP.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewClient builds an LLM-backed generator from config plus the API key.
func NewClient(cfg config.LLMConfig, apiKey string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("content: missing api key")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("content: missing model")
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Client) Generate(ctx context.Context, kind Kind, cc Context) (string, error) {
	prompt, system := buildPrompt(kind, cc)
	if prompt == "" {
		return "", ErrUnavailable
	}

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": prompt},
		},
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("content: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("content: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: http %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrUnavailable)
	}
	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("%w: empty content", ErrUnavailable)
	}
	return text, nil
}

func buildPrompt(kind Kind, c Context) (prompt, system string) {
	switch kind {
	case KindMeetingNotes:
		timing := "Upcoming"
		ask := "Write 1-2 sentences about the meeting agenda."
		if c.Timeframe == "past" {
			timing = "Completed"
			ask = "Write 2-3 bullet points summarizing what was discussed and next steps."
		}
		return fmt.Sprintf(
				"Generate brief, realistic meeting notes for a B2B sales meeting.\n\n"+
					"Meeting: %s\nOpportunity: %s\nStage: %s\nParticipants: %s\nTiming: %s\n\n%s\n\nKeep it professional and concise.",
				c.Subject, c.RecordName, c.Stage, strings.Join(c.Participants, ", "), timing, ask),
			"You are a sales professional writing concise meeting notes."
	case KindEmailBody:
		timing := "Draft"
		if c.Timeframe == "past" {
			timing = "Sent"
		}
		return fmt.Sprintf(
				"Generate a brief, realistic email body for a B2B sales email.\n\n"+
					"Subject: %s\nOpportunity: %s\nStage: %s\nTiming: %s\n\n"+
					"Write 2-3 short paragraphs. Keep it professional and to the point.",
				c.Subject, c.RecordName, c.Stage, timing),
			"You are a sales professional writing concise emails."
	case KindScorecardAnswer:
		return fmt.Sprintf(
				"Generate a brief, realistic answer for this sales qualification question.\n\n"+
					"Question: %s\nOpportunity: %s\nStage: %s\n\n"+
					"Provide a concise answer (1-2 sentences) that sounds like it came from actual discovery conversations.",
				c.Question, c.RecordName, c.Stage),
			"You are a sales professional documenting qualification criteria."
	}
	return "", ""
}
