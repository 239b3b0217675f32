// ABOUTME: REST implementation of the CRM client with OAuth2 client credentials
// ABOUTME: JSON over HTTP against the configured base URL
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/harperreed/demogen/config"
	"github.com/harperreed/demogen/models"
)

// Credentials are read from the environment by the caller.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// REST talks JSON to a CRM instance. When TagField and RunID are set, created
// activities carry the run marker so tag-mode idempotency and cleanup work
// without a local ledger.
type REST struct {
	cfg        config.CRMConfig
	httpClient *http.Client
	TagField   string
	RunID      string
}

// NewREST builds a REST client with an OAuth2 client-credentials token
// source. The token refreshes itself across the run.
func NewREST(ctx context.Context, cfg config.CRMConfig, creds Credentials) (*REST, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("crm: missing base url")
	}
	if !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("crm: base url must start with https://")
	}
	if creds.ClientID == "" || creds.ClientSecret == "" || creds.TokenURL == "" {
		return nil, fmt.Errorf("crm: missing client credentials")
	}

	cc := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
	}
	httpClient := cc.Client(ctx)
	httpClient.Timeout = 30 * time.Second

	return &REST{cfg: cfg, httpClient: httpClient}, nil
}

func (r *REST) QueryRecords(ctx context.Context) ([]models.Record, error) {
	q := url.Values{}
	for _, s := range r.cfg.Query.Stages {
		q.Add("stage", s)
	}
	if r.cfg.Query.CloseDateStart != "" {
		q.Set("close_date_start", r.cfg.Query.CloseDateStart)
	}
	if r.cfg.Query.CloseDateEnd != "" {
		q.Set("close_date_end", r.cfg.Query.CloseDateEnd)
	}
	if r.cfg.Query.Limit > 0 {
		q.Set("limit", strconv.Itoa(r.cfg.Query.Limit))
	}

	var out struct {
		Records []models.Record `json:"records"`
	}
	if err := r.do(ctx, http.MethodGet, "/records?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("crm: query records: %w", err)
	}

	for i := range out.Records {
		if len(out.Records[i].Contacts) > 0 {
			continue
		}
		contacts, err := r.ContactsForRecord(ctx, out.Records[i].ID)
		if err != nil {
			return nil, err
		}
		out.Records[i].Contacts = contacts
	}
	return out.Records, nil
}

func (r *REST) ContactsForRecord(ctx context.Context, recordID string) ([]models.Contact, error) {
	var out struct {
		Contacts []models.Contact `json:"contacts"`
	}
	path := "/records/" + url.PathEscape(recordID) + "/contacts"
	if err := r.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("crm: contacts for %s: %w", recordID, err)
	}
	return out.Contacts, nil
}

func (r *REST) CreateMeeting(ctx context.Context, recordID string, m models.PlannedMeeting, description string) (string, error) {
	body := map[string]any{
		"record_id":    recordID,
		"subject":      m.Subject,
		"start":        m.Start.Format(time.RFC3339),
		"end":          m.End.Format(time.RFC3339),
		"participants": m.Participants,
		"description":  description,
	}
	r.tag(body)

	var out struct {
		ID string `json:"id"`
	}
	if err := r.do(ctx, http.MethodPost, "/activities/meetings", body, &out); err != nil {
		return "", fmt.Errorf("crm: create meeting: %w", err)
	}
	return out.ID, nil
}

func (r *REST) CreateEmail(ctx context.Context, recordID string, e models.PlannedEmail, emailBody string) (string, error) {
	body := map[string]any{
		"record_id": recordID,
		"subject":   e.Subject,
		"direction": e.Direction,
		"sent_at":   e.SentAt.Format(time.RFC3339),
		"body":      emailBody,
	}
	r.tag(body)

	var out struct {
		ID string `json:"id"`
	}
	if err := r.do(ctx, http.MethodPost, "/activities/emails", body, &out); err != nil {
		return "", fmt.Errorf("crm: create email: %w", err)
	}
	return out.ID, nil
}

func (r *REST) UpsertScorecard(ctx context.Context, result models.ScorecardResult) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := r.do(ctx, http.MethodPut, "/scorecards/"+url.PathEscape(result.ScorecardID), result, &out); err != nil {
		return "", fmt.Errorf("crm: upsert scorecard: %w", err)
	}
	if out.ID == "" {
		return result.ScorecardID, nil
	}
	return out.ID, nil
}

func (r *REST) DeleteActivity(ctx context.Context, kind, externalID string) error {
	path := "/activities/" + url.PathEscape(kind) + "/" + url.PathEscape(externalID)
	if err := r.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("crm: delete %s %s: %w", kind, externalID, err)
	}
	return nil
}

func (r *REST) tag(body map[string]any) {
	if r.TagField != "" && r.RunID != "" {
		body[r.TagField] = r.RunID
	}
}

func (r *REST) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(r.cfg.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
