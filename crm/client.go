// ABOUTME: CRM collaborator capability consumed by the seeding pipeline
// ABOUTME: Defines the client interface and shared request/response types
package crm

import (
	"context"

	"github.com/harperreed/demogen/models"
)

// Client is the remote CRM capability. Implementations own their own
// timeouts and retries; the core treats any returned error as a failure of
// that one call.
type Client interface {
	// QueryRecords returns the candidate records for seeding, in a stable
	// order, with contacts populated.
	QueryRecords(ctx context.Context) ([]models.Record, error)

	// ContactsForRecord returns the ordered contact list for one record.
	ContactsForRecord(ctx context.Context, recordID string) ([]models.Contact, error)

	// CreateMeeting persists a planned meeting and returns its external ID.
	CreateMeeting(ctx context.Context, recordID string, m models.PlannedMeeting, description string) (string, error)

	// CreateEmail persists a planned email and returns its external ID.
	CreateEmail(ctx context.Context, recordID string, e models.PlannedEmail, body string) (string, error)

	// UpsertScorecard persists a scored answer set and returns its external ID.
	UpsertScorecard(ctx context.Context, result models.ScorecardResult) (string, error)

	// DeleteActivity removes a previously created activity; used by reset.
	DeleteActivity(ctx context.Context, kind, externalID string) error
}
