// ABOUTME: In-memory CRM client for dry runs and tests
// ABOUTME: Deterministic fixture records, thread-safe create/delete tracking
package crm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/demogen/models"
)

// Mock implements Client entirely in memory. Created activities are tracked
// so tests and dry runs can assert on what would have been persisted.
type Mock struct {
	mu       sync.Mutex
	created  map[string]string // externalID -> kind
	deleted  []string
	FailWith error // when set, every create call fails with this error
}

// NewMock returns an empty mock CRM.
func NewMock() *Mock {
	return &Mock{created: make(map[string]string)}
}

// QueryRecords returns a fixed fixture set with three contacts per record.
func (m *Mock) QueryRecords(ctx context.Context) ([]models.Record, error) {
	records := make([]models.Record, 0, 10)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("rec-%03d", i)
		contacts, _ := m.ContactsForRecord(ctx, id)
		records = append(records, models.Record{
			ID:        id,
			Name:      fmt.Sprintf("Demo Opportunity %d", i),
			Stage:     "discovery",
			Amount:    int64(5000000 + i*1000000),
			CloseDate: time.Now().UTC().AddDate(0, 2, 0),
			OwnerID:   "owner-001",
			Contacts:  contacts,
		})
	}
	return records, nil
}

func (m *Mock) ContactsForRecord(_ context.Context, recordID string) ([]models.Contact, error) {
	contacts := make([]models.Contact, 0, 3)
	for i := 0; i < 3; i++ {
		contacts = append(contacts, models.Contact{
			ID:    fmt.Sprintf("%s-contact-%d", recordID, i),
			Name:  fmt.Sprintf("Contact %d", i),
			Email: fmt.Sprintf("contact%d@example.com", i),
		})
	}
	return contacts, nil
}

func (m *Mock) CreateMeeting(_ context.Context, recordID string, mt models.PlannedMeeting, _ string) (string, error) {
	return m.create(models.KindMeeting)
}

func (m *Mock) CreateEmail(_ context.Context, recordID string, e models.PlannedEmail, _ string) (string, error) {
	return m.create(models.KindEmail)
}

func (m *Mock) UpsertScorecard(_ context.Context, result models.ScorecardResult) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return "", m.FailWith
	}
	return result.ScorecardID, nil
}

func (m *Mock) DeleteActivity(_ context.Context, kind, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.created, externalID)
	m.deleted = append(m.deleted, externalID)
	return nil
}

func (m *Mock) create(kind string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return "", m.FailWith
	}
	id := uuid.New().String()
	m.created[id] = kind
	return id, nil
}

// CreatedCount reports how many activities currently exist.
func (m *Mock) CreatedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created)
}

// DeletedCount reports how many deletes were issued.
func (m *Mock) DeletedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.deleted)
}
