package reconciler_test

import (
	"database/sql"
	"sync"
	"time"

	"github.com/duli-labs/wa-gateway/internal/models"
	"github.com/duli-labs/wa-gateway/internal/repository"
)

// fakeRepo is an in-memory MessageRepository with the same concurrency
// contract as the real one: unique wa_message_id on create and a status
// compare-and-set on update. It lets the scenario tests replay interleavings
// without a database.
type fakeRepo struct {
	mu     sync.Mutex
	nextID int64
	byKey  map[string]*models.Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byKey: make(map[string]*models.Message)}
}

func nullStrOf(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func (f *fakeRepo) Ping() error                          { return nil }
func (f *fakeRepo) Message() repository.MessageRepository { return f }

func (f *fakeRepo) FindByWAMessageID(waMessageID string) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.byKey[waMessageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (f *fakeRepo) Create(msg *models.Message) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := msg.WAMessageID.String
	if _, exists := f.byKey[key]; exists {
		return nil, repository.ErrDuplicateMessageID
	}

	f.nextID++
	stored := *msg
	stored.ID = f.nextID
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	f.byKey[key] = &stored

	cp := stored
	return &cp, nil
}

func (f *fakeRepo) ApplyUpdate(waMessageID string, expectedStatus models.MessageStatus, upd repository.MessageUpdate) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msg, ok := f.byKey[waMessageID]
	if !ok || msg.Status != expectedStatus {
		return nil, repository.ErrStaleRecord
	}

	if upd.FromPhone != nil {
		msg.FromPhone = sql.NullString{String: *upd.FromPhone, Valid: true}
	}
	if upd.ToPhone != nil {
		msg.ToPhone = sql.NullString{String: *upd.ToPhone, Valid: true}
	}
	if upd.Direction != nil {
		msg.Direction = *upd.Direction
	}
	if upd.MessageType != nil {
		msg.MessageType = sql.NullString{String: *upd.MessageType, Valid: true}
	}
	if upd.Body != nil {
		msg.Body = sql.NullString{String: *upd.Body, Valid: true}
	}
	msg.Status = upd.Status
	if upd.StatusUpdatedAt != nil {
		msg.StatusUpdatedAt = sql.NullTime{Time: *upd.StatusUpdatedAt, Valid: true}
	}
	if upd.Payload != nil {
		msg.Payload = upd.Payload
	}
	msg.UpdatedAt = time.Now()

	cp := *msg
	return &cp, nil
}

func (f *fakeRepo) List(filter repository.MessageFilter, offset, limit int) ([]*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Message
	for _, msg := range f.byKey {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRepo) Count(filter repository.MessageFilter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byKey)), nil
}

func (f *fakeRepo) get(waMessageID string) *models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := f.byKey[waMessageID]
	if msg == nil {
		return nil
	}
	cp := *msg
	return &cp
}
