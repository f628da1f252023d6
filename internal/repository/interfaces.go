package repository

import (
	"time"

	"github.com/duli-labs/wa-gateway/internal/models"
)

// Repository interface defines all repository operations.
type Repository interface {
	// Ping checks database connectivity
	Ping() error

	// Message returns message repository
	Message() MessageRepository
}

// MessageUpdate carries the fields a reconciler wants to merge into an
// existing record. Nil pointer fields keep the stored value.
type MessageUpdate struct {
	FromPhone       *string
	ToPhone         *string
	Direction       *models.Direction
	MessageType     *string
	Body            *string
	Status          models.MessageStatus
	StatusUpdatedAt *time.Time
	Payload         []byte
}

// MessageFilter narrows listing queries.
type MessageFilter struct {
	Phone     string
	Direction models.Direction
}

// MessageRepository interface defines message operations.
type MessageRepository interface {
	// FindByWAMessageID returns the record for the provider message id,
	// or ErrNotFound.
	FindByWAMessageID(waMessageID string) (*models.Message, error)

	// Create inserts a new record. Returns ErrDuplicateMessageID when the
	// wa_message_id unique constraint fires.
	Create(msg *models.Message) (*models.Message, error)

	// ApplyUpdate performs a compare-and-set merge: the update only lands
	// if the stored status still equals expectedStatus. Returns the updated
	// record, or ErrStaleRecord when a concurrent writer got there first.
	ApplyUpdate(waMessageID string, expectedStatus models.MessageStatus, upd MessageUpdate) (*models.Message, error)

	// List returns records matching the filter, newest first.
	List(filter MessageFilter, offset, limit int) ([]*models.Message, error)

	// Count returns the number of records matching the filter.
	Count(filter MessageFilter) (int64, error)
}
