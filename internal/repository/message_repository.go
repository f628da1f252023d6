package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/duli-labs/wa-gateway/internal/models"
)

const messageColumns = `id, wa_message_id, from_phone, to_phone, direction, message_type, body, status, status_updated_at, payload, created_at, updated_at`

type messageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// FindByWAMessageID looks up the single record for a provider message id.
func (r *messageRepository) FindByWAMessageID(waMessageID string) (*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM wa_messages
		WHERE wa_message_id = $1
	`

	var msg models.Message
	err := r.db.Get(&msg, query, waMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find message by wa_message_id: %w", err)
	}

	return &msg, nil
}

// Create inserts a new message record. The unique constraint on
// wa_message_id is the only cross-process synchronization point: a losing
// concurrent insert surfaces as ErrDuplicateMessageID.
func (r *messageRepository) Create(msg *models.Message) (*models.Message, error) {
	query := `
		INSERT INTO wa_messages (wa_message_id, from_phone, to_phone, direction, message_type, body, status, status_updated_at, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + messageColumns

	now := time.Now()

	var created models.Message
	err := r.db.Get(&created, query,
		msg.WAMessageID,
		msg.FromPhone,
		msg.ToPhone,
		msg.Direction,
		msg.MessageType,
		msg.Body,
		msg.Status,
		msg.StatusUpdatedAt,
		msg.Payload,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateMessageID
		}
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	return &created, nil
}

// ApplyUpdate merges fields into an existing record iff its status is still
// expectedStatus. The status predicate doubles as a per-row compare-and-set,
// so two workers read-modify-writing the same key cannot lose updates: the
// loser gets ErrStaleRecord and re-reads.
func (r *messageRepository) ApplyUpdate(waMessageID string, expectedStatus models.MessageStatus, upd MessageUpdate) (*models.Message, error) {
	query := `
		UPDATE wa_messages
		SET from_phone = COALESCE($3, from_phone),
		    to_phone = COALESCE($4, to_phone),
		    direction = COALESCE($5, direction),
		    message_type = COALESCE($6, message_type),
		    body = COALESCE($7, body),
		    status = $8,
		    status_updated_at = COALESCE($9, status_updated_at),
		    payload = COALESCE($10, payload),
		    updated_at = $11
		WHERE wa_message_id = $1 AND status = $2
		RETURNING ` + messageColumns

	var updated models.Message
	err := r.db.Get(&updated, query,
		waMessageID,
		expectedStatus,
		upd.FromPhone,
		upd.ToPhone,
		upd.Direction,
		upd.MessageType,
		upd.Body,
		upd.Status,
		upd.StatusUpdatedAt,
		upd.Payload,
		time.Now(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStaleRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}

	return &updated, nil
}

// List retrieves messages with pagination, newest first.
func (r *messageRepository) List(filter MessageFilter, offset, limit int) ([]*models.Message, error) {
	where, args := buildFilter(filter)

	query := fmt.Sprintf(`
		SELECT `+messageColumns+`
		FROM wa_messages
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)

	args = append(args, limit, offset)

	var messages []*models.Message
	err := r.db.Select(&messages, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return messages, nil
}

// Count returns the total count of messages matching the filter.
func (r *messageRepository) Count(filter MessageFilter) (int64, error) {
	where, args := buildFilter(filter)

	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM wa_messages %s`, where)

	err := r.db.Get(&count, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}

	return count, nil
}

func buildFilter(filter MessageFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.Phone != "" {
		args = append(args, filter.Phone)
		clauses = append(clauses, fmt.Sprintf("(from_phone = $%d OR to_phone = $%d)", len(args), len(args)))
	}

	if filter.Direction != "" {
		args = append(args, filter.Direction)
		clauses = append(clauses, fmt.Sprintf("direction = $%d", len(args)))
	}

	if len(clauses) == 0 {
		return "", args
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}
