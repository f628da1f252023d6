package repository_test

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/duli-labs/wa-gateway/internal/models"
)

func insertTestMessage(db *sqlx.DB, waMessageID, fromPhone, toPhone string, direction models.Direction, status models.MessageStatus) (int64, error) {
	var id int64
	query := `
		INSERT INTO wa_messages (wa_message_id, from_phone, to_phone, direction, message_type, body, status, status_updated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'text', 'test body', $5, $6, $7, $7)
		RETURNING id
	`

	now := time.Now()
	err := db.QueryRow(query, waMessageID, fromPhone, toPhone, direction, status, now, now).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert test message: %w", err)
	}

	return id, nil
}

func insertBulkTestMessages(db *sqlx.DB, count int, idPrefix, fromPhone string, direction models.Direction, status models.MessageStatus) error {
	for i := 0; i < count; i++ {
		waMessageID := fmt.Sprintf("%s.%d", idPrefix, i)
		if _, err := insertTestMessage(db, waMessageID, fromPhone, "15550001111", direction, status); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func sqlNullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: true}
}

func strPtr(s string) *string {
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
