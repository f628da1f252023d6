package repository

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no record exists for the given message id.
	ErrNotFound = errors.New("message not found")

	// ErrDuplicateMessageID is returned when a create races with another
	// worker inserting the same wa_message_id. Callers retry as an update.
	ErrDuplicateMessageID = errors.New("message id already exists")

	// ErrStaleRecord is returned when a compare-and-set update matched no
	// row because a concurrent writer changed the record first.
	ErrStaleRecord = errors.New("record changed concurrently")
)

const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
