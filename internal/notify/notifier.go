// Package notify publishes application-level events emitted by the
// reconcilers. Delivery is best-effort: a failed publish is logged and never
// rolls back the reconciliation that produced it.
package notify

import (
	"context"

	"github.com/duli-labs/wa-gateway/internal/models"
)

// Notifier receives reconciliation outcomes.
type Notifier interface {
	// MessageReceived fires after a message sub-event was reconciled into
	// a record (including redeliveries).
	MessageReceived(ctx context.Context, msg *models.Message)

	// StatusUpdated fires after a status change was applied. oldStatus is
	// empty when the event created a placeholder record.
	StatusUpdated(ctx context.Context, msg *models.Message, oldStatus, newStatus models.MessageStatus)
}

// Nop is a Notifier that discards all events.
type Nop struct{}

func (Nop) MessageReceived(context.Context, *models.Message) {}

func (Nop) StatusUpdated(context.Context, *models.Message, models.MessageStatus, models.MessageStatus) {
}
