package reconciler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/models"
	"github.com/duli-labs/wa-gateway/internal/notify"
	"github.com/duli-labs/wa-gateway/internal/repository"
	"github.com/duli-labs/wa-gateway/internal/webhook"
)

// StatusReconciler consumes a single decoded status sub-event and applies it
// under the rank-monotonic ordering policy, creating a placeholder record
// when the status outran its message.
type StatusReconciler struct {
	repo     repository.Repository
	notifier notify.Notifier
	logger   *zap.Logger
}

func NewStatusReconciler(repo repository.Repository, notifier notify.Notifier, logger *zap.Logger) *StatusReconciler {
	return &StatusReconciler{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// Reconcile validates and applies one status sub-event.
func (r *StatusReconciler) Reconcile(ctx context.Context, st webhook.Status, value webhook.Value) error {
	if st.ID == "" || st.Status == "" {
		r.logger.Warn("Webhook status missing required fields")
		return fmt.Errorf("%w: missing required status fields", webhook.ErrInvalidEvent)
	}

	if st.RecipientID != "" && !validPhoneNumber(st.RecipientID) {
		r.logger.Warn("Webhook status has invalid recipient phone number format")
		return fmt.Errorf("%w: invalid recipient phone number", webhook.ErrInvalidEvent)
	}

	newStatus := models.MessageStatus(st.Status)
	if !models.ValidWebhookStatus(newStatus) {
		r.logger.Warn("Webhook status has invalid value", zap.String("status", st.Status))
		return fmt.Errorf("%w: invalid status %q", webhook.ErrInvalidEvent, st.Status)
	}

	if st.Timestamp != "" && !validTimestamp(st.Timestamp) {
		r.logger.Warn("Webhook status has invalid timestamp", zap.String("timestamp", st.Timestamp))
		return fmt.Errorf("%w: invalid status timestamp", webhook.ErrInvalidEvent)
	}

	statusData := map[string]interface{}{
		"message_id":   st.ID,
		"recipient_id": st.RecipientID,
		"status":       st.Status,
		"timestamp":    st.Timestamp,
	}
	if len(st.Errors) > 0 {
		statusData["errors"] = st.Errors
	}

	payloadJSON, err := json.Marshal(statusData)
	if err != nil {
		return fmt.Errorf("failed to marshal status payload: %w", err)
	}

	// The provider's event clock wins when present; ingestion time is the
	// fallback.
	eventTime, ok := parseTimestamp(st.Timestamp)
	if !ok {
		eventTime = time.Now().UTC()
	}

	r.logger.Info("Webhook status update received",
		zap.String("wa_message_id", st.ID),
		zap.String("status", st.Status),
		zap.String("timestamp", st.Timestamp),
		zap.Bool("has_errors", len(st.Errors) > 0))

	return r.apply(ctx, st, newStatus, eventTime, payloadJSON)
}

func (r *StatusReconciler) apply(ctx context.Context, st webhook.Status, newStatus models.MessageStatus, eventTime time.Time, payloadJSON []byte) error {
	for attempt := 0; attempt < casAttempts; attempt++ {
		existing, err := r.repo.Message().FindByWAMessageID(st.ID)
		if errors.Is(err, repository.ErrNotFound) {
			// The status webhook arrived before (or instead of) the message
			// webhook. Persist a placeholder so the status is never lost;
			// the message reconciler fills in type/body later. Status
			// webhooks only exist for messages this system sent, so the
			// placeholder is outgoing and the recipient is the counterparty.
			r.logger.Info("Status update for unknown message, creating placeholder",
				zap.String("wa_message_id", st.ID),
				zap.String("status", string(newStatus)))

			created, createErr := r.repo.Message().Create(&models.Message{
				WAMessageID:     nullString(st.ID),
				ToPhone:         nullString(st.RecipientID),
				Direction:       models.DirectionOutgoing,
				Status:          newStatus,
				StatusUpdatedAt: sql.NullTime{Time: eventTime, Valid: true},
				Payload:         payloadJSON,
			})
			if errors.Is(createErr, repository.ErrDuplicateMessageID) {
				// Another worker created the record first; apply the status
				// against it as if it had always existed.
				continue
			}
			if createErr != nil {
				return createErr
			}

			r.notifier.StatusUpdated(ctx, created, "", newStatus)
			return nil
		}
		if err != nil {
			return err
		}

		if !models.StatusShouldUpdate(existing.Status, newStatus) {
			r.logger.Info("Status downgrade prevented",
				zap.String("wa_message_id", st.ID),
				zap.String("current_status", string(existing.Status)),
				zap.String("attempted_status", string(newStatus)))
			return nil
		}

		oldStatus := existing.Status

		updated, err := r.repo.Message().ApplyUpdate(st.ID, oldStatus, repository.MessageUpdate{
			Status:          newStatus,
			StatusUpdatedAt: &eventTime,
			Payload:         payloadJSON,
		})
		if errors.Is(err, repository.ErrStaleRecord) {
			continue
		}
		if err != nil {
			return err
		}

		r.notifier.StatusUpdated(ctx, updated, oldStatus, newStatus)
		return nil
	}

	return fmt.Errorf("gave up applying status for message %s after %d attempts", st.ID, casAttempts)
}
