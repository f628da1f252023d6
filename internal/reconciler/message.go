// Package reconciler converges webhook sub-events into durable message
// records. Events arrive at-least-once, out of order, and concurrently; all
// correctness comes from idempotent merges, the rank-monotonic status
// policy, and the store's uniqueness constraint.
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

// casAttempts bounds the read-modify-write loop when racing other workers
// on the same message id.
const casAttempts = 3

// ReadMarker marks an inbound message as read at the provider, best-effort.
type ReadMarker interface {
	MarkAsRead(ctx context.Context, waMessageID string) error
}

// MessageReconciler consumes a single decoded message sub-event and upserts
// the corresponding record.
type MessageReconciler struct {
	repo       repository.Repository
	notifier   notify.Notifier
	readMarker ReadMarker
	markAsRead bool
	logger     *zap.Logger
}

func NewMessageReconciler(
	repo repository.Repository,
	notifier notify.Notifier,
	readMarker ReadMarker,
	markAsRead bool,
	logger *zap.Logger,
) *MessageReconciler {
	return &MessageReconciler{
		repo:       repo,
		notifier:   notifier,
		readMarker: readMarker,
		markAsRead: markAsRead,
		logger:     logger,
	}
}

// Reconcile validates, normalizes, and persists one message sub-event.
// Redelivering the identical event leaves the record equivalent in all
// fields except the audit payload and timestamps.
func (r *MessageReconciler) Reconcile(ctx context.Context, msg webhook.Message, value webhook.Value) error {
	if msg.ID == "" || msg.From == "" || msg.Timestamp == "" || msg.Type == "" {
		r.logger.Warn("Webhook message missing required fields")
		return fmt.Errorf("%w: missing required message fields", webhook.ErrInvalidEvent)
	}

	if !validPhoneNumber(msg.From) {
		r.logger.Warn("Webhook message has invalid phone number format",
			zap.String("from_prefix", truncate(msg.From, 5)+"***"))
		return fmt.Errorf("%w: invalid sender phone number", webhook.ErrInvalidEvent)
	}

	msgType := models.MessageType(msg.Type)
	if !models.ValidMessageType(msgType) {
		r.logger.Warn("Webhook message has invalid type", zap.String("type", msg.Type))
		return fmt.Errorf("%w: invalid message type %q", webhook.ErrInvalidEvent, msg.Type)
	}

	if !validTimestamp(msg.Timestamp) {
		r.logger.Warn("Webhook message has invalid timestamp", zap.String("timestamp", msg.Timestamp))
		return fmt.Errorf("%w: invalid message timestamp", webhook.ErrInvalidEvent)
	}

	messageData, body := normalizeContent(msg, value)

	payloadJSON, err := json.Marshal(messageData)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	eventTime, _ := parseTimestamp(msg.Timestamp)
	toPhone := value.Metadata.DisplayPhoneNumber

	r.logger.Info("Webhook message received",
		zap.String("wa_message_id", msg.ID),
		zap.String("type", msg.Type),
		zap.String("timestamp", msg.Timestamp),
		zap.Bool("has_content", body != ""))

	record, err := r.upsert(msg, eventTime, toPhone, body, payloadJSON)
	if err != nil {
		return err
	}

	r.notifier.MessageReceived(ctx, record)

	if r.markAsRead && r.readMarker != nil {
		if err := r.readMarker.MarkAsRead(ctx, msg.ID); err != nil {
			r.logger.Error("Failed to mark message as read",
				zap.String("wa_message_id", msg.ID),
				zap.Error(err))
		}
	}

	return nil
}

// upsert converges on a single record regardless of event ordering: a
// concurrent create by a status worker turns this create into a merge, and
// a lost compare-and-set re-reads and re-decides.
func (r *MessageReconciler) upsert(msg webhook.Message, eventTime time.Time, toPhone, body string, payloadJSON []byte) (*models.Message, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		existing, err := r.repo.Message().FindByWAMessageID(msg.ID)
		if errors.Is(err, repository.ErrNotFound) {
			created, createErr := r.repo.Message().Create(&models.Message{
				WAMessageID:     nullString(msg.ID),
				FromPhone:       nullString(msg.From),
				ToPhone:         nullString(toPhone),
				Direction:       models.DirectionIncoming,
				MessageType:     nullString(msg.Type),
				Body:            nullString(body),
				Status:          models.StatusDelivered,
				StatusUpdatedAt: sql.NullTime{Time: eventTime, Valid: true},
				Payload:         payloadJSON,
			})
			if errors.Is(createErr, repository.ErrDuplicateMessageID) {
				// Lost the create race against a status worker; merge
				// against the now-existing record instead.
				continue
			}
			if createErr != nil {
				return nil, createErr
			}
			return created, nil
		}
		if err != nil {
			return nil, err
		}

		// An inbound message is by definition already delivered, but a
		// placeholder that raced ahead may carry a higher status (read).
		status := existing.Status
		if models.StatusShouldUpdate(existing.Status, models.StatusDelivered) {
			status = models.StatusDelivered
		}

		upd := repository.MessageUpdate{
			FromPhone:   strPtr(msg.From),
			ToPhone:     strPtr(toPhone),
			Direction:   directionPtr(models.DirectionIncoming),
			MessageType: strPtr(msg.Type),
			Body:        strPtr(body),
			Status:      status,
			Payload:     payloadJSON,
		}
		if status != existing.Status {
			upd.StatusUpdatedAt = &eventTime
		}

		updated, err := r.repo.Message().ApplyUpdate(msg.ID, existing.Status, upd)
		if errors.Is(err, repository.ErrStaleRecord) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}

	return nil, fmt.Errorf("gave up reconciling message %s after %d attempts", msg.ID, casAttempts)
}

// normalizeContent extracts the type-specific content of a message into the
// audit payload and the rendered body. The body is the sanitized text for
// text messages and the JSON-encoded normalized content for everything else.
func normalizeContent(msg webhook.Message, value webhook.Value) (map[string]interface{}, string) {
	data := map[string]interface{}{
		"message_id": msg.ID,
		"from":       msg.From,
		"timestamp":  msg.Timestamp,
		"type":       msg.Type,
	}

	if len(value.Contacts) > 0 && value.Contacts[0].Profile.Name != "" {
		data["profile_name"] = sanitizeText(value.Contacts[0].Profile.Name)
	}

	switch models.MessageType(msg.Type) {
	case models.TypeText:
		if msg.Text != nil && msg.Text.Body != "" {
			data["text"] = sanitizeText(msg.Text.Body)
		}

	case models.TypeImage:
		if msg.Image != nil {
			data["image"] = normalizeMedia(msg.Image)
		}

	case models.TypeVideo:
		if msg.Video != nil {
			data["video"] = normalizeMedia(msg.Video)
		}

	case models.TypeAudio:
		if msg.Audio != nil {
			data["audio"] = map[string]interface{}{
				"id":        msg.Audio.ID,
				"mime_type": msg.Audio.MimeType,
				"sha256":    msg.Audio.SHA256,
			}
		}

	case models.TypeDocument:
		if msg.Document != nil {
			data["document"] = map[string]interface{}{
				"id":        msg.Document.ID,
				"mime_type": msg.Document.MimeType,
				"sha256":    msg.Document.SHA256,
				"filename":  sanitizeText(msg.Document.Filename),
				"caption":   sanitizeText(msg.Document.Caption),
			}
		}

	case models.TypeLocation:
		if msg.Location != nil {
			data["location"] = map[string]interface{}{
				"latitude":  msg.Location.Latitude,
				"longitude": msg.Location.Longitude,
				"name":      sanitizeText(msg.Location.Name),
				"address":   sanitizeText(msg.Location.Address),
			}
		}

	case models.TypeContacts:
		if len(msg.Contacts) > 0 {
			data["contacts"] = json.RawMessage(msg.Contacts)
		}

	case models.TypeInteractive:
		if msg.Interactive != nil {
			interactive := map[string]interface{}{"type": msg.Interactive.Type}
			if msg.Interactive.ButtonReply != nil {
				interactive["button_reply"] = map[string]interface{}{
					"id":    msg.Interactive.ButtonReply.ID,
					"title": sanitizeText(msg.Interactive.ButtonReply.Title),
				}
			}
			if msg.Interactive.ListReply != nil {
				interactive["list_reply"] = map[string]interface{}{
					"id":          msg.Interactive.ListReply.ID,
					"title":       sanitizeText(msg.Interactive.ListReply.Title),
					"description": sanitizeText(msg.Interactive.ListReply.Description),
				}
			}
			data["interactive"] = interactive
		}

	case models.TypeButton:
		if msg.Button != nil {
			data["button"] = map[string]interface{}{
				"text":    sanitizeText(msg.Button.Text),
				"payload": sanitizeText(msg.Button.Payload),
			}
		}

	case models.TypeReaction:
		if msg.Reaction != nil {
			data["reaction"] = map[string]interface{}{
				"message_id": msg.Reaction.MessageID,
				"emoji":      sanitizeText(msg.Reaction.Emoji),
			}
		}
	}

	var body string
	if models.MessageType(msg.Type) == models.TypeText {
		if text, ok := data["text"].(string); ok {
			body = text
		}
	} else if content, ok := data[msg.Type]; ok {
		if encoded, err := json.Marshal(content); err == nil {
			body = string(encoded)
		}
	}

	return data, body
}

func normalizeMedia(m *webhook.Media) map[string]interface{} {
	return map[string]interface{}{
		"id":        m.ID,
		"mime_type": m.MimeType,
		"sha256":    m.SHA256,
		"caption":   sanitizeText(m.Caption),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func directionPtr(d models.Direction) *models.Direction {
	return &d
}
