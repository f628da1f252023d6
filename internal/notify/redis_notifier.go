package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/models"
)

const (
	// ChannelMessageReceived carries MessageReceived events.
	ChannelMessageReceived = "wa:events:message_received"
	// ChannelStatusUpdated carries StatusUpdated events.
	ChannelStatusUpdated = "wa:events:status_updated"

	publishTimeout = 2 * time.Second
)

// MessageReceivedEvent is the wire form published to ChannelMessageReceived.
type MessageReceivedEvent struct {
	Message *models.Message `json:"message"`
}

// StatusUpdatedEvent is the wire form published to ChannelStatusUpdated.
// Carrying both statuses lets subscribers distinguish delivered→read from
// sent→delivered without a second lookup.
type StatusUpdatedEvent struct {
	Message   *models.Message      `json:"message"`
	OldStatus models.MessageStatus `json:"old_status,omitempty"`
	NewStatus models.MessageStatus `json:"new_status"`
}

// RedisNotifier publishes events to Redis pub/sub channels.
type RedisNotifier struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisNotifier(client *redis.Client, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		logger: logger,
	}
}

// MessageReceived implements Notifier.
func (n *RedisNotifier) MessageReceived(ctx context.Context, msg *models.Message) {
	n.publish(ctx, ChannelMessageReceived, MessageReceivedEvent{Message: msg})
}

// StatusUpdated implements Notifier.
func (n *RedisNotifier) StatusUpdated(ctx context.Context, msg *models.Message, oldStatus, newStatus models.MessageStatus) {
	n.publish(ctx, ChannelStatusUpdated, StatusUpdatedEvent{
		Message:   msg,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	})
}

func (n *RedisNotifier) publish(ctx context.Context, channel string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Failed to marshal notification event",
			zap.String("channel", channel),
			zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := n.client.Publish(pubCtx, channel, payload).Err(); err != nil {
		n.logger.Warn("Failed to publish notification event",
			zap.String("channel", channel),
			zap.Error(err))
	}
}
