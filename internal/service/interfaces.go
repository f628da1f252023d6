package service

import (
	"context"

	"github.com/duli-labs/wa-gateway/internal/models"
)

// MessageService exposes the stored records and outbound sending.
type MessageService interface {
	GetMessages(page, limit int, phone string, direction models.Direction) (*MessageListResponse, error)
	SendText(ctx context.Context, to, body string, previewURL bool) (*SendResult, error)
}

// HealthService reports aggregate service health.
type HealthService interface {
	GetHealth() *HealthStatus
}

// PoolStatus is the slice of the worker pool the health check needs.
type PoolStatus interface {
	IsRunning() bool
	QueueDepth() int
}
