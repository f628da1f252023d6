package service

import (
	"github.com/duli-labs/wa-gateway/internal/models"
	"github.com/duli-labs/wa-gateway/internal/whatsapp"
)

type Pagination struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}

type MessageListResponse struct {
	Messages   []*models.Message `json:"messages"`
	Pagination Pagination        `json:"pagination"`
}

type SendResult struct {
	WAMessageID string `json:"wa_message_id"`
}

type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"
)

type ComponentStatus string

const (
	ComponentConnected    ComponentStatus = "connected"
	ComponentDisconnected ComponentStatus = "disconnected"
)

type WorkerStatus string

const (
	WorkersRunning WorkerStatus = "running"
	WorkersStopped WorkerStatus = "stopped"
)

type HealthStatus struct {
	Status               HealthState           `json:"status"`
	WorkerStatus         WorkerStatus          `json:"worker_status"`
	QueueDepth           int                   `json:"queue_depth"`
	DatabaseStatus       ComponentStatus       `json:"database_status"`
	RedisStatus          ComponentStatus       `json:"redis_status"`
	CircuitBreakerState  whatsapp.BreakerState `json:"circuit_breaker_state,omitempty"`
	CircuitBreakerStatus string                `json:"circuit_breaker_status,omitempty"`
}
