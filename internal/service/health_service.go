// Package service provides business logic implementation for the application.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/duli-labs/wa-gateway/internal/repository"
	"github.com/duli-labs/wa-gateway/internal/whatsapp"
)

type healthService struct {
	repo        repository.Repository
	redisClient *redis.Client
	pool        PoolStatus
	client      whatsapp.Client
}

func NewHealthService(
	repo repository.Repository,
	redisClient *redis.Client,
	pool PoolStatus,
	client whatsapp.Client,
) HealthService {
	return &healthService{
		repo:        repo,
		redisClient: redisClient,
		pool:        pool,
		client:      client,
	}
}

func (s *healthService) GetHealth() *HealthStatus {
	status := &HealthStatus{
		Status:     Healthy,
		QueueDepth: s.pool.QueueDepth(),
	}

	if s.pool.IsRunning() {
		status.WorkerStatus = WorkersRunning
	} else {
		status.WorkerStatus = WorkersStopped
	}

	status.DatabaseStatus = s.checkDatabaseHealth()
	status.RedisStatus = s.checkRedisHealth()

	state, requests, failures := s.client.BreakerStatus()
	status.CircuitBreakerState = state
	if requests > 0 {
		failureRate := float64(failures) / float64(requests) * 100
		status.CircuitBreakerStatus = fmt.Sprintf("Requests: %d, Failures: %d (%.1f%%)", requests, failures, failureRate)
	} else {
		status.CircuitBreakerStatus = "No requests yet"
	}

	// A stopped pool means webhooks are accepted but never reconciled.
	if status.WorkerStatus == WorkersStopped || state == whatsapp.BreakerOpen {
		status.Status = Degraded
	}

	// Determine overall health
	if status.DatabaseStatus != ComponentConnected || status.RedisStatus != ComponentConnected {
		status.Status = Unhealthy
	}

	return status
}

func (s *healthService) checkDatabaseHealth() ComponentStatus {
	if err := s.repo.Ping(); err != nil {
		return ComponentDisconnected
	}
	return ComponentConnected
}

func (s *healthService) checkRedisHealth() ComponentStatus {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		return ComponentDisconnected
	}

	return ComponentConnected
}
