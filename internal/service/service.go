package service

import (
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/repository"
	"github.com/duli-labs/wa-gateway/internal/whatsapp"
)

type Service struct {
	Message MessageService
	Health  HealthService
}

func NewService(
	repo repository.Repository,
	redisClient *redis.Client,
	pool PoolStatus,
	client whatsapp.Client,
	logger *zap.Logger,
) *Service {
	return &Service{
		Message: NewMessageService(repo, client, logger),
		Health:  NewHealthService(repo, redisClient, pool, client),
	}
}
