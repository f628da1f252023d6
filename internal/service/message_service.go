package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/models"
	"github.com/duli-labs/wa-gateway/internal/repository"
	"github.com/duli-labs/wa-gateway/internal/whatsapp"
)

type messageService struct {
	repo   repository.Repository
	client whatsapp.Client
	logger *zap.Logger
}

func NewMessageService(repo repository.Repository, client whatsapp.Client, logger *zap.Logger) MessageService {
	return &messageService{
		repo:   repo,
		client: client,
		logger: logger,
	}
}

// GetMessages retrieves message records with pagination.
func (s *messageService) GetMessages(page, limit int, phone string, direction models.Direction) (*MessageListResponse, error) {
	offset := (page - 1) * limit
	filter := repository.MessageFilter{
		Phone:     phone,
		Direction: direction,
	}

	messages, err := s.repo.Message().List(filter, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	totalCount, err := s.repo.Message().Count(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	totalPages := int(totalCount) / limit
	if int(totalCount)%limit > 0 {
		totalPages++
	}

	return &MessageListResponse{
		Messages: messages,
		Pagination: Pagination{
			CurrentPage:  page,
			TotalPages:   totalPages,
			TotalItems:   int(totalCount),
			ItemsPerPage: limit,
		},
	}, nil
}

// SendText sends a text message through the provider client.
func (s *messageService) SendText(ctx context.Context, to, body string, previewURL bool) (*SendResult, error) {
	resp, err := s.client.SendText(ctx, to, body, previewURL)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Text message sent",
		zap.String("to", to),
		zap.String("wa_message_id", resp.MessageID()))

	return &SendResult{WAMessageID: resp.MessageID()}, nil
}
