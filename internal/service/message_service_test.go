package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/models"
	"github.com/duli-labs/wa-gateway/internal/repository"
	"github.com/duli-labs/wa-gateway/internal/repository/mocks"
	"github.com/duli-labs/wa-gateway/internal/service"
	"github.com/duli-labs/wa-gateway/internal/whatsapp"
)

// stubClient satisfies whatsapp.Client for the methods the service layer
// touches; everything else panics via the embedded nil interface.
type stubClient struct {
	whatsapp.Client
	sendTextResp *whatsapp.SendResponse
	sendTextErr  error
	lastTo       string
	lastBody     string
}

func (s *stubClient) SendText(_ context.Context, to, body string, _ bool) (*whatsapp.SendResponse, error) {
	s.lastTo = to
	s.lastBody = body
	return s.sendTextResp, s.sendTextErr
}

func TestMessageService_GetMessages(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockRepository(ctrl)
	mockMessages := mocks.NewMockMessageRepository(ctrl)
	mockRepo.EXPECT().Message().Return(mockMessages).AnyTimes()

	stored := []*models.Message{
		{ID: 2, Direction: models.DirectionIncoming, Status: models.StatusRead},
		{ID: 1, Direction: models.DirectionIncoming, Status: models.StatusDelivered},
	}

	filter := repository.MessageFilter{Phone: "15551234567", Direction: models.DirectionIncoming}
	mockMessages.EXPECT().List(filter, 10, 10).Return(stored, nil)
	mockMessages.EXPECT().Count(filter).Return(int64(25), nil)

	svc := service.NewMessageService(mockRepo, &stubClient{}, zap.NewNop())

	resp, err := svc.GetMessages(2, 10, "15551234567", models.DirectionIncoming)
	require.NoError(t, err)

	assert.Equal(t, stored, resp.Messages)
	assert.Equal(t, 2, resp.Pagination.CurrentPage)
	assert.Equal(t, 3, resp.Pagination.TotalPages)
	assert.Equal(t, 25, resp.Pagination.TotalItems)
	assert.Equal(t, 10, resp.Pagination.ItemsPerPage)
}

func TestMessageService_GetMessages_ListError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockRepository(ctrl)
	mockMessages := mocks.NewMockMessageRepository(ctrl)
	mockRepo.EXPECT().Message().Return(mockMessages).AnyTimes()

	mockMessages.EXPECT().List(gomock.Any(), 0, 20).Return(nil, errors.New("db down"))

	svc := service.NewMessageService(mockRepo, &stubClient{}, zap.NewNop())

	_, err := svc.GetMessages(1, 20, "", "")
	assert.Error(t, err)
}

func TestMessageService_SendText(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockRepository(ctrl)

	client := &stubClient{
		sendTextResp: &whatsapp.SendResponse{
			Messages: []whatsapp.ResponseMessage{{ID: "wamid.svc.1"}},
		},
	}

	svc := service.NewMessageService(mockRepo, client, zap.NewNop())

	result, err := svc.SendText(context.Background(), "15551234567", "hi there", false)
	require.NoError(t, err)

	assert.Equal(t, "wamid.svc.1", result.WAMessageID)
	assert.Equal(t, "15551234567", client.lastTo)
	assert.Equal(t, "hi there", client.lastBody)
}

func TestMessageService_SendText_Error(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockRepository(ctrl)
	client := &stubClient{sendTextErr: errors.New("provider down")}

	svc := service.NewMessageService(mockRepo, client, zap.NewNop())

	_, err := svc.SendText(context.Background(), "15551234567", "hi", false)
	assert.Error(t, err)
}
