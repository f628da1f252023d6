package whatsapp_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/config"
	"github.com/duli-labs/wa-gateway/internal/models"
	"github.com/duli-labs/wa-gateway/internal/repository"
	"github.com/duli-labs/wa-gateway/internal/repository/mocks"
	"github.com/duli-labs/wa-gateway/internal/whatsapp"
)

func testConfig(baseURL string) *config.WhatsAppConfig {
	return &config.WhatsAppConfig{
		BaseURL:      baseURL,
		PhoneID:      "123456789",
		Token:        "test-token",
		APIVersion:   "v20.0",
		Timeout:      5,
		RetryTimes:   3,
		RetryDelayMs: 1,
		CircuitBreaker: config.CircuitBreakerConfig{
			MaxRequests:      3,
			Interval:         60,
			Timeout:          60,
			FailureRatio:     0.6,
			ConsecutiveFails: 100,
		},
	}
}

func newMockRepo(t *testing.T) (*mocks.MockRepository, *mocks.MockMessageRepository) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockRepo := mocks.NewMockRepository(ctrl)
	mockMessages := mocks.NewMockMessageRepository(ctrl)
	mockRepo.EXPECT().Message().Return(mockMessages).AnyTimes()
	return mockRepo, mockMessages
}

func sendResponseBody(id string) string {
	return `{"messaging_product":"whatsapp","contacts":[{"input":"15551234567","wa_id":"15551234567"}],"messages":[{"id":"` + id + `"}]}`
}

func TestClient_SendText_Success(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sendResponseBody("wamid.out.1")))
	}))
	defer server.Close()

	mockRepo, mockMessages := newMockRepo(t)
	mockMessages.EXPECT().Create(gomock.Any()).DoAndReturn(func(msg *models.Message) (*models.Message, error) {
		assert.Equal(t, "wamid.out.1", msg.WAMessageID.String)
		assert.Equal(t, models.DirectionOutgoing, msg.Direction)
		assert.Equal(t, models.StatusSent, msg.Status)
		assert.Equal(t, "hello out", msg.Body.String)
		return msg, nil
	})

	client := whatsapp.NewClient(testConfig(server.URL), mockRepo, nil, zap.NewNop())

	resp, err := client.SendText(context.Background(), "15551234567", "hello out", false)
	require.NoError(t, err)
	assert.Equal(t, "wamid.out.1", resp.MessageID())

	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "/v20.0/123456789/messages", gotPath)
	assert.Equal(t, "whatsapp", gotBody["messaging_product"])
	assert.Equal(t, "text", gotBody["type"])
}

func TestClient_SendText_RetriesServerErrors(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream hiccup","code":500}}`))
			return
		}
		_, _ = w.Write([]byte(sendResponseBody("wamid.out.2")))
	}))
	defer server.Close()

	mockRepo, mockMessages := newMockRepo(t)
	mockMessages.EXPECT().Create(gomock.Any()).DoAndReturn(func(msg *models.Message) (*models.Message, error) {
		assert.Equal(t, models.StatusSent, msg.Status)
		return msg, nil
	})

	client := whatsapp.NewClient(testConfig(server.URL), mockRepo, nil, zap.NewNop())

	resp, err := client.SendText(context.Background(), "15551234567", "retry me", false)
	require.NoError(t, err)
	assert.Equal(t, "wamid.out.2", resp.MessageID())
	assert.Equal(t, int32(3), requests.Load())
}

func TestClient_SendText_ClientErrorIsPermanent(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid recipient","type":"OAuthException","code":131030}}`))
	}))
	defer server.Close()

	mockRepo, mockMessages := newMockRepo(t)
	mockMessages.EXPECT().Create(gomock.Any()).DoAndReturn(func(msg *models.Message) (*models.Message, error) {
		// Failed sends are recorded too, without a provider message id.
		assert.Equal(t, models.StatusFailed, msg.Status)
		assert.False(t, msg.WAMessageID.Valid)
		return msg, nil
	})

	client := whatsapp.NewClient(testConfig(server.URL), mockRepo, nil, zap.NewNop())

	_, err := client.SendText(context.Background(), "bad", "x", false)
	require.Error(t, err)

	var apiErr *whatsapp.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 131030, apiErr.Code)
	assert.Equal(t, "Invalid recipient", apiErr.Message)

	assert.Equal(t, int32(1), requests.Load(), "4xx must not be retried")
}

func TestClient_SendText_MergesWithRacedPlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sendResponseBody("wamid.out.3")))
	}))
	defer server.Close()

	mockRepo, mockMessages := newMockRepo(t)

	// A delivery webhook for this send already created a placeholder with a
	// higher-ranked status. The merge must keep delivered, not downgrade to
	// sent.
	placeholder := &models.Message{
		WAMessageID: sql.NullString{String: "wamid.out.3", Valid: true},
		Direction:   models.DirectionOutgoing,
		Status:      models.StatusDelivered,
	}

	gomock.InOrder(
		mockMessages.EXPECT().Create(gomock.Any()).Return(nil, repository.ErrDuplicateMessageID),
		mockMessages.EXPECT().FindByWAMessageID("wamid.out.3").Return(placeholder, nil),
		mockMessages.EXPECT().
			ApplyUpdate("wamid.out.3", models.StatusDelivered, gomock.Any()).
			DoAndReturn(func(_ string, _ models.MessageStatus, upd repository.MessageUpdate) (*models.Message, error) {
				assert.Equal(t, models.StatusDelivered, upd.Status)
				require.NotNil(t, upd.Body)
				assert.Equal(t, "merged body", *upd.Body)
				return placeholder, nil
			}),
	)

	client := whatsapp.NewClient(testConfig(server.URL), mockRepo, nil, zap.NewNop())

	resp, err := client.SendText(context.Background(), "15551234567", "merged body", false)
	require.NoError(t, err)
	assert.Equal(t, "wamid.out.3", resp.MessageID())
}

func TestClient_MarkAsRead(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer server.Close()

	mockRepo, _ := newMockRepo(t)
	client := whatsapp.NewClient(testConfig(server.URL), mockRepo, nil, zap.NewNop())

	err := client.MarkAsRead(context.Background(), "wamid.in.1")
	require.NoError(t, err)

	assert.Equal(t, "read", gotBody["status"])
	assert.Equal(t, "wamid.in.1", gotBody["message_id"])
}

func TestClient_CircuitBreakerOpensAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"down","code":500}}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.RetryTimes = 1
	cfg.CircuitBreaker.ConsecutiveFails = 2
	cfg.CircuitBreaker.FailureRatio = 0.5

	mockRepo, mockMessages := newMockRepo(t)
	mockMessages.EXPECT().Create(gomock.Any()).DoAndReturn(func(msg *models.Message) (*models.Message, error) {
		return msg, nil
	}).AnyTimes()

	client := whatsapp.NewClient(cfg, mockRepo, nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.SendText(ctx, "15551234567", "x", false)
		require.Error(t, err)
	}

	state, _, _ := client.BreakerStatus()
	assert.Equal(t, whatsapp.BreakerOpen, state)

	// While open, requests short-circuit without reaching the provider.
	_, err := client.SendText(ctx, "15551234567", "x", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
}

func TestClient_SendButtons_PayloadShape(t *testing.T) {
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(sendResponseBody("wamid.out.4")))
	}))
	defer server.Close()

	mockRepo, mockMessages := newMockRepo(t)
	mockMessages.EXPECT().Create(gomock.Any()).DoAndReturn(func(msg *models.Message) (*models.Message, error) {
		return msg, nil
	})

	client := whatsapp.NewClient(testConfig(server.URL), mockRepo, nil, zap.NewNop())

	_, err := client.SendButtons(context.Background(), "15551234567", "pick one",
		[]whatsapp.ReplyButton{
			{ID: "yes", Title: "Yes"},
			{ID: "no", Title: "No"},
		}, "Header", "Footer")
	require.NoError(t, err)

	assert.Equal(t, "interactive", gotBody["type"])
	interactive := gotBody["interactive"].(map[string]interface{})
	assert.Equal(t, "button", interactive["type"])

	action := interactive["action"].(map[string]interface{})
	buttons := action["buttons"].([]interface{})
	assert.Len(t, buttons, 2)
}
