// Package handler provides HTTP request handlers for the application.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/middleware"
	"github.com/duli-labs/wa-gateway/internal/models"
	"github.com/duli-labs/wa-gateway/internal/service"
	"github.com/duli-labs/wa-gateway/internal/webhook"
)

const (
	errorCodeInvalidPayload = "INVALID_PAYLOAD"
	errorCodeInvalidRequest = "INVALID_REQUEST"
	errorCodeSendFailed     = "SEND_FAILED"
)

const (
	errorMessageInvalidPayload           = "Webhook payload could not be decoded"
	errorMessageInvalidRequest           = "Request body is missing required fields"
	errorMessageFailedToSend             = "Failed to send message"
	errorMessageFailedToRetrieveMessages = "Failed to retrieve messages"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error     string     `json:"error"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// SendTextRequest is the body of POST /api/v1/messages.
type SendTextRequest struct {
	To         string `json:"to"`
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

// Handler serves the webhook boundary and the query API.
type Handler struct {
	service     *service.Service
	dispatcher  *webhook.Dispatcher
	verifyToken string
	logger      *zap.Logger
}

func NewHandler(service *service.Service, dispatcher *webhook.Dispatcher, verifyToken string, logger *zap.Logger) *Handler {
	return &Handler{
		service:     service,
		dispatcher:  dispatcher,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// VerifyWebhook answers the provider's subscription handshake: echo the
// challenge when the verify token matches, 403 otherwise.
func (h *Handler) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token != "" && token == h.verifyToken {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(challenge))
		return
	}

	h.logger.Warn("Webhook verification failed", zap.String("mode", mode))
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte("Invalid verify token"))
}

// ReceiveWebhook fans an authenticated payload out to the worker pool and
// returns success immediately. Reconciliation outcome never propagates back
// to the provider; its retries are absorbed by idempotent merges instead.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var payload webhook.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Warn("Failed to decode webhook payload",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidPayload, errorMessageInvalidPayload)
		return
	}

	scheduled := h.dispatcher.Dispatch(&payload)

	h.logger.Info("Webhook payload received",
		zap.String("request_id", requestID),
		zap.Int("entries", len(payload.Entry)),
		zap.Int("scheduled_units", scheduled))

	render.JSON(w, r, map[string]interface{}{"status": "ok"})
}

// GetMessages lists stored records with optional phone/direction filters.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	page := 1
	limit := 20

	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v >= 1 {
		page = v
	}

	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v >= 1 && v <= 100 {
		limit = v
	}

	direction := models.Direction(r.URL.Query().Get("direction"))
	if direction != "" && direction != models.DirectionIncoming && direction != models.DirectionOutgoing {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, "Invalid direction filter")
		return
	}

	result, err := h.service.Message.GetMessages(page, limit, r.URL.Query().Get("phone"), direction)
	if err != nil {
		requestID := middleware.GetRequestID(r.Context())
		h.logger.Error("Failed to get messages",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.sendError(w, r, http.StatusInternalServerError, middleware.ErrorCodeInternal, errorMessageFailedToRetrieveMessages)
		return
	}

	render.JSON(w, r, result)
}

// SendMessage sends a text message through the provider client.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	var req SendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" || req.Body == "" {
		h.sendError(w, r, http.StatusBadRequest, errorCodeInvalidRequest, errorMessageInvalidRequest)
		return
	}

	result, err := h.service.Message.SendText(r.Context(), req.To, req.Body, req.PreviewURL)
	if err != nil {
		h.logger.Error("Failed to send message",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.sendError(w, r, http.StatusBadGateway, errorCodeSendFailed, errorMessageFailedToSend)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

// HealthCheck reports aggregate component health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := h.service.Health.GetHealth()

	if health.Status == service.Unhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	render.JSON(w, r, health)
}

func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorResponse{
		Error:   errorCode,
		Message: message,
		Timestamp: func() *time.Time {
			t := time.Now()
			return &t
		}(),
	})
}
