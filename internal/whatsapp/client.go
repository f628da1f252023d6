package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/duli-labs/wa-gateway/internal/config"
	"github.com/duli-labs/wa-gateway/internal/models"
	"github.com/duli-labs/wa-gateway/internal/repository"
)

// Client sends messages through the provider's Graph API. Every send logs
// an outgoing record so status webhooks have something to reconcile against.
type Client interface {
	SendText(ctx context.Context, to, body string, previewURL bool) (*SendResponse, error)
	SendTemplate(ctx context.Context, to, template, language string, params []string, header *TemplateHeader, buttons []TemplateButton) (*SendResponse, error)
	SendImage(ctx context.Context, to string, media MediaRef, caption string) (*SendResponse, error)
	SendVideo(ctx context.Context, to string, media MediaRef, caption string) (*SendResponse, error)
	SendAudio(ctx context.Context, to string, media MediaRef) (*SendResponse, error)
	SendDocument(ctx context.Context, to string, media MediaRef, filename, caption string) (*SendResponse, error)
	SendLocation(ctx context.Context, to string, latitude, longitude float64, name, address string) (*SendResponse, error)
	SendButtons(ctx context.Context, to, bodyText string, buttons []ReplyButton, headerText, footerText string) (*SendResponse, error)
	SendList(ctx context.Context, to, bodyText, buttonText string, sections []ListSection, headerText, footerText string) (*SendResponse, error)
	SendReaction(ctx context.Context, to, waMessageID, emoji string) (*SendResponse, error)
	MarkAsRead(ctx context.Context, waMessageID string) error
	BreakerStatus() (state BreakerState, requests, failures uint32)
}

// SendResponse is the provider's reply to a successful send.
type SendResponse struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []ResponseContact `json:"contacts"`
	Messages         []ResponseMessage `json:"messages"`
}

type ResponseContact struct {
	Input string `json:"input"`
	WaID  string `json:"wa_id"`
}

type ResponseMessage struct {
	ID string `json:"id"`
}

// MessageID returns the provider message id assigned to the send, if any.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// APIError is a non-transport failure reported by the provider.
type APIError struct {
	Code    int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api error %d: %s", e.Code, e.Message)
}

type apiErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

const messageIDCacheTTL = 24 * time.Hour

type client struct {
	cfg         *config.WhatsAppConfig
	repo        repository.Repository
	redisClient *redis.Client
	httpClient  *http.Client
	breaker     *CircuitBreaker
	logger      *zap.Logger
	apiURL      string
}

func NewClient(
	cfg *config.WhatsAppConfig,
	repo repository.Repository,
	redisClient *redis.Client,
	logger *zap.Logger,
) Client {
	return &client{
		cfg:         cfg,
		repo:        repo,
		redisClient: redisClient,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		breaker: NewCircuitBreaker(&cfg.CircuitBreaker, logger),
		logger:  logger,
		apiURL:  fmt.Sprintf("%s/%s/%s/messages", cfg.BaseURL, cfg.APIVersion, cfg.PhoneID),
	}
}

// SendText sends a plain text message.
func (c *client) SendText(ctx context.Context, to, body string, previewURL bool) (*SendResponse, error) {
	return c.send(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text": map[string]interface{}{
			"preview_url": previewURL,
			"body":        body,
		},
	})
}

// SendTemplate sends a pre-approved template message.
func (c *client) SendTemplate(ctx context.Context, to, template, language string, params []string, header *TemplateHeader, buttons []TemplateButton) (*SendResponse, error) {
	var components []map[string]interface{}

	if header != nil {
		headerType := header.Type
		if headerType == "" {
			headerType = "image"
		}
		param := map[string]interface{}{"type": headerType}
		if header.MediaID != "" {
			param[headerType] = map[string]interface{}{"id": header.MediaID}
		} else {
			param[headerType] = map[string]interface{}{"link": header.Link}
		}
		components = append(components, map[string]interface{}{
			"type":       "header",
			"parameters": []map[string]interface{}{param},
		})
	}

	if len(params) > 0 {
		bodyParams := make([]map[string]interface{}, 0, len(params))
		for _, p := range params {
			bodyParams = append(bodyParams, map[string]interface{}{"type": "text", "text": p})
		}
		components = append(components, map[string]interface{}{
			"type":       "body",
			"parameters": bodyParams,
		})
	}

	for i, button := range buttons {
		subType := button.SubType
		if subType == "" {
			subType = "quick_reply"
		}

		var parameters []map[string]interface{}
		if subType == "url" {
			parameters = append(parameters, map[string]interface{}{
				"type": "text",
				"text": button.Text,
			})
		} else {
			parameters = append(parameters, map[string]interface{}{
				"type":    "payload",
				"payload": button.Payload,
			})
		}

		components = append(components, map[string]interface{}{
			"type":       "button",
			"sub_type":   subType,
			"index":      fmt.Sprintf("%d", i),
			"parameters": parameters,
		})
	}

	return c.send(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]interface{}{
			"name":       template,
			"language":   map[string]interface{}{"code": language},
			"components": components,
		},
	})
}

// SendImage sends an image by link or media id.
func (c *client) SendImage(ctx context.Context, to string, media MediaRef, caption string) (*SendResponse, error) {
	payload := media.payload()
	if caption != "" {
		payload["caption"] = caption
	}
	return c.send(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image":             payload,
	})
}

// SendVideo sends a video by link or media id.
func (c *client) SendVideo(ctx context.Context, to string, media MediaRef, caption string) (*SendResponse, error) {
	payload := media.payload()
	if caption != "" {
		payload["caption"] = caption
	}
	return c.send(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "video",
		"video":             payload,
	})
}

// SendAudio sends an audio file by link or media id.
func (c *client) SendAudio(ctx context.Context, to string, media MediaRef) (*SendResponse, error) {
	return c.send(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "audio",
		"audio":             media.payload(),
	})
}

// SendDocument sends a document by link or media id.
func (c *client) SendDocument(ctx context.Context, to string, media MediaRef, filename, caption string) (*SendResponse, error) {
	payload := media.payload()
	if filename != "" {
		payload["filename"] = filename
	}
	if caption != "" {
		payload["caption"] = caption
	}
	return c.send(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "document",
		"document":          payload,
	})
}

// SendLocation sends a location pin.
func (c *client) SendLocation(ctx context.Context, to string, latitude, longitude float64, name, address string) (*SendResponse, error) {
	payload := map[string]interface{}{
		"latitude":  latitude,
		"longitude": longitude,
	}
	if name != "" {
		payload["name"] = name
	}
	if address != "" {
		payload["address"] = address
	}
	return c.send(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "location",
		"location":          payload,
	})
}

// SendButtons sends an interactive quick-reply button message.
func (c *client) SendButtons(ctx context.Context, to, bodyText string, buttons []ReplyButton, headerText, footerText string) (*SendResponse, error) {
	interactive := map[string]interface{}{
		"type": "button",
		"body": map[string]interface{}{"text": bodyText},
		"action": map[string]interface{}{
			"buttons": buildReplyButtons(buttons),
		},
	}
	if headerText != "" {
		interactive["header"] = map[string]interface{}{"type": "text", "text": headerText}
	}
	if footerText != "" {
		interactive["footer"] = map[string]interface{}{"text": footerText}
	}

	return c.send(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	})
}

// SendList sends an interactive list message.
func (c *client) SendList(ctx context.Context, to, bodyText, buttonText string, sections []ListSection, headerText, footerText string) (*SendResponse, error) {
	interactive := map[string]interface{}{
		"type": "list",
		"body": map[string]interface{}{"text": bodyText},
		"action": map[string]interface{}{
			"button":   buttonText,
			"sections": buildListSections(sections),
		},
	}
	if headerText != "" {
		interactive["header"] = map[string]interface{}{"type": "text", "text": headerText}
	}
	if footerText != "" {
		interactive["footer"] = map[string]interface{}{"text": footerText}
	}

	return c.send(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive":       interactive,
	})
}

// SendReaction reacts to a previously received message.
func (c *client) SendReaction(ctx context.Context, to, waMessageID, emoji string) (*SendResponse, error) {
	return c.send(ctx, map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
		"type":              "reaction",
		"reaction": map[string]interface{}{
			"message_id": waMessageID,
			"emoji":      emoji,
		},
	})
}

// MarkAsRead reports a read receipt for an inbound message. Best-effort:
// callers log failures and move on.
func (c *client) MarkAsRead(ctx context.Context, waMessageID string) error {
	body, err := json.Marshal(map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        waMessageID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mark-as-read request: %w", err)
	}

	return c.breaker.Execute(ctx, func() error {
		_, err := c.post(ctx, body)
		return err
	})
}

// BreakerStatus exposes circuit breaker state for the health endpoint.
func (c *client) BreakerStatus() (BreakerState, uint32, uint32) {
	requests, failures := c.breaker.Counts()
	return c.breaker.State(), requests, failures
}

// send pushes a payload through the circuit breaker with bounded retry on
// transport errors, then records the outgoing message.
func (c *client) send(ctx context.Context, payload map[string]interface{}) (*SendResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var resp *SendResponse
	sendErr := c.breaker.Execute(ctx, func() error {
		r, err := c.doSend(ctx, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	c.logOutgoing(payload, resp, sendErr)

	if sendErr != nil {
		return nil, fmt.Errorf("failed to send whatsapp message: %w", sendErr)
	}

	if id := resp.MessageID(); id != "" {
		c.cacheMessageID(ctx, id, payload)
	}

	c.logger.Info("WhatsApp message sent",
		zap.String("to", fmt.Sprintf("%v", payload["to"])),
		zap.String("type", fmt.Sprintf("%v", payload["type"])),
		zap.String("wa_message_id", resp.MessageID()),
		zap.String("circuit_breaker_state", string(c.breaker.State())))

	return resp, nil
}

// doSend retries transport-level failures and 5xx responses with a fixed
// delay. 4xx responses are permanent and surface immediately as APIError.
func (c *client) doSend(ctx context.Context, body []byte) (*SendResponse, error) {
	attempts := c.cfg.RetryTimes
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(c.cfg.RetryDelayMs) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.post(ctx, body)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Code < 500 {
				return nil, err
			}
			lastErr = err
			c.logger.Warn("WhatsApp API request failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

func (c *client) post(ctx context.Context, body []byte) (*SendResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope apiErrorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error.Message != "" {
			code := envelope.Error.Code
			if code == 0 {
				code = resp.StatusCode
			}
			return nil, &APIError{
				Code:    code,
				Type:    envelope.Error.Type,
				Message: envelope.Error.Message,
			}
		}
		return nil, &APIError{Code: resp.StatusCode, Message: "unknown error occurred"}
	}

	var sendResp SendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sendResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &sendResp, nil
}

// logOutgoing records the send in the store so later status webhooks find a
// record to update. Logging must never interrupt sending: failures are
// swallowed into the log.
func (c *client) logOutgoing(payload map[string]interface{}, resp *SendResponse, sendErr error) {
	status := models.StatusSent
	if sendErr != nil {
		status = models.StatusFailed
	}

	msgType, _ := payload["type"].(string)
	to, _ := payload["to"].(string)

	audit, err := json.Marshal(map[string]interface{}{
		"request":  payload,
		"response": resp,
	})
	if err != nil {
		c.logger.Error("Failed to marshal outgoing message audit payload", zap.Error(err))
		return
	}

	now := time.Now().UTC()
	record := &models.Message{
		WAMessageID:     nullStr(resp.MessageID()),
		FromPhone:       nullStr(c.cfg.PhoneID),
		ToPhone:         nullStr(to),
		Direction:       models.DirectionOutgoing,
		MessageType:     nullStr(msgType),
		Body:            nullStr(outgoingBody(msgType, payload)),
		Status:          status,
		StatusUpdatedAt: sqlTime(now),
		Payload:         audit,
	}

	_, err = c.repo.Message().Create(record)
	if errors.Is(err, repository.ErrDuplicateMessageID) {
		// A status webhook for this send beat us to the insert. Complete
		// the placeholder without downgrading the status it already carries.
		err = c.mergeOutgoing(resp.MessageID(), record)
	}
	if err != nil {
		c.logger.Error("Failed to log outgoing whatsapp message", zap.Error(err))
	}
}

func (c *client) mergeOutgoing(waMessageID string, record *models.Message) error {
	for attempt := 0; attempt < 3; attempt++ {
		existing, err := c.repo.Message().FindByWAMessageID(waMessageID)
		if err != nil {
			return err
		}

		status := record.Status
		if !models.StatusShouldUpdate(existing.Status, status) {
			status = existing.Status
		}

		upd := repository.MessageUpdate{
			FromPhone:   ptrOrNil(record.FromPhone),
			ToPhone:     ptrOrNil(record.ToPhone),
			MessageType: ptrOrNil(record.MessageType),
			Body:        ptrOrNil(record.Body),
			Status:      status,
			Payload:     record.Payload,
		}

		_, err = c.repo.Message().ApplyUpdate(waMessageID, existing.Status, upd)
		if errors.Is(err, repository.ErrStaleRecord) {
			continue
		}
		return err
	}

	return fmt.Errorf("gave up merging outgoing message %s", waMessageID)
}

func (c *client) cacheMessageID(ctx context.Context, waMessageID string, payload map[string]interface{}) {
	if c.redisClient == nil {
		return
	}

	key := fmt.Sprintf("wa:message:%s", waMessageID)
	value := fmt.Sprintf("%v:%s", payload["to"], time.Now().Format(time.RFC3339))

	if err := c.redisClient.Set(ctx, key, value, messageIDCacheTTL).Err(); err != nil {
		c.logger.Warn("Failed to cache message id in Redis",
			zap.String("wa_message_id", waMessageID),
			zap.Error(err))
	}
}

// outgoingBody extracts the stored body for an outbound payload, mirroring
// how inbound normalization renders each type.
func outgoingBody(msgType string, payload map[string]interface{}) string {
	switch msgType {
	case "text":
		if text, ok := payload["text"].(map[string]interface{}); ok {
			if body, ok := text["body"].(string); ok {
				return body
			}
		}
	case "template":
		if tpl, ok := payload["template"].(map[string]interface{}); ok {
			if name, ok := tpl["name"].(string); ok {
				return name
			}
		}
	default:
		if content, ok := payload[msgType]; ok {
			if encoded, err := json.Marshal(content); err == nil {
				return string(encoded)
			}
		}
	}
	return ""
}
