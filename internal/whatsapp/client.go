// Package whatsapp is a client for an Evolution-API compatible WhatsApp
// gateway.
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/federation-engine/internal/observability"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

type Config struct {
	BaseURL  string
	Instance string
	APIKey   string
}

// SendResult describes an accepted message.
type SendResult struct {
	MessageID  string
	Number     string
	StatusCode int
	Body       string
	Simulated  bool
}

// APIError is a send or status failure reported by the gateway.
type APIError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := []string{"whatsapp api error"}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Client talks to one instance. Without a base URL or API key it runs in
// simulated mode: the instance reports connected and sends are logged only.
type Client struct {
	client    *resty.Client
	instance  string
	simulated bool
	logger    *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Client, error) {
	client := resty.New()
	client.SetTimeout(defaultTimeout)
	client.SetRetryCount(0)

	return NewWithClient(cfg, client, logger)
}

func NewWithClient(cfg Config, client *resty.Client, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	apiKey := strings.TrimSpace(cfg.APIKey)
	if baseURL == "" || apiKey == "" {
		logger.Warn("whatsapp api not configured, running in simulated mode")
		return &Client{simulated: true, instance: cfg.Instance, logger: logger}, nil
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid whatsapp api url: %w", err)
	}
	if strings.TrimSpace(cfg.Instance) == "" {
		return nil, fmt.Errorf("whatsapp instance is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTimeout)
	}
	client.SetRetryCount(0)
	client.SetBaseURL(baseURL)
	client.SetHeader("apikey", apiKey)

	return &Client{
		client:   client,
		instance: strings.TrimSpace(cfg.Instance),
		logger:   logger,
	}, nil
}

func (c *Client) Simulated() bool { return c.simulated }

type connectionStateResponse struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
		State        string `json:"state"`
	} `json:"instance"`
}

// CheckConnectionStatus returns StatusConnected only when the instance state
// is "open". HTTP or decode failures return StatusError with the cause.
func (c *Client) CheckConnectionStatus(ctx context.Context) (ConnectionStatus, error) {
	if c.simulated {
		return StatusConnected, nil
	}

	response, err := c.client.R().
		SetContext(ctx).
		Get("/instance/connectionState/" + url.PathEscape(c.instance))
	if err != nil {
		return StatusError, &APIError{Message: "connection state request failed", Cause: err}
	}
	if !isSuccess(response.StatusCode()) {
		return StatusError, &APIError{
			StatusCode: response.StatusCode(),
			Message:    strings.TrimSpace(response.String()),
		}
	}

	var state connectionStateResponse
	if err := json.Unmarshal(response.Body(), &state); err != nil {
		return StatusError, &APIError{
			StatusCode: response.StatusCode(),
			Message:    "malformed connection state",
			Cause:      err,
		}
	}

	if state.Instance.State == "open" {
		return StatusConnected, nil
	}
	return StatusDisconnected, nil
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendTextResponse struct {
	Key *struct {
		ID string `json:"id"`
	} `json:"key"`
	Error json.RawMessage `json:"error"`
}

// SendTextMessage succeeds only on a 2xx response without an error field and
// with a message id; the gateway answers 200 for some failures.
func (c *Client) SendTextMessage(ctx context.Context, to, message string) (*SendResult, error) {
	number, err := NormalizePhone(to)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("whatsapp message is required")
	}

	if c.simulated {
		result := &SendResult{
			MessageID: "simulated-" + uuid.NewString(),
			Number:    number,
			Simulated: true,
		}
		c.logger.Info("simulated whatsapp message",
			observability.Recipient(number),
			zap.String("message_id", result.MessageID),
		)
		return result, nil
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(sendTextRequest{Number: number, Text: message}).
		Post("/message/sendText/" + url.PathEscape(c.instance))
	if err != nil {
		return nil, &APIError{Message: "send request failed", Cause: err}
	}

	statusCode := response.StatusCode()
	body := strings.TrimSpace(response.String())
	if !isSuccess(statusCode) {
		return nil, &APIError{StatusCode: statusCode, Message: body}
	}

	var parsed sendTextResponse
	if err := json.Unmarshal(response.Body(), &parsed); err != nil {
		return nil, &APIError{StatusCode: statusCode, Message: "malformed send response", Cause: err}
	}
	if hasValue(parsed.Error) {
		return nil, &APIError{StatusCode: statusCode, Message: string(parsed.Error)}
	}
	if parsed.Key == nil || parsed.Key.ID == "" {
		return nil, &APIError{StatusCode: statusCode, Message: "response without message id"}
	}

	return &SendResult{
		MessageID:  parsed.Key.ID,
		Number:     number,
		StatusCode: statusCode,
		Body:       body,
	}, nil
}

func isSuccess(statusCode int) bool {
	return statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices
}

func hasValue(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null" && trimmed != "false" && trimmed != `""`
}
