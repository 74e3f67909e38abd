package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/federation-engine/internal/domain"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	SignatureHeader       = "X-Signature"
)

type webhookPayload struct {
	ID            string         `json:"id"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Type          string         `json:"type"`
	Subject       string         `json:"subject,omitempty"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	SentAt        time.Time      `json:"sentAt"`
}

// WebhookProvider POSTs notifications as JSON to the recipient URL. The body is
// signed with HMAC-SHA256 in the X-Signature header as "sha256=<hex>".
type WebhookProvider struct {
	client *resty.Client
	secret string
	now    func() time.Time
}

func NewWebhookProvider(secret string) (*WebhookProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookProviderWithClient(secret, client)
}

func NewWebhookProviderWithClient(secret string, client *resty.Client) (*WebhookProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookProvider{
		client: client,
		secret: secret,
		now:    time.Now,
	}, nil
}

// Sign returns the X-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (p *WebhookProvider) Send(ctx context.Context, notification domain.Notification) (*Receipt, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if err := notification.Validate(); err != nil {
		return nil, invalidNotification(err)
	}

	body, err := json.Marshal(webhookPayload{
		ID:            notification.ID,
		CorrelationID: notification.CorrelationID,
		Type:          notification.Type.String(),
		Subject:       notification.Subject,
		Content:       notification.Content,
		Metadata:      notification.Metadata,
		SentAt:        p.now().UTC(),
	})
	if err != nil {
		return nil, &ProviderError{Kind: KindInvalid, Message: "failed to encode webhook payload", Cause: err}
	}

	request := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if p.secret != "" {
		request.SetHeader(SignatureHeader, Sign(p.secret, body))
	}

	response, err := request.Post(notification.Recipient)
	if err != nil {
		return nil, requestFailed("provider request failed", err)
	}
	if response == nil {
		return nil, &ProviderError{
			Kind:      KindUpstream,
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Receipt{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  providerMessageID(response),
		}, nil
	}

	return nil, statusFailed(statusCode, responseMessage(statusCode, responseBody), nil)
}

func providerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Correlation-ID", "X-Message-ID"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
