// Package gateway defines the provider-independent payment gateway contract
// and the service that resolves the active gateway configuration.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "BRL"

// Gateway is implemented once per payment provider. Adapters never retry.
type Gateway interface {
	Provider() domain.GatewayProvider
	CreatePayment(ctx context.Context, input CreatePaymentInput) (*PaymentResult, error)
	GetPayment(ctx context.Context, externalID string) (*PaymentDetails, error)
	GetPaymentStatus(ctx context.Context, externalID string) (domain.PaymentStatus, error)
	RefundPayment(ctx context.Context, externalID string) (*PaymentResult, error)
	ValidateWebhook(req WebhookRequest) bool
	ParseWebhookData(req WebhookRequest) (*WebhookData, error)
}

type Customer struct {
	Name     string
	Email    string
	Document string
	Phone    string
}

type CreatePaymentInput struct {
	Amount          decimal.Decimal
	Currency        string
	Description     string
	Reference       string
	PaymentMethod   domain.PaymentMethod
	Customer        Customer
	NotificationURL string
	ReturnURL       string
}

// Validate runs before any network call.
func (in *CreatePaymentInput) Validate() error {
	if err := in.ValidatePayment(); err != nil {
		return err
	}
	if strings.TrimSpace(in.Reference) == "" {
		return fmt.Errorf("%w: payment reference is required", domain.ErrValidation)
	}
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
	return nil
}

// ValidatePayment checks everything but the reference, so callers can reject
// bad input before reserving one.
func (in *CreatePaymentInput) ValidatePayment() error {
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", domain.ErrValidation)
	}
	if strings.TrimSpace(in.Customer.Document) == "" {
		return fmt.Errorf("%w: customer document is required", domain.ErrValidation)
	}
	if !in.PaymentMethod.IsValid() {
		return fmt.Errorf("%w: invalid payment method %q", domain.ErrValidation, in.PaymentMethod)
	}
	return nil
}

type PaymentResult struct {
	ExternalID string
	Status     domain.PaymentStatus
	RawStatus  string
	PaymentURL string
}

type PaymentDetails struct {
	ExternalID string
	Reference  string
	Status     domain.PaymentStatus
	RawStatus  string
	Amount     decimal.Decimal
	PaidAt     *time.Time
}

// WebhookRequest is the inbound HTTP notification as received.
type WebhookRequest struct {
	Headers http.Header
	Query   url.Values
	Body    []byte
}

// WebhookData is the normalized content of a gateway notification. When
// StatusKnown is false the payment must be fetched to learn its status.
type WebhookData struct {
	EventType   string
	ExternalID  string
	Reference   string
	Status      domain.PaymentStatus
	RawStatus   string
	StatusKnown bool
}

// DedupeKey identifies one provider event for redelivery detection.
func (d *WebhookData) DedupeKey(provider domain.GatewayProvider) string {
	status := d.RawStatus
	if status == "" {
		status = d.EventType
	}
	return fmt.Sprintf("%s:%s:%s", provider, d.ExternalID, status)
}

// WebhookURL is the inbound notification endpoint of provider under baseURL.
func WebhookURL(baseURL string, provider domain.GatewayProvider) string {
	slug := strings.ToLower(strings.ReplaceAll(provider.String(), "_", ""))
	return strings.TrimRight(baseURL, "/") + "/v1/payments/webhooks/" + slug
}

// Factory builds an adapter for one stored configuration.
type Factory func(cfg domain.GatewayConfig) (Gateway, error)
