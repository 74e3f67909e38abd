package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kursadbilgin/federation-engine/internal/domain"
)

var (
	ErrNoActiveGateway          = errors.New("No active payment gateway found")
	ErrCredentialsNotConfigured = errors.New("credentials not configured")
	ErrUnsupportedProvider      = errors.New("unsupported payment provider")
	ErrInvalidWebhookSignature  = errors.New("invalid webhook signature")
)

// GatewayError is an upstream failure reported by a payment provider.
type GatewayError struct {
	Provider   domain.GatewayProvider
	Operation  string
	StatusCode int
	Message    string
	Cause      error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := []string{fmt.Sprintf("%s %s failed", strings.ToLower(e.Provider.String()), e.Operation)}
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

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
