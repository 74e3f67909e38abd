package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kursadbilgin/federation-engine/internal/domain"
)

// Kind is the failure category recorded on attempts and in metrics.
type Kind string

const (
	KindInvalid         Kind = "invalid_notification"
	KindChannelDisabled Kind = "channel_disabled"
	KindRejected        Kind = "rejected"
	KindRateLimited     Kind = "rate_limited"
	KindUpstream        Kind = "upstream_error"
	KindNetwork         Kind = "network_error"
	KindCanceled        Kind = "canceled"
	KindUnknown         Kind = "unknown"
)

// ProviderError is a failed delivery call. Transient failures are retried
// with backoff; the rest wait for an explicit retry.
type ProviderError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("provider error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": status=%d", e.StatusCode)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func invalidNotification(err error) *ProviderError {
	return &ProviderError{Kind: KindInvalid, Message: "invalid notification", Cause: err}
}

func channelDisabled(message string) *ProviderError {
	return &ProviderError{Kind: KindChannelDisabled, Message: message, Cause: domain.ErrChannelDisabled}
}

// requestFailed wraps an error that happened before any response arrived.
func requestFailed(message string, err error) *ProviderError {
	if errors.Is(err, context.Canceled) {
		return &ProviderError{Kind: KindCanceled, Message: message, Cause: err}
	}
	return &ProviderError{Kind: KindNetwork, Message: message, Transient: true, Cause: err}
}

// statusFailed classifies a non-2xx response: 429 and 5xx are retried.
func statusFailed(statusCode int, message string, cause error) *ProviderError {
	e := &ProviderError{StatusCode: statusCode, Message: message, Cause: cause}
	switch {
	case statusCode == http.StatusTooManyRequests:
		e.Kind, e.Transient = KindRateLimited, true
	case statusCode >= http.StatusInternalServerError && statusCode <= 599:
		e.Kind, e.Transient = KindUpstream, true
	default:
		e.Kind = KindRejected
	}
	return e
}

// IsTransient reports whether an error should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// Reason returns the failure category of err, or "" for nil.
func Reason(err error) Kind {
	if err == nil {
		return ""
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) && providerErr.Kind != "" {
		return providerErr.Kind
	}

	switch {
	case errors.Is(err, domain.ErrChannelDisabled):
		return KindChannelDisabled
	case errors.Is(err, domain.ErrValidation):
		return KindInvalid
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	return KindUnknown
}

func responseMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
