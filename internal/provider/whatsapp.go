package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/whatsapp"
)

// WhatsAppSender is satisfied by *whatsapp.Client.
type WhatsAppSender interface {
	SendTextMessage(ctx context.Context, to, message string) (*whatsapp.SendResult, error)
}

type WhatsAppProvider struct {
	sender WhatsAppSender
}

func NewWhatsAppProvider(sender WhatsAppSender) (*WhatsAppProvider, error) {
	if sender == nil {
		return nil, fmt.Errorf("whatsapp sender is required")
	}
	return &WhatsAppProvider{sender: sender}, nil
}

func (p *WhatsAppProvider) Send(ctx context.Context, notification domain.Notification) (*Receipt, error) {
	if err := notification.Validate(); err != nil {
		return nil, invalidNotification(err)
	}

	result, err := p.sender.SendTextMessage(ctx, notification.Recipient, notification.Content)
	if err != nil {
		return nil, classifyWhatsAppError(err)
	}

	return &Receipt{
		StatusCode: result.StatusCode,
		Body:       result.Body,
		MessageID:  result.MessageID,
	}, nil
}

func classifyWhatsAppError(err error) error {
	if errors.Is(err, domain.ErrValidation) {
		return &ProviderError{Kind: KindInvalid, Message: "invalid whatsapp recipient", Cause: err}
	}

	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 0 {
			return requestFailed(apiErr.Message, err)
		}
		return statusFailed(apiErr.StatusCode, apiErr.Message, err)
	}

	return &ProviderError{Kind: KindUnknown, Message: "whatsapp send failed", Cause: err}
}
