package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/templates"
)

const defaultEmailSubject = "Federação"

// SESService is the subset of *ses.Client used for email delivery.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailProvider sends the notification content as a text and HTML email.
type EmailProvider struct {
	client SESService
	from   string
}

func NewEmailProvider(client SESService, from string) (*EmailProvider, error) {
	if client == nil {
		return nil, fmt.Errorf("ses client is required")
	}
	if from == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	return &EmailProvider{client: client, from: from}, nil
}

func (p *EmailProvider) Send(ctx context.Context, notification domain.Notification) (*Receipt, error) {
	if err := notification.Validate(); err != nil {
		return nil, invalidNotification(err)
	}

	subject := notification.Subject
	if subject == "" {
		subject = defaultEmailSubject
	}

	html, err := templates.EmailHTML(subject, notification.Content)
	if err != nil {
		return nil, &ProviderError{Kind: KindInvalid, Message: "failed to render email", Cause: err}
	}

	output, err := p.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{notification.Recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(notification.Content), Charset: aws.String("UTF-8")},
				Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
			},
		},
		Source: aws.String(p.from),
	})
	if err != nil {
		return nil, classifySESError(err)
	}

	return &Receipt{MessageID: aws.ToString(output.MessageId)}, nil
}

func classifySESError(err error) error {
	var rejected *types.MessageRejected
	var unverified *types.MailFromDomainNotVerifiedException
	var suspended *types.AccountSendingPausedException
	var throttled *types.LimitExceededException

	switch {
	case errors.As(err, &rejected), errors.As(err, &unverified), errors.As(err, &suspended):
		return &ProviderError{Kind: KindRejected, Message: "email rejected", Cause: err}
	case errors.As(err, &throttled):
		return &ProviderError{Kind: KindRateLimited, Message: "email throttled", Transient: true, Cause: err}
	default:
		return requestFailed("email send failed", err)
	}
}
