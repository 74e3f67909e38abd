package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/whatsapp"
)

type fakeProvider struct {
	sendFn func(ctx context.Context, n domain.Notification) (*Receipt, error)
}

func (f *fakeProvider) Send(ctx context.Context, n domain.Notification) (*Receipt, error) {
	return f.sendFn(ctx, n)
}

type fakeSES struct {
	sendEmailFn func(ctx context.Context, params *ses.SendEmailInput) (*ses.SendEmailOutput, error)
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return f.sendEmailFn(ctx, params)
}

type fakeWhatsApp struct {
	sendFn func(ctx context.Context, to, message string) (*whatsapp.SendResult, error)
}

func (f *fakeWhatsApp) SendTextMessage(ctx context.Context, to, message string) (*whatsapp.SendResult, error) {
	return f.sendFn(ctx, to, message)
}

func emailNotification() domain.Notification {
	return domain.Notification{
		Type:      domain.TypeMembershipActivated,
		Channel:   domain.ChannelEmail,
		Priority:  domain.PriorityNormal,
		Recipient: "ana@example.com",
		Subject:   "Filiação 2026 ativada",
		Content:   "Olá Ana,\n\nSua filiação foi ativada.",
	}
}

func TestRouterDispatchesByChannel(t *testing.T) {
	t.Parallel()

	var gotChannel domain.Channel
	p := &fakeProvider{sendFn: func(ctx context.Context, n domain.Notification) (*Receipt, error) {
		gotChannel = n.Channel
		return &Receipt{MessageID: "m-1"}, nil
	}}

	router := NewRouter().Register(domain.ChannelEmail, p, true)

	resp, err := router.Send(context.Background(), emailNotification())
	if err != nil {
		t.Fatalf("Send() unexpected error = %v", err)
	}
	if resp.MessageID != "m-1" || gotChannel != domain.ChannelEmail {
		t.Fatalf("Send() = %+v via %s", resp, gotChannel)
	}
	if !router.Enabled(domain.ChannelEmail) || router.Enabled(domain.ChannelWhatsApp) {
		t.Fatal("Enabled() reports wrong channels")
	}
}

func TestRouterDisabledChannelFailsPermanently(t *testing.T) {
	t.Parallel()

	called := false
	p := &fakeProvider{sendFn: func(ctx context.Context, n domain.Notification) (*Receipt, error) {
		called = true
		return &Receipt{}, nil
	}}

	router := NewRouter().Register(domain.ChannelEmail, p, false)

	_, err := router.Send(context.Background(), emailNotification())
	if !errors.Is(err, domain.ErrChannelDisabled) {
		t.Fatalf("Send() error = %v, want ErrChannelDisabled", err)
	}
	if IsTransient(err) {
		t.Fatal("disabled channel must not be retried")
	}
	if called {
		t.Fatal("disabled provider was called")
	}

	n := emailNotification()
	n.Channel = domain.ChannelWebhook
	if _, err := router.Send(context.Background(), n); !errors.Is(err, domain.ErrChannelDisabled) {
		t.Fatalf("Send() unregistered channel error = %v, want ErrChannelDisabled", err)
	}
}

func TestEmailProviderSend(t *testing.T) {
	t.Parallel()

	var got *ses.SendEmailInput
	client := &fakeSES{sendEmailFn: func(ctx context.Context, params *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
		got = params
		return &ses.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
	}}

	p, err := NewEmailProvider(client, "no-reply@federacao.local")
	if err != nil {
		t.Fatalf("NewEmailProvider() error = %v", err)
	}

	resp, err := p.Send(context.Background(), emailNotification())
	if err != nil {
		t.Fatalf("Send() unexpected error = %v", err)
	}

	if resp.MessageID != "ses-1" {
		t.Fatalf("MessageID = %q, want ses-1", resp.MessageID)
	}
	if aws.ToString(got.Source) != "no-reply@federacao.local" {
		t.Fatalf("Source = %q", aws.ToString(got.Source))
	}
	if got.Destination.ToAddresses[0] != "ana@example.com" {
		t.Fatalf("ToAddresses = %v", got.Destination.ToAddresses)
	}
	if aws.ToString(got.Message.Subject.Data) != "Filiação 2026 ativada" {
		t.Fatalf("Subject = %q", aws.ToString(got.Message.Subject.Data))
	}
	if aws.ToString(got.Message.Body.Html.Data) == "" || aws.ToString(got.Message.Body.Text.Data) == "" {
		t.Fatal("email must carry html and text bodies")
	}
}

func TestEmailProviderErrorClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{name: "rejected is permanent", err: &types.MessageRejected{Message: aws.String("Email address is not verified")}, wantTransient: false},
		{name: "throttling is transient", err: errors.New("Throttling: Maximum sending rate exceeded"), wantTransient: true},
		{name: "canceled is permanent", err: context.Canceled, wantTransient: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := &fakeSES{sendEmailFn: func(ctx context.Context, params *ses.SendEmailInput) (*ses.SendEmailOutput, error) {
				return nil, tc.err
			}}
			p, err := NewEmailProvider(client, "no-reply@federacao.local")
			if err != nil {
				t.Fatalf("NewEmailProvider() error = %v", err)
			}

			_, err = p.Send(context.Background(), emailNotification())
			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient(%v) = %v, want %v", err, got, tc.wantTransient)
			}
		})
	}
}

func TestWhatsAppProviderSend(t *testing.T) {
	t.Parallel()

	n := domain.Notification{
		Type:      domain.TypeMembershipActivated,
		Channel:   domain.ChannelWhatsApp,
		Priority:  domain.PriorityNormal,
		Recipient: "62994242329",
		Content:   "Filiação ativada",
	}

	sender := &fakeWhatsApp{sendFn: func(ctx context.Context, to, message string) (*whatsapp.SendResult, error) {
		if to != n.Recipient || message != n.Content {
			t.Errorf("SendTextMessage(%q, %q)", to, message)
		}
		return &whatsapp.SendResult{MessageID: "BAE5", StatusCode: 201}, nil
	}}

	p, err := NewWhatsAppProvider(sender)
	if err != nil {
		t.Fatalf("NewWhatsAppProvider() error = %v", err)
	}

	resp, err := p.Send(context.Background(), n)
	if err != nil {
		t.Fatalf("Send() unexpected error = %v", err)
	}
	if resp.MessageID != "BAE5" || resp.StatusCode != 201 {
		t.Fatalf("Send() = %+v", resp)
	}
}

func TestWhatsAppProviderErrorClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		err           error
		wantTransient bool
	}{
		{name: "invalid phone is permanent", err: domain.ErrInvalidPhone, wantTransient: false},
		{name: "network failure is transient", err: &whatsapp.APIError{Message: "send request failed", Cause: errors.New("connection refused")}, wantTransient: true},
		{name: "server error is transient", err: &whatsapp.APIError{StatusCode: 502}, wantTransient: true},
		{name: "200 with error field is permanent", err: &whatsapp.APIError{StatusCode: 200, Message: "number not on whatsapp"}, wantTransient: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sender := &fakeWhatsApp{sendFn: func(ctx context.Context, to, message string) (*whatsapp.SendResult, error) {
				return nil, tc.err
			}}
			p, err := NewWhatsAppProvider(sender)
			if err != nil {
				t.Fatalf("NewWhatsAppProvider() error = %v", err)
			}

			_, err = p.Send(context.Background(), domain.Notification{
				Type:      domain.TypeGeneric,
				Channel:   domain.ChannelWhatsApp,
				Priority:  domain.PriorityNormal,
				Recipient: "62994242329",
				Content:   "oi",
			})
			if got := IsTransient(err); got != tc.wantTransient {
				t.Fatalf("IsTransient(%v) = %v, want %v", err, got, tc.wantTransient)
			}
		})
	}
}
