package templates

import (
	"errors"
	"strings"
	"testing"

	"github.com/kursadbilgin/federation-engine/internal/domain"
)

func TestRenderEveryType(t *testing.T) {
	t.Parallel()

	data := Data{
		Name:           "Ana",
		ProtocolNumber: "FED-2026-000001",
		Amount:         "150.00",
		PaymentURL:     "https://pay.example/1",
		Year:           2026,
		Message:        "Aviso geral",
	}

	types := []domain.NotificationType{
		domain.TypeMembershipCreated,
		domain.TypeMembershipActivated,
		domain.TypePaymentConfirmed,
		domain.TypePaymentFailed,
		domain.TypeGeneric,
	}

	for _, nt := range types {
		for _, ch := range []domain.Channel{domain.ChannelEmail, domain.ChannelWhatsApp, domain.ChannelWebhook} {
			msg, err := Render(nt, ch, data)
			if err != nil {
				t.Fatalf("Render(%s, %s) unexpected error = %v", nt, ch, err)
			}
			if msg.Subject == "" || msg.Body == "" {
				t.Fatalf("Render(%s, %s) = %+v, want subject and body", nt, ch, msg)
			}
			if ch == domain.ChannelWhatsApp && len([]rune(msg.Body)) > domain.MaxWhatsAppContent {
				t.Fatalf("Render(%s, whatsapp) body exceeds channel limit", nt)
			}
		}
	}
}

func TestRenderMembershipActivated(t *testing.T) {
	t.Parallel()

	msg, err := Render(domain.TypeMembershipActivated, domain.ChannelEmail, Data{
		Name:           "Ana",
		ProtocolNumber: "FED-2026-000001",
		Year:           2026,
		IsRenewal:      true,
	})
	if err != nil {
		t.Fatalf("Render() unexpected error = %v", err)
	}

	if msg.Subject != "Filiação 2026 ativada" {
		t.Fatalf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "renovação de filiação") {
		t.Fatalf("Body = %q, want renewal wording", msg.Body)
	}
	if !strings.Contains(msg.Body, "FED-2026-000001") {
		t.Fatalf("Body = %q, want protocol number", msg.Body)
	}
}

func TestRenderUnknownType(t *testing.T) {
	t.Parallel()

	_, err := Render(domain.NotificationType("PROMO"), domain.ChannelEmail, Data{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Render() error = %v, want ErrValidation", err)
	}
}

func TestEmailHTMLEscapesContent(t *testing.T) {
	t.Parallel()

	html, err := EmailHTML("Assunto", "linha <b>um</b>\n\nlinha dois")
	if err != nil {
		t.Fatalf("EmailHTML() unexpected error = %v", err)
	}

	if strings.Contains(html, "<b>") {
		t.Fatalf("EmailHTML() did not escape markup: %s", html)
	}
	if strings.Count(html, "<p>") != 2 {
		t.Fatalf("EmailHTML() paragraphs = %d, want 2", strings.Count(html, "<p>"))
	}
}
