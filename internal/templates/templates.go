// Package templates renders notification subjects and bodies per
// notification type and channel.
package templates

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"

	"github.com/kursadbilgin/federation-engine/internal/domain"
)

// Data is the set of fields available to every template.
type Data struct {
	Name           string
	ProtocolNumber string
	Amount         string
	PaymentURL     string
	Year           int
	IsRenewal      bool
	PortalURL      string
	Message        string
}

type Message struct {
	Subject string
	Body    string
}

type definition struct {
	subject  string
	email    string
	whatsapp string
}

var definitions = map[domain.NotificationType]definition{
	domain.TypeMembershipCreated: {
		subject: "Filiação {{.Year}} - protocolo {{.ProtocolNumber}}",
		email: `Olá {{.Name}},

Recebemos seu pedido de filiação {{.Year}}.
Protocolo: {{.ProtocolNumber}}
Valor: R$ {{.Amount}}
{{if .PaymentURL}}
Para concluir, realize o pagamento em: {{.PaymentURL}}
{{end}}
A filiação será ativada assim que o pagamento for confirmado.`,
		whatsapp: `Olá {{.Name}}! Seu pedido de filiação {{.Year}} foi registrado (protocolo {{.ProtocolNumber}}).{{if .PaymentURL}} Pague em: {{.PaymentURL}}{{end}}`,
	},
	domain.TypeMembershipActivated: {
		subject: "Filiação {{.Year}} ativada",
		email: `Olá {{.Name}},

Sua {{if .IsRenewal}}renovação de filiação{{else}}filiação{{end}} para {{.Year}} foi ativada.
{{if .ProtocolNumber}}Protocolo: {{.ProtocolNumber}}
{{end}}{{if .PortalURL}}
Acesse: {{.PortalURL}}{{end}}`,
		whatsapp: `Olá {{.Name}}! Sua {{if .IsRenewal}}renovação de filiação{{else}}filiação{{end}} {{.Year}} foi ativada.{{if .ProtocolNumber}} Protocolo: {{.ProtocolNumber}}.{{end}}`,
	},
	domain.TypePaymentConfirmed: {
		subject: "Pagamento confirmado - protocolo {{.ProtocolNumber}}",
		email: `Olá {{.Name}},

Confirmamos o pagamento de R$ {{.Amount}} referente ao protocolo {{.ProtocolNumber}}.`,
		whatsapp: `Olá {{.Name}}! Pagamento de R$ {{.Amount}} confirmado (protocolo {{.ProtocolNumber}}).`,
	},
	domain.TypePaymentFailed: {
		subject: "Pagamento não aprovado - protocolo {{.ProtocolNumber}}",
		email: `Olá {{.Name}},

O pagamento referente ao protocolo {{.ProtocolNumber}} não foi aprovado.
{{if .PaymentURL}}Tente novamente em: {{.PaymentURL}}{{end}}`,
		whatsapp: `Olá {{.Name}}! O pagamento do protocolo {{.ProtocolNumber}} não foi aprovado.`,
	},
	domain.TypeGeneric: {
		subject:  "Federação",
		email:    `{{.Message}}`,
		whatsapp: `{{.Message}}`,
	},
}

// Render builds the subject and body for one channel. WEBHOOK uses the email
// body.
func Render(notificationType domain.NotificationType, channel domain.Channel, data Data) (Message, error) {
	def, ok := definitions[notificationType]
	if !ok {
		return Message{}, fmt.Errorf("%w: no template for notification type %q", domain.ErrValidation, notificationType)
	}

	body := def.email
	if channel == domain.ChannelWhatsApp {
		body = def.whatsapp
	}

	subject, err := execute(string(notificationType)+".subject", def.subject, data)
	if err != nil {
		return Message{}, err
	}
	text, err := execute(string(notificationType)+"."+strings.ToLower(channel.String()), body, data)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Subject: subject,
		Body:    strings.TrimSpace(text),
	}, nil
}

func execute(name, source string, data Data) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

var emailLayout = htmltemplate.Must(htmltemplate.New("email").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family: Arial, sans-serif; color: #222;">
{{range .Paragraphs}}<p>{{.}}</p>
{{end}}</body>
</html>`))

// EmailHTML wraps a plain text body in the HTML email layout. Every blank-line
// separated block becomes one escaped paragraph.
func EmailHTML(subject, body string) (string, error) {
	var paragraphs []string
	for _, block := range strings.Split(body, "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			paragraphs = append(paragraphs, block)
		}
	}

	var buf bytes.Buffer
	err := emailLayout.Execute(&buf, struct {
		Subject    string
		Paragraphs []string
	}{Subject: subject, Paragraphs: paragraphs})
	if err != nil {
		return "", fmt.Errorf("failed to render email layout: %w", err)
	}
	return buf.String(), nil
}
