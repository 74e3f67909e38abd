package domain

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode"
)

// Status represents the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSending   Status = "SENDING"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSending, StatusDelivered, StatusFailed:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelWebhook  Channel = "WEBHOOK"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelWebhook:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Priority represents the message priority level.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// NotificationType names the business event a notification reports.
type NotificationType string

const (
	TypeMembershipCreated   NotificationType = "MEMBERSHIP_CREATED"
	TypeMembershipActivated NotificationType = "MEMBERSHIP_ACTIVATED"
	TypePaymentConfirmed    NotificationType = "PAYMENT_CONFIRMED"
	TypePaymentFailed       NotificationType = "PAYMENT_FAILED"
	TypeGeneric             NotificationType = "GENERIC"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeMembershipCreated, TypeMembershipActivated, TypePaymentConfirmed, TypePaymentFailed, TypeGeneric:
		return true
	}
	return false
}

func ParseNotificationTypeFromString(s string) (NotificationType, error) {
	nt := NotificationType(strings.ToUpper(strings.TrimSpace(s)))
	if !nt.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return nt, nil
}

// Content limits per channel (in characters).
const (
	MaxWhatsAppContent = 4096
	MaxEmailContent    = 10000
	MaxWebhookContent  = 65536
	MaxSubjectLength   = 255
)

const DefaultMaxRetries = 3

// Notification is the core domain entity representing a message to be delivered.
type Notification struct {
	ID                string
	CorrelationID     string
	Type              NotificationType
	Channel           Channel
	Priority          Priority
	Recipient         string
	Subject           string
	Content           string
	Metadata          map[string]any
	Status            Status
	ProviderMessageID *string
	AttemptCount      int
	MaxRetries        int
	NextRetryAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AttemptsExhausted reports whether no further delivery attempt is allowed.
func (n *Notification) AttemptsExhausted() bool {
	return n.AttemptCount >= n.MaxRetries
}

func (n *Notification) Validate() error {
	if n.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if n.Content == "" {
		return fmt.Errorf("%w: content is required", ErrValidation)
	}
	if !n.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, n.Channel)
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("%w: invalid priority %q", ErrValidation, n.Priority)
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, n.Type)
	}
	if len([]rune(n.Subject)) > MaxSubjectLength {
		return fmt.Errorf("%w: subject exceeds %d characters", ErrValidation, MaxSubjectLength)
	}

	contentLen := len([]rune(n.Content))
	switch n.Channel {
	case ChannelEmail:
		if _, err := mail.ParseAddress(n.Recipient); err != nil {
			return fmt.Errorf("%w: invalid email recipient %q", ErrValidation, n.Recipient)
		}
		if contentLen > MaxEmailContent {
			return fmt.Errorf("%w: email content exceeds %d characters (got %d)", ErrValidation, MaxEmailContent, contentLen)
		}
	case ChannelWhatsApp:
		if !hasDigits(n.Recipient) {
			return fmt.Errorf("%w: invalid whatsapp recipient %q", ErrValidation, n.Recipient)
		}
		if contentLen > MaxWhatsAppContent {
			return fmt.Errorf("%w: whatsapp content exceeds %d characters (got %d)", ErrValidation, MaxWhatsAppContent, contentLen)
		}
	case ChannelWebhook:
		u, err := url.Parse(n.Recipient)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: webhook recipient must be an http(s) url", ErrValidation)
		}
		if contentLen > MaxWebhookContent {
			return fmt.Errorf("%w: webhook content exceeds %d characters (got %d)", ErrValidation, MaxWebhookContent, contentLen)
		}
	}

	return nil
}

func hasDigits(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
