package queue

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/federation-engine/internal/domain"
)

// NotificationMessage is the broker payload for notification delivery. It
// only references the stored notification.
type NotificationMessage struct {
	NotificationID string                  `json:"notificationId"`
	CorrelationID  string                  `json:"correlationId,omitempty"`
	Type           domain.NotificationType `json:"type,omitempty"`
	Channel        domain.Channel          `json:"channel"`
	Priority       domain.Priority         `json:"priority"`
}

// MessageFor builds the payload that schedules delivery of n.
func MessageFor(n domain.Notification) NotificationMessage {
	return NotificationMessage{
		NotificationID: n.ID,
		CorrelationID:  n.CorrelationID,
		Type:           n.Type,
		Channel:        n.Channel,
		Priority:       n.Priority,
	}
}

func (m NotificationMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if !m.Channel.IsValid() {
		return fmt.Errorf("invalid channel %q", m.Channel)
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	if m.Type != "" && !m.Type.IsValid() {
		return fmt.Errorf("invalid notification type %q", m.Type)
	}
	return nil
}
