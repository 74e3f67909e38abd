package domain

import "time"

// NotificationAttempt records a single delivery attempt for a notification.
type NotificationAttempt struct {
	ID                string
	NotificationID    string
	AttemptNumber     int
	Channel           Channel
	Success           bool
	StatusCode        *int
	ProviderMessageID *string
	ResponseBody      *string
	Error             *string
	CreatedAt         time.Time
}

// LogEvent names an entry in a notification's audit trail.
type LogEvent string

const (
	LogEventCreated        LogEvent = "CREATED"
	LogEventAttempt        LogEvent = "ATTEMPT"
	LogEventDelivered      LogEvent = "DELIVERED"
	LogEventFailed         LogEvent = "FAILED"
	LogEventRetryRequested LogEvent = "RETRY_REQUESTED"
)

// NotificationLog is an append-only audit entry.
type NotificationLog struct {
	ID             string
	NotificationID string
	Event          LogEvent
	Status         Status
	Metadata       map[string]any
	CreatedAt      time.Time
}
