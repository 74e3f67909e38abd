package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/observability"
	"github.com/kursadbilgin/federation-engine/internal/repository"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type NotificationService interface {
	Send(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	Retry(ctx context.Context, id string) (*domain.Notification, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	Attempts(ctx context.Context, id string) ([]domain.NotificationAttempt, error)
	Logs(ctx context.Context, id string) ([]domain.NotificationLog, error)
}

type NotificationHandler struct {
	service NotificationService
}

func NewNotificationHandler(service NotificationService) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	return &NotificationHandler{service: service}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService) error {
	h, err := NewNotificationHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/notifications", h.SendNotification)
	v1.Get("/notifications", h.ListNotifications)
	v1.Get("/notifications/:id", h.GetNotification)
	v1.Get("/notifications/:id/attempts", h.ListAttempts)
	v1.Get("/notifications/:id/logs", h.ListLogs)
	v1.Post("/notifications/:id/retry", h.RetryNotification)

	return nil
}

type sendNotificationRequest struct {
	CorrelationID string         `json:"correlationId"`
	Type          string         `json:"type"`
	Channel       string         `json:"channel"`
	Priority      string         `json:"priority"`
	Recipient     string         `json:"recipient"`
	Subject       string         `json:"subject"`
	Content       string         `json:"content"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type notificationResponse struct {
	ID                string         `json:"id"`
	CorrelationID     string         `json:"correlationId"`
	Type              string         `json:"type"`
	Channel           string         `json:"channel"`
	Priority          string         `json:"priority"`
	Recipient         string         `json:"recipient"`
	Subject           string         `json:"subject,omitempty"`
	Content           string         `json:"content"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	Status            string         `json:"status"`
	ProviderMessageID *string        `json:"providerMessageId,omitempty"`
	AttemptCount      int            `json:"attemptCount"`
	MaxRetries        int            `json:"maxRetries"`
	NextRetryAt       *time.Time     `json:"nextRetryAt,omitempty"`
	CreatedAt         time.Time      `json:"createdAt,omitempty"`
	UpdatedAt         time.Time      `json:"updatedAt,omitempty"`
}

type attemptResponse struct {
	AttemptNumber     int       `json:"attemptNumber"`
	Channel           string    `json:"channel"`
	Success           bool      `json:"success"`
	StatusCode        *int      `json:"statusCode,omitempty"`
	ProviderMessageID *string   `json:"providerMessageId,omitempty"`
	ResponseBody      *string   `json:"responseBody,omitempty"`
	Error             *string   `json:"error,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type logResponse struct {
	Event     string         `json:"event"`
	Status    string         `json:"status"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

type listNotificationsResponse struct {
	Data []notificationResponse `json:"data"`
	Meta listMeta               `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) SendNotification(c *fiber.Ctx) error {
	var req sendNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notification, err := requestToDomainNotification(req)
	if err != nil {
		return toHTTPError(err)
	}

	ctx := requestContext(c)
	if notification.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, notification.CorrelationID)
	}

	sent, err := h.service.Send(ctx, &notification)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toNotificationResponse(sent))
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	notification, err := h.service.GetByID(requestContext(c), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) RetryNotification(c *fiber.Ctx) error {
	notification, err := h.service.Retry(requestContext(c), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toNotificationResponse(notification))
}

func (h *NotificationHandler) ListAttempts(c *fiber.Ctx) error {
	attempts, err := h.service.Attempts(requestContext(c), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		data = append(data, attemptResponse{
			AttemptNumber:     a.AttemptNumber,
			Channel:           a.Channel.String(),
			Success:           a.Success,
			StatusCode:        a.StatusCode,
			ProviderMessageID: a.ProviderMessageID,
			ResponseBody:      a.ResponseBody,
			Error:             a.Error,
			CreatedAt:         a.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *NotificationHandler) ListLogs(c *fiber.Ctx) error {
	logs, err := h.service.Logs(requestContext(c), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]logResponse, 0, len(logs))
	for _, l := range logs {
		data = append(data, logResponse{
			Event:     string(l.Event),
			Status:    l.Status.String(),
			Metadata:  l.Metadata,
			CreatedAt: l.CreatedAt,
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": data})
}

func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	notifications, total, err := h.service.List(requestContext(c), params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: toNotificationResponses(notifications),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &channel
	}

	if rawType := strings.TrimSpace(c.Query("type")); rawType != "" {
		notificationType, err := domain.ParseNotificationTypeFromString(rawType)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Type = &notificationType
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestToDomainNotification(req sendNotificationRequest) (domain.Notification, error) {
	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return domain.Notification{}, err
	}

	n := domain.Notification{
		CorrelationID: strings.TrimSpace(req.CorrelationID),
		Channel:       channel,
		Recipient:     strings.TrimSpace(req.Recipient),
		Subject:       strings.TrimSpace(req.Subject),
		Content:       strings.TrimSpace(req.Content),
		Metadata:      req.Metadata,
	}

	if strings.TrimSpace(req.Priority) != "" {
		priority, err := domain.ParsePriorityFromString(req.Priority)
		if err != nil {
			return domain.Notification{}, err
		}
		n.Priority = priority
	}
	if strings.TrimSpace(req.Type) != "" {
		notificationType, err := domain.ParseNotificationTypeFromString(req.Type)
		if err != nil {
			return domain.Notification{}, err
		}
		n.Type = notificationType
	}

	return n, nil
}

// requestContext carries the request id into the service call as the
// correlation id.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if id := requestCorrelationID(c); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}
	return ctx
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toNotificationResponses(notifications []domain.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		n := notification
		responses = append(responses, toNotificationResponse(&n))
	}
	return responses
}

func toNotificationResponse(n *domain.Notification) notificationResponse {
	if n == nil {
		return notificationResponse{}
	}

	return notificationResponse{
		ID:                n.ID,
		CorrelationID:     n.CorrelationID,
		Type:              n.Type.String(),
		Channel:           n.Channel.String(),
		Priority:          n.Priority.String(),
		Recipient:         n.Recipient,
		Subject:           n.Subject,
		Content:           n.Content,
		Metadata:          n.Metadata,
		Status:            n.Status.String(),
		ProviderMessageID: n.ProviderMessageID,
		AttemptCount:      n.AttemptCount,
		MaxRetries:        n.MaxRetries,
		NextRetryAt:       n.NextRetryAt,
		CreatedAt:         n.CreatedAt,
		UpdatedAt:         n.UpdatedAt,
	}
}
