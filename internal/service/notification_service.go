package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/observability"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"go.uber.org/zap"
)

// NotificationService creates notifications and hands them to a Dispatcher.
type NotificationService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	logs          repository.LogRepository
	transactor    repository.Transactor
	dispatcher    Dispatcher
	maxRetries    int
	logger        *zap.Logger
	now           func() time.Time
}

func NewNotificationService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	logs repository.LogRepository,
	transactor repository.Transactor,
	dispatcher Dispatcher,
	maxRetries int,
	logger *zap.Logger,
) (*NotificationService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if maxRetries <= 0 {
		maxRetries = domain.DefaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		notifications: notifications,
		attempts:      attempts,
		logs:          logs,
		transactor:    transactor,
		dispatcher:    dispatcher,
		maxRetries:    maxRetries,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Send persists the notification as PENDING and dispatches it. A dispatch
// failure is not returned: the row is left due for the retry scanner.
func (s *NotificationService) Send(ctx context.Context, notification *domain.Notification) (*domain.Notification, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.prepareForCreate(ctx, notification); err != nil {
		return nil, err
	}

	err := s.withinTransaction(ctx, func(ctx context.Context) error {
		if err := s.notifications.Create(ctx, notification); err != nil {
			return err
		}
		return s.appendLog(ctx, notification.ID, domain.LogEventCreated, domain.StatusPending, map[string]any{
			"channel": notification.Channel.String(),
			"type":    notification.Type.String(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("notificationId", notification.ID),
		zap.String("channel", notification.Channel.String()),
	)

	if err := s.dispatcher.Dispatch(ctx, *notification); err != nil {
		logger.Error("failed to dispatch notification, deferring to retry scanner", zap.Error(err))
		s.deferToScanner(ctx, notification)
		return notification, nil
	}

	return s.reload(ctx, notification), nil
}

// Retry re-dispatches a PENDING notification on external request.
func (s *NotificationService) Retry(ctx context.Context, id string) (*domain.Notification, error) {
	notification, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if notification.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: notification is %s, only PENDING notifications can be retried", domain.ErrConflict, notification.Status)
	}

	if err := s.appendLog(ctx, notification.ID, domain.LogEventRetryRequested, notification.Status, map[string]any{
		"attemptCount": notification.AttemptCount,
	}); err != nil {
		return nil, fmt.Errorf("failed to log retry request: %w", err)
	}

	if err := s.dispatcher.Dispatch(ctx, *notification); err != nil {
		s.deferToScanner(ctx, notification)
		return nil, fmt.Errorf("failed to dispatch notification: %w", err)
	}

	return s.reload(ctx, notification), nil
}

func (s *NotificationService) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: notification id is required", domain.ErrValidation)
	}
	return s.notifications.GetByID(ctx, strings.TrimSpace(id))
}

func (s *NotificationService) List(
	ctx context.Context,
	params repository.ListParams,
) ([]domain.Notification, int64, error) {
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, 0, fmt.Errorf("%w: from must not be after to", domain.ErrValidation)
	}
	return s.notifications.List(ctx, params)
}

// Attempts returns the delivery attempts of a notification, oldest first.
func (s *NotificationService) Attempts(ctx context.Context, id string) ([]domain.NotificationAttempt, error) {
	notification, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.attempts == nil {
		return []domain.NotificationAttempt{}, nil
	}
	return s.attempts.GetByNotificationID(ctx, notification.ID)
}

func (s *NotificationService) Logs(ctx context.Context, id string) ([]domain.NotificationLog, error) {
	notification, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.logs == nil {
		return []domain.NotificationLog{}, nil
	}
	return s.logs.GetByNotificationID(ctx, notification.ID)
}

func (s *NotificationService) prepareForCreate(ctx context.Context, n *domain.Notification) error {
	if n == nil {
		return fmt.Errorf("%w: notification is required", domain.ErrValidation)
	}

	n.Recipient = strings.TrimSpace(n.Recipient)
	n.Subject = strings.TrimSpace(n.Subject)
	n.Content = strings.TrimSpace(n.Content)

	n.CorrelationID = strings.TrimSpace(n.CorrelationID)
	if n.CorrelationID == "" {
		if fromCtx, ok := observability.CorrelationIDFromContext(ctx); ok {
			n.CorrelationID = fromCtx
		} else {
			n.CorrelationID = uuid.NewString()
		}
	}

	n.ID = strings.TrimSpace(n.ID)
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Type == "" {
		n.Type = domain.TypeGeneric
	}
	if n.Priority == "" {
		n.Priority = domain.PriorityNormal
	}

	n.Status = domain.StatusPending
	n.AttemptCount = 0
	n.MaxRetries = s.maxRetries
	n.ProviderMessageID = nil
	n.NextRetryAt = nil

	return n.Validate()
}

func (s *NotificationService) deferToScanner(ctx context.Context, n *domain.Notification) {
	at := s.now().UTC()
	if err := s.notifications.ScheduleRetry(ctx, n.ID, at); err != nil {
		s.logger.Error("failed to schedule notification for retry scan",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
		return
	}
	n.NextRetryAt = &at
}

// reload returns the stored row so inline delivery results are visible.
func (s *NotificationService) reload(ctx context.Context, n *domain.Notification) *domain.Notification {
	current, err := s.notifications.GetByID(ctx, n.ID)
	if err != nil {
		return n
	}
	return current
}

func (s *NotificationService) appendLog(
	ctx context.Context,
	notificationID string,
	event domain.LogEvent,
	status domain.Status,
	metadata map[string]any,
) error {
	if s.logs == nil {
		return nil
	}
	return s.logs.Create(ctx, &domain.NotificationLog{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Event:          event,
		Status:         status,
		Metadata:       metadata,
		CreatedAt:      s.now().UTC(),
	})
}

func (s *NotificationService) withinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.transactor == nil {
		return fn(ctx)
	}
	return s.transactor.WithinTransaction(ctx, fn)
}
