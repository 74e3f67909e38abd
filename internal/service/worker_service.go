package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/observability"
	"github.com/kursadbilgin/federation-engine/internal/provider"
	"github.com/kursadbilgin/federation-engine/internal/queue"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1
	maxRetryDelay        = 60 * time.Second
	baseRetryDelay       = time.Second
	maxRetryJitterMillis = 250
)

// RateLimiter blocks until the channel has send capacity.
type RateLimiter interface {
	Wait(ctx context.Context, channel string) error
}

// WorkerService performs delivery attempts, either for queue messages or
// inline on behalf of the notification service.
type WorkerService struct {
	notifications repository.NotificationRepository
	attempts      repository.AttemptRepository
	logs          repository.LogRepository
	transactor    repository.Transactor
	consumer      queue.Consumer
	provider      provider.Provider
	rateLimiter   RateLimiter
	logger        *zap.Logger
	metrics       *observability.Metrics
	concurrency   int
	now           func() time.Time
	randIntn      func(n int) int
}

func NewWorkerService(
	notifications repository.NotificationRepository,
	attempts repository.AttemptRepository,
	logs repository.LogRepository,
	transactor repository.Transactor,
	consumer queue.Consumer,
	provider provider.Provider,
	rateLimiter RateLimiter,
	concurrency int,
	logger *zap.Logger,
) (*WorkerService, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkerService{
		notifications: notifications,
		attempts:      attempts,
		logs:          logs,
		transactor:    transactor,
		consumer:      consumer,
		provider:      provider,
		rateLimiter:   rateLimiter,
		logger:        logger,
		concurrency:   concurrency,
		now:           time.Now,
		randIntn:      rand.Intn,
	}, nil
}

// Start consumes channel queues and processes notification messages until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.consumer == nil {
		return fmt.Errorf("queue consumer is required to start workers")
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	// At least one consumer per channel queue.
	workers := s.concurrency
	if workers < len(queueNames) {
		workers = len(queueNames)
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := s.consumer.Consume(groupCtx, queueName, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (s *WorkerService) processMessage(ctx context.Context, msg queue.NotificationMessage) error {
	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}

	err := s.Deliver(ctx, msg.NotificationID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: %v", queue.ErrDeadLetter, err)
	}
	return err
}

// Deliver makes one delivery attempt. Provider failures are recorded on the
// notification and are not returned; only storage errors are.
func (s *WorkerService) Deliver(ctx context.Context, notificationID string) error {
	notification, err := s.notifications.LockForSending(ctx, notificationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to lock notification for sending: %w", err)
	}

	// Nil means terminal or already sending; skip.
	if notification == nil {
		return nil
	}

	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("notificationId", notification.ID),
		zap.String("channel", notification.Channel.String()),
		observability.Recipient(notification.Recipient),
	)

	channelName := strings.ToLower(notification.Channel.String())
	s.metrics.IncWorkerInFlight(channelName)
	defer s.metrics.DecWorkerInFlight(channelName)

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Wait(ctx, channelName); err != nil {
			s.release(ctx, notification)
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	attemptNumber := notification.AttemptCount + 1
	sendStart := s.now()
	receipt, sendErr := s.provider.Send(ctx, *notification)
	s.metrics.ObserveNotificationSendDuration(channelName, s.now().Sub(sendStart))

	update := repository.DeliveryUpdate{AttemptCount: attemptNumber}
	event := domain.LogEventAttempt
	failureReason := ""

	switch {
	case sendErr == nil:
		update.Status = domain.StatusDelivered
		if receipt != nil && strings.TrimSpace(receipt.MessageID) != "" {
			messageID := strings.TrimSpace(receipt.MessageID)
			update.ProviderMessageID = &messageID
		}
		event = domain.LogEventDelivered
	case attemptNumber >= notification.MaxRetries:
		update.Status = domain.StatusFailed
		event = domain.LogEventFailed
		failureReason = string(provider.Reason(sendErr))
		if provider.IsTransient(sendErr) {
			failureReason = "retry_exhausted"
		}
	case provider.IsTransient(sendErr):
		update.Status = domain.StatusPending
		nextRetryAt := s.now().UTC().Add(s.computeRetryDelay(attemptNumber))
		update.NextRetryAt = &nextRetryAt
	default:
		// Permanent errors wait for an external retry.
		update.Status = domain.StatusPending
	}

	err = s.withinTransaction(ctx, func(ctx context.Context) error {
		if err := s.recordAttempt(ctx, notification, attemptNumber, receipt, sendErr); err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}
		if err := s.appendLog(ctx, notification.ID, event, update.Status, attemptLogMetadata(attemptNumber, sendErr, update.NextRetryAt)); err != nil {
			return fmt.Errorf("failed to append log: %w", err)
		}
		if err := s.notifications.ApplyDeliveryResult(ctx, notification.ID, update); err != nil {
			return fmt.Errorf("failed to apply delivery result: %w", err)
		}
		return nil
	})
	if err != nil {
		s.release(ctx, notification)
		return err
	}

	switch {
	case update.Status == domain.StatusDelivered:
		s.metrics.IncNotificationDelivered(channelName)
		logger.Info("notification delivered", zap.Int("attempt", attemptNumber))
	case update.Status == domain.StatusFailed:
		s.metrics.IncNotificationFailed(channelName, failureReason)
		logger.Warn("notification failed", zap.Int("attempt", attemptNumber), zap.Error(sendErr))
	case update.NextRetryAt != nil:
		s.metrics.IncRetryScheduled(channelName)
		logger.Info("notification retry scheduled",
			zap.Int("attempt", attemptNumber),
			zap.Time("nextRetryAt", *update.NextRetryAt),
			zap.Error(sendErr),
		)
	default:
		logger.Warn("notification attempt failed permanently, awaiting retry request",
			zap.Int("attempt", attemptNumber),
			zap.Error(sendErr),
		)
	}

	return nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// release puts a locked notification back to PENDING without counting an attempt.
func (s *WorkerService) release(ctx context.Context, n *domain.Notification) {
	at := s.now().UTC()
	err := s.notifications.ApplyDeliveryResult(context.WithoutCancel(ctx), n.ID, repository.DeliveryUpdate{
		Status:       domain.StatusPending,
		AttemptCount: n.AttemptCount,
		NextRetryAt:  &at,
	})
	if err != nil {
		s.logger.Error("failed to release notification lock",
			zap.String("notificationId", n.ID),
			zap.Error(err),
		)
	}
}

func (s *WorkerService) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	jitterMillis := 0
	if s.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = s.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func (s *WorkerService) recordAttempt(
	ctx context.Context,
	notification *domain.Notification,
	attemptNumber int,
	receipt *provider.Receipt,
	sendErr error,
) error {
	var statusCode *int
	var responseBody *string
	var providerMessageID *string
	var attemptErr *string

	if receipt != nil {
		if receipt.StatusCode > 0 {
			value := receipt.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(receipt.Body); body != "" {
			value := receipt.Body
			responseBody = &value
		}
		if messageID := strings.TrimSpace(receipt.MessageID); messageID != "" {
			providerMessageID = &messageID
		}
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var providerErr *provider.ProviderError
		if errors.As(sendErr, &providerErr) && providerErr.StatusCode > 0 && statusCode == nil {
			value := providerErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.NotificationAttempt{
		ID:                uuid.NewString(),
		NotificationID:    notification.ID,
		AttemptNumber:     attemptNumber,
		Channel:           notification.Channel,
		Success:           sendErr == nil,
		StatusCode:        statusCode,
		ProviderMessageID: providerMessageID,
		ResponseBody:      responseBody,
		Error:             attemptErr,
		CreatedAt:         s.now().UTC(),
	}

	return s.attempts.Create(ctx, attempt)
}

func (s *WorkerService) appendLog(
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

func (s *WorkerService) withinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.transactor == nil {
		return fn(ctx)
	}
	return s.transactor.WithinTransaction(ctx, fn)
}

func attemptLogMetadata(attemptNumber int, sendErr error, nextRetryAt *time.Time) map[string]any {
	metadata := map[string]any{"attempt": attemptNumber}
	if sendErr != nil {
		metadata["error"] = sendErr.Error()
		metadata["transient"] = provider.IsTransient(sendErr)
		metadata["reason"] = string(provider.Reason(sendErr))
	}
	if nextRetryAt != nil {
		metadata["nextRetryAt"] = nextRetryAt.Format(time.RFC3339)
	}
	return metadata
}
