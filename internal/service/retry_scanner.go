package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultRetryScanInterval = 5 * time.Second
	defaultRetryScanLimit    = 100
	defaultStaleSendingAfter = 5 * time.Minute
	maxRetryScanPages        = 10
)

// RetryScanner periodically re-dispatches PENDING notifications whose
// next_retry_at is due. Each scan first returns rows stuck in SENDING, left
// behind by a crashed worker, to PENDING.
type RetryScanner struct {
	notifications repository.NotificationRepository
	dispatcher    Dispatcher
	logger        *zap.Logger
	interval      time.Duration
	limit         int
	staleAfter    time.Duration
	now           func() time.Time
}

type retryScanStats struct {
	released   int64
	due        int
	claimed    int
	dispatched int
	failed     int
}

func NewRetryScanner(
	notifications repository.NotificationRepository,
	dispatcher Dispatcher,
	interval time.Duration,
	limit int,
	logger *zap.Logger,
) (*RetryScanner, error) {
	if notifications == nil {
		return nil, fmt.Errorf("notification repository is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if interval <= 0 {
		interval = defaultRetryScanInterval
	}
	if limit <= 0 {
		limit = defaultRetryScanLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScanner{
		notifications: notifications,
		dispatcher:    dispatcher,
		logger:        logger,
		interval:      interval,
		limit:         limit,
		staleAfter:    defaultStaleSendingAfter,
		now:           time.Now,
	}, nil
}

// Start scans once immediately, then on every tick until ctx is done.
func (s *RetryScanner) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.scanDue(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("retry scan failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *RetryScanner) scanDue(ctx context.Context) error {
	var stats retryScanStats
	now := s.now().UTC()

	released, err := s.notifications.ReleaseStale(ctx, now.Add(-s.staleAfter), now)
	if err != nil {
		s.logger.Error("failed to release stale sending notifications", zap.Error(err))
	}
	stats.released = released

	for page := 0; page < maxRetryScanPages; page++ {
		due, err := s.notifications.GetDueForRetry(ctx, now, s.limit)
		if err != nil {
			return fmt.Errorf("failed to fetch due retries: %w", err)
		}
		stats.due += len(due)

		claimedBefore := stats.claimed
		for i := range due {
			if ctx.Err() != nil {
				return nil
			}
			s.retry(ctx, due[i], now, &stats)
		}

		// A short page is the last one; a page with no claims means other
		// scanners are draining the same rows.
		if len(due) < s.limit || stats.claimed == claimedBefore {
			break
		}
	}

	if stats.released > 0 || stats.claimed > 0 {
		s.logger.Info("retry scan completed",
			zap.Int64("released", stats.released),
			zap.Int("due", stats.due),
			zap.Int("claimed", stats.claimed),
			zap.Int("dispatched", stats.dispatched),
			zap.Int("failed", stats.failed),
		)
	}
	return nil
}

func (s *RetryScanner) retry(ctx context.Context, notification domain.Notification, now time.Time, stats *retryScanStats) {
	logger := s.logger.With(
		zap.String("notificationId", notification.ID),
		zap.String("channel", notification.Channel.String()),
	)

	// Claim first so concurrent scanners never dispatch the same row twice.
	claimed, err := s.notifications.ClaimDue(ctx, notification.ID, now)
	if err != nil {
		logger.Error("failed to claim due notification", zap.Error(err))
		return
	}
	if !claimed {
		return
	}
	stats.claimed++

	if err := s.dispatcher.Dispatch(ctx, notification); err != nil {
		stats.failed++
		logger.Error("failed to dispatch retry notification", zap.Error(err))
		if scheduleErr := s.notifications.ScheduleRetry(ctx, notification.ID, s.now().UTC().Add(s.interval)); scheduleErr != nil {
			logger.Error("failed to reschedule notification after dispatch error", zap.Error(scheduleErr))
		}
		return
	}
	stats.dispatched++
}
