package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"github.com/kursadbilgin/federation-engine/internal/provider"
	"github.com/kursadbilgin/federation-engine/internal/queue"
	"github.com/kursadbilgin/federation-engine/internal/repository"
)

type fakeNotificationRepo struct {
	createFn              func(ctx context.Context, n *domain.Notification) error
	getByIDFn             func(ctx context.Context, id string) (*domain.Notification, error)
	listFn                func(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error)
	lockForSendingFn      func(ctx context.Context, id string) (*domain.Notification, error)
	applyDeliveryResultFn func(ctx context.Context, id string, update repository.DeliveryUpdate) error
	scheduleRetryFn       func(ctx context.Context, id string, at time.Time) error
	claimDueFn            func(ctx context.Context, id string, now time.Time) (bool, error)
	getDueForRetryFn      func(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error)
	releaseStaleFn        func(ctx context.Context, cutoff time.Time, retryAt time.Time) (int64, error)
}

func (f *fakeNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	if f.createFn != nil {
		return f.createFn(ctx, n)
	}
	return nil
}

func (f *fakeNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeNotificationRepo) List(ctx context.Context, params repository.ListParams) ([]domain.Notification, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeNotificationRepo) LockForSending(ctx context.Context, id string) (*domain.Notification, error) {
	if f.lockForSendingFn != nil {
		return f.lockForSendingFn(ctx, id)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) ApplyDeliveryResult(ctx context.Context, id string, update repository.DeliveryUpdate) error {
	if f.applyDeliveryResultFn != nil {
		return f.applyDeliveryResultFn(ctx, id, update)
	}
	return nil
}

func (f *fakeNotificationRepo) ScheduleRetry(ctx context.Context, id string, at time.Time) error {
	if f.scheduleRetryFn != nil {
		return f.scheduleRetryFn(ctx, id, at)
	}
	return nil
}

func (f *fakeNotificationRepo) ClaimDue(ctx context.Context, id string, now time.Time) (bool, error) {
	if f.claimDueFn != nil {
		return f.claimDueFn(ctx, id, now)
	}
	return true, nil
}

func (f *fakeNotificationRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error) {
	if f.getDueForRetryFn != nil {
		return f.getDueForRetryFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeNotificationRepo) ReleaseStale(ctx context.Context, cutoff time.Time, retryAt time.Time) (int64, error) {
	if f.releaseStaleFn != nil {
		return f.releaseStaleFn(ctx, cutoff, retryAt)
	}
	return 0, nil
}

var _ repository.NotificationRepository = (*fakeNotificationRepo)(nil)

type fakeAttemptRepo struct {
	createFn              func(ctx context.Context, a *domain.NotificationAttempt) error
	getByNotificationIDFn func(ctx context.Context, notificationID string) ([]domain.NotificationAttempt, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.NotificationAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.NotificationAttempt, error) {
	if f.getByNotificationIDFn != nil {
		return f.getByNotificationIDFn(ctx, notificationID)
	}
	return nil, nil
}

type fakeLogRepo struct {
	entries []domain.NotificationLog
	err     error
}

func (f *fakeLogRepo) Create(ctx context.Context, l *domain.NotificationLog) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, *l)
	return nil
}

func (f *fakeLogRepo) GetByNotificationID(ctx context.Context, notificationID string) ([]domain.NotificationLog, error) {
	out := make([]domain.NotificationLog, 0, len(f.entries))
	for _, entry := range f.entries {
		if entry.NotificationID == notificationID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (f *fakeLogRepo) events() []domain.LogEvent {
	events := make([]domain.LogEvent, 0, len(f.entries))
	for _, entry := range f.entries {
		events = append(events, entry.Event)
	}
	return events
}

// fakeTransactor runs fn inline and counts transactions.
type fakeTransactor struct {
	calls int
	err   error
}

func (f *fakeTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return fn(ctx)
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.NotificationMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.NotificationMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error {
	return nil
}

type fakeDispatcher struct {
	dispatchFn func(ctx context.Context, n domain.Notification) error
	dispatched []string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, n domain.Notification) error {
	f.dispatched = append(f.dispatched, n.ID)
	if f.dispatchFn != nil {
		return f.dispatchFn(ctx, n)
	}
	return nil
}

type fakeProvider struct {
	sendFn func(ctx context.Context, notification domain.Notification) (*provider.Receipt, error)
}

func (f *fakeProvider) Send(ctx context.Context, notification domain.Notification) (*provider.Receipt, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, notification)
	}
	return &provider.Receipt{}, nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, channel string) (bool, error)
	waitFn  func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, channel)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

var _ RateLimiter = (*fakeRateLimiter)(nil)

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queue string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}

func intPtr(v int) *int { return &v }

func stringPtr(v string) *string { return &v }
