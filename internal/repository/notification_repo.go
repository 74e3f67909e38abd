package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"gorm.io/gorm"
)

type ListParams struct {
	Status   *domain.Status
	Channel  *domain.Channel
	Type     *domain.NotificationType
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// DeliveryUpdate is the row state written after a delivery attempt.
type DeliveryUpdate struct {
	Status            domain.Status
	AttemptCount      int
	ProviderMessageID *string
	NextRetryAt       *time.Time
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error)
	// LockForSending moves a PENDING row to SENDING and returns it. It
	// returns nil, nil when the row is terminal or already being sent.
	LockForSending(ctx context.Context, id string) (*domain.Notification, error)
	ApplyDeliveryResult(ctx context.Context, id string, update DeliveryUpdate) error
	// ScheduleRetry sets next_retry_at on a PENDING row without counting an attempt.
	ScheduleRetry(ctx context.Context, id string, at time.Time) error
	// ClaimDue clears next_retry_at when it is due. It reports false when
	// another scanner claimed the row first.
	ClaimDue(ctx context.Context, id string, now time.Time) (bool, error)
	GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error)
	// ReleaseStale puts SENDING rows untouched since before cutoff back to
	// PENDING, due at retryAt, and reports how many were released.
	ReleaseStale(ctx context.Context, cutoff time.Time, retryAt time.Time) (int64, error)
}

type GormNotificationRepo struct {
	db *gorm.DB
}

func NewGormNotificationRepo(db *gorm.DB) *GormNotificationRepo {
	return &GormNotificationRepo{db: db}
}

func (r *GormNotificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	model := notificationModelFromDomain(n)
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		return err
	}
	if n != nil {
		*n = *notificationModelToDomain(model)
	}
	return nil
}

func (r *GormNotificationRepo) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	var model NotificationModel
	err := conn(ctx, r.db).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) List(ctx context.Context, params ListParams) ([]domain.Notification, int64, error) {
	query := conn(ctx, r.db).Model(&NotificationModel{})

	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []NotificationModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, total, nil
}

func (r *GormNotificationRepo) LockForSending(ctx context.Context, id string) (*domain.Notification, error) {
	db := conn(ctx, r.db)

	result := db.Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":     domain.StatusSending,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, result.Error
	}

	var model NotificationModel
	err := db.First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	// Another worker owns the row, or it is terminal.
	if result.RowsAffected == 0 {
		return nil, nil
	}

	return notificationModelToDomain(&model), nil
}

func (r *GormNotificationRepo) ApplyDeliveryResult(ctx context.Context, id string, update DeliveryUpdate) error {
	updates := map[string]any{
		"status":        update.Status,
		"attempt_count": update.AttemptCount,
		"next_retry_at": update.NextRetryAt,
		"updated_at":    time.Now().UTC(),
	}
	if update.ProviderMessageID != nil {
		updates["provider_message_id"] = *update.ProviderMessageID
	}

	result := conn(ctx, r.db).
		Model(&NotificationModel{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormNotificationRepo) ScheduleRetry(ctx context.Context, id string, at time.Time) error {
	result := conn(ctx, r.db).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Update("next_retry_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormNotificationRepo) ClaimDue(ctx context.Context, id string, now time.Time) (bool, error) {
	result := conn(ctx, r.db).
		Model(&NotificationModel{}).
		Where("id = ? AND status = ? AND next_retry_at <= ?", id, domain.StatusPending, now).
		Update("next_retry_at", nil)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *GormNotificationRepo) GetDueForRetry(ctx context.Context, now time.Time, limit int) ([]domain.Notification, error) {
	var models []NotificationModel
	err := conn(ctx, r.db).
		Where("status = ? AND next_retry_at <= ?", domain.StatusPending, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(models))
	for i := range models {
		notifications = append(notifications, *notificationModelToDomain(&models[i]))
	}

	return notifications, nil
}

func (r *GormNotificationRepo) ReleaseStale(ctx context.Context, cutoff time.Time, retryAt time.Time) (int64, error) {
	result := conn(ctx, r.db).
		Model(&NotificationModel{}).
		Where("status = ? AND updated_at < ?", domain.StatusSending, cutoff).
		Updates(map[string]any{
			"status":        domain.StatusPending,
			"next_retry_at": retryAt,
			"updated_at":    time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}
