package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"gorm.io/gorm"
)

type TransactionRepository interface {
	Create(ctx context.Context, t *domain.PaymentTransaction) error
	GetByID(ctx context.Context, id string) (*domain.PaymentTransaction, error)
	GetByExternalID(ctx context.Context, provider domain.GatewayProvider, externalID string) (*domain.PaymentTransaction, error)
	GetByProtocol(ctx context.Context, protocol string) (*domain.PaymentTransaction, error)
	UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, paidAt *time.Time) error
	FindLatestPaidByAthlete(ctx context.Context, athleteID string) (*domain.PaymentTransaction, error)
}

type GormTransactionRepo struct {
	db *gorm.DB
}

func NewGormTransactionRepo(db *gorm.DB) *GormTransactionRepo {
	return &GormTransactionRepo{db: db}
}

func (r *GormTransactionRepo) Create(ctx context.Context, t *domain.PaymentTransaction) error {
	model := transactionModelFromDomain(t)
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		return err
	}
	if t != nil {
		*t = *transactionModelToDomain(model)
	}
	return nil
}

func (r *GormTransactionRepo) GetByID(ctx context.Context, id string) (*domain.PaymentTransaction, error) {
	return r.first(conn(ctx, r.db).Where("id = ?", id))
}

func (r *GormTransactionRepo) GetByExternalID(
	ctx context.Context,
	provider domain.GatewayProvider,
	externalID string,
) (*domain.PaymentTransaction, error) {
	return r.first(conn(ctx, r.db).Where("provider = ? AND external_id = ?", provider, externalID))
}

func (r *GormTransactionRepo) GetByProtocol(ctx context.Context, protocol string) (*domain.PaymentTransaction, error) {
	return r.first(conn(ctx, r.db).Where("protocol = ?", protocol).Order("created_at DESC"))
}

func (r *GormTransactionRepo) FindLatestPaidByAthlete(ctx context.Context, athleteID string) (*domain.PaymentTransaction, error) {
	return r.first(conn(ctx, r.db).
		Where("athlete_id = ? AND status = ?", athleteID, domain.PaymentStatusPaid).
		Order("paid_at DESC").
		Order("created_at DESC"))
}

func (r *GormTransactionRepo) first(query *gorm.DB) (*domain.PaymentTransaction, error) {
	var model PaymentTransactionModel
	err := query.First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return transactionModelToDomain(&model), nil
}

func (r *GormTransactionRepo) UpdateStatus(ctx context.Context, id string, status domain.PaymentStatus, paidAt *time.Time) error {
	updates := map[string]any{"status": status}
	if paidAt != nil {
		updates["paid_at"] = *paidAt
	}

	result := conn(ctx, r.db).
		Model(&PaymentTransactionModel{}).
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

type GatewayConfigRepository interface {
	Save(ctx context.Context, c *domain.GatewayConfig) error
	// ListActive returns active configurations, newest edit first. A nil
	// provider matches every provider.
	ListActive(ctx context.Context, provider *domain.GatewayProvider) ([]domain.GatewayConfig, error)
}

type GormGatewayConfigRepo struct {
	db *gorm.DB
}

func NewGormGatewayConfigRepo(db *gorm.DB) *GormGatewayConfigRepo {
	return &GormGatewayConfigRepo{db: db}
}

func (r *GormGatewayConfigRepo) Save(ctx context.Context, c *domain.GatewayConfig) error {
	model := gatewayConfigModelFromDomain(c)
	if err := conn(ctx, r.db).Save(model).Error; err != nil {
		return err
	}
	if c != nil {
		*c = *gatewayConfigModelToDomain(model)
	}
	return nil
}

func (r *GormGatewayConfigRepo) ListActive(ctx context.Context, provider *domain.GatewayProvider) ([]domain.GatewayConfig, error) {
	query := conn(ctx, r.db).Where("active = ?", true)
	if provider != nil {
		query = query.Where("provider = ?", *provider)
	}

	var models []GatewayConfigModel
	if err := query.Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	configs := make([]domain.GatewayConfig, 0, len(models))
	for i := range models {
		configs = append(configs, *gatewayConfigModelToDomain(&models[i]))
	}
	return configs, nil
}
