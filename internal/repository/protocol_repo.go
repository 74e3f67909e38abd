package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"gorm.io/gorm"
)

// ProtocolRepository has no update path: protocols are immutable.
type ProtocolRepository interface {
	Create(ctx context.Context, p *domain.Protocol) error
	GetByNumber(ctx context.Context, number string) (*domain.Protocol, error)
	FindLatestForEntity(ctx context.Context, entityType, entityID string) (*domain.Protocol, error)
}

type GormProtocolRepo struct {
	db *gorm.DB
}

func NewGormProtocolRepo(db *gorm.DB) *GormProtocolRepo {
	return &GormProtocolRepo{db: db}
}

func (r *GormProtocolRepo) Create(ctx context.Context, p *domain.Protocol) error {
	model := protocolModelFromDomain(p)
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	if p != nil {
		*p = *protocolModelToDomain(model)
	}
	return nil
}

func (r *GormProtocolRepo) GetByNumber(ctx context.Context, number string) (*domain.Protocol, error) {
	var model ProtocolModel
	err := conn(ctx, r.db).Where("number = ?", number).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProtocolNotFound
	}
	if err != nil {
		return nil, err
	}
	return protocolModelToDomain(&model), nil
}

func (r *GormProtocolRepo) FindLatestForEntity(ctx context.Context, entityType, entityID string) (*domain.Protocol, error) {
	var model ProtocolModel
	err := conn(ctx, r.db).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrProtocolNotFound
	}
	if err != nil {
		return nil, err
	}
	return protocolModelToDomain(&model), nil
}
