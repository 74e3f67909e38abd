package repository

import (
	"context"
	"errors"

	"github.com/kursadbilgin/federation-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AthleteRepository interface {
	Create(ctx context.Context, a *domain.Athlete) error
	GetByUserID(ctx context.Context, userID string) (*domain.Athlete, error)
	// LockByUserID reads the athlete with a row lock. It only holds the lock
	// when ctx carries a transaction.
	LockByUserID(ctx context.Context, userID string) (*domain.Athlete, error)
	UpdateMembership(ctx context.Context, a *domain.Athlete) error
}

type GormAthleteRepo struct {
	db *gorm.DB
}

func NewGormAthleteRepo(db *gorm.DB) *GormAthleteRepo {
	return &GormAthleteRepo{db: db}
}

func (r *GormAthleteRepo) Create(ctx context.Context, a *domain.Athlete) error {
	model := athleteModelFromDomain(a)
	if err := conn(ctx, r.db).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *athleteModelToDomain(model)
	}
	return nil
}

func (r *GormAthleteRepo) GetByUserID(ctx context.Context, userID string) (*domain.Athlete, error) {
	return r.findByUserID(conn(ctx, r.db), userID)
}

func (r *GormAthleteRepo) LockByUserID(ctx context.Context, userID string) (*domain.Athlete, error) {
	return r.findByUserID(conn(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

func (r *GormAthleteRepo) findByUserID(db *gorm.DB, userID string) (*domain.Athlete, error) {
	var model AthleteModel
	err := db.Where("user_id = ?", userID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAthleteNotFound
	}
	if err != nil {
		return nil, err
	}
	return athleteModelToDomain(&model), nil
}

// UpdateMembership persists only the membership columns of the athlete.
func (r *GormAthleteRepo) UpdateMembership(ctx context.Context, a *domain.Athlete) error {
	result := conn(ctx, r.db).
		Model(&AthleteModel{}).
		Where("id = ?", a.ID).
		Updates(map[string]any{
			"active":                  a.Active,
			"registration_year":       a.RegistrationYear,
			"is_renewal":              a.IsRenewal,
			"first_registration_date": a.FirstRegistrationDate,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrAthleteNotFound
	}
	return nil
}
