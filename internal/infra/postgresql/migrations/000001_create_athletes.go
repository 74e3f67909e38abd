package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"gorm.io/gorm"
)

func createAthletesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_athletes",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.AthleteModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.AthleteModel{})
		},
	}
}
