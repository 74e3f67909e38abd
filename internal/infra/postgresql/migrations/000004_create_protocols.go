package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"gorm.io/gorm"
)

func createProtocolsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_protocols",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.ProtocolModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ProtocolModel{})
		},
	}
}
