package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"gorm.io/gorm"
)

func createGatewayConfigsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_payment_gateway_configs",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.GatewayConfigModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.GatewayConfigModel{})
		},
	}
}
