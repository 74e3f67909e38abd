package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/federation-engine/internal/repository"
	"gorm.io/gorm"
)

func createPaymentTransactionsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_payment_transactions",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.PaymentTransactionModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_payment_tx_athlete_paid ON payment_transactions (athlete_id, paid_at DESC) WHERE status = 'PAID'`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PaymentTransactionModel{})
		},
	}
}
