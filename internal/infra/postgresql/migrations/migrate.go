package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	return newMigrator(db).Migrate()
}

// RollbackLast reverts the most recent migration.
func RollbackLast(db *gorm.DB) error {
	return newMigrator(db).RollbackLast()
}

func newMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	return gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createAthletesTable(),
		createGatewayConfigsTable(),
		createPaymentTransactionsTable(),
		createProtocolsTable(),
		createNotificationsTable(),
		createNotificationAttemptsTable(),
		createNotificationLogsTable(),
	})
}

func execAll(tx *gorm.DB, statements []string) error {
	for _, sql := range statements {
		if err := tx.Exec(sql).Error; err != nil {
			return err
		}
	}
	return nil
}
