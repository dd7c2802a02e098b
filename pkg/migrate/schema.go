package migrate

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/kaoriishige/adtown-ishige-sub000/pkg/db/models"
)

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&models.Account{},
		&models.Track{},
		&models.BillingEvent{},
		&models.OutboundCommand{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// AutoMigrateModels creates the schema from the GORM models. The SQL migrations
// target Postgres; this path serves the sqlite driver used locally and in tests.
func AutoMigrateModels(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db is required")
	}
	if err := conn.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto-migrate models: %w", err)
	}
	return nil
}
