package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/danimalnelson/membership-saas-sub000/internal/domain/billing"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/consumers"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/memberships"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/subscriptions"
	"github.com/danimalnelson/membership-saas-sub000/internal/domain/tenants"
	"github.com/danimalnelson/membership-saas-sub000/internal/events"
)

// Init connects to Postgres and migrates all domain models. TranslateError
// is on so unique-constraint races surface as gorm.ErrDuplicatedKey, which
// the ledger and synchronizer rely on.
func Init(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs AutoMigrate for every model. Shared with the test harness.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&tenants.Tenant{},
		&tenants.StatusTransition{},

		&memberships.Membership{},
		&memberships.Plan{},
		&memberships.PlanPriceHistory{},

		&consumers.Consumer{},
		&subscriptions.Subscription{},
		&billing.Transaction{},

		&events.ProcessedEvent{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
