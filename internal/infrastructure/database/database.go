package database

import (
	"assohub-backend/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN (Postgres pooler URL).
// PreferSimpleProtocol disables prepared statement caching to avoid 42P05
// ("prepared statement already exists") when using connection poolers (e.g. PgBouncer, Supabase, Render).
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
}

// Models lists every persisted model, in FK-safe order.
func Models() []interface{} {
	return []interface{}{
		&domain.User{},
		&domain.Organization{},
		&domain.Document{},
		&domain.Payment{},
		&domain.NotificationEvent{},
		&domain.EmailOutbox{},
		&domain.EmailLog{},
	}
}

// AutoMigrate runs migrations for all portal models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
