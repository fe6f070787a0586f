// internal/store/store.go
package store

import (
	"fmt"
	"log"
	"time"

	"github.com/daveenci-ai/daveenci-ai-avatar/internal/config"
	"github.com/daveenci-ai/daveenci-ai-avatar/pkg/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store owns the database handle. It is constructed once in main and
// handed to the services; Close releases the pool on shutdown.
type Store struct {
	DB *gorm.DB
}

func New(cfg *config.Config) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access connection pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("✅ [DB] Connected & migrated")
	return &Store{DB: db}, nil
}

// Migrate applies the schema. Safe in dev; use migrations in prod.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.Avatar{},
		&models.GeneratedImage{},
	); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("access connection pool: %w", err)
	}
	return sqlDB.Close()
}
