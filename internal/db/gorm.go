package db

import (
	"fmt"
	"log"

	"docsync/internal/config"
	"docsync/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormDB wraps the GORM handle to the editor application's database. This
// service only ever reads document roles from it.
type GormDB struct {
	*gorm.DB
}

// NewGorm opens the role-store connection. AutoMigrate creates the roles table
// when running against a fresh local database; against the real application DB
// it is a no-op.
func NewGorm(cfg *config.Config) (*GormDB, error) {
	dsn := cfg.DatabaseURL()

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := gdb.AutoMigrate(&models.DocumentRole{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("✓ Role store connected")

	return &GormDB{gdb}, nil
}

// Close closes the database connection.
func (db *GormDB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
