package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"market-stress-go/internal/config"
	"market-stress-go/internal/models"
)

// NewDatabase opens the sqlite journal and migrates the schema.
func NewDatabase(cfg *config.Database) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db, cfg.Reset); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the journal tables. With reset, existing
// tables are dropped first.
func AutoMigrate(db *gorm.DB, reset bool) error {
	if reset {
		if err := db.Migrator().DropTable(&models.Evaluation{}, &models.AnalysisRun{}); err != nil {
			return fmt.Errorf("failed to drop tables: %w", err)
		}
	}

	if err := db.AutoMigrate(&models.Evaluation{}, &models.AnalysisRun{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
