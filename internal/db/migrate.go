package db

import (
	"fmt"

	"github.com/zulandar/minutes/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model owned by minutes.
func AllModels() []interface{} {
	return []interface{}{
		&models.Meeting{},
		&models.ActionItem{},
		&models.QueueItem{},
		&models.Worker{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
