package database

import (
	"gorm.io/gorm"

	"github.com/GarrettBeatty/doublecube.gg-sub001/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Game{},
	)
}
