package database

import (
	"gorm.io/gorm"

	"github.com/quillsign/federate/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Organization{},
		&models.Team{},
		&models.RoleGroup{},
		&models.Membership{},
		&models.ServiceCredential{},
		&models.Session{},
		&models.CacheEntry{},
	)
}
