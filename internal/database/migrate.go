package database

import (
	"gorm.io/gorm"

	"github.com/customeros/mailsync/internal/models"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.FolderCursor{},
		&models.Message{},
		&models.Preference{},
		&models.SearchDocument{},
	)
}
