package repository

import (
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
)

// DBProvider hands out the current storage handle, or ErrStorageNotReady.
type DBProvider interface {
	DB() (*gorm.DB, error)
}

type Repositories struct {
	AccountRepository      interfaces.AccountRepository
	FolderCursorRepository interfaces.FolderCursorRepository
	MessageRepository      interfaces.MessageRepository
	PreferencesRepository  interfaces.PreferencesRepository
}

func InitRepositories(db DBProvider) *Repositories {
	return &Repositories{
		AccountRepository:      NewAccountRepository(db),
		FolderCursorRepository: NewFolderCursorRepository(db),
		MessageRepository:      NewMessageRepository(db),
		PreferencesRepository:  NewPreferencesRepository(db),
	}
}
