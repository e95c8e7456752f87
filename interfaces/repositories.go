package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/models"
)

type AccountRepository interface {
	ListKnownAccounts(ctx context.Context) ([]*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	SaveAccount(ctx context.Context, account *models.Account) error
	UpdateSyncStatus(ctx context.Context, id string, status enum.SyncStatus, errorMessage string) error
}

type FolderCursorRepository interface {
	GetCursor(ctx context.Context, accountID, folderName string) (*models.FolderCursor, error)
	SaveCursor(ctx context.Context, cursor *models.FolderCursor) error
	ListCursors(ctx context.Context, accountID string) ([]*models.FolderCursor, error)
}

type StoredFlags struct {
	Local  flags.Set
	Server flags.Set
}

type MessageRepository interface {
	// SaveMessage inserts or replaces the message identified by
	// (AccountID, Folder, UID) in one statement.
	SaveMessage(ctx context.Context, message *models.Message) error
	GetMessage(ctx context.Context, accountID, folder string, uid uint32) (*models.Message, error)
	GetFolderFlags(ctx context.Context, accountID, folder string) (map[uint32]StoredFlags, error)
	UpdateFlags(ctx context.Context, accountID, folder string, uid uint32, stored StoredFlags) error
	DeleteFolder(ctx context.Context, accountID, folder string) error
	CountByAccount(ctx context.Context, accountID string) (int64, error)
}

type PreferencesRepository interface {
	RootPreferences(ctx context.Context) (models.Preferences, error)
	SetPreference(ctx context.Context, key, value string) error
}
