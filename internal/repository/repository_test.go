package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/database"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/flags"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/testutil"
)

func newAccount() *models.Account {
	return &models.Account{
		EmailAddress: "jane@example.com",
		Host:         "imap.example.com",
		Port:         993,
		Username:     "jane",
		Password:     "secret",
	}
}

func TestAccountRepository_SaveAndList(t *testing.T) {
	ctx := context.Background()
	repos := InitRepositories(testutil.NewSession(t))

	a := newAccount()
	a.AutomaticSync = true
	require.NoError(t, repos.AccountRepository.SaveAccount(ctx, a))
	require.NotEmpty(t, a.ID)
	assert.Equal(t, enum.SocketSSL, a.SocketType)

	b := newAccount()
	b.EmailAddress = "bob@example.com"
	require.NoError(t, repos.AccountRepository.SaveAccount(ctx, b))

	accounts, err := repos.AccountRepository.ListKnownAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	byID := map[string]*models.Account{}
	for _, acc := range accounts {
		byID[acc.ID] = acc
	}
	assert.True(t, byID[a.ID].AutomaticSync)
	assert.False(t, byID[b.ID].AutomaticSync)
}

func TestAccountRepository_GetUnknown(t *testing.T) {
	repos := InitRepositories(testutil.NewSession(t))

	_, err := repos.AccountRepository.GetAccount(context.Background(), "acc_missing")
	assert.ErrorIs(t, err, mserrors.ErrAccountNotFound)
}

func TestAccountRepository_RejectsInvalidSocketType(t *testing.T) {
	repos := InitRepositories(testutil.NewSession(t))

	a := newAccount()
	a.SocketType = "tls1.0"
	assert.ErrorIs(t, repos.AccountRepository.SaveAccount(context.Background(), a), ErrInvalidInput)
}

func TestAccountRepository_UpdateSyncStatus(t *testing.T) {
	ctx := context.Background()
	repos := InitRepositories(testutil.NewSession(t))

	a := newAccount()
	require.NoError(t, repos.AccountRepository.SaveAccount(ctx, a))
	require.NoError(t, repos.AccountRepository.UpdateSyncStatus(ctx, a.ID, enum.SyncStatusFailed, "authentication failed"))

	got, err := repos.AccountRepository.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.SyncStatusFailed, got.SyncStatus)
	assert.Equal(t, "authentication failed", got.ErrorMessage)
	assert.Nil(t, got.LastSynced)

	require.NoError(t, repos.AccountRepository.UpdateSyncStatus(ctx, a.ID, enum.SyncStatusWaiting, ""))
	got, err = repos.AccountRepository.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LastSynced)
	assert.Empty(t, got.ErrorMessage)
}

func TestRepositories_StorageNotReady(t *testing.T) {
	session := database.NewSession(nil, logger.NewNopLogger())
	repos := InitRepositories(session)

	_, err := repos.AccountRepository.ListKnownAccounts(context.Background())
	assert.ErrorIs(t, err, mserrors.ErrStorageNotReady)

	_, err = repos.PreferencesRepository.RootPreferences(context.Background())
	assert.ErrorIs(t, err, mserrors.ErrStorageNotReady)
}

func TestFolderCursorRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	repos := InitRepositories(testutil.NewSession(t))

	cursor, err := repos.FolderCursorRepository.GetCursor(ctx, "acc_1", "INBOX")
	require.NoError(t, err)
	assert.Nil(t, cursor)

	require.NoError(t, repos.FolderCursorRepository.SaveCursor(ctx, &models.FolderCursor{
		AccountID: "acc_1", FolderName: "INBOX", UIDValidity: 5, LastUID: 10,
	}))
	listedAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repos.FolderCursorRepository.SaveCursor(ctx, &models.FolderCursor{
		AccountID: "acc_1", FolderName: "INBOX", UIDValidity: 5, LastUID: 12, ListedAt: listedAt,
	}))

	cursor, err = repos.FolderCursorRepository.GetCursor(ctx, "acc_1", "INBOX")
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, uint32(12), cursor.LastUID)
	assert.Equal(t, uint32(5), cursor.UIDValidity)
	assert.True(t, listedAt.Equal(cursor.ListedAt), "listed_at %v", cursor.ListedAt)

	cursors, err := repos.FolderCursorRepository.ListCursors(ctx, "acc_1")
	require.NoError(t, err)
	assert.Len(t, cursors, 1)
}

func TestMessageRepository_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repos := InitRepositories(testutil.NewSession(t))

	msg := &models.Message{AccountID: "acc_1", Folder: "INBOX", UID: 7, Subject: "first", Flags: flags.Seen}
	require.NoError(t, repos.MessageRepository.SaveMessage(ctx, msg))

	again := &models.Message{AccountID: "acc_1", Folder: "INBOX", UID: 7, Subject: "second", Flags: flags.Seen | flags.Flagged}
	require.NoError(t, repos.MessageRepository.SaveMessage(ctx, again))

	count, err := repos.MessageRepository.CountByAccount(ctx, "acc_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := repos.MessageRepository.GetMessage(ctx, "acc_1", "INBOX", 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "second", got.Subject)
	assert.Equal(t, flags.Seen|flags.Flagged, got.Flags)
}

func TestMessageRepository_Flags(t *testing.T) {
	ctx := context.Background()
	repos := InitRepositories(testutil.NewSession(t))

	for uid := uint32(1); uid <= 3; uid++ {
		require.NoError(t, repos.MessageRepository.SaveMessage(ctx, &models.Message{AccountID: "acc_1", Folder: "INBOX", UID: uid}))
	}
	require.NoError(t, repos.MessageRepository.UpdateFlags(ctx, "acc_1", "INBOX", 2, interfaces.StoredFlags{
		Local: flags.Seen | flags.Flagged, Server: flags.Seen,
	}))

	stored, err := repos.MessageRepository.GetFolderFlags(ctx, "acc_1", "INBOX")
	require.NoError(t, err)
	assert.Len(t, stored, 3)
	assert.Equal(t, flags.Seen|flags.Flagged, stored[2].Local)
	assert.Equal(t, flags.Seen, stored[2].Server)
	assert.Equal(t, flags.Set(0), stored[1].Local)

	require.NoError(t, repos.MessageRepository.DeleteFolder(ctx, "acc_1", "INBOX"))
	stored, err = repos.MessageRepository.GetFolderFlags(ctx, "acc_1", "INBOX")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestPreferencesRepository(t *testing.T) {
	ctx := context.Background()
	repos := InitRepositories(testutil.NewSession(t))

	require.NoError(t, repos.PreferencesRepository.SetPreference(ctx, models.PreferenceFetchBatchSize, "10"))
	require.NoError(t, repos.PreferencesRepository.SetPreference(ctx, models.PreferenceFetchBatchSize, "20"))

	prefs, err := repos.PreferencesRepository.RootPreferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, prefs.Int(models.PreferenceFetchBatchSize, 50))

	assert.ErrorIs(t, repos.PreferencesRepository.SetPreference(ctx, "", "x"), ErrInvalidInput)
}
