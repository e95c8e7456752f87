package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	mserrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type accountRepository struct {
	db DBProvider
}

func NewAccountRepository(db DBProvider) interfaces.AccountRepository {
	return &accountRepository{db: db}
}

// ListKnownAccounts returns ErrStorageNotReady (unwrapped) before storage is attached.
func (r *accountRepository) ListKnownAccounts(ctx context.Context) ([]*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.ListKnownAccounts")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	db, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var accounts []*models.Account
	if err := db.WithContext(ctx).Order("created_at, id").Find(&accounts).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	span.LogKV("accounts.count", len(accounts))
	return accounts, nil
}

func (r *accountRepository) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)

	db, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var account models.Account
	err = db.WithContext(ctx).First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mserrors.ErrAccountNotFound
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (r *accountRepository) SaveAccount(ctx context.Context, account *models.Account) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.SaveAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	if account == nil || account.Host == "" || account.Username == "" {
		return ErrInvalidInput
	}
	if account.SocketType != "" && !account.SocketType.IsValid() {
		return ErrInvalidInput
	}

	db, err := r.db.DB()
	if err != nil {
		return err
	}

	if account.ID == "" {
		err = db.WithContext(ctx).Create(account).Error
	} else {
		err = db.WithContext(ctx).Save(account).Error
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save account: %w", err)
	}
	tracing.TagAccount(span, account.ID)
	return nil
}

func (r *accountRepository) UpdateSyncStatus(ctx context.Context, id string, status enum.SyncStatus, errorMessage string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.UpdateSyncStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, id)
	span.SetTag("status", status.String())

	db, err := r.db.DB()
	if err != nil {
		return err
	}

	updates := map[string]interface{}{
		"sync_status":   status,
		"error_message": errorMessage,
	}
	if status == enum.SyncStatusWaiting {
		updates["last_synced"] = utils.Now()
	}

	err = db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update sync status: %w", err)
	}
	return nil
}
