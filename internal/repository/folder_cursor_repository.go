package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

type folderCursorRepository struct {
	db DBProvider
}

func NewFolderCursorRepository(db DBProvider) interfaces.FolderCursorRepository {
	return &folderCursorRepository{db: db}
}

// GetCursor returns nil, nil when the folder has never been synced.
func (r *folderCursorRepository) GetCursor(ctx context.Context, accountID, folderName string) (*models.FolderCursor, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderCursorRepository.GetCursor")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, folderName)

	db, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var cursor models.FolderCursor
	err = db.WithContext(ctx).
		Where("account_id = ? AND folder_name = ?", accountID, folderName).
		First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get folder cursor: %w", err)
	}
	return &cursor, nil
}

func (r *folderCursorRepository) SaveCursor(ctx context.Context, cursor *models.FolderCursor) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderCursorRepository.SaveCursor")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, cursor.AccountID)
	tracing.TagFolder(span, cursor.FolderName)
	span.LogKV("last_uid", cursor.LastUID, "uid_validity", cursor.UIDValidity)

	db, err := r.db.DB()
	if err != nil {
		return err
	}

	cursor.LastSync = utils.Now()
	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "folder_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"uid_validity", "last_uid", "listed_at", "last_sync", "updated_at"}),
	}).Create(cursor).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save folder cursor: %w", err)
	}
	return nil
}

func (r *folderCursorRepository) ListCursors(ctx context.Context, accountID string) ([]*models.FolderCursor, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderCursorRepository.ListCursors")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	db, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var cursors []*models.FolderCursor
	if err := db.WithContext(ctx).Where("account_id = ?", accountID).Order("folder_name").Find(&cursors).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list folder cursors: %w", err)
	}
	return cursors, nil
}
