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
)

// columns overwritten when a message is stored again under the same UID
var messageUpsertColumns = []string{
	"uid_validity", "message_id", "in_reply_to", "subject", "from_address", "from_name",
	"to_addresses", "cc_addresses", "sent_at", "received_at", "body_text", "body_html",
	"size", "raw_key", "flags", "server_flags", "verified", "signer", "verification_error", "updated_at",
}

type messageRepository struct {
	db DBProvider
}

func NewMessageRepository(db DBProvider) interfaces.MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) SaveMessage(ctx context.Context, message *models.Message) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.SaveMessage")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, message.AccountID)
	tracing.TagFolder(span, message.Folder)
	span.LogKV("uid", message.UID)

	db, err := r.db.DB()
	if err != nil {
		return err
	}

	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "folder"}, {Name: "uid"}},
		DoUpdates: clause.AssignmentColumns(messageUpsertColumns),
	}).Create(message).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// GetMessage returns nil, nil when the message is not stored.
func (r *messageRepository) GetMessage(ctx context.Context, accountID, folder string, uid uint32) (*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetMessage")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	db, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var message models.Message
	err = db.WithContext(ctx).
		Where("account_id = ? AND folder = ? AND uid = ?", accountID, folder, uid).
		First(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

func (r *messageRepository) GetFolderFlags(ctx context.Context, accountID, folder string) (map[uint32]interfaces.StoredFlags, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetFolderFlags")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, folder)

	db, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var rows []models.Message
	err = db.WithContext(ctx).
		Select("uid", "flags", "server_flags").
		Where("account_id = ? AND folder = ?", accountID, folder).
		Find(&rows).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get folder flags: %w", err)
	}

	out := make(map[uint32]interfaces.StoredFlags, len(rows))
	for _, row := range rows {
		out[row.UID] = interfaces.StoredFlags{Local: row.Flags, Server: row.ServerFlags}
	}
	return out, nil
}

func (r *messageRepository) UpdateFlags(ctx context.Context, accountID, folder string, uid uint32, stored interfaces.StoredFlags) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.UpdateFlags")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	span.LogKV("uid", uid, "flags", stored.Local.String(), "server_flags", stored.Server.String())

	db, err := r.db.DB()
	if err != nil {
		return err
	}

	err = db.WithContext(ctx).Model(&models.Message{}).
		Where("account_id = ? AND folder = ? AND uid = ?", accountID, folder, uid).
		Updates(map[string]interface{}{
			"flags":        stored.Local,
			"server_flags": stored.Server,
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update flags: %w", err)
	}
	return nil
}

// DeleteFolder drops every stored message of a folder, used when the server
// invalidates its UIDs.
func (r *messageRepository) DeleteFolder(ctx context.Context, accountID, folder string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.DeleteFolder")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)
	tracing.TagFolder(span, folder)

	db, err := r.db.DB()
	if err != nil {
		return err
	}

	err = db.WithContext(ctx).
		Where("account_id = ? AND folder = ?", accountID, folder).
		Delete(&models.Message{}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to delete folder messages: %w", err)
	}
	return nil
}

func (r *messageRepository) CountByAccount(ctx context.Context, accountID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.CountByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	tracing.TagAccount(span, accountID)

	db, err := r.db.DB()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.Message{}).Where("account_id = ?", accountID).Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}
