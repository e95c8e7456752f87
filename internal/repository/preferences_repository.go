package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/tracing"
)

type preferencesRepository struct {
	db DBProvider
}

func NewPreferencesRepository(db DBProvider) interfaces.PreferencesRepository {
	return &preferencesRepository{db: db}
}

func (r *preferencesRepository) RootPreferences(ctx context.Context) (models.Preferences, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "preferencesRepository.RootPreferences")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	db, err := r.db.DB()
	if err != nil {
		return nil, err
	}

	var rows []models.Preference
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}

	prefs := make(models.Preferences, len(rows))
	for _, row := range rows {
		prefs[row.Key] = row.Value
	}
	return prefs, nil
}

func (r *preferencesRepository) SetPreference(ctx context.Context, key, value string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "preferencesRepository.SetPreference")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)
	span.SetTag("key", key)

	if key == "" {
		return ErrInvalidInput
	}

	db, err := r.db.DB()
	if err != nil {
		return err
	}

	err = db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.Preference{Key: key, Value: value}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save preference: %w", err)
	}
	return nil
}
