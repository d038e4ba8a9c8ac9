package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/tracing"
)

type classificationRepository struct {
	db *gorm.DB
}

func NewClassificationRepository(db *gorm.DB) interfaces.ClassificationRepository {
	return &classificationRepository{db: db}
}

// Create inserts the one classification of a message; a second insert for
// the same message violates the unique index and fails.
func (r *classificationRepository) Create(ctx context.Context, classification *models.Classification) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "classificationRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if classification == nil || classification.MessageID == "" {
		return ErrInvalidInput
	}
	tracing.TagEntity(span, classification.MessageID)

	if err := r.db.WithContext(ctx).Create(classification).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to insert classification: %w", err)
	}
	return nil
}

func (r *classificationRepository) GetByMessageID(ctx context.Context, messageID string) (*models.Classification, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "classificationRepository.GetByMessageID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, messageID)

	var classification models.Classification
	if err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&classification).Error; err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &classification, nil
}

func (r *classificationRepository) CountByTenant(ctx context.Context, tenant string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "classificationRepository.CountByTenant")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Classification{}).
		Where("tenant = ?", tenant).
		Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}
