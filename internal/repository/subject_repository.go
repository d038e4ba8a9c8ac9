package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/tracing"
	"github.com/customeros/mailtriage/internal/utils"
)

type subjectRepository struct {
	db *gorm.DB
}

func NewSubjectRepository(db *gorm.DB) interfaces.SubjectRepository {
	return &subjectRepository{db: db}
}

func (r *subjectRepository) GetOrCreate(ctx context.Context, tenant, text string) (*models.Subject, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "subjectRepository.GetOrCreate")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if tenant == "" {
		return nil, ErrInvalidInput
	}

	hash := utils.HashText(text)
	candidate := &models.Subject{
		Tenant:   tenant,
		Text:     text,
		TextHash: hash,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(candidate).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to insert subject: %w", err)
	}

	var subject models.Subject
	if err := r.db.WithContext(ctx).
		Where("tenant = ? AND text_hash = ?", tenant, hash).
		First(&subject).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to load subject: %w", err)
	}

	return &subject, nil
}
