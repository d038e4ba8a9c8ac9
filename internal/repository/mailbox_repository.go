package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/tracing"
)

type mailboxRepository struct {
	db *gorm.DB
}

func NewMailboxRepository(db *gorm.DB) interfaces.MailboxRepository {
	return &mailboxRepository{db: db}
}

// GetOrCreate resolves a mailbox by path without touching its counts
func (r *mailboxRepository) GetOrCreate(ctx context.Context, tenant, sourcePath string, sourceRowID int64) (*models.Mailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.GetOrCreate")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("source.path", sourcePath)

	if tenant == "" {
		return nil, ErrInvalidInput
	}

	candidate := &models.Mailbox{
		Tenant:      tenant,
		SourcePath:  sourcePath,
		SourceRowID: sourceRowID,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(candidate).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to insert mailbox: %w", err)
	}

	var mailbox models.Mailbox
	if err := r.db.WithContext(ctx).
		Where("tenant = ? AND source_path = ?", tenant, sourcePath).
		First(&mailbox).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to load mailbox: %w", err)
	}

	return &mailbox, nil
}

// UpsertCounts creates the mailbox or refreshes its source-reported counts
func (r *mailboxRepository) UpsertCounts(ctx context.Context, mailbox *models.Mailbox) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.UpsertCounts")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if mailbox == nil || mailbox.Tenant == "" || mailbox.SourcePath == "" {
		return ErrInvalidInput
	}

	mailbox.UpdatedAt = time.Now().UTC()
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant"}, {Name: "source_path"}},
			DoUpdates: clause.AssignmentColumns([]string{"source_row_id", "total_count", "unread_count", "updated_at"}),
		}).
		Create(mailbox).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to upsert mailbox: %w", err)
	}

	return nil
}

func (r *mailboxRepository) ListByTenant(ctx context.Context, tenant string) ([]*models.Mailbox, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "mailboxRepository.ListByTenant")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var mailboxes []*models.Mailbox
	if err := r.db.WithContext(ctx).
		Where("tenant = ?", tenant).
		Order("source_path ASC").
		Find(&mailboxes).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return mailboxes, nil
}
