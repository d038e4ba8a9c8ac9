package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/enum"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/tracing"
)

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) interfaces.MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) GetBySourceRowIDs(ctx context.Context, tenant string, sourceRowIDs []int64) (map[int64]*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.GetBySourceRowIDs")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("count", len(sourceRowIDs))

	result := make(map[int64]*models.Message, len(sourceRowIDs))
	if len(sourceRowIDs) == 0 {
		return result, nil
	}

	var messages []*models.Message
	if err := r.db.WithContext(ctx).
		Where("tenant = ? AND source_row_id IN ?", tenant, sourceRowIDs).
		Find(&messages).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to load messages by source row: %w", err)
	}

	for _, message := range messages {
		result[message.SourceRowID] = message
	}
	return result, nil
}

// CreateIfAbsent inserts messages, silently skipping any whose
// (tenant, source_row_id) already exists. Returns the number inserted.
func (r *messageRepository) CreateIfAbsent(ctx context.Context, messages []*models.Message) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.CreateIfAbsent")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("count", len(messages))

	if len(messages) == 0 {
		return 0, nil
	}

	result := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant"}, {Name: "source_row_id"}},
			DoNothing: true,
		}).
		Create(&messages)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, fmt.Errorf("failed to insert messages: %w", result.Error)
	}

	span.SetTag("inserted", result.RowsAffected)
	return result.RowsAffected, nil
}

// UpdateSourceFlags writes the only source fields allowed to change after insert
func (r *messageRepository) UpdateSourceFlags(ctx context.Context, id string, isRead, isFlagged, deleted bool) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.UpdateSourceFlags")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_read":    isRead,
			"is_flagged": isFlagged,
			"deleted":    deleted,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to update message flags: %w", err)
	}
	return nil
}

// SelectUnclassified returns the oldest pending, non-deleted messages
func (r *messageRepository) SelectUnclassified(ctx context.Context, tenant string, limit int) ([]*models.Message, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.SelectUnclassified")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("limit", limit)

	var messages []*models.Message
	if err := r.db.WithContext(ctx).
		Preload("Sender").
		Preload("Subject").
		Where("tenant = ? AND classified = ? AND deleted = ? AND classification_status = ?",
			tenant, false, false, enum.ClassificationPending).
		Order("date_received ASC").
		Order("source_row_id ASC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to select unclassified messages: %w", err)
	}

	span.SetTag("selected", len(messages))
	return messages, nil
}

// MarkClassified flips the flag only while the message is still pending.
// Must run in the same transaction that writes the classification row.
func (r *messageRepository) MarkClassified(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.MarkClassified")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND classified = ? AND classification_status = ?", id, false, enum.ClassificationPending).
		Updates(map[string]interface{}{
			"classified":            true,
			"classification_status": enum.ClassificationDone,
			"classification_error":  "",
			"updated_at":            time.Now().UTC(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return fmt.Errorf("failed to mark message classified: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		tracing.TraceErr(span, ErrAlreadyClassified)
		return ErrAlreadyClassified
	}
	return nil
}

func (r *messageRepository) MarkFailedPermanent(ctx context.Context, id, reason string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.MarkFailedPermanent")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND classified = ?", id, false).
		Updates(map[string]interface{}{
			"classification_status":   enum.ClassificationFailedPermanent,
			"classification_error":    reason,
			"classification_attempts": gorm.Expr("classification_attempts + 1"),
			"updated_at":              time.Now().UTC(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	return nil
}

// RecordTransientFailure keeps the message pending so the next cycle retries it
func (r *messageRepository) RecordTransientFailure(ctx context.Context, id, reason string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.RecordTransientFailure")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND classified = ?", id, false).
		Updates(map[string]interface{}{
			"classification_error":    reason,
			"classification_attempts": gorm.Expr("classification_attempts + 1"),
			"updated_at":              time.Now().UTC(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to record transient failure: %w", err)
	}
	return nil
}

func (r *messageRepository) ResetFailedPermanent(ctx context.Context, tenant string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.ResetFailedPermanent")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("tenant = ? AND classified = ? AND classification_status = ?", tenant, false, enum.ClassificationFailedPermanent).
		Updates(map[string]interface{}{
			"classification_status": enum.ClassificationPending,
			"classification_error":  "",
			"updated_at":            time.Now().UTC(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, fmt.Errorf("failed to reset failed messages: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *messageRepository) CountByTenant(ctx context.Context, tenant string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "messageRepository.CountByTenant")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("tenant = ?", tenant).
		Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
