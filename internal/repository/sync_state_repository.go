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

type syncStateRepository struct {
	db *gorm.DB
}

func NewSyncStateRepository(db *gorm.DB) interfaces.SyncStateRepository {
	return &syncStateRepository{db: db}
}

// GetSyncState returns nil when the source has never been synced
func (r *syncStateRepository) GetSyncState(ctx context.Context, tenant, sourceName string) (*models.SyncState, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.GetSyncState")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("source.name", sourceName)

	var state models.SyncState
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND source_name = ?", tenant, sourceName).
		First(&state).Error
	if err != nil {
		if isNotFound(err) {
			span.SetTag("found", false)
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}

	span.SetTag("found", true)
	return &state, nil
}

// SaveSyncState upserts the watermark. Callers persist it in the same
// transaction as the rows it covers.
func (r *syncStateRepository) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.SaveSyncState")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if state == nil || state.Tenant == "" || state.SourceName == "" {
		return ErrInvalidInput
	}
	span.SetTag("source.name", state.SourceName)
	span.SetTag("last_source_row_id", state.LastSourceRowID)

	now := time.Now().UTC()
	state.LastSync = now
	state.UpdatedAt = now
	state.LastDateReceived = state.LastDateReceived.UTC()

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant"}, {Name: "source_name"}},
			DoUpdates: clause.AssignmentColumns([]string{"last_date_received", "last_source_row_id", "rows_synced", "last_sync", "updated_at"}),
		}).
		Create(state).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to save sync state: %w", err)
	}

	return nil
}

func (r *syncStateRepository) DeleteSyncState(ctx context.Context, tenant, sourceName string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncStateRepository.DeleteSyncState")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("source.name", sourceName)

	if err := r.db.WithContext(ctx).
		Where("tenant = ? AND source_name = ?", tenant, sourceName).
		Delete(&models.SyncState{}).Error; err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to delete sync state: %w", err)
	}
	return nil
}
