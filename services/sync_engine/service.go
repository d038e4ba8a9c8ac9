package sync_engine

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/enum"
	mterrors "github.com/customeros/mailtriage/internal/errors"
	"github.com/customeros/mailtriage/internal/logger"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/repository"
	"github.com/customeros/mailtriage/internal/tracing"
	"github.com/customeros/mailtriage/internal/utils"
)

type syncService struct {
	cfg    *config.Config
	log    logger.Logger
	repos  *repository.Repositories
	opener interfaces.SourceOpener
}

func NewSyncService(cfg *config.Config, log logger.Logger, repos *repository.Repositories, opener interfaces.SourceOpener) interfaces.SyncService {
	return &syncService{
		cfg:    cfg,
		log:    log,
		repos:  repos,
		opener: opener,
	}
}

type batchResult struct {
	inserted  int
	updated   int
	unchanged int
}

// RunSync copies source rows past the stored cursor into the replica, one
// transaction per batch. The cursor only moves together with the rows it
// covers, so a failed batch is refetched in full next cycle.
func (s *syncService) RunSync(ctx context.Context) (*dto.SyncReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.RunSync")
	defer span.Finish()
	tenant := s.cfg.AppConfig.Tenant
	ctx = utils.SetTenantInContext(ctx, tenant)
	tracing.SetDefaultServiceSpanTags(ctx, span)

	report := &dto.SyncReport{Status: enum.SyncStatusOK}

	reader, err := s.opener.Open(ctx)
	if err != nil {
		if errors.Is(err, mterrors.ErrSourceNotFound) {
			s.log.Warnf("source store not found at %s, skipping sync", s.cfg.SourceConfig.DBPath)
			report.Status = enum.SyncStatusSourceNotFound
			span.SetTag("source.found", false)
			return report, nil
		}
		return s.fail(span, report, err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			s.log.Warnf("failed to close source store: %v", closeErr)
		}
	}()

	// a started transaction always runs to completion, even during shutdown
	dbCtx := context.WithoutCancel(ctx)

	state, err := s.repos.SyncStateRepository.GetSyncState(dbCtx, tenant, s.cfg.SourceConfig.Name)
	if err != nil {
		return s.fail(span, report, errors.Wrap(mterrors.ErrReplicaWriteFailure, err.Error()))
	}
	var (
		cursor     dto.Cursor
		rowsSynced int64
	)
	if state != nil {
		cursor = dto.Cursor{DateReceived: state.LastDateReceived.UTC(), SourceRowID: state.LastSourceRowID}
		rowsSynced = state.RowsSynced
	}
	report.Cursor = cursor

	mailboxCount, err := s.syncMailboxes(ctx, dbCtx, reader, tenant)
	if err != nil {
		return s.fail(span, report, err)
	}
	report.Mailboxes = mailboxCount

	batchSize := s.cfg.SyncConfig.BatchSize
	for {
		if ctx.Err() != nil {
			report.Error = "interrupted"
			return s.fail(span, report, ctx.Err())
		}

		batch, err := reader.FetchSince(ctx, cursor, batchSize)
		report.FetchCalls++
		if err != nil {
			return s.fail(span, report, err)
		}
		if len(batch) == 0 {
			break
		}

		next := batch[len(batch)-1].Cursor()
		result, err := s.applyBatch(dbCtx, tenant, batch, next, rowsSynced)
		if err != nil {
			return s.fail(span, report, err)
		}

		cursor = next
		rowsSynced += int64(result.inserted)
		report.Cursor = cursor
		report.Batches++
		report.Fetched += len(batch)
		report.Inserted += result.inserted
		report.Updated += result.updated
		report.Unchanged += result.unchanged

		if len(batch) < batchSize {
			break
		}
		if report.Batches >= s.cfg.SyncConfig.MaxBatchesPerCycle {
			report.Truncated = true
			report.Status = enum.SyncStatusTruncated
			s.log.Warnf("sync stopped after %d batches, remaining rows follow next cycle", report.Batches)
			break
		}
	}

	span.SetTag("fetched", report.Fetched)
	span.SetTag("inserted", report.Inserted)
	s.log.Infof("sync finished: status=%s batches=%d fetched=%d inserted=%d updated=%d unchanged=%d cursor=(%s, %d)",
		report.Status, report.Batches, report.Fetched, report.Inserted, report.Updated, report.Unchanged,
		report.Cursor.DateReceived.Format("2006-01-02T15:04:05Z"), report.Cursor.SourceRowID)

	return report, nil
}

// ResetCursor drops the watermark so the next cycle rescans the whole source.
// Rows already present are matched by source row id, never duplicated.
func (s *syncService) ResetCursor(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.ResetCursor")
	defer span.Finish()
	tenant := s.cfg.AppConfig.Tenant
	ctx = utils.SetTenantInContext(ctx, tenant)
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.repos.SyncStateRepository.DeleteSyncState(ctx, tenant, s.cfg.SourceConfig.Name); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(mterrors.ErrReplicaWriteFailure, err.Error())
	}
	s.log.Infof("sync cursor reset for source %s", s.cfg.SourceConfig.Name)
	return nil
}

func (s *syncService) syncMailboxes(ctx, dbCtx context.Context, reader interfaces.SourceReader, tenant string) (int, error) {
	mailboxes, err := reader.FetchMailboxes(ctx)
	if err != nil {
		return 0, err
	}
	if len(mailboxes) == 0 {
		return 0, nil
	}

	err = s.repos.Transaction(dbCtx, func(tx *repository.Repositories) error {
		for _, mailbox := range mailboxes {
			if err := tx.MailboxRepository.UpsertCounts(dbCtx, &models.Mailbox{
				Tenant:      tenant,
				SourcePath:  mailbox.Path,
				SourceRowID: mailbox.SourceRowID,
				TotalCount:  mailbox.TotalCount,
				UnreadCount: mailbox.UnreadCount,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(mterrors.ErrReplicaWriteFailure, err.Error())
	}
	return len(mailboxes), nil
}

// applyBatch writes dimensions, messages and the advanced cursor atomically
func (s *syncService) applyBatch(ctx context.Context, tenant string, batch []dto.SourceMessage, next dto.Cursor, rowsSynced int64) (batchResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "syncService.applyBatch")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("batch.size", len(batch))

	var result batchResult
	err := s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		result = batchResult{}

		rowIDs := make([]int64, 0, len(batch))
		for _, message := range batch {
			rowIDs = append(rowIDs, message.SourceRowID)
		}
		existing, err := tx.MessageRepository.GetBySourceRowIDs(ctx, tenant, rowIDs)
		if err != nil {
			return err
		}

		dims := newDimensionResolver(tx, tenant)
		var toInsert []*models.Message
		for _, message := range batch {
			if stored, ok := existing[message.SourceRowID]; ok {
				if stored.IsRead == message.IsRead && stored.IsFlagged == message.IsFlagged && stored.Deleted == message.Deleted {
					result.unchanged++
					continue
				}
				if err := tx.MessageRepository.UpdateSourceFlags(ctx, stored.ID, message.IsRead, message.IsFlagged, message.Deleted); err != nil {
					return err
				}
				result.updated++
				continue
			}

			replica, err := dims.toReplica(ctx, message)
			if err != nil {
				return err
			}
			toInsert = append(toInsert, replica)
		}

		inserted, err := tx.MessageRepository.CreateIfAbsent(ctx, toInsert)
		if err != nil {
			return err
		}
		result.inserted = int(inserted)
		result.unchanged += len(toInsert) - int(inserted)

		return tx.SyncStateRepository.SaveSyncState(ctx, &models.SyncState{
			Tenant:           tenant,
			SourceName:       s.cfg.SourceConfig.Name,
			LastDateReceived: next.DateReceived,
			LastSourceRowID:  next.SourceRowID,
			RowsSynced:       rowsSynced + inserted,
		})
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return batchResult{}, errors.Wrap(mterrors.ErrReplicaWriteFailure, err.Error())
	}

	return result, nil
}

func (s *syncService) fail(span opentracing.Span, report *dto.SyncReport, err error) (*dto.SyncReport, error) {
	tracing.TraceErr(span, err)
	report.Status = enum.SyncStatusFailed
	if report.Error == "" {
		report.Error = err.Error()
	}
	s.log.Errorf("sync failed after %d batches: %v", report.Batches, err)
	return report, fmt.Errorf("sync failed: %w", err)
}
