package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mailtriage/internal/models"
)

type AddressRepository interface {
	GetOrCreate(ctx context.Context, tenant, emailAddress, displayName string) (*models.Address, error)
}

type SubjectRepository interface {
	GetOrCreate(ctx context.Context, tenant, text string) (*models.Subject, error)
}

type MailboxRepository interface {
	GetOrCreate(ctx context.Context, tenant, sourcePath string, sourceRowID int64) (*models.Mailbox, error)
	UpsertCounts(ctx context.Context, mailbox *models.Mailbox) error
	ListByTenant(ctx context.Context, tenant string) ([]*models.Mailbox, error)
}

type MessageRepository interface {
	GetBySourceRowIDs(ctx context.Context, tenant string, sourceRowIDs []int64) (map[int64]*models.Message, error)
	CreateIfAbsent(ctx context.Context, messages []*models.Message) (int64, error)
	UpdateSourceFlags(ctx context.Context, id string, isRead, isFlagged, deleted bool) error
	SelectUnclassified(ctx context.Context, tenant string, limit int) ([]*models.Message, error)
	MarkClassified(ctx context.Context, id string) error
	MarkFailedPermanent(ctx context.Context, id, reason string) error
	RecordTransientFailure(ctx context.Context, id, reason string) error
	ResetFailedPermanent(ctx context.Context, tenant string) (int64, error)
	CountByTenant(ctx context.Context, tenant string) (int64, error)
}

type ClassificationRepository interface {
	Create(ctx context.Context, classification *models.Classification) error
	GetByMessageID(ctx context.Context, messageID string) (*models.Classification, error)
	CountByTenant(ctx context.Context, tenant string) (int64, error)
}

type SyncStateRepository interface {
	GetSyncState(ctx context.Context, tenant, sourceName string) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error
	DeleteSyncState(ctx context.Context, tenant, sourceName string) error
}

type BudgetRepository interface {
	// Reserve atomically adds costMicros to today's and this month's spend
	// when both stay within their caps (a cap <= 0 disables it).
	Reserve(ctx context.Context, tenant string, now time.Time, costMicros, dailyCapMicros, monthlyCapMicros int64) (bool, error)
	GetSpend(ctx context.Context, tenant string, now time.Time) (dayMicros int64, monthMicros int64, err error)
}
