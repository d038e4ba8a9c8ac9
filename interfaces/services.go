package interfaces

import (
	"context"

	"github.com/customeros/mailtriage/dto"
)

type SyncService interface {
	RunSync(ctx context.Context) (*dto.SyncReport, error)
	ResetCursor(ctx context.Context) error
}

type ClassifierService interface {
	RunClassification(ctx context.Context) (*dto.ClassifyReport, error)
	RetryFailed(ctx context.Context) (int64, error)
	BudgetStatus(ctx context.Context) (*dto.BudgetStatus, error)
}

type Scheduler interface {
	TriggerNow(ctx context.Context) (*dto.CycleReport, error)
	Status() dto.SchedulerStatus
}
