package interfaces

import (
	"context"

	"github.com/customeros/mailtriage/dto"
)

type EventPublisher interface {
	PublishCycleCompleted(ctx context.Context, report *dto.CycleReport) error
	PublishMessageClassified(ctx context.Context, tenant string, event dto.MessageClassified) error
	Close() error
}
