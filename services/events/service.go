package events

import (
	"context"

	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/logger"
)

// NewEventPublisher connects to RabbitMQ, or returns a publisher that drops
// every event when no broker is configured
func NewEventPublisher(rabbitmqURL, appSource string, log logger.Logger, publisherConfig *PublisherConfig) (interfaces.EventPublisher, error) {
	if rabbitmqURL == "" {
		log.Info("RABBITMQ_URL not set, cycle events disabled")
		return &noopPublisher{}, nil
	}

	publisher, err := NewRabbitMQPublisher(rabbitmqURL, appSource, log, publisherConfig)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

type noopPublisher struct{}

func (p *noopPublisher) PublishCycleCompleted(ctx context.Context, report *dto.CycleReport) error {
	return nil
}

func (p *noopPublisher) PublishMessageClassified(ctx context.Context, tenant string, event dto.MessageClassified) error {
	return nil
}

func (p *noopPublisher) Close() error {
	return nil
}
