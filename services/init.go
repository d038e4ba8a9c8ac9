package services

import (
	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/logger"
	"github.com/customeros/mailtriage/internal/repository"
	"github.com/customeros/mailtriage/services/ai"
	"github.com/customeros/mailtriage/services/classifier"
	"github.com/customeros/mailtriage/services/email_filter"
	"github.com/customeros/mailtriage/services/events"
	"github.com/customeros/mailtriage/services/source"
	"github.com/customeros/mailtriage/services/sync_engine"
)

const AppSource = "mailtriage"

type Services struct {
	EventPublisher     interfaces.EventPublisher
	EmailFilterService interfaces.EmailFilterService
	AIService          interfaces.AIService
	SourceOpener       interfaces.SourceOpener
	SyncService        interfaces.SyncService
	ClassifierService  interfaces.ClassifierService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	publisher, err := events.NewEventPublisher(cfg.AppConfig.RabbitMQURL, AppSource, log, events.DefaultPublisherConfig())
	if err != nil {
		return nil, err
	}

	emailFilter := email_filter.NewEmailFilterService()
	aiService := ai.NewAIService(cfg.ClassifierAPIConfig)
	opener := source.NewSourceOpener(cfg.SourceConfig, log)

	services := Services{
		EventPublisher:     publisher,
		EmailFilterService: emailFilter,
		AIService:          aiService,
		SourceOpener:       opener,
		SyncService:        sync_engine.NewSyncService(cfg, log.With("component", "sync"), repos, opener),
		ClassifierService:  classifier.NewClassifierService(cfg, log.With("component", "classifier"), repos, aiService, emailFilter, publisher),
	}

	return &services, nil
}
