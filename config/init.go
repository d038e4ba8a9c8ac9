package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	cron_config "github.com/customeros/mailtriage/internal/cron/config"
	"github.com/customeros/mailtriage/internal/logger"
	"github.com/customeros/mailtriage/internal/tracing"
)

type Config struct {
	AppConfig             *AppConfig
	Logger                *logger.Config
	Tracing               *tracing.JaegerConfig
	ReplicaDatabaseConfig *ReplicaDatabaseConfig
	SourceConfig          *SourceConfig
	SyncConfig            *SyncConfig
	ClassifyConfig        *ClassifyConfig
	ClassifierAPIConfig   *ClassifierAPIConfig
	SchedulerConfig       *cron_config.Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:             &AppConfig{},
		Logger:                &logger.Config{},
		Tracing:               &tracing.JaegerConfig{},
		ReplicaDatabaseConfig: &ReplicaDatabaseConfig{},
		SourceConfig:          &SourceConfig{},
		SyncConfig:            &SyncConfig{},
		ClassifyConfig:        &ClassifyConfig{},
		ClassifierAPIConfig:   &ClassifierAPIConfig{},
		SchedulerConfig:       &cron_config.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	if err = env.Parse(config); err != nil {
		return nil, errors.Wrap(err, "error loading mailtriage config")
	}

	if err = Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate runs the struct tag validation on every config section
func Validate(config *Config) error {
	validate := validator.New()
	sections := []interface{}{
		config.AppConfig,
		config.Logger,
		config.ReplicaDatabaseConfig,
		config.SourceConfig,
		config.SyncConfig,
		config.ClassifyConfig,
		config.ClassifierAPIConfig,
		config.SchedulerConfig,
	}
	for _, section := range sections {
		if section == nil {
			continue
		}
		if err := validate.Struct(section); err != nil {
			return errors.Wrap(err, "invalid mailtriage config")
		}
	}
	return nil
}
