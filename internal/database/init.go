package database

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/customeros/mailtriage/config"
)

func InitReplicaDatabase(cfg *config.ReplicaDatabaseConfig) (*gorm.DB, error) {
	db, err := NewConnection(&DatabaseConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		DBName:          cfg.DBName,
		Password:        cfg.Password,
		MaxConn:         cfg.MaxConn,
		MaxIdleConn:     cfg.MaxIdleConn,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		LogLevel:        cfg.LogLevel,
		SSLMode:         cfg.SSLMode,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to the replica database")
	}

	return db, nil
}
