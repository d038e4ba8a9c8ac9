package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mailtriage/config"
	"github.com/customeros/mailtriage/internal/database"
	"github.com/customeros/mailtriage/internal/repository"
	"github.com/customeros/mailtriage/server"
)

func main() {
	app := &cli.App{
		Name:  "mailtriage",
		Usage: "mirror mail client metadata into postgres and classify new messages",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the scheduler and the operator API",
				Action: serve,
			},
			{
				Name:   "sync-once",
				Usage:  "Run one sync and classification cycle and print the report",
				Action: syncOnce,
			},
			{
				Name:   "reset-cursor",
				Usage:  "Forget the sync cursor so the next cycle rescans the source",
				Action: resetCursor,
			},
			{
				Name:   "retry-failed",
				Usage:  "Put permanently failed messages back into the classification queue",
				Action: retryFailed,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("mailtriage: %v", err)
	}
}

func setup() (*config.Config, *gorm.DB, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config initialization failed: %w", err)
	}

	replicaDB, err := database.InitReplicaDatabase(cfg.ReplicaDatabaseConfig)
	if err != nil {
		return nil, nil, err
	}
	return cfg, replicaDB, nil
}

func newServer() (*server.Server, error) {
	cfg, replicaDB, err := setup()
	if err != nil {
		return nil, err
	}
	return server.NewServer(cfg, replicaDB)
}

func migrate(c *cli.Context) error {
	_, replicaDB, err := setup()
	if err != nil {
		return err
	}
	if err := repository.MigrateReplicaDB(replicaDB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed successfully")
	return nil
}

func serve(c *cli.Context) error {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Mailtriage starting up...")

	s, err := newServer()
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err := s.Run(); err != nil {
		return err
	}

	log.Println("Shutdown complete")
	return nil
}

func syncOnce(c *cli.Context) error {
	s, err := newServer()
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.Scheduler().TriggerNow(c.Context)
	if report != nil {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
	}
	return err
}

func resetCursor(c *cli.Context) error {
	s, err := newServer()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Services().SyncService.ResetCursor(context.WithoutCancel(c.Context)); err != nil {
		return err
	}
	log.Println("Sync cursor reset; the next cycle rescans the source")
	return nil
}

func retryFailed(c *cli.Context) error {
	s, err := newServer()
	if err != nil {
		return err
	}
	defer s.Close()

	count, err := s.Services().ClassifierService.RetryFailed(context.WithoutCancel(c.Context))
	if err != nil {
		return err
	}
	log.Printf("%d messages queued for classification again", count)
	return nil
}
