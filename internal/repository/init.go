package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/models"
)

type Repositories struct {
	db *gorm.DB

	AddressRepository        interfaces.AddressRepository
	SubjectRepository        interfaces.SubjectRepository
	MailboxRepository        interfaces.MailboxRepository
	MessageRepository        interfaces.MessageRepository
	ClassificationRepository interfaces.ClassificationRepository
	SyncStateRepository      interfaces.SyncStateRepository
	BudgetRepository         interfaces.BudgetRepository
}

func InitRepositories(replicaDB *gorm.DB) *Repositories {
	return &Repositories{
		db:                       replicaDB,
		AddressRepository:        NewAddressRepository(replicaDB),
		SubjectRepository:        NewSubjectRepository(replicaDB),
		MailboxRepository:        NewMailboxRepository(replicaDB),
		MessageRepository:        NewMessageRepository(replicaDB),
		ClassificationRepository: NewClassificationRepository(replicaDB),
		SyncStateRepository:      NewSyncStateRepository(replicaDB),
		BudgetRepository:         NewBudgetRepository(replicaDB),
	}
}

// Transaction runs fn against repositories bound to a single transaction.
// Returning an error from fn rolls everything back.
func (r *Repositories) Transaction(ctx context.Context, fn func(tx *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(InitRepositories(tx))
	})
}

func (r *Repositories) DB() *gorm.DB {
	return r.db
}

func MigrateReplicaDB(replicaDB *gorm.DB) error {
	return replicaDB.AutoMigrate(
		&models.Address{},
		&models.Subject{},
		&models.Mailbox{},
		&models.Message{},
		&models.Classification{},
		&models.SyncState{},
		&models.ClassificationBudget{},
	)
}
