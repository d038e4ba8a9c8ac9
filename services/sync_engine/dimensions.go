package sync_engine

import (
	"context"

	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/repository"
)

// dimensionResolver memoizes address, subject and mailbox ids within one
// batch transaction
type dimensionResolver struct {
	tx        *repository.Repositories
	tenant    string
	addresses map[[2]string]string
	subjects  map[string]string
	mailboxes map[string]string
}

func newDimensionResolver(tx *repository.Repositories, tenant string) *dimensionResolver {
	return &dimensionResolver{
		tx:        tx,
		tenant:    tenant,
		addresses: make(map[[2]string]string),
		subjects:  make(map[string]string),
		mailboxes: make(map[string]string),
	}
}

func (d *dimensionResolver) toReplica(ctx context.Context, message dto.SourceMessage) (*models.Message, error) {
	replica := &models.Message{
		Tenant:         d.tenant,
		SourceRowID:    message.SourceRowID,
		DateReceived:   message.DateReceived,
		DateSent:       message.DateSent,
		IsRead:         message.IsRead,
		IsFlagged:      message.IsFlagged,
		Deleted:        message.Deleted,
		ContentSnippet: message.Snippet,
	}

	if message.SenderAddress != "" {
		id, err := d.address(ctx, message.SenderAddress, message.SenderDisplayName)
		if err != nil {
			return nil, err
		}
		replica.SenderAddressID = &id
	}
	if message.Subject != "" {
		id, err := d.subject(ctx, message.Subject)
		if err != nil {
			return nil, err
		}
		replica.SubjectID = &id
	}
	if message.MailboxPath != "" {
		id, err := d.mailbox(ctx, message.MailboxPath, message.MailboxSourceRowID)
		if err != nil {
			return nil, err
		}
		replica.MailboxID = &id
	}

	return replica, nil
}

func (d *dimensionResolver) address(ctx context.Context, email, displayName string) (string, error) {
	key := [2]string{email, displayName}
	if id, ok := d.addresses[key]; ok {
		return id, nil
	}
	address, err := d.tx.AddressRepository.GetOrCreate(ctx, d.tenant, email, displayName)
	if err != nil {
		return "", err
	}
	d.addresses[key] = address.ID
	return address.ID, nil
}

func (d *dimensionResolver) subject(ctx context.Context, text string) (string, error) {
	if id, ok := d.subjects[text]; ok {
		return id, nil
	}
	subject, err := d.tx.SubjectRepository.GetOrCreate(ctx, d.tenant, text)
	if err != nil {
		return "", err
	}
	d.subjects[text] = subject.ID
	return subject.ID, nil
}

func (d *dimensionResolver) mailbox(ctx context.Context, path string, sourceRowID int64) (string, error) {
	if id, ok := d.mailboxes[path]; ok {
		return id, nil
	}
	mailbox, err := d.tx.MailboxRepository.GetOrCreate(ctx, d.tenant, path, sourceRowID)
	if err != nil {
		return "", err
	}
	d.mailboxes[path] = mailbox.ID
	return mailbox.ID, nil
}
