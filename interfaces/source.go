package interfaces

import (
	"context"

	"github.com/customeros/mailtriage/dto"
)

// SourceReader is a read-only, ordered view over the external mail store
type SourceReader interface {
	FetchSince(ctx context.Context, cursor dto.Cursor, limit int) ([]dto.SourceMessage, error)
	FetchMailboxes(ctx context.Context) ([]dto.SourceMailbox, error)
	Close() error
}

// SourceOpener opens a fresh reader for every cycle so a file replaced or
// created between cycles is picked up
type SourceOpener interface {
	Open(ctx context.Context) (SourceReader, error)
}
