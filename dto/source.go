package dto

import "time"

// Cursor is the keyset bookmark (date_received, source_row_id) of the last
// committed source row. The zero value starts from the beginning.
type Cursor struct {
	DateReceived time.Time `json:"dateReceived"`
	SourceRowID  int64     `json:"sourceRowId"`
}

func (c Cursor) IsZero() bool {
	return c.DateReceived.IsZero() && c.SourceRowID == 0
}

// After reports whether c sorts strictly after other
func (c Cursor) After(other Cursor) bool {
	if c.DateReceived.Equal(other.DateReceived) {
		return c.SourceRowID > other.SourceRowID
	}
	return c.DateReceived.After(other.DateReceived)
}

type SourceMessage struct {
	SourceRowID        int64
	SenderAddress      string
	SenderDisplayName  string
	Subject            string
	MailboxSourceRowID int64
	MailboxPath        string
	DateReceived       time.Time
	DateSent           *time.Time
	IsRead             bool
	IsFlagged          bool
	Deleted            bool
	Snippet            string
}

func (m SourceMessage) Cursor() Cursor {
	return Cursor{DateReceived: m.DateReceived, SourceRowID: m.SourceRowID}
}

type SourceMailbox struct {
	SourceRowID int64
	Path        string
	TotalCount  int64
	UnreadCount int64
}
