package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailtriage/internal/utils"
)

// Mailbox mirrors a source folder. Counts are source-reported aggregates.
type Mailbox struct {
	ID          string    `gorm:"column:id;type:varchar(50);primaryKey"`
	Tenant      string    `gorm:"column:tenant;type:varchar(255);not null;uniqueIndex:uq_mailbox,priority:1"`
	SourcePath  string    `gorm:"column:source_path;type:varchar(1000);not null;uniqueIndex:uq_mailbox,priority:2"`
	SourceRowID int64     `gorm:"column:source_row_id;index"`
	TotalCount  int64     `gorm:"column:total_count;not null;default:0"`
	UnreadCount int64     `gorm:"column:unread_count;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Mailbox) TableName() string {
	return "mailboxes"
}

func (m *Mailbox) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("mbox", 16)
	}
	return nil
}
