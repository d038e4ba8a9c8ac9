package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailtriage/internal/utils"
)

// SyncState is the durable watermark of the last committed source row
type SyncState struct {
	ID               string    `gorm:"column:id;type:varchar(50);primaryKey"`
	Tenant           string    `gorm:"column:tenant;type:varchar(255);not null;uniqueIndex:uq_sync_state,priority:1"`
	SourceName       string    `gorm:"column:source_name;type:varchar(100);not null;uniqueIndex:uq_sync_state,priority:2"`
	LastDateReceived time.Time `gorm:"column:last_date_received;type:timestamp;not null"`
	LastSourceRowID  int64     `gorm:"column:last_source_row_id;not null"`
	RowsSynced       int64     `gorm:"column:rows_synced;not null;default:0"`
	LastSync         time.Time `gorm:"column:last_sync;type:timestamp;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt        time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (SyncState) TableName() string {
	return "sync_states"
}

func (s *SyncState) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = utils.GenerateNanoIDWithPrefix("sync", 16)
	}
	return nil
}
