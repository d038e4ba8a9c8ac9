package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailtriage/internal/utils"
)

// Subject is deduplicated by exact text. TextHash carries the unique key
// since subjects can outgrow a btree index entry.
type Subject struct {
	ID        string    `gorm:"column:id;type:varchar(50);primaryKey"`
	Tenant    string    `gorm:"column:tenant;type:varchar(255);not null;uniqueIndex:uq_subject,priority:1"`
	TextHash  string    `gorm:"column:text_hash;type:varchar(64);not null;uniqueIndex:uq_subject,priority:2"`
	Text      string    `gorm:"column:text;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Subject) TableName() string {
	return "subjects"
}

func (s *Subject) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = utils.GenerateNanoIDWithPrefix("subj", 16)
	}
	if s.TextHash == "" {
		s.TextHash = utils.HashText(s.Text)
	}
	return nil
}
