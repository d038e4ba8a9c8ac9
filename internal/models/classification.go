package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailtriage/internal/utils"
)

// Classification is written once per message and never updated
type Classification struct {
	ID                string    `gorm:"column:id;type:varchar(50);primaryKey"`
	Tenant            string    `gorm:"column:tenant;type:varchar(255);not null;index"`
	MessageID         string    `gorm:"column:message_id;type:varchar(50);not null;uniqueIndex"`
	Label             string    `gorm:"column:label;type:varchar(100);not null"`
	Urgency           string    `gorm:"column:urgency;type:varchar(20);not null"`
	Confidence        float64   `gorm:"column:confidence;not null"`
	ModelUsed         string    `gorm:"column:model_used;type:varchar(100);not null"`
	CostEstimateMicro int64     `gorm:"column:cost_estimate_micros;not null;default:0"`
	Reason            string    `gorm:"column:reason;type:text"`
	CreatedAt         time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (Classification) TableName() string {
	return "classifications"
}

func (c *Classification) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = utils.GenerateNanoIDWithPrefix("cls", 20)
	}
	return nil
}
