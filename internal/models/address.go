package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailtriage/internal/utils"
)

// Address is a sender seen in the source store. Append-only.
type Address struct {
	ID           string    `gorm:"column:id;type:varchar(50);primaryKey"`
	Tenant       string    `gorm:"column:tenant;type:varchar(255);not null;uniqueIndex:uq_address,priority:1"`
	EmailAddress string    `gorm:"column:email_address;type:varchar(320);not null;uniqueIndex:uq_address,priority:2"`
	DisplayName  string    `gorm:"column:display_name;type:varchar(255);not null;default:'';uniqueIndex:uq_address,priority:3"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Address) TableName() string {
	return "addresses"
}

func (a *Address) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("addr", 16)
	}
	return nil
}
