package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/customeros/mailtriage/internal/enum"
	"github.com/customeros/mailtriage/internal/utils"
)

// ClassificationBudget tracks spend per calendar day and month in micro-units
type ClassificationBudget struct {
	ID          string            `gorm:"column:id;type:varchar(50);primaryKey"`
	Tenant      string            `gorm:"column:tenant;type:varchar(255);not null;uniqueIndex:uq_budget_period,priority:1"`
	Period      enum.BudgetPeriod `gorm:"column:period;type:varchar(10);not null;uniqueIndex:uq_budget_period,priority:2"`
	PeriodKey   string            `gorm:"column:period_key;type:varchar(10);not null;uniqueIndex:uq_budget_period,priority:3"`
	SpentMicros int64             `gorm:"column:spent_micros;not null;default:0"`
	CallCount   int64             `gorm:"column:call_count;not null;default:0"`
	CreatedAt   time.Time         `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (ClassificationBudget) TableName() string {
	return "classification_budgets"
}

func (b *ClassificationBudget) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = utils.GenerateNanoIDWithPrefix("bdgt", 16)
	}
	return nil
}

// DayKey and MonthKey are computed in UTC so every instance agrees on the period
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
