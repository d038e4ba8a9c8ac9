package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/enum"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/tracing"
)

type budgetRepository struct {
	db *gorm.DB
}

func NewBudgetRepository(db *gorm.DB) interfaces.BudgetRepository {
	return &budgetRepository{db: db}
}

type budgetPeriod struct {
	period    enum.BudgetPeriod
	key       string
	capMicros int64
}

func (r *budgetRepository) Reserve(ctx context.Context, tenant string, now time.Time, costMicros, dailyCapMicros, monthlyCapMicros int64) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "budgetRepository.Reserve")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.SetTag("cost_micros", costMicros)

	if tenant == "" || costMicros < 0 {
		return false, ErrInvalidInput
	}

	periods := []budgetPeriod{
		{period: enum.BudgetPeriodDay, key: models.DayKey(now), capMicros: dailyCapMicros},
		{period: enum.BudgetPeriodMonth, key: models.MonthKey(now), capMicros: monthlyCapMicros},
	}

	reserved := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range periods {
			row := &models.ClassificationBudget{Tenant: tenant, Period: p.period, PeriodKey: p.key}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
				return err
			}

			query := tx.Model(&models.ClassificationBudget{}).
				Where("tenant = ? AND period = ? AND period_key = ?", tenant, p.period, p.key)
			if p.capMicros > 0 {
				query = query.Where("spent_micros + ? <= ?", costMicros, p.capMicros)
			}
			result := query.Updates(map[string]interface{}{
				"spent_micros": gorm.Expr("spent_micros + ?", costMicros),
				"call_count":   gorm.Expr("call_count + 1"),
				"updated_at":   now.UTC(),
			})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return errBudgetRefused
			}
		}
		reserved = true
		return nil
	})
	if err == errBudgetRefused {
		span.SetTag("reserved", false)
		return false, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return false, fmt.Errorf("failed to reserve budget: %w", err)
	}

	span.SetTag("reserved", reserved)
	return reserved, nil
}

func (r *budgetRepository) GetSpend(ctx context.Context, tenant string, now time.Time) (int64, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "budgetRepository.GetSpend")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var rows []models.ClassificationBudget
	err := r.db.WithContext(ctx).
		Where("tenant = ? AND ((period = ? AND period_key = ?) OR (period = ? AND period_key = ?))",
			tenant, enum.BudgetPeriodDay, models.DayKey(now), enum.BudgetPeriodMonth, models.MonthKey(now)).
		Find(&rows).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, 0, fmt.Errorf("failed to load budget spend: %w", err)
	}

	var day, month int64
	for _, row := range rows {
		switch row.Period {
		case enum.BudgetPeriodDay:
			day = row.SpentMicros
		case enum.BudgetPeriodMonth:
			month = row.SpentMicros
		}
	}
	return day, month, nil
}
