package repository

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/models"
	"github.com/customeros/mailtriage/internal/tracing"
)

type addressRepository struct {
	db *gorm.DB
}

func NewAddressRepository(db *gorm.DB) interfaces.AddressRepository {
	return &addressRepository{db: db}
}

// GetOrCreate inserts the address if absent and returns the stored row.
// Existing rows are never modified.
func (r *addressRepository) GetOrCreate(ctx context.Context, tenant, emailAddress, displayName string) (*models.Address, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "addressRepository.GetOrCreate")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if tenant == "" {
		return nil, ErrInvalidInput
	}

	candidate := &models.Address{
		Tenant:       tenant,
		EmailAddress: emailAddress,
		DisplayName:  displayName,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(candidate).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to insert address: %w", err)
	}

	var address models.Address
	if err := r.db.WithContext(ctx).
		Where("tenant = ? AND email_address = ? AND display_name = ?", tenant, emailAddress, displayName).
		First(&address).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to load address: %w", err)
	}

	return &address, nil
}
