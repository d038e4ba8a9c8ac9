package utils

import (
	"context"

	"github.com/gin-gonic/gin"

	mterrors "github.com/customeros/mailtriage/internal/errors"
)

type CustomContext struct {
	AppSource string
	Tenant    string
	CycleId   string
}

type customContextKeyType string

const customContextKey customContextKeyType = "CUSTOM_CONTEXT"

func WithCustomContext(ctx context.Context, customContext *CustomContext) context.Context {
	return context.WithValue(ctx, customContextKey, customContext)
}

func WithCustomContextFromGinRequest(c *gin.Context, appSource, tenant string) context.Context {
	customContext := &CustomContext{
		AppSource: appSource,
		Tenant:    tenant,
	}
	return WithCustomContext(c.Request.Context(), customContext)
}

func GetContext(ctx context.Context) *CustomContext {
	customContext, ok := ctx.Value(customContextKey).(*CustomContext)
	if !ok {
		return new(CustomContext)
	}
	return customContext
}

func GetAppSourceFromContext(ctx context.Context) string {
	return GetContext(ctx).AppSource
}

func GetTenantFromContext(ctx context.Context) string {
	return GetContext(ctx).Tenant
}

func GetCycleIdFromContext(ctx context.Context) string {
	return GetContext(ctx).CycleId
}

// SetTenantInContext returns a derived context; the parent's value is not mutated
func SetTenantInContext(ctx context.Context, tenant string) context.Context {
	customContext := *GetContext(ctx)
	customContext.Tenant = tenant
	return WithCustomContext(ctx, &customContext)
}

func SetCycleIdInContext(ctx context.Context, cycleId string) context.Context {
	customContext := *GetContext(ctx)
	customContext.CycleId = cycleId
	return WithCustomContext(ctx, &customContext)
}

func ValidateTenant(ctx context.Context) error {
	if GetTenantFromContext(ctx) == "" {
		return mterrors.ErrTenantMissing
	}
	return nil
}
