package api

import (
	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailtriage/api/handlers"
	"github.com/customeros/mailtriage/api/middleware"
	"github.com/customeros/mailtriage/interfaces"
	"github.com/customeros/mailtriage/internal/tracing"
)

const AppSource = "mailtriage"

type RouteConfig struct {
	APIKey string
	Tenant string
}

// RegisterRoutes sets up the operator endpoints
func RegisterRoutes(r *gin.Engine, scheduler interfaces.Scheduler, classifier interfaces.ClassifierService, cfg RouteConfig) {
	if scheduler == nil || classifier == nil {
		panic("scheduler and classifier cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	apiHandlers := handlers.InitHandlers(scheduler, classifier)

	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", middleware.CustomContextMiddleware(AppSource, cfg.Tenant), apiHandlers.Status())

	api := r.Group("/v1")
	api.Use(middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  middleware.APIKeyHeader,
		ValidAPIKey: cfg.APIKey,
	}))
	api.Use(middleware.CustomContextMiddleware(AppSource, cfg.Tenant))
	api.Use(middleware.TracingMiddleware())
	{
		api.POST("/sync/trigger", apiHandlers.TriggerSync())
	}
}
