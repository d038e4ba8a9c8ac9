package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailtriage/dto"
	"github.com/customeros/mailtriage/internal/tracing"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

type statusResponse struct {
	Scheduler   dto.SchedulerStatus `json:"scheduler"`
	Budget      *dto.BudgetStatus   `json:"budget,omitempty"`
	BudgetError string              `json:"budgetError,omitempty"`
}

// Status returns the scheduler state, the last cycle report and the remaining budget
func (h *APIHandlers) Status() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "Status", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)

		response := statusResponse{Scheduler: h.scheduler.Status()}
		budget, err := h.classifier.BudgetStatus(ctx)
		if err != nil {
			tracing.TraceErr(span, err)
			response.BudgetError = err.Error()
		}
		response.Budget = budget

		c.JSON(http.StatusOK, response)
	}
}
