package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	mterrors "github.com/customeros/mailtriage/internal/errors"
	"github.com/customeros/mailtriage/internal/tracing"
	"github.com/customeros/mailtriage/internal/utils"
)

// TriggerSync runs one cycle now. The scheduler detaches the cycle from the
// request, so a dropped connection does not interrupt a batch.
func (h *APIHandlers) TriggerSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(c.Request.Context(), "TriggerSync", c.Request.Header)
		defer span.Finish()
		tracing.TagComponentRest(span)
		tracing.TagTenant(span, utils.GetTenantFromContext(ctx))

		report, err := h.scheduler.TriggerNow(ctx)
		if errors.Is(err, mterrors.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if report == nil {
			tracing.TraceErr(span, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": errorText(err)})
			return
		}
		if err != nil {
			tracing.TraceErr(span, err)
		}

		c.JSON(http.StatusAccepted, report)
	}
}

func errorText(err error) string {
	if err == nil {
		return "cycle produced no report"
	}
	return err.Error()
}
