package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/customeros/mailtriage/internal/utils"
)

// CustomContextMiddleware stamps the app source and the configured tenant on the request context
func CustomContextMiddleware(appSource, tenant string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := utils.WithCustomContextFromGinRequest(c, appSource, tenant)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
