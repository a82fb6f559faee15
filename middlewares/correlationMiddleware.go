package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
)

const HeaderCorrelationId = "X-Correlation-Id"

func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := strings.TrimSpace(c.Request.Header.Get(HeaderCorrelationId))
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		c.Writer.Header().Set(HeaderCorrelationId, correlationId)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), correlationId))
		c.Next()
	}
}
