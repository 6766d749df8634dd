package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/atymri/Promptino/internal/infra/logger"
)

// Recovery converts a panic into a 500 with a generic message and the trace id.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			appLogger.WithContext(c.Request.Context(), log).Error("panic recovered",
				zap.Any("panic", recovered),
				zap.String("trace_id", GetTraceID(c)),
				zap.String("path", c.Request.URL.Path),
				zap.ByteString("stack", debug.Stack()),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "an unexpected error occurred"))
		}()

		c.Next()
	}
}
