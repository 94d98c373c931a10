package middlewares

import (
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"civicportal/response"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into the standard 500 body. It must run inside
// RequestLogger so the access line carries the failure and its request id.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, rec any) {
		logger.ErrorContext(c.Request.Context(), "panic recovered",
			slog.Any("error", rec),
			slog.String("stack", string(debug.Stack())),
			slog.String("request_id", RequestIDFrom(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
		)
		response.Error(c, fmt.Errorf("panic: %v", rec))
	})
}
