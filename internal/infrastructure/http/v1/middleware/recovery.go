// Package middleware provides HTTP middleware components.
package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"crudkit/internal/core/apperror"
	"crudkit/pkg/logger"
)

// Recovery turns a handler panic into an INTERNAL_ERROR carrying the request
// id. The stack goes to the log only; ErrorHandler renders the response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			requestID := c.GetString(ContextRequestID)
			logger.Error(c.Request.Context(), "handler panicked",
				"method", c.Request.Method,
				"route", c.FullPath(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)

			appErr := apperror.NewInternal(fmt.Errorf("recovered: %v", rec))
			if requestID != "" {
				appErr = appErr.WithDetail("request_id", requestID)
			}
			_ = c.Error(appErr)
			c.Abort()
		}()
		c.Next()
	}
}
