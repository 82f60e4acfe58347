package middleware

import (
	"github.com/gin-gonic/gin"

	"crudkit/internal/core/uow"
)

// UnitOfWork clears scope after every request so entities loaded by one
// request never leak into the next.
func UnitOfWork(scope uow.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer scope.Clear()
		c.Next()
	}
}
