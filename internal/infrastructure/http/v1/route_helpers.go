package v1

import (
	"github.com/gin-gonic/gin"
)

// ResourceRouteHandler defines the interface for resource handlers.
type ResourceRouteHandler interface {
	List(c *gin.Context)
	Count(c *gin.Context)
	Pages(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
}

// ImportRouteHandler is an optional interface for resources that support bulk import.
type ImportRouteHandler interface {
	Import(c *gin.Context)
}

// RegisterResourceRoutes registers the standard CRUD routes for a resource.
// If the handler also implements ImportRouteHandler, POST /import is registered too.
//
// Usage:
//
//	handler := handlers.NewResourceHandler(base, handlers.ResourceHandlerConfig[*product.Product]{...})
//	RegisterResourceRoutes(api.Group("/products"), handler)
func RegisterResourceRoutes(group *gin.RouterGroup, handler ResourceRouteHandler) {
	group.GET("", handler.List)
	group.GET("/count", handler.Count)
	group.GET("/pages", handler.Pages)
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	group.PUT("/:id", handler.Update)
	group.DELETE("/:id", handler.Delete)

	if importer, ok := handler.(ImportRouteHandler); ok {
		group.POST("/import", importer.Import)
	}
}
