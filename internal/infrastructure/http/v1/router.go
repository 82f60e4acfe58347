// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"crudkit/internal/app"
	"crudkit/internal/domain/catalogs/product"
	"crudkit/internal/infrastructure/http/v1/dto"
	"crudkit/internal/infrastructure/http/v1/handlers"
	"crudkit/internal/infrastructure/http/v1/middleware"
	"crudkit/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Logger for request logging
	Logger *logger.Logger

	// DB is checked by /health/ready; nil for in-process storage
	DB handlers.Pinger

	// Products is the wired product catalog
	Products *app.Products

	// ImportDelimiter is the default CSV delimiter for uploads
	ImportDelimiter rune

	// MaxUploadBytes caps import uploads; 0 means unlimited
	MaxUploadBytes int64
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())

	healthHandler := handlers.NewHealthHandler(cfg.DB)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}

	v1 := router.Group("/api/v1")
	registerProductRoutes(v1, cfg)

	return router
}

// registerProductRoutes registers the product catalog endpoints.
func registerProductRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	if cfg.Products == nil {
		return
	}

	handler := handlers.NewResourceHandler(handlers.NewBaseHandler(), handlers.ResourceHandlerConfig[*product.Product]{
		Service:  cfg.Products.Service.CrudService,
		Importer: cfg.Products.Importer,
		ParseID: func(s string) (any, error) {
			return uuid.Parse(s)
		},
		MapToDTO: func(p *product.Product) any {
			return dto.FromProduct(p)
		},
		Delimiter:      cfg.ImportDelimiter,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	group := rg.Group("/products")
	group.Use(middleware.UnitOfWork(cfg.Products.Service.Scope()))
	RegisterResourceRoutes(group, handler)
}
