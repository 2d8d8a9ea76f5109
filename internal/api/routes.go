// Package api contains the API routes for the Reference Data API
package api

import (
	"strconv"
	"time"

	"github.com/finref/refdataapi/internal/api/handlers"
	"github.com/finref/refdataapi/internal/api/middleware"
	"github.com/finref/refdataapi/internal/config"
	"github.com/finref/refdataapi/internal/service"
	"github.com/finref/refdataapi/pkg/utils/response"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SetupRoutes configures the routes for the API
func SetupRoutes(e *echo.Echo, cfg *config.Config, db *gorm.DB, redisClient *redis.Client) {

	// Create a group for all API routes
	api := e.Group("/api")

	// Index route (unprotected)
	api.GET("/", indexRoute(cfg))

	cacheTTL := 60 * time.Minute
	if mins, err := strconv.Atoi(cfg.RegistryCacheTTLMins); err == nil && mins > 0 {
		cacheTTL = time.Duration(mins) * time.Minute
	}
	registryService := service.NewRegistryService(db, redisClient, cfg.RegistryBaseURL, cacheTTL)

	// Instrument routes (protected)
	instrumentHandler := handlers.NewInstrumentHandler(db)
	instrumentGroup := api.Group("/instruments")
	instrumentGroup.Use(middleware.AuthMiddleware(cfg))
	instrumentGroup.POST("/reconcile", instrumentHandler.ReconcileBatch)
	instrumentGroup.GET("/query", instrumentHandler.QueryInstruments)
	instrumentGroup.GET("/isin/:isin", instrumentHandler.GetInstrumentByISIN)
	instrumentGroup.GET("/:id/mappings", instrumentHandler.GetInstrumentMappings)

	// Transparency routes (protected)
	transparencyHandler := handlers.NewTransparencyHandler(db)
	instrumentGroup.GET("/:id/transparency", transparencyHandler.GetCalculations)
	transparencyGroup := api.Group("/transparency")
	transparencyGroup.Use(middleware.AuthMiddleware(cfg))
	transparencyGroup.POST("", transparencyHandler.AttachCalculation)

	// Entity routes (protected)
	entityHandler := handlers.NewEntityHandler(db, registryService)
	entityGroup := api.Group("/entities")
	entityGroup.Use(middleware.AuthMiddleware(cfg))
	entityGroup.GET("/:lei", entityHandler.GetEntity)
	entityGroup.POST("/:lei/refresh", entityHandler.RefreshEntity)
	entityGroup.GET("/:lei/hierarchy", entityHandler.GetHierarchy)
	entityGroup.GET("/:lei/exceptions", entityHandler.GetExceptions)
	entityGroup.POST("/relationships", entityHandler.SetRelationship)
	entityGroup.POST("/exceptions", entityHandler.SetException)
}

// indexRoute returns the API index
func indexRoute(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		return response.SuccessResponse(c, map[string]string{
			"name":    cfg.APIName,
			"version": cfg.APIVersion,
		})
	}
}
