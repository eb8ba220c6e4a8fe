package routes

import (
	coreport "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/port/core"
	"github.com/amirhossein-jamali/trade-lock-manager/internal/infrastructure/adapter/api/handler"
	"github.com/amirhossein-jamali/trade-lock-manager/internal/infrastructure/adapter/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all the routes for the API
func SetupRoutes(router *gin.Engine, lockHandler *handler.LockHandler) {
	// Lock routes
	lockRoutes := router.Group("/locks")
	{
		// POST /locks
		lockRoutes.POST("", lockHandler.AcquireLock)

		// GET /locks
		lockRoutes.GET("", lockHandler.GetActiveLocks)

		// POST /locks/:lockId/release
		lockRoutes.POST("/:lockId/release", lockHandler.ReleaseLock)
	}

	// Resource routes
	resourceRoutes := router.Group("/resources")
	{
		// GET /resources/:resourceId/status
		resourceRoutes.GET("/:resourceId/status", lockHandler.GetResourceStatus)

		// POST /resources/:resourceId/release
		resourceRoutes.POST("/:resourceId/release", lockHandler.ReleaseByResource)
	}

	// Queue routes
	queueRoutes := router.Group("/queue")
	{
		// GET /queue/position?idempotencyKey=...
		queueRoutes.GET("/position", lockHandler.GetQueuePosition)
	}

	// Admin routes
	adminRoutes := router.Group("/admin")
	{
		// POST /admin/owners/:ownerId/force-release
		adminRoutes.POST("/owners/:ownerId/force-release", lockHandler.ForceReleaseOwnerLocks)
	}
}

// SetupMiddlewares configures global middlewares for the API
func SetupMiddlewares(router *gin.Engine, logger coreport.Logger) {
	// Apply middlewares in the correct order
	router.Use(middleware.ErrorHandler(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())
}
