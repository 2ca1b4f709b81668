package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booksync/internal/auth"
)

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(auth.SecurityHeadersMiddleware())

	if cfg.AuthMiddleware != nil {
		router.Use(cfg.AuthMiddleware.Handler())
	}

	health := NewHealthController(cfg.HealthChecks, cfg.Version)
	books := NewBooksController(cfg.Books, cfg.Tasks)
	syncController := NewSyncController(cfg.Sync, cfg.Tasks)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// Books
	router.GET("/api/books", books.GetBooks)
	router.GET("/api/books/:id", books.GetBook)
	router.POST("/api/books/:id/refresh", books.RefreshBook)
	router.DELETE("/api/books/:id", books.DeleteBook)
	router.PUT("/api/books/:id/cache", books.CacheBook)
	router.POST("/api/books/:id/sync", books.SyncBook)
	router.GET("/api/books/:id/access", books.CheckAccess)

	// Published books, readable without authentication
	router.GET("/api/public/:link", books.GetPublicBook)
	router.GET("/api/search/public", books.SearchPublicBooks)

	// Sync status and batch operations
	router.GET("/api/sync/state", syncController.GetState)
	router.GET("/api/sync/status", syncController.GetStatus)
	router.GET("/api/sync/events", syncController.Events)
	router.POST("/api/sync/all", syncController.SyncAll)
	router.POST("/api/sync/load-all", syncController.LoadAll)
	router.POST("/api/sync/reset", syncController.Reset)
	router.POST("/api/sync/background", syncController.Background)
	router.POST("/api/sync/network", syncController.SetNetwork)
	router.GET("/api/sync/failed-migrations", syncController.GetFailedMigrations)
	router.DELETE("/api/sync/failed-migrations", syncController.ClearFailedMigrations)

	if cfg.Tasks != nil {
		tasksController := NewTasksController(cfg.Tasks)
		router.GET("/api/tasks/:id", tasksController.GetTaskStatus)
	}

	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit)
		router.GET("/api/audit", auditController.GetAuditEvents)
	}

	return router
}
