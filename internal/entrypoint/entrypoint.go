package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booksync/internal/auth"
	"github.com/mrlokans/booksync/internal/booksync"
	"github.com/mrlokans/booksync/internal/config"
	http_controllers "github.com/mrlokans/booksync/internal/http"
	"github.com/mrlokans/booksync/internal/scheduler"
	"github.com/mrlokans/booksync/internal/tasks"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := shutdownTimeout(cfg)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		log.Printf("Starting server at %s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// kill -2 is syscall.SIGINT, plain kill sends SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Stop accepting requests first so open event streams end before the
	// coordinator goes away.
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server Shutdown: %v", err)
	}

	if onShutdown != nil {
		onShutdown(ctx)
	}

	log.Println("Server exiting")
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting booksync v%s", version)

	app, err := Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	authMiddleware, err := newAuthMiddleware(cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to initialize authentication: %v", err)
	}

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskClient, err = tasks.NewClient(cfg.Database.Path, tasks.Config{
			Workers:         cfg.Tasks.Workers,
			ReleaseAfter:    cfg.Tasks.ReleaseAfter,
			CleanupInterval: cfg.Tasks.CleanupInterval,
		})
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		taskClient.RegisterSync(app.Coordinator, app.Audit)

		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	var syncScheduler *scheduler.BackgroundSyncScheduler
	if cfg.Sync.Enabled {
		var queue scheduler.Enqueuer
		if taskClient != nil {
			queue = taskClient
		}
		syncScheduler = scheduler.NewBackgroundSyncScheduler(app.Coordinator, queue, scheduler.Options{
			Schedule:      cfg.Sync.Schedule,
			UserID:        cfg.Sync.BackgroundUserID,
			RetentionDays: cfg.Audit.RetentionDays,
		})
		if err := syncScheduler.Start(context.Background()); err != nil {
			log.Fatalf("Failed to start background sync: %v", err)
		}
	}

	if cfg.Sync.StartupSync {
		go runStartupSync(app.Coordinator, cfg.Sync.BackgroundUserID)
	}

	routerCfg := http_controllers.RouterConfig{
		Books:          app.Coordinator,
		Sync:           app.Coordinator,
		Audit:          app.Audit,
		AuthMiddleware: authMiddleware,
		HealthChecks:   app.HealthChecks,
		Version:        version,
	}
	if taskClient != nil {
		routerCfg.Tasks = taskClient
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if syncScheduler != nil {
			syncScheduler.Stop()
		}
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}

func newAuthMiddleware(cfg config.Auth) (*auth.Middleware, error) {
	switch cfg.Mode {
	case config.AuthModeNone, "":
		log.Printf("Authentication mode: none (requests act as %q)", cfg.DefaultUserID)
		return auth.NewMiddleware(nil, cfg), nil
	case config.AuthModeJWT:
		verifier, err := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience, cfg.JWTIssuer)
		if err != nil {
			return nil, err
		}
		log.Printf("Authentication mode: jwt bearer tokens")
		return auth.NewMiddleware(verifier, cfg), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

func runStartupSync(coordinator *booksync.Coordinator, userID string) {
	if userID == "" {
		log.Printf("[SYNC] Startup sync: no user configured, skipping")
		return
	}
	result, err := coordinator.PerformStartupSync(booksync.WithUser(context.Background(), userID))
	if err != nil {
		log.Printf("[SYNC] Startup sync failed: %v", err)
		return
	}
	log.Printf("[SYNC] Startup sync (%s) done, %d book(s) updated from remote", result.Mode, result.Updated)
}
