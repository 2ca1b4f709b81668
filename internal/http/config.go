package http

import (
	"github.com/mrlokans/booksync/internal/auth"
)

// RouterConfig contains all dependencies needed to create the HTTP router.
type RouterConfig struct {
	Books BookService
	Sync  SyncService

	// Optional
	Tasks TaskQueue
	Audit AuditLog

	// Nil means every request is anonymous.
	AuthMiddleware *auth.Middleware

	// Named dependency probes reported by /health.
	HealthChecks map[string]HealthCheck

	Version string
}
