package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/booksync/internal/config"
)

// Context keys for user data
const (
	ContextKeyUserID   = "auth_user_id"
	ContextKeyAuthType = "auth_type" // "bearer" or "none"
)

// AuthType indicates how the user was authenticated
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBearer AuthType = "bearer"
)

// Middleware handles authentication for HTTP requests.
type Middleware struct {
	verifier     TokenVerifier
	config       config.Auth
	publicPaths  map[string]bool
	publicPrefix []string
}

// NewMiddleware creates a new authentication middleware. verifier may be nil
// in "none" mode.
func NewMiddleware(verifier TokenVerifier, cfg config.Auth) *Middleware {
	return &Middleware{
		verifier: verifier,
		config:   cfg,
		publicPaths: map[string]bool{
			"/health": true,
			"/ping":   true,
		},
		publicPrefix: []string{"/api/public/"},
	}
}

// Handler returns a Gin middleware handler that authenticates requests.
func (m *Middleware) Handler() gin.HandlerFunc {
	if m.config.Mode == config.AuthModeNone || m.config.Mode == "" {
		return m.noAuthHandler()
	}
	return m.bearerHandler()
}

// noAuthHandler injects the default user for all requests when auth is disabled.
func (m *Middleware) noAuthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		setUser(c, m.config.DefaultUserID, AuthTypeNone)
		c.Next()
	}
}

func (m *Middleware) bearerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := m.tryBearerAuth(c); userID != "" {
			setUser(c, userID, AuthTypeBearer)
			c.Next()
			return
		}

		if m.isPublicPath(c.Request.URL.Path) {
			c.Set(ContextKeyAuthType, AuthTypeNone)
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error": "authentication required",
		})
	}
}

// tryBearerAuth returns the user id of a valid bearer token, or "".
func (m *Middleware) tryBearerAuth(c *gin.Context) string {
	if m.verifier == nil {
		return ""
	}
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	// Extract token from "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	userID, err := m.verifier.VerifySubject(strings.TrimSpace(parts[1]))
	if err != nil {
		return ""
	}
	return userID
}

func (m *Middleware) isPublicPath(path string) bool {
	if m.publicPaths[path] {
		return true
	}
	for _, prefix := range m.publicPrefix {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func setUser(c *gin.Context, userID string, authType AuthType) {
	c.Set(ContextKeyAuthType, authType)
	if userID == "" {
		return
	}
	c.Set(ContextKeyUserID, userID)
	c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), userID))
}

// GetUserID retrieves the authenticated user's ID from the context.
// Returns "" if the request is anonymous.
func GetUserID(c *gin.Context) string {
	if id, exists := c.Get(ContextKeyUserID); exists {
		if userID, ok := id.(string); ok {
			return userID
		}
	}
	return ""
}

// GetAuthType retrieves the authentication method used.
func GetAuthType(c *gin.Context) AuthType {
	if t, exists := c.Get(ContextKeyAuthType); exists {
		if authType, ok := t.(AuthType); ok {
			return authType
		}
	}
	return AuthTypeNone
}
