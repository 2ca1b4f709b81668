package auth

import (
	"context"
	"strings"
)

type contextKey struct{}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserIDFromContext returns the user id stored by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKey{}).(string)
	if !ok || strings.TrimSpace(userID) == "" {
		return "", false
	}
	return userID, true
}

// ContextResolver resolves the ambient user from a context.Context.
type ContextResolver struct {
	// Fallback is used when the context carries no user; empty means none.
	Fallback string
}

func (r ContextResolver) ResolveUserID(ctx context.Context) (string, bool) {
	if userID, ok := UserIDFromContext(ctx); ok {
		return userID, true
	}
	if r.Fallback != "" {
		return r.Fallback, true
	}
	return "", false
}
