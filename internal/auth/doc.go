// Package auth resolves the user a request or command acts for.
//
// It supports two authentication modes:
//   - "none": No authentication required (default), all requests use AUTH_DEFAULT_USER_ID
//   - "jwt": HS256 bearer tokens (Supabase style); the user id is the "sub" claim
//
// # Configuration
//
//	AUTH_MODE=jwt
//	AUTH_JWT_SECRET=<project jwt secret>
//	AUTH_JWT_AUDIENCE=authenticated
//	AUTH_JWT_ISSUER=                       # Optional
//
// # Usage
//
// The middleware stores the user id both in the gin context and in the
// request's context.Context, so code below the HTTP layer resolves it with
// ContextResolver:
//
//	router.Use(auth.NewMiddleware(verifier, cfg.Auth).Handler())
//	userID := auth.GetUserID(c)
//
//	ctx := auth.WithUserID(context.Background(), "user-1") // CLI
//	userID, ok := auth.ContextResolver{}.ResolveUserID(ctx)
package auth
