// Package middleware provides HTTP middleware for authentication, request
// rate limiting and organization context.
//
// # Middleware Components
//
// AuthMiddleware: identifies the caller with an Authenticator
//
//	auth := middleware.NewHeaderAuthenticator("X-User-ID")     // behind a trusted proxy
//	auth, err := middleware.NewOIDCAuthenticator(ctx, issuer, clientID) // bearer ID tokens
//	router.Use(middleware.NewAuthMiddleware(auth, true).Handler)
//
// With optional set, anonymous requests reach the handlers; engine
// operations that need an identity fail with NOT_AUTHENTICATED.
//
// RateLimitMiddleware: per-caller request quota on any ratelimit.Limiter
//
//	limiter := ratelimit.NewRedisLimiter(redisClient)
//	router.Use(middleware.NewRateLimitMiddleware(limiter, middleware.DefaultRateLimitConfig(), metrics).Handler)
//
// OrgContextMiddleware: copies the org_id route variable into the context
// for logging.
//
// # Rate Limiting
//
// Authenticated: 1000 req/min per user
// Anonymous: 100 req/min per client address
//
// Per-table write limits are enforced separately by pkg/crud.
//
// # Related Packages
//
//   - pkg/ratelimit: fixed window limiters
//   - pkg/httputil: error responses
package middleware
