package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/1qh/nexvex/pkg/apperr"
	"github.com/1qh/nexvex/pkg/contextkeys"
	"github.com/1qh/nexvex/pkg/httputil"
	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/ratelimit"
)

// RateLimitConfig defines the per-caller request quota
type RateLimitConfig struct {
	// Authenticated applies per user id
	Authenticated ratelimit.Limit
	// Anonymous applies per client address
	Anonymous ratelimit.Limit
}

// DefaultRateLimitConfig returns default rate limit settings
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Authenticated: ratelimit.Limit{Max: 1000, Window: time.Minute},
		Anonymous:     ratelimit.Limit{Max: 100, Window: time.Minute},
	}
}

// RateLimitMiddleware throttles the mutating requests of one caller. Reads
// are never limited. It runs after authentication and sits in front of the
// finer per-table write limits.
type RateLimitMiddleware struct {
	limiter ratelimit.Limiter
	config  RateLimitConfig
	metrics *observability.Metrics
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(limiter ratelimit.Limiter, config RateLimitConfig, metrics *observability.Metrics) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		config:  config,
		metrics: metrics,
	}
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isRead(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		var (
			key   string
			limit ratelimit.Limit
		)
		if userID := contextkeys.GetUserID(r.Context()); userID != "" {
			key = ratelimit.Key("user:"+userID, "http", "request")
			limit = m.config.Authenticated
		} else {
			key = ratelimit.Key("ip:"+getClientIP(r), "http", "request")
			limit = m.config.Anonymous
		}
		if !limit.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		res, err := m.limiter.Allow(r.Context(), key, limit)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Warn("request rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}
		if !res.Allowed {
			m.metrics.RecordRateLimitRejection("http", "request")
			httputil.WriteAppError(w, r, apperr.RateLimited(res.RetryAfter, res.Limit, res.Remaining))
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
		next.ServeHTTP(w, r)
	})
}

func isRead(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (if behind proxy); the first hop is the client
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}

	// Check X-Real-IP header
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// Use remote address
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
