package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/1qh/nexvex/pkg/audit"
	"github.com/1qh/nexvex/pkg/crud"
	"github.com/1qh/nexvex/pkg/httputil"
	"github.com/1qh/nexvex/pkg/middleware"
	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/orgs"
	"github.com/1qh/nexvex/pkg/ratelimit"
)

const defaultMaxBodyBytes = 1 << 20

// TableSource looks up the generated handlers of a table. *crud.Factory
// implements it.
type TableSource interface {
	Handlers(table string) (*crud.Handlers, bool)
}

// Server is the HTTP surface of the engine
type Server struct {
	router  *mux.Router
	orgs    *OrgHandlers
	tables  *TableHandlers
	audit   *AuditHandlers
	logger  *observability.Logger
	metrics *observability.Metrics

	authenticator middleware.Authenticator
	limiter       ratelimit.Limiter
	limits        middleware.RateLimitConfig
	maxBodyBytes  int64
}

// Option configures a Server
type Option func(*Server)

// WithAuthenticator sets how callers are identified. Without one every
// request is anonymous.
func WithAuthenticator(a middleware.Authenticator) Option {
	return func(s *Server) {
		s.authenticator = a
	}
}

// WithRequestLimiter throttles the mutating requests of each caller
func WithRequestLimiter(limiter ratelimit.Limiter, limits middleware.RateLimitConfig) Option {
	return func(s *Server) {
		s.limiter = limiter
		s.limits = limits
	}
}

// WithAuditSearcher serves GET /orgs/{org_id}/audit from searcher
func WithAuditSearcher(searcher audit.Searcher) Option {
	return func(s *Server) {
		if searcher != nil {
			s.audit = NewAuditHandlers(s.orgs.orgService, searcher)
		}
	}
}

// WithLogger sets the request logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records per-route HTTP metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithMaxBodyBytes caps request bodies
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// NewServer creates the API server over the organization service and the
// org-scoped tables
func NewServer(orgService orgs.Service, tables TableSource, opts ...Option) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		orgs:         NewOrgHandlers(orgService),
		tables:       NewTableHandlers(tables),
		logger:       observability.Nop(),
		limits:       middleware.DefaultRateLimitConfig(),
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteAppError(w, r, notFoundRoute)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteAppError(w, r, notFoundRoute)
	})

	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	if s.authenticator != nil {
		s.router.Use(middleware.NewAuthMiddleware(s.authenticator, true).Handler)
	}
	if s.limiter != nil {
		s.router.Use(middleware.NewRateLimitMiddleware(s.limiter, s.limits, s.metrics).Handler)
	}
	s.router.Use(middleware.OrgContextMiddleware)

	s.orgs.RegisterRoutes(s.router)
	s.tables.RegisterRoutes(s.router)
	if s.audit != nil {
		s.audit.RegisterRoutes(s.router)
	}
}

// Router returns the route table
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the router wrapped in request-scoped middleware and
// OpenTelemetry instrumentation
func (s *Server) Handler() http.Handler {
	chain := httputil.Chain(
		httputil.RequestIDMiddleware(s.logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(s.maxBodyBytes),
	)
	return otelhttp.NewHandler(chain(s.router), "nexvex")
}
