package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/1qh/nexvex/pkg/api"
	"github.com/1qh/nexvex/pkg/bootstrap"
	"github.com/1qh/nexvex/pkg/config"
	"github.com/1qh/nexvex/pkg/middleware"
	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/storage/postgres"
)

const dbStatsInterval = 15 * time.Second

func main() {
	tablesFile := flag.String("tables", "", "YAML file of table definitions (overrides NEXVEX_TABLES_FILE)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *tablesFile != "" {
		cfg.Engine.TablesFile = *tablesFile
	}

	if err := run(cfg); err != nil {
		log.Fatalf("nexvex: %v", err)
	}
}

func run(cfg *config.Config) error {
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)

	otel, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}
	shutdown.Register("otel", otel.Shutdown)

	var registry *prometheus.Registry
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	tables, err := bootstrap.Tables(cfg)
	if err != nil {
		return err
	}
	engine, err := bootstrap.New(ctx, cfg, tables, logger, metrics)
	if err != nil {
		return err
	}
	shutdown.Register("engine", func(context.Context) error { return engine.Close() })

	authenticator, err := newAuthenticator(ctx, cfg.Auth)
	if err != nil {
		_ = shutdown.Shutdown(context.Background())
		return err
	}

	server := api.NewServer(engine.Orgs, engine.Factory,
		api.WithAuthenticator(authenticator),
		api.WithRequestLimiter(engine.Limiter, middleware.RateLimitConfig{
			Authenticated: cfg.Engine.UserRequestLimit,
			Anonymous:     cfg.Engine.AnonymousRequestLimit,
		}),
		api.WithLogger(logger),
		api.WithMetrics(metrics),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		api.WithAuditSearcher(engine.AuditSearch),
	)

	checker := observability.NewHealthChecker(cfg.Observability.OTelServiceVersion).
		AddCheck("storage", engine.Ping, false)
	if engine.Redis != nil {
		checker.AddRedis(engine.Redis)
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	opsServer := &http.Server{
		Addr:              cfg.Server.OpsAddr(),
		Handler:           api.NewOpsRouter(checker, registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	shutdown.RegisterServer("ops", opsServer)
	shutdown.RegisterServer("api", apiServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(apiServer, logger.WithField("listener", "api")) })
	g.Go(func() error { return serve(opsServer, logger.WithField("listener", "ops")) })
	if engine.DB != nil && metrics != nil {
		g.Go(func() error {
			ticker := time.NewTicker(dbStatsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					stats := postgres.Stats(engine.DB)
					metrics.UpdateDBStats(stats.InUse, stats.Idle)
				}
			}
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdown.Timeout())
		defer cancel()
		return shutdown.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func serve(server *http.Server, logger *observability.Logger) error {
	logger.Infof("Listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve on %s: %w", server.Addr, err)
	}
	return nil
}

func newAuthenticator(ctx context.Context, cfg config.AuthConfig) (middleware.Authenticator, error) {
	switch cfg.Mode {
	case config.AuthOIDC:
		var opts []middleware.OIDCOption
		if cfg.OIDCUserClaim != "" {
			opts = append(opts, middleware.WithUserClaim(cfg.OIDCUserClaim))
		}
		return middleware.NewOIDCAuthenticator(ctx, cfg.OIDCIssuer, cfg.OIDCClientID, opts...)
	case config.AuthHeader:
		return middleware.NewHeaderAuthenticator(cfg.UserHeader), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}
