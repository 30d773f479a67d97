package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/ratelimit"
	"github.com/1qh/nexvex/pkg/storage/postgres"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Caller identification modes
const (
	AuthHeader = "header"
	AuthOIDC   = "oidc"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Engine        EngineConfig
	Audit         AuditConfig
	Janitor       JanitorConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// OpsPort serves /healthz, /readyz and /metrics
	OpsPort      int
	MaxBodyBytes int64
}

// Addr returns the API listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// OpsAddr returns the ops listen address
func (s ServerConfig) OpsAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.OpsPort)
}

// StorageConfig selects and configures the engine store
type StorageConfig struct {
	Type        string
	PostgresURL string
	MaxConns    int
	MinConns    int
	ConnTimeout time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	// Migrate applies the schema at startup
	Migrate bool
}

// Connection returns the PostgreSQL pool settings
func (s StorageConfig) Connection() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		URL:         s.PostgresURL,
		MaxConns:    s.MaxConns,
		MinConns:    s.MinConns,
		Timeout:     s.ConnTimeout,
		MaxLifetime: s.MaxLifetime,
		MaxIdleTime: s.MaxIdleTime,
	}
}

// RedisConfig configures the shared rate limit counters. Without a URL the
// counters live in process memory.
type RedisConfig struct {
	URL       string
	Password  string
	DB        int
	KeyPrefix string
	// FailOpen admits operations while Redis is unreachable
	FailOpen bool
}

// Enabled reports whether Redis is configured
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

// AuthConfig selects how callers are identified
type AuthConfig struct {
	Mode          string
	UserHeader    string
	OIDCIssuer    string
	OIDCClientID  string
	OIDCUserClaim string
}

// EngineConfig holds the authorization engine settings
type EngineConfig struct {
	// TablesFile is a YAML file of org-scoped table definitions
	TablesFile       string
	InviteTTL        time.Duration
	MaxBulkItems     int
	PublicCacheSize  int
	PublicCacheTTL   time.Duration
	CascadeBatchSize int
	// Hooks names the built-in hooks run around mutations, in order
	Hooks         []string
	SlowOperation time.Duration
	// HTTP write request limits per authenticated user and per anonymous
	// client; reads are not limited
	UserRequestLimit      ratelimit.Limit
	AnonymousRequestLimit ratelimit.Limit
}

// AuditConfig selects the audit sinks. Events always reach the process log
// sink; a directory and the database add durable copies.
type AuditConfig struct {
	Directory string
	// MaxSizeMB rotates the audit file past this size
	MaxSizeMB int
	MaxFiles  int
	Database  bool
	// Async fans events out without waiting for the sinks
	Async bool
}

// JanitorConfig configures the removal resumption job
type JanitorConfig struct {
	Schedule string
	// StaleAfter skips removals younger than this so a request still
	// running its own cascade is left alone
	StaleAfter time.Duration
}

// ObservabilityConfig holds observability configuration
type ObservabilityConfig struct {
	LogLevel           observability.LogLevel
	MetricsEnabled     bool
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// OTel returns the tracing configuration
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LoadConfig loads configuration from NEXVEX_* environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Redis:         loadRedisConfig(),
		Auth:          loadAuthConfig(),
		Engine:        loadEngineConfig(),
		Audit:         loadAuditConfig(),
		Janitor:       loadJanitorConfig(),
		Observability: loadObservabilityConfig(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("NEXVEX_HOST", "0.0.0.0"),
		Port:            getEnvInt("NEXVEX_PORT", 8080),
		ReadTimeout:     getEnvDuration("NEXVEX_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("NEXVEX_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("NEXVEX_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("NEXVEX_SHUTDOWN_TIMEOUT", 30*time.Second),
		OpsPort:         getEnvInt("NEXVEX_OPS_PORT", 9090),
		MaxBodyBytes:    getEnvInt64("NEXVEX_MAX_BODY_BYTES", 1<<20),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:        getEnv("NEXVEX_STORAGE_TYPE", StorageMemory),
		PostgresURL: getEnv("NEXVEX_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("NEXVEX_POSTGRES_MAX_CONNS", 25),
		MinConns:    getEnvInt("NEXVEX_POSTGRES_MIN_CONNS", 5),
		ConnTimeout: getEnvDuration("NEXVEX_POSTGRES_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("NEXVEX_POSTGRES_MAX_LIFETIME", time.Hour),
		MaxIdleTime: getEnvDuration("NEXVEX_POSTGRES_MAX_IDLE_TIME", 10*time.Minute),
		Migrate:     getEnvBool("NEXVEX_POSTGRES_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:       getEnv("NEXVEX_REDIS_URL", ""),
		Password:  getEnv("NEXVEX_REDIS_PASSWORD", ""),
		DB:        getEnvInt("NEXVEX_REDIS_DB", 0),
		KeyPrefix: getEnv("NEXVEX_REDIS_KEY_PREFIX", "nexvex:ratelimit"),
		FailOpen:  getEnvBool("NEXVEX_RATELIMIT_FAIL_OPEN", false),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Mode:          getEnv("NEXVEX_AUTH_MODE", AuthHeader),
		UserHeader:    getEnv("NEXVEX_AUTH_USER_HEADER", "X-User-ID"),
		OIDCIssuer:    getEnv("NEXVEX_OIDC_ISSUER", ""),
		OIDCClientID:  getEnv("NEXVEX_OIDC_CLIENT_ID", ""),
		OIDCUserClaim: getEnv("NEXVEX_OIDC_USER_CLAIM", ""),
	}
}

func loadEngineConfig() EngineConfig {
	return EngineConfig{
		TablesFile:       getEnv("NEXVEX_TABLES_FILE", ""),
		InviteTTL:        getEnvDuration("NEXVEX_INVITE_TTL", 7*24*time.Hour),
		MaxBulkItems:     getEnvInt("NEXVEX_MAX_BULK_ITEMS", 100),
		PublicCacheSize:  getEnvInt("NEXVEX_PUBLIC_CACHE_SIZE", 1024),
		PublicCacheTTL:   getEnvDuration("NEXVEX_PUBLIC_CACHE_TTL", 5*time.Minute),
		CascadeBatchSize: getEnvInt("NEXVEX_CASCADE_BATCH_SIZE", 500),
		Hooks:            getEnvList("NEXVEX_HOOKS", []string{"sanitize", "audit"}),
		SlowOperation:    getEnvDuration("NEXVEX_SLOW_OPERATION", 500*time.Millisecond),
		UserRequestLimit: ratelimit.Limit{
			Max:    getEnvInt("NEXVEX_HTTP_USER_LIMIT", 1000),
			Window: getEnvDuration("NEXVEX_HTTP_LIMIT_WINDOW", time.Minute),
		},
		AnonymousRequestLimit: ratelimit.Limit{
			Max:    getEnvInt("NEXVEX_HTTP_ANONYMOUS_LIMIT", 100),
			Window: getEnvDuration("NEXVEX_HTTP_LIMIT_WINDOW", time.Minute),
		},
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Directory: getEnv("NEXVEX_AUDIT_DIR", ""),
		MaxSizeMB: getEnvInt("NEXVEX_AUDIT_MAX_SIZE_MB", 100),
		MaxFiles:  getEnvInt("NEXVEX_AUDIT_MAX_FILES", 10),
		Database:  getEnvBool("NEXVEX_AUDIT_DATABASE", false),
		Async:     getEnvBool("NEXVEX_AUDIT_ASYNC", false),
	}
}

func loadJanitorConfig() JanitorConfig {
	return JanitorConfig{
		Schedule:   getEnv("NEXVEX_JANITOR_SCHEDULE", "@every 1m"),
		StaleAfter: getEnvDuration("NEXVEX_JANITOR_STALE_AFTER", 5*time.Minute),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("NEXVEX_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("NEXVEX_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("NEXVEX_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("NEXVEX_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("NEXVEX_OTEL_SERVICE_NAME", "nexvex"),
		OTelServiceVersion: getEnv("NEXVEX_OTEL_SERVICE_VERSION", "dev"),
		OTelInsecure:       getEnvBool("NEXVEX_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("NEXVEX_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.OpsPort < 1 || c.Server.OpsPort > 65535 {
		return fmt.Errorf("invalid ops port: %d", c.Server.OpsPort)
	}
	if c.Server.Port == c.Server.OpsPort {
		return fmt.Errorf("server port and ops port must differ")
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres storage requires NEXVEX_POSTGRES_URL")
		}
		if c.Storage.MaxConns < 1 || c.Storage.MinConns > c.Storage.MaxConns {
			return fmt.Errorf("invalid postgres pool size: min %d, max %d", c.Storage.MinConns, c.Storage.MaxConns)
		}
	default:
		return fmt.Errorf("unknown storage type: %s", c.Storage.Type)
	}

	switch c.Auth.Mode {
	case AuthHeader:
		if c.Auth.UserHeader == "" {
			return fmt.Errorf("header auth requires NEXVEX_AUTH_USER_HEADER")
		}
	case AuthOIDC:
		if c.Auth.OIDCIssuer == "" || c.Auth.OIDCClientID == "" {
			return fmt.Errorf("oidc auth requires NEXVEX_OIDC_ISSUER and NEXVEX_OIDC_CLIENT_ID")
		}
	default:
		return fmt.Errorf("unknown auth mode: %s", c.Auth.Mode)
	}

	if c.Engine.InviteTTL <= 0 {
		return fmt.Errorf("invite TTL must be positive")
	}
	if c.Engine.MaxBulkItems < 1 {
		return fmt.Errorf("max bulk items must be positive")
	}
	if c.Audit.Database && c.Storage.Type != StoragePostgres {
		return fmt.Errorf("database audit sink requires postgres storage")
	}
	if c.Observability.OTelSampleRatio < 0 || c.Observability.OTelSampleRatio > 1 {
		return fmt.Errorf("OTel sample ratio must be between 0 and 1")
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return b
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value; an explicitly empty entry
// list ("-") disables the defaults
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if value == "-" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
