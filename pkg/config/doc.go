// Package config loads nexvex configuration from environment variables and
// table definitions from YAML.
//
// # Overview
//
// Every setting has a default, so an empty environment runs an in-memory
// server identifying callers by the X-User-ID header.
//
// # Configuration Structure
//
// Server settings:
//
//	NEXVEX_HOST="0.0.0.0"
//	NEXVEX_PORT="8080"
//	NEXVEX_OPS_PORT="9090"        # /healthz, /readyz, /metrics
//	NEXVEX_SHUTDOWN_TIMEOUT="30s"
//
// Storage settings:
//
//	NEXVEX_STORAGE_TYPE="postgres"  # memory, postgres
//	NEXVEX_POSTGRES_URL="postgres://nexvex@localhost/nexvex?sslmode=disable"
//	NEXVEX_POSTGRES_MAX_CONNS="25"
//	NEXVEX_POSTGRES_MIGRATE="true"
//
// Rate limit counters:
//
//	NEXVEX_REDIS_URL="redis://localhost:6379/0"  # unset keeps counters in memory
//	NEXVEX_RATELIMIT_FAIL_OPEN="false"
//	NEXVEX_HTTP_USER_LIMIT="1000"
//	NEXVEX_HTTP_ANONYMOUS_LIMIT="100"
//
// Caller identification:
//
//	NEXVEX_AUTH_MODE="oidc"  # header, oidc
//	NEXVEX_OIDC_ISSUER="https://accounts.example.com"
//	NEXVEX_OIDC_CLIENT_ID="nexvex"
//
// Engine settings:
//
//	NEXVEX_TABLES_FILE="/etc/nexvex/tables.yaml"
//	NEXVEX_INVITE_TTL="168h"
//	NEXVEX_MAX_BULK_ITEMS="100"
//	NEXVEX_HOOKS="sanitize,audit,slow_operation"
//	NEXVEX_AUDIT_DIR="/var/log/nexvex/audit"
//
// Observability settings:
//
//	NEXVEX_LOG_LEVEL="info"  # debug, info, warn, error
//	NEXVEX_OTEL_ENABLED="true"
//	NEXVEX_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	tables, err := config.LoadTables(cfg.Engine.TablesFile)
//	for _, t := range tables {
//		factory.Build(t.Name, t.Options)
//	}
//
// # Related Packages
//
//   - pkg/crud: table options decoded by LoadTables
//   - pkg/storage/postgres: connection pool settings
//   - pkg/observability: log level and tracing settings
package config
