package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1qh/nexvex/pkg/config"
	"github.com/1qh/nexvex/pkg/contextkeys"
	"github.com/1qh/nexvex/pkg/crud"
	"github.com/1qh/nexvex/pkg/observability"
	"github.com/1qh/nexvex/pkg/orgs"
	"github.com/1qh/nexvex/pkg/ratelimit"
)

func testConfig() *config.Config {
	return &config.Config{
		Storage: config.StorageConfig{Type: config.StorageMemory},
		Engine: config.EngineConfig{
			InviteTTL:        time.Hour,
			MaxBulkItems:     10,
			PublicCacheSize:  16,
			PublicCacheTTL:   time.Minute,
			CascadeBatchSize: 50,
			Hooks:            []string{"sanitize", "audit"},
			SlowOperation:    time.Second,
		},
	}
}

func testTables() []config.Table {
	return []config.Table{
		{Name: "projects", Options: crud.Options{ACL: true, Cascade: []crud.Child{{ForeignKey: "projectId", Table: "tasks"}}}},
		{Name: "tasks", Options: crud.Options{ACLFrom: &crud.ACLFrom{Field: "projectId", Table: "projects"}}},
	}
}

func TestNewMemoryEngine(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Directory = t.TempDir()

	e, err := New(context.Background(), cfg, testTables(), observability.Nop(),
		observability.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)

	assert.Nil(t, e.DB)
	assert.Nil(t, e.Redis)
	assert.IsType(t, &ratelimit.MemoryLimiter{}, e.Limiter)
	assert.ElementsMatch(t, []string{"projects", "tasks"}, e.Factory.Tables())
	require.NoError(t, e.Ping(context.Background()))

	ctx := contextkeys.WithUserID(context.Background(), "owner")
	org, err := e.Orgs.Create(ctx, orgs.CreateRequest{Name: "Acme"})
	require.NoError(t, err)

	projects, ok := e.Factory.Handlers("projects")
	require.True(t, ok)
	project, err := projects.Create(ctx, crud.CreateRequest{OrgID: org.ID, Data: map[string]any{"title": "Launch"}})
	require.NoError(t, err)

	tasks, ok := e.Factory.Handlers("tasks")
	require.True(t, ok)
	_, err = tasks.Create(ctx, crud.CreateRequest{OrgID: org.ID, Data: map[string]any{"projectId": project.ID}})
	require.NoError(t, err)

	result, err := e.Orgs.Remove(ctx, org.ID)
	require.NoError(t, err)
	assert.True(t, result.Complete)

	require.NoError(t, e.Close())

	info, err := os.Stat(filepath.Join(cfg.Audit.Directory, "audit.log"))
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestNewWithRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.Redis = config.RedisConfig{URL: "redis://" + mr.Addr(), KeyPrefix: "test"}

	e, err := New(context.Background(), cfg, nil, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	require.NotNil(t, e.Redis)
	assert.IsType(t, &ratelimit.RedisLimiter{}, e.Limiter)
	assert.NoError(t, e.Redis.Ping(context.Background()).Err())
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		tables []config.Table
	}{
		{
			name:   "unknown storage",
			mutate: func(c *config.Config) { c.Storage.Type = "sqlite" },
		},
		{
			name:   "bad redis url",
			mutate: func(c *config.Config) { c.Redis.URL = "http://nope" },
		},
		{
			name:   "database audit without postgres",
			mutate: func(c *config.Config) { c.Audit.Database = true },
		},
		{
			name:   "unknown hook",
			mutate: func(c *config.Config) { c.Engine.Hooks = []string{"sanitize", "webhook"} },
		},
		{
			name:   "cascade to undefined table",
			mutate: func(c *config.Config) {},
			tables: []config.Table{
				{Name: "projects", Options: crud.Options{Cascade: []crud.Child{{ForeignKey: "projectId", Table: "tasks"}}}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			e, err := New(context.Background(), cfg, tt.tables, nil, nil)
			assert.Error(t, err)
			assert.Nil(t, e)
		})
	}
}

func TestTables(t *testing.T) {
	cfg := testConfig()
	tables, err := Tables(cfg)
	require.NoError(t, err)
	assert.Empty(t, tables)

	cfg.Engine.TablesFile = filepath.Join(t.TempDir(), "tables.yaml")
	require.NoError(t, os.WriteFile(cfg.Engine.TablesFile, []byte("tables:\n  notes:\n    softDelete: true\n"), 0o600))
	tables, err = Tables(cfg)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "notes", tables[0].Name)
	assert.True(t, tables[0].Options.SoftDelete)

	cfg.Engine.TablesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = Tables(cfg)
	assert.Error(t, err)
}
