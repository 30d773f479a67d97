package orgs

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/1qh/nexvex/pkg/models"
	"github.com/1qh/nexvex/pkg/observability"
)

const publicCacheName = "public_org"

// CacheConfig sizes the public organization cache
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

// DefaultCacheConfig returns the default public cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 1024,
		TTL:        5 * time.Minute,
	}
}

// publicCache holds public organization views by slug. Entries are dropped
// when the organization is renamed or removed, and expire after the TTL.
type publicCache struct {
	cache   *lru.LRU[string, *models.PublicOrganization]
	metrics *observability.Metrics
}

func newPublicCache(config CacheConfig, metrics *observability.Metrics) *publicCache {
	if config.MaxEntries < 1 {
		config.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	return &publicCache{
		cache:   lru.NewLRU[string, *models.PublicOrganization](config.MaxEntries, nil, config.TTL),
		metrics: metrics,
	}
}

func (c *publicCache) get(slug string) (*models.PublicOrganization, bool) {
	org, ok := c.cache.Get(slug)
	c.metrics.RecordCacheLookup(publicCacheName, ok)
	if !ok {
		return nil, false
	}
	cp := *org
	return &cp, true
}

func (c *publicCache) add(org *models.PublicOrganization) {
	cp := *org
	c.cache.Add(org.Slug, &cp)
}

// invalidate drops every given slug
func (c *publicCache) invalidate(slugs ...string) {
	for _, slug := range slugs {
		if slug != "" {
			c.cache.Remove(slug)
		}
	}
}

func (c *publicCache) size() int {
	return c.cache.Len()
}
