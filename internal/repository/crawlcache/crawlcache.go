package crawlcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/db"
	"github.com/leadharvest/leadharvest/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "crawl_cache:"

// store is the consumer interface for the crawl cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Cache keeps recent crawl results keyed by normalized domain. Readers
// tolerate staleness; cache failures degrade to a fresh crawl, never to
// an error.
type Cache struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a crawl cache.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(s store, ttl time.Duration, cacheTotal *prometheus.CounterVec, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{store: s, ttl: ttl, cacheTotal: cacheTotal, logger: logger}
}

// Get returns the cached crawl for a domain, or nil on a miss.
func (c *Cache) Get(ctx context.Context, d string) *domain.CrawlResult {
	data, err := c.store.Get(ctx, c.key(d))
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached crawl", zap.String("domain", d), zap.Error(err))
		}
		c.incCache("miss")
		return nil
	}

	var result domain.CrawlResult
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Warn("Failed to parse cached crawl", zap.String("domain", d), zap.Error(err))
		c.incCache("miss")
		return nil
	}

	c.incCache("hit")
	return &result
}

// Put caches a crawl result under its domain. Per-page errors are transient
// and stripped before caching; a result obtained through the synthetic
// fallback is not worth keeping.
func (c *Cache) Put(ctx context.Context, d string, result *domain.CrawlResult) {
	if result == nil || result.TotalPages == 0 || result.FallbackUsed {
		return
	}

	stripped := *result
	stripped.Errors = nil

	data, err := json.Marshal(&stripped)
	if err != nil {
		c.logger.Warn("Failed to encode crawl for cache", zap.String("domain", d), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, c.key(d), data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache crawl", zap.String("domain", d), zap.Error(err))
	}
}

// Invalidate drops the cached crawl for a domain.
func (c *Cache) Invalidate(ctx context.Context, d string) error {
	return c.store.Del(ctx, c.key(d))
}

func (c *Cache) incCache(result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result).Inc()
	}
}

func (c *Cache) key(d string) string {
	h := sha256.Sum256([]byte("crawl:" + domain.NormalizeDomain(d)))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}
