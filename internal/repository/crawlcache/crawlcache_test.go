package crawlcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/leadharvest/leadharvest/internal/db"
	"github.com/leadharvest/leadharvest/internal/domain"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (m *memStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func newCacheTotal() *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_crawl_cache_total"},
		[]string{"result"},
	)
}

func sampleResult() *domain.CrawlResult {
	return &domain.CrawlResult{
		BaseDomain: "acme.ru",
		Pages:      []domain.PageSummary{{URL: "https://acme.ru/", StatusCode: 200, Title: "Acme"}},
		TotalPages: 1,
		Phone:      "+7 (495) 123-45-67",
		Errors:     []domain.CrawlError{{URL: "https://acme.ru/broken", Error: "status 500"}},
	}
}

func TestRoundTrip_StripsErrors(t *testing.T) {
	store := newMemStore()
	cache := New(store, time.Hour, newCacheTotal(), zap.NewNop())
	ctx := context.Background()

	cache.Put(ctx, "acme.ru", sampleResult())

	got := cache.Get(ctx, "acme.ru")
	if got == nil {
		t.Fatal("Get returned nil after Put")
	}
	if got.Phone != "+7 (495) 123-45-67" || got.TotalPages != 1 {
		t.Errorf("got %+v", got)
	}
	if len(got.Errors) != 0 {
		t.Errorf("transient errors cached: %+v", got.Errors)
	}

	for key, ttl := range store.ttls {
		if ttl != time.Hour {
			t.Errorf("ttl for %s = %v, want 1h", key, ttl)
		}
	}
}

func TestGet_NormalizesDomain(t *testing.T) {
	cache := New(newMemStore(), time.Hour, newCacheTotal(), zap.NewNop())
	ctx := context.Background()

	cache.Put(ctx, "acme.ru", sampleResult())
	if cache.Get(ctx, "www.ACME.ru") == nil {
		t.Error("www/case variant missed the cache")
	}
}

func TestPut_SkipsEmptyAndFallbackResults(t *testing.T) {
	store := newMemStore()
	cache := New(store, time.Hour, newCacheTotal(), zap.NewNop())
	ctx := context.Background()

	cache.Put(ctx, "empty.ru", &domain.CrawlResult{BaseDomain: "empty.ru"})
	cache.Put(ctx, "fell.ru", &domain.CrawlResult{
		BaseDomain:   "fell.ru",
		Pages:        []domain.PageSummary{{URL: "https://fell.ru/"}},
		TotalPages:   1,
		FallbackUsed: true,
	})

	if len(store.data) != 0 {
		t.Errorf("unusable results cached: %v", store.data)
	}
}

func TestGet_MissOnUnknownDomain(t *testing.T) {
	counter := newCacheTotal()
	cache := New(newMemStore(), time.Hour, counter, zap.NewNop())

	if got := cache.Get(context.Background(), "unknown.ru"); got != nil {
		t.Errorf("Get = %+v, want nil", got)
	}
}

func TestInvalidate(t *testing.T) {
	cache := New(newMemStore(), time.Hour, newCacheTotal(), zap.NewNop())
	ctx := context.Background()

	cache.Put(ctx, "acme.ru", sampleResult())
	if err := cache.Invalidate(ctx, "acme.ru"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if cache.Get(ctx, "acme.ru") != nil {
		t.Error("entry survived invalidation")
	}
}
