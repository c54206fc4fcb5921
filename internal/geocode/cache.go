package geocode

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/wordloc/internal/domain"
	"github.com/couchcryptid/wordloc/internal/observability"
)

// CachedProvider wraps a provider with an in-memory LRU cache. The optional
// capabilities of the wrapped provider are passed through; calling one the
// provider lacks returns domain.ErrUnsupported.
type CachedProvider struct {
	inner   domain.Geocoder
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedProvider creates a cache decorator around a provider.
func NewCachedProvider(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedProvider {
	return &CachedProvider{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedProvider) Name() string { return c.inner.Name() }

func (c *CachedProvider) Geocode(ctx context.Context, query string) ([]domain.Result, error) {
	return c.lookup(ctx, "geocode", "fwd:"+query, func(ctx context.Context) ([]domain.Result, error) {
		return c.inner.Geocode(ctx, query)
	})
}

func (c *CachedProvider) Suggest(ctx context.Context, query string) ([]domain.Result, error) {
	s, ok := c.inner.(domain.Suggester)
	if !ok {
		return nil, domain.ErrUnsupported
	}
	return c.lookup(ctx, "suggest", "sug:"+query, func(ctx context.Context) ([]domain.Result, error) {
		return s.Suggest(ctx, query)
	})
}

func (c *CachedProvider) Reverse(ctx context.Context, p domain.Point, scale float64) ([]domain.Result, error) {
	r, ok := c.inner.(domain.Reverser)
	if !ok {
		return nil, domain.ErrUnsupported
	}
	key := fmt.Sprintf("rev:%.6f,%.6f@%g", p.Lat, p.Lng, scale)
	return c.lookup(ctx, "reverse", key, func(ctx context.Context) ([]domain.Result, error) {
		return r.Reverse(ctx, p, scale)
	})
}

func (c *CachedProvider) lookup(ctx context.Context, method, key string, load func(context.Context) ([]domain.Result, error)) ([]domain.Result, error) {
	if results, ok := c.cache.get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues(method, "hit").Inc()
		return results, nil
	}
	c.metrics.GeocodeCache.WithLabelValues(method, "miss").Inc()

	results, err := load(ctx)
	if err != nil {
		return results, err
	}
	// Only cache non-empty results so transient "not found" responses can be retried.
	if len(results) > 0 {
		c.cache.put(key, results)
	}
	return results, nil
}

// lruCache is a simple thread-safe LRU cache of result lists.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []domain.Result
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]domain.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value []domain.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
