package catalog

import (
	"container/list"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const DefaultCacheCapacity = 100

// Cache is a bounded least-recently-used map from product ID to product.
// A Get hit counts as a use. It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[int64]*list.Element

	metrics *CacheMetrics
}

func NewCache(capacity int, metrics *CacheMetrics) *Cache {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[int64]*list.Element, capacity),
		metrics:  metrics,
	}
}

func (c *Cache) Get(id int64) (Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[id]
	if !ok {
		c.metrics.miss()
		return Product{}, false
	}
	c.ll.MoveToFront(el)
	c.metrics.hit()
	return el.Value.(Product), true
}

// Put inserts or replaces the entry for p.ID. Inserting a new ID into a full
// cache evicts the least recently used entry first.
func (c *Cache) Put(p Product) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[p.ID]; ok {
		el.Value = p
		c.ll.MoveToFront(el)
		return
	}

	if c.ll.Len() >= c.capacity {
		c.evictOldest()
	}

	c.items[p.ID] = c.ll.PushFront(p)
	c.metrics.setSize(c.ll.Len())
}

func (c *Cache) Invalidate(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[id]; ok {
		c.ll.Remove(el)
		delete(c.items, id)
		c.metrics.setSize(c.ll.Len())
	}
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ll.Init()
	c.items = make(map[int64]*list.Element, c.capacity)
	c.metrics.setSize(0)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Cache) Capacity() int { return c.capacity }

func (c *Cache) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.items, el.Value.(Product).ID)
	c.metrics.evicted()
}

type CacheMetrics struct {
	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Evictions prometheus.Counter
	Entries   prometheus.Gauge
}

func NewCacheMetrics(reg prometheus.Registerer) *CacheMetrics {
	m := &CacheMetrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_cache_hits_total",
			Help: "Product cache hits",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_cache_misses_total",
			Help: "Product cache misses",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_cache_evictions_total",
			Help: "Products evicted to stay within capacity",
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_cache_entries",
			Help: "Products currently cached",
		}),
	}

	reg.MustRegister(m.Hits, m.Misses, m.Evictions, m.Entries)
	return m
}

func (m *CacheMetrics) hit() {
	if m != nil {
		m.Hits.Inc()
	}
}

func (m *CacheMetrics) miss() {
	if m != nil {
		m.Misses.Inc()
	}
}

func (m *CacheMetrics) evicted() {
	if m != nil {
		m.Evictions.Inc()
	}
}

func (m *CacheMetrics) setSize(n int) {
	if m != nil {
		m.Entries.Set(float64(n))
	}
}
