package timeline

import (
	"sort"
	"sync"
	"time"
)

// sweepInterval bounds how often Put scans for expired timelines.
const sweepInterval = time.Minute

// Cache keeps the latest timeline per configuration key until its
// RefreshAt. Each key carries a generation; Invalidate bumps it so a build
// that started earlier cannot be stored afterwards.
//
// Expired timelines are evicted as Put runs, together with the generation
// of any key that has neither a timeline nor a build in flight.
type Cache struct {
	mu          sync.RWMutex
	timelines   map[string]*Timeline
	generations map[string]uint64
	pending     map[string]int
	epoch       uint64
	nextSweep   time.Time
}

// Generation identifies the cache state a build started from.
type Generation struct {
	epoch uint64
	key   uint64
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		timelines:   make(map[string]*Timeline),
		generations: make(map[string]uint64),
		pending:     make(map[string]int),
	}
}

// Get returns the cached timeline for key if it has not expired at now.
func (c *Cache) Get(key string, now time.Time) (*Timeline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tl, ok := c.timelines[key]
	if !ok || tl.Expired(now) {
		return nil, false
	}
	return tl, true
}

// Peek returns the cached timeline for key even if it has expired.
func (c *Cache) Peek(key string) (*Timeline, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tl, ok := c.timelines[key]
	return tl, ok
}

// Generation starts a build for key and returns the generation it started
// from. Every call must be followed by exactly one Put for the same key.
func (c *Cache) Generation(key string) Generation {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending[key]++
	return Generation{epoch: c.epoch, key: c.generations[key]}
}

// Put finishes the build started by Generation and stores tl if key is
// still at generation gen. It reports whether the timeline was stored.
func (c *Cache) Put(key string, gen Generation, tl *Timeline) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := gen == Generation{epoch: c.epoch, key: c.generations[key]}
	if stored {
		c.timelines[key] = tl
	}

	if c.pending[key] > 1 {
		c.pending[key]--
	} else {
		delete(c.pending, key)
	}

	if tl != nil && !tl.GeneratedAt.Before(c.nextSweep) {
		c.sweep(tl.GeneratedAt)
		c.nextSweep = tl.GeneratedAt.Add(sweepInterval)
	}
	return stored
}

// Sweep evicts every timeline expired at now and reports how many were
// removed.
func (c *Cache) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweep(now)
}

func (c *Cache) sweep(now time.Time) int {
	evicted := 0
	for key, tl := range c.timelines {
		if tl.Expired(now) {
			delete(c.timelines, key)
			evicted++
		}
	}
	for key := range c.generations {
		if _, cached := c.timelines[key]; !cached && c.pending[key] == 0 {
			delete(c.generations, key)
		}
	}
	return evicted
}

// Invalidate drops the timeline for key and discards builds in flight.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.timelines, key)
	if c.pending[key] > 0 {
		c.generations[key]++
	}
}

// InvalidateAll drops every timeline and discards all builds in flight.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.timelines = make(map[string]*Timeline)
	c.generations = make(map[string]uint64)
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.timelines))
	for key := range c.timelines {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of cached timelines.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.timelines)
}
