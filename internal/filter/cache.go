package filter

import (
	"sync"
)

// resultCache memoizes scan results keyed by raw text. Bounded; when full the
// oldest entry is evicted.
type resultCache struct {
	mu      sync.Mutex
	entries map[string]Result
	order   []string
	max     int
}

func newResultCache(max int) *resultCache {
	if max < 1 {
		max = 1
	}
	return &resultCache{
		entries: make(map[string]Result, max),
		order:   make([]string, 0, max),
		max:     max,
	}
}

func (c *resultCache) Get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[key]
	return res, ok
}

func (c *resultCache) Put(key string, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.entries[key] = res
		return
	}

	if len(c.order) >= c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = res
	c.order = append(c.order, key)
}

func (c *resultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
