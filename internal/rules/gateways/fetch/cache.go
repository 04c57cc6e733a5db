package fetch

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// bodyCache holds successfully fetched bodies keyed by locator, so labels
// sharing a list are downloaded once per run. It tracks hits and misses.
type bodyCache interface {
	Get(locator string) (string, bool)
	Put(locator, body string)
	Len() int
	Stats() (hits, misses uint64)
}

type lruBodyCache struct {
	lru    *lru.Cache[string, string]
	hits   uint64
	misses uint64
}

// disabledCache always misses.
type disabledCache struct{}

// newBodyCache returns an LRU cache of the given size, or a disabled cache when size <= 0.
func newBodyCache(size int) (bodyCache, error) {
	if size <= 0 {
		return disabledCache{}, nil
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &lruBodyCache{lru: c}, nil
}

func (c *lruBodyCache) Get(locator string) (string, bool) {
	if body, ok := c.lru.Get(locator); ok {
		atomic.AddUint64(&c.hits, 1)
		return body, true
	}
	atomic.AddUint64(&c.misses, 1)
	return "", false
}

func (c *lruBodyCache) Put(locator, body string) { c.lru.Add(locator, body) }

func (c *lruBodyCache) Len() int { return c.lru.Len() }

func (c *lruBodyCache) Stats() (uint64, uint64) {
	return atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses)
}

func (disabledCache) Get(string) (string, bool) { return "", false }
func (disabledCache) Put(string, string)        {}
func (disabledCache) Len() int                  { return 0 }
func (disabledCache) Stats() (uint64, uint64)   { return 0, 0 }
