package match

// #region imports
import (
	"container/list"
	"sync"
	"time"
)

// #endregion imports

// #region cache

// resultCache is a bounded LRU keyed by the rounded fingerprint digest.
// Entries expire after a short TTL: behavioral fingerprints vary call to
// call, so the cache only shortcuts repeated-identical-input bursts and
// never outlives a template evolution for long.
type resultCache struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	order *list.List
	items map[[32]byte]*list.Element
}

type cacheEntry struct {
	key     [32]byte
	result  Result
	expires time.Time
}

func newResultCache(capacity int, ttl time.Duration) *resultCache {
	if capacity < 1 {
		capacity = 1
	}
	return &resultCache{
		cap:   capacity,
		ttl:   ttl,
		order: list.New(),
		items: make(map[[32]byte]*list.Element),
	}
}

// get returns a fresh cached result. Expired entries are evicted on access.
func (c *resultCache) get(key [32]byte, now time.Time) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return Result{}, false
	}
	ent := el.Value.(*cacheEntry)
	if !now.Before(ent.expires) {
		c.order.Remove(el)
		delete(c.items, key)
		return Result{}, false
	}
	c.order.MoveToFront(el)
	return ent.result, true
}

// put stores a result, evicting the least recently used entry at capacity.
func (c *resultCache) put(key [32]byte, r Result, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		ent := el.Value.(*cacheEntry)
		ent.result = r
		ent.expires = now.Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, result: r, expires: now.Add(c.ttl)})
	c.items[key] = el
	for c.order.Len() > c.cap {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).key)
	}
}

// len reports live entries, including any not yet evicted by expiry.
func (c *resultCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// #endregion cache
