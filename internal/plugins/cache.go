package plugins

import (
	"fmt"
	"hash/crc32"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/conneroisu/hbsbundle/internal/transform"
)

// DefaultCacheEntries bounds the result cache of a new PluginManager.
const DefaultCacheEntries = 512

// ResultCache keeps transform results keyed on the plugin name, the file ID
// and a CRC32 checksum of the source, with LRU eviction. Concurrent
// requests for the same key share one transform call. A nil *ResultCache
// caches nothing.
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	maxEntries int
	crcTable   *crc32.Table
	flight     singleflight.Group

	// LRU list with sentinel head and tail
	head *cacheEntry
	tail *cacheEntry

	hits      int64
	misses    int64
	evictions int64
}

type cacheEntry struct {
	key    string
	source string
	result *transform.Result

	prev *cacheEntry
	next *cacheEntry
}

// CacheStats reports cache activity.
type CacheStats struct {
	Entries   int   `json:"entries" yaml:"entries"`
	Hits      int64 `json:"hits" yaml:"hits"`
	Misses    int64 `json:"misses" yaml:"misses"`
	Evictions int64 `json:"evictions" yaml:"evictions"`
}

// NewResultCache creates a cache holding at most maxEntries results.
// Values below one mean DefaultCacheEntries.
func NewResultCache(maxEntries int) *ResultCache {
	if maxEntries < 1 {
		maxEntries = DefaultCacheEntries
	}

	c := &ResultCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		crcTable:   crc32.MakeTable(crc32.Castagnoli),
		head:       &cacheEntry{},
		tail:       &cacheEntry{},
	}
	c.head.next = c.tail
	c.tail.prev = c.head

	return c
}

// Do returns the cached result for plugin and req, or runs fn once for all
// concurrent callers and caches what it returns. Errors and pass-through
// results are not cached. cached is false only for the caller whose fn ran.
// Every caller receives its own copy of the result.
func (c *ResultCache) Do(plugin string, req transform.Request, fn func() (*transform.Result, error)) (res *transform.Result, cached bool, err error) {
	if c == nil {
		res, err = fn()
		return res, false, err
	}

	key := c.key(plugin, req)
	if hit, ok := c.get(key, req.Source, true); ok {
		return hit, true, nil
	}

	ran := false
	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		// A call for the same key may have finished since the lookup.
		if hit, ok := c.get(key, req.Source, false); ok {
			return hit, nil
		}
		ran = true
		res, err := fn()
		if err == nil && res != nil {
			c.set(key, req.Source, res)
		}
		return res, err
	})
	if err != nil {
		return nil, !ran, err
	}

	res, _ = v.(*transform.Result)

	return cloneResult(res), !ran, nil
}

// Stats returns a snapshot of the counters.
func (c *ResultCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}

	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	return CacheStats{
		Entries:   entries,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// Clear drops every entry and resets the counters.
func (c *ResultCache) Clear() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.head.next = c.tail
	c.tail.prev = c.head

	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.evictions, 0)
}

func (c *ResultCache) key(plugin string, req transform.Request) string {
	sum := crc32.Checksum([]byte(req.Source), c.crcTable)

	return fmt.Sprintf("%s\x00%s\x00%d:%08x", plugin, req.FileID, len(req.Source), sum)
}

// get returns a copy of the entry under key when it was built from source.
// count selects whether the lookup updates the hit and miss counters.
func (c *ResultCache) get(key, source string, count bool) (*transform.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.source != source {
		if count {
			atomic.AddInt64(&c.misses, 1)
		}
		return nil, false
	}

	c.moveToFront(entry)
	if count {
		atomic.AddInt64(&c.hits, 1)
	}

	return cloneResult(entry.result), true
}

func (c *ResultCache) set(key, source string, res *transform.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		entry.source = source
		entry.result = cloneResult(res)
		c.moveToFront(entry)
		return
	}

	for len(c.entries) >= c.maxEntries && c.tail.prev != c.head {
		lru := c.tail.prev
		c.removeFromList(lru)
		delete(c.entries, lru.key)
		atomic.AddInt64(&c.evictions, 1)
	}

	entry := &cacheEntry{key: key, source: source, result: cloneResult(res)}
	c.entries[key] = entry
	c.addToFront(entry)
}

func (c *ResultCache) addToFront(entry *cacheEntry) {
	entry.prev = c.head
	entry.next = c.head.next
	c.head.next.prev = entry
	c.head.next = entry
}

func (c *ResultCache) removeFromList(entry *cacheEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (c *ResultCache) moveToFront(entry *cacheEntry) {
	c.removeFromList(entry)
	c.addToFront(entry)
}

func cloneResult(res *transform.Result) *transform.Result {
	if res == nil {
		return nil
	}

	out := *res
	out.Map = res.Map.Clone()

	return &out
}
