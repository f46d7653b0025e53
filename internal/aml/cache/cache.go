// Package cache implements the bounded LRU/LFU cache from spec §4.2
// and the four-way quota manager that sits in front of the memory
// facade's pattern/solution/decision/query sub-caches.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Policy selects the eviction discipline.
type Policy string

const (
	PolicyLRU Policy = "lru"
	PolicyLFU Policy = "lfu"
)

// Options configures one Cache instance.
type Options struct {
	MaxSize int
	TTL     time.Duration
	Policy  Policy
}

// Stats mirrors spec §4.2's getStats() shape.
type Stats struct {
	Hits        int64
	Misses      int64
	Evictions   int64
	CurrentSize int
	MaxSize     int
}

func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

type entry struct {
	key      string
	value    interface{}
	expireAt time.Time
	freq     int
	elem     *list.Element // LRU ordering node, or LFU bucket node
}

// Cache is a generic, single-process bounded cache with TTL and a
// configurable LRU or LFU eviction policy.
type Cache struct {
	mu   sync.Mutex
	opts Options

	entries map[string]*entry

	// LRU bookkeeping: order is a doubly linked list, most-recently
	// used at the back.
	order *list.List

	// LFU bookkeeping: freq buckets keyed by access count, each a
	// list of keys at that frequency, plus the current minimum
	// frequency for O(1) eviction.
	buckets  map[int]*list.List
	minFreq  int

	hits, misses, evictions int64
}

// New builds a Cache. A zero TTL means entries never expire.
func New(opts Options) *Cache {
	if opts.Policy == "" {
		opts.Policy = PolicyLRU
	}
	return &Cache{
		opts:    opts,
		entries: make(map[string]*entry),
		order:   list.New(),
		buckets: make(map[int]*list.List),
	}
}

// Set inserts or overwrites k, evicting per the active policy if the
// cache would exceed MaxSize.
func (c *Cache) Set(k string, v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expire time.Time
	if c.opts.TTL > 0 {
		expire = time.Now().Add(c.opts.TTL)
	}

	if e, ok := c.entries[k]; ok {
		e.value = v
		e.expireAt = expire
		c.touch(e)
		return
	}

	e := &entry{key: k, value: v, expireAt: expire, freq: 1}
	c.entries[k] = e

	switch c.opts.Policy {
	case PolicyLFU:
		c.bucketInsert(e)
	default:
		e.elem = c.order.PushBack(e)
	}

	if c.opts.MaxSize > 0 && len(c.entries) > c.opts.MaxSize {
		c.evictOne()
	}
}

// Get returns the value for k, reporting a hit/miss and honoring TTL.
// A hit moves k to the tail under LRU and bumps its frequency under LFU.
func (c *Cache) Get(k string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		c.misses++
		return nil, false
	}
	if !e.expireAt.IsZero() && time.Now().After(e.expireAt) {
		c.removeEntry(e)
		c.misses++
		return nil, false
	}

	c.hits++
	c.touch(e)
	return e.value, true
}

// Has reports presence without affecting recency/frequency ordering,
// per spec §8's "Has(k) does not reorder LRU" invariant.
func (c *Cache) Has(k string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[k]
	if !ok {
		return false
	}
	if !e.expireAt.IsZero() && time.Now().After(e.expireAt) {
		return false
	}
	return true
}

// Delete removes k if present.
func (c *Cache) Delete(k string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok {
		c.removeEntry(e)
	}
}

// Clear empties the cache without touching cumulative stats.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.order = list.New()
	c.buckets = make(map[int]*list.List)
	c.minFreq = 0
}

// Keys returns a snapshot of all non-expired keys.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if e.expireAt.IsZero() || now.Before(e.expireAt) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// EvictExpired sweeps the whole table for TTL-expired entries and
// returns how many were removed.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	n := 0
	for _, e := range c.entries {
		if !e.expireAt.IsZero() && now.After(e.expireAt) {
			c.removeEntry(e)
			n++
		}
	}
	return n
}

func (c *Cache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		CurrentSize: len(c.entries),
		MaxSize:     c.opts.MaxSize,
	}
}

func (c *Cache) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits, c.misses, c.evictions = 0, 0, 0
}

// UpdateOptions applies new sizing/TTL/policy options, switching
// bookkeeping structures and evicting down to the new MaxSize if it
// was lowered.
func (c *Cache) UpdateOptions(opts Options) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if opts.Policy != "" && opts.Policy != c.opts.Policy {
		c.rebuildOrdering(opts.Policy)
	}
	c.opts = opts

	for c.opts.MaxSize > 0 && len(c.entries) > c.opts.MaxSize {
		c.evictOne()
	}
}

func (c *Cache) rebuildOrdering(policy Policy) {
	switch policy {
	case PolicyLFU:
		c.buckets = make(map[int]*list.List)
		c.minFreq = 0
		for _, e := range c.entries {
			e.freq = 1
			c.bucketInsert(e)
		}
		c.order = list.New()
	default:
		c.order = list.New()
		for _, e := range c.entries {
			e.elem = c.order.PushBack(e)
		}
		c.buckets = make(map[int]*list.List)
	}
}

// touch records an access for recency/frequency purposes.
func (c *Cache) touch(e *entry) {
	switch c.opts.Policy {
	case PolicyLFU:
		c.bucketRemove(e)
		e.freq++
		c.bucketInsert(e)
	default:
		c.order.MoveToBack(e.elem)
	}
}

func (c *Cache) bucketInsert(e *entry) {
	b, ok := c.buckets[e.freq]
	if !ok {
		b = list.New()
		c.buckets[e.freq] = b
	}
	e.elem = b.PushBack(e)
	if c.minFreq == 0 || e.freq < c.minFreq {
		c.minFreq = e.freq
	}
}

func (c *Cache) bucketRemove(e *entry) {
	b := c.buckets[e.freq]
	if b == nil {
		return
	}
	b.Remove(e.elem)
	if b.Len() == 0 {
		delete(c.buckets, e.freq)
		if c.minFreq == e.freq {
			c.minFreq = 0
			for f := range c.buckets {
				if c.minFreq == 0 || f < c.minFreq {
					c.minFreq = f
				}
			}
		}
	}
}

func (c *Cache) removeEntry(e *entry) {
	delete(c.entries, e.key)
	switch c.opts.Policy {
	case PolicyLFU:
		c.bucketRemove(e)
	default:
		if e.elem != nil {
			c.order.Remove(e.elem)
		}
	}
}

// evictOne removes exactly one entry per the active policy: the LRU
// head, or the least-frequently-used entry (oldest at minFreq ties).
func (c *Cache) evictOne() {
	switch c.opts.Policy {
	case PolicyLFU:
		b := c.buckets[c.minFreq]
		if b == nil || b.Len() == 0 {
			return
		}
		front := b.Front()
		victim := front.Value.(*entry)
		b.Remove(front)
		if b.Len() == 0 {
			delete(c.buckets, c.minFreq)
			c.minFreq = 0
			for f := range c.buckets {
				if c.minFreq == 0 || f < c.minFreq {
					c.minFreq = f
				}
			}
		}
		delete(c.entries, victim.key)
	default:
		front := c.order.Front()
		if front == nil {
			return
		}
		victim := front.Value.(*entry)
		c.order.Remove(front)
		delete(c.entries, victim.key)
	}
	c.evictions++
}
