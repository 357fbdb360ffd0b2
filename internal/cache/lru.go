// Package cache provides the in-process LRU+TTL cache used for dynamic
// mentor responses and routing decisions, plus the Redis job-status mirror.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
	"sync"
	"time"
)

// Stats is a snapshot of cache counters.
type Stats struct {
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Expired   int64   `json:"expired"`
	HitRate   float64 `json:"hit_rate"`
	TTL       string  `json:"ttl"`
}

type entry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// LRU is a bounded least-recently-used cache whose entries expire ttl after
// insertion. Expired entries are evicted lazily when read.
// It is safe for concurrent use.
type LRU[V any] struct {
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recently used

	hits, misses, evictions, expired int64
}

// Option configures an LRU.
type Option func(*lruOptions)

type lruOptions struct {
	now func() time.Time
}

// WithClock replaces time.Now for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(o *lruOptions) { o.now = now }
}

// NewLRU creates a cache holding at most maxSize entries for ttl each.
func NewLRU[V any](maxSize int, ttl time.Duration, opts ...Option) *LRU[V] {
	o := lruOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if maxSize <= 0 {
		maxSize = 100
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &LRU[V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     o.now,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the cached value for key. A hit moves the entry to the
// most-recently-used position; an expired entry is removed and reported as a miss.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	e := el.Value.(*entry[V])
	if c.now().Sub(e.insertedAt) > c.ttl {
		c.remove(el)
		c.expired++
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Put stores value under key, refreshing its insertion time, and evicts the
// least recently used entry when the cache would exceed its size.
func (c *LRU[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.insertedAt = c.now()
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry[V]{key: key, value: value, insertedAt: c.now()})
	c.entries[key] = el

	for c.order.Len() > c.maxSize {
		c.remove(c.order.Back())
		c.evictions++
	}
}

// Delete removes key if present.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

// Len returns the number of entries, including ones not yet lazily expired.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear drops every entry. Counters are kept.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns a snapshot of the cache counters.
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Size:      c.order.Len(),
		MaxSize:   c.maxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Expired:   c.expired,
		TTL:       c.ttl.String(),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// remove must be called with c.mu held.
func (c *LRU[V]) remove(el *list.Element) {
	e := el.Value.(*entry[V])
	delete(c.entries, e.key)
	c.order.Remove(el)
}

// ResponseKey builds the cache key for a dynamic response. Only the first
// 100 characters of the query take part, and technologies and patterns are
// sorted so their order does not matter.
func ResponseKey(intent, query string, technologies, patterns []string) string {
	q := []rune(query)
	if len(q) > 100 {
		q = q[:100]
	}

	techs := slices.Clone(technologies)
	slices.Sort(techs)
	pats := slices.Clone(patterns)
	slices.Sort(pats)

	h := sha256.New()
	h.Write([]byte(intent))
	h.Write([]byte{0})
	h.Write([]byte(string(q)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(techs, ",")))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(pats, ",")))
	return hex.EncodeToString(h.Sum(nil))
}
