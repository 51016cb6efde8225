// Package cache memoizes values behind string keys with optional expiry, a
// bounded in-memory size and a best-effort durable mirror.
//
// Reads check memory first and fall back to the mirror, so a restarted
// process picks up where the previous one left off. Mirror faults are logged
// and never fail the in-memory operation.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"brokerhub/core/internal/storage"
)

// NoExpiry keeps an entry until it is deleted, cleared or evicted.
const NoExpiry time.Duration = 0

type Options struct {
	// Namespace prefixes every durable key as "<namespace>:<key>" so caches
	// sharing a store do not collide. Defaults to "cache". A ":" inside the
	// namespace is stored as "/", so no namespace's prefix is a prefix of
	// another's.
	Namespace string
	// MaxEntries bounds the in-memory map. Zero or less means unbounded.
	MaxEntries int
	// Store is the durable mirror. Nil keeps the cache memory-only.
	Store storage.Store
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
	// FlightTimeout bounds a shared GetOrSet factory call. Zero leaves it to
	// the factory.
	FlightTimeout time.Duration
}

// NormalizeNamespace returns the namespace a Cache built with ns uses.
func NormalizeNamespace(ns string) string {
	if ns == "" {
		return "cache"
	}
	return strings.ReplaceAll(ns, ":", "/")
}

// KeyPrefix is the durable key prefix of namespace ns.
func KeyPrefix(ns string) string { return NormalizeNamespace(ns) + ":" }

type entry[V any] struct {
	value     V
	createdAt time.Time
	ttl       time.Duration
}

// expired reports whether more than ttl has elapsed since insertion. An
// entry is still live at exactly ttl.
func (e *entry[V]) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// record is the durable encoding of an entry.
type record[V any] struct {
	Value     V     `json:"value"`
	CreatedAt int64 `json:"created_at"`
	TTLMillis int64 `json:"ttl_ms,omitempty"`
}

func (r record[V]) expired(now time.Time) bool {
	return r.TTLMillis > 0 && now.UnixMilli()-r.CreatedAt > r.TTLMillis
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	ns     string
	prefix string
	max    int
	store  storage.Store
	now    func() time.Time

	flightTO time.Duration

	mu      sync.Mutex
	entries map[string]*entry[V]

	flights singleflight.Group

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func New[V any](opts Options) *Cache[V] {
	ns := NormalizeNamespace(opts.Namespace)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		ns:       ns,
		prefix:   ns + ":",
		max:      opts.MaxEntries,
		store:    opts.Store,
		now:      now,
		flightTO: opts.FlightTimeout,
		entries:  make(map[string]*entry[V]),
	}
}

func (c *Cache[V]) Namespace() string { return c.ns }

// Set inserts or replaces the value for key. ttl <= 0 means no expiry.
//
// When the map is at MaxEntries, expired entries are purged first; if that
// frees nothing, the entry with the oldest insertion time is evicted from
// memory. Its durable copy stays and can be read back later.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl < 0 {
		ttl = NoExpiry
	}
	now := c.now()
	e := &entry[V]{value: value, createdAt: now, ttl: ttl}
	purged := c.insert(key, e, now)
	c.removeDurable(purged...)
	c.mirror(key, e)
}

// insert stores e in memory, making room first if needed. It returns the
// keys purged as expired so the caller can drop their durable copies outside
// the lock.
func (c *Cache[V]) insert(key string, e *entry[V], now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(key, e, now)
}

func (c *Cache[V]) insertLocked(key string, e *entry[V], now time.Time) []string {
	var purged []string
	if c.max > 0 && len(c.entries) >= c.max {
		purged = c.cleanupLocked(now)
		if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = e
	return purged
}

func (c *Cache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.createdAt.Before(oldest) {
			oldestKey, oldest, found = k, e.createdAt, true
		}
	}
	if !found {
		return
	}
	delete(c.entries, oldestKey)
	c.evictions.Add(1)
	metricEvictions.WithLabelValues(c.ns, "capacity").Inc()
}

// Get returns the live value for key. A memory miss falls back to the
// durable mirror; a live durable hit is copied back into memory and an
// expired one is deleted.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, tier, ok := c.lookup(key)
	if ok {
		c.hits.Add(1)
		metricHits.WithLabelValues(c.ns, tier).Inc()
	} else {
		c.misses.Add(1)
		metricMisses.WithLabelValues(c.ns).Inc()
	}
	return v, ok
}

func (c *Cache[V]) lookup(key string) (V, string, bool) {
	var zero V
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && e.expired(now) {
		delete(c.entries, key)
		c.mu.Unlock()
		metricEvictions.WithLabelValues(c.ns, "expired").Inc()
		c.removeDurable(key)
		return zero, "", false
	}
	c.mu.Unlock()
	if ok {
		return e.value, "memory", true
	}

	rec, ok := c.loadDurable(key)
	if !ok {
		return zero, "", false
	}
	if rec.expired(now) {
		c.removeDurable(key)
		return zero, "", false
	}
	restored := &entry[V]{
		value:     rec.Value,
		createdAt: time.UnixMilli(rec.CreatedAt),
		ttl:       time.Duration(rec.TTLMillis) * time.Millisecond,
	}
	c.mu.Lock()
	if cur, ok := c.entries[key]; ok && !cur.expired(now) {
		// A Set landed while the record was being read; it is newer.
		c.mu.Unlock()
		return cur.value, "memory", true
	}
	purged := c.insertLocked(key, restored, now)
	c.mu.Unlock()
	c.removeDurable(purged...)
	return rec.Value, "durable", true
}

func (c *Cache[V]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key from memory and the mirror and reports whether either
// held it.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	_, had := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if c.store == nil {
		return had
	}
	if _, ok, err := c.store.GetItem(c.prefix + key); err != nil {
		c.storageFault("get", key, err)
	} else if ok {
		had = true
	}
	c.removeDurable(key)
	return had
}

// Clear empties memory and removes every durable key in this cache's
// namespace. Keys written by anything else are left alone.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry[V])
	c.mu.Unlock()

	if c.store == nil {
		return
	}
	keys, err := storage.KeysWithPrefix(c.store, c.prefix)
	if err != nil {
		c.storageFault("keys", "", err)
		return
	}
	for _, k := range keys {
		if err := c.store.RemoveItem(k); err != nil {
			c.storageFault("remove", k, err)
		}
	}
}

// Forget drops the in-memory tier only, so later reads go back to the
// durable store. Used when another process has rewritten the store.
func (c *Cache[V]) Forget() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*entry[V])
	return n
}

// Cleanup deletes every expired in-memory entry, along with its durable
// copy, and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	purged := c.cleanupLocked(c.now())
	c.mu.Unlock()
	c.removeDurable(purged...)
	return len(purged)
}

func (c *Cache[V]) cleanupLocked(now time.Time) []string {
	var purged []string
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			purged = append(purged, k)
		}
	}
	if len(purged) > 0 {
		metricEvictions.WithLabelValues(c.ns, "expired").Add(float64(len(purged)))
	}
	return purged
}

// Size is the number of entries held in memory, expired or not.
func (c *Cache[V]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrSet returns the live value for key, or calls factory, stores its
// result with ttl and returns it. Concurrent misses on the same key share a
// single factory call; a caller whose ctx ends while waiting gets ctx.Err().
// Factory errors are returned unchanged and nothing is cached.
func (c *Cache[V]) GetOrSet(ctx context.Context, key string, factory func(context.Context) (V, error), ttl time.Duration) (V, error) {
	v, _, err := c.GetOrLoad(ctx, key, factory, ttl)
	return v, err
}

type flightResult[V any] struct {
	value  V
	loaded bool
}

// GetOrLoad is GetOrSet that also reports whether the value came from a
// factory call, either this caller's or one it joined, rather than from the
// cache.
//
// The shared factory call does not inherit any single caller's
// cancellation: one waiter leaving never fails the others. It keeps the
// first caller's context values and is bounded by Options.FlightTimeout.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key string, factory func(context.Context) (V, error), ttl time.Duration) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, false, nil
	}
	ch := c.flights.DoChan(key, func() (any, error) {
		// A flight that finished just before this one started may have
		// filled the key already.
		if v, _, ok := c.lookup(key); ok {
			return flightResult[V]{value: v}, nil
		}
		fctx := context.WithoutCancel(ctx)
		if c.flightTO > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, c.flightTO)
			defer cancel()
		}
		v, err := factory(fctx)
		if err != nil {
			metricFactoryCalls.WithLabelValues(c.ns, "error").Inc()
			return nil, err
		}
		metricFactoryCalls.WithLabelValues(c.ns, "ok").Inc()
		c.Set(key, v, ttl)
		return flightResult[V]{value: v, loaded: true}, nil
	})

	var zero V
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		r, _ := res.Val.(flightResult[V])
		return r.value, r.loaded, nil
	}
}

// PurgeDurable removes expired or unreadable records of this namespace from
// the mirror, including ones no longer held in memory.
func (c *Cache[V]) PurgeDurable() (int, error) {
	if c.store == nil {
		return 0, nil
	}
	keys, err := storage.KeysWithPrefix(c.store, c.prefix)
	if err != nil {
		return 0, err
	}
	now := c.now()
	n := 0
	for _, k := range keys {
		raw, ok, err := c.store.GetItem(k)
		if err != nil || !ok {
			continue
		}
		var rec record[V]
		if err := json.Unmarshal([]byte(raw), &rec); err == nil && !rec.expired(now) {
			continue
		}
		if err := c.store.RemoveItem(k); err != nil {
			c.storageFault("remove", k, err)
			continue
		}
		n++
	}
	return n, nil
}

type Stats struct {
	Namespace  string `json:"namespace"`
	Entries    int    `json:"entries"`
	MaxEntries int    `json:"max_entries"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	Evictions  int64  `json:"evictions"`
	Durable    bool   `json:"durable"`
}

func (c *Cache[V]) Stats() Stats {
	return Stats{
		Namespace:  c.ns,
		Entries:    c.Size(),
		MaxEntries: c.max,
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		Durable:    c.store != nil,
	}
}

func (c *Cache[V]) mirror(key string, e *entry[V]) {
	if c.store == nil {
		return
	}
	rec := record[V]{
		Value:     e.value,
		CreatedAt: e.createdAt.UnixMilli(),
		TTLMillis: e.ttl.Milliseconds(),
	}
	if e.ttl > 0 && rec.TTLMillis == 0 {
		rec.TTLMillis = 1
	}
	b, err := json.Marshal(rec)
	if err != nil {
		c.storageFault("encode", key, err)
		return
	}
	if err := c.store.SetItem(c.prefix+key, string(b)); err != nil {
		c.storageFault("set", key, err)
	}
}

func (c *Cache[V]) loadDurable(key string) (record[V], bool) {
	var rec record[V]
	if c.store == nil {
		return rec, false
	}
	raw, ok, err := c.store.GetItem(c.prefix + key)
	if err != nil {
		c.storageFault("get", key, err)
		return rec, false
	}
	if !ok {
		return rec, false
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		c.storageFault("decode", key, err)
		c.removeDurable(key)
		return rec, false
	}
	return rec, true
}

func (c *Cache[V]) removeDurable(keys ...string) {
	if c.store == nil {
		return
	}
	for _, k := range keys {
		if err := c.store.RemoveItem(c.prefix + k); err != nil {
			c.storageFault("remove", k, err)
		}
	}
}

func (c *Cache[V]) storageFault(op, key string, err error) {
	metricStorageErrors.WithLabelValues(c.ns, op).Inc()
	log.Printf("[cache] %s: durable %s %q: %v", c.ns, op, key, err)
}
