package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

const (
	// DefaultTableSize is the initial number of hash table slots.
	DefaultTableSize = 64

	// maxLoadPercent bounds occupied+deleted slots before the table is rebuilt.
	maxLoadPercent = 75
)

// Config controls cache capacity and maintenance behavior.
//
// Defaults:
//   - MaxBytes <= 0 means nothing can be cached (every Insert is ErrTooLarge
//     except empty payloads)
//   - TableSize <= 0 means DefaultTableSize; the table grows as needed
//   - CompactInterval <= 0 disables background compaction (inserts still
//     compact when tombstones pile up)
type Config struct {
	MaxBytes        int
	TableSize       int
	CompactInterval time.Duration
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Inserts   uint64
	Evictions uint64

	Used     int // bytes held by cached payloads
	Capacity int
	Entries  int
}

// Cache is a concurrency-safe, byte-bounded file cache with LRU eviction.
//
// Entries live in an open-addressed hash table (linear probing, wraparound).
// A doubly-linked list holds the occupied slot indices in recency order.
// Removing an entry leaves a tombstone so probe chains through that slot
// stay intact; tombstones are dropped when the table is rebuilt.
//
// Ownership model:
// Cache owns its compaction goroutine. Call Close to stop it.
type Cache struct {
	mu sync.Mutex

	maxBytes int
	used     int

	slots      []slot
	live       int
	tombstones int
	lru        *list.List // Front = most recently used (MRU), Back = least recently used (LRU)

	stats Stats

	// Goroutine ownership.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	compactEvery time.Duration
	closed       bool
}

type slotState uint8

const (
	slotEmpty slotState = iota
	slotUsed
	slotDeleted
)

type slot struct {
	state slotState
	e     *entry
	el    *list.Element // el.Value is this slot's index
}

// entry is one cached file.
type entry struct {
	name string
	data []byte
}

var (
	ErrClosed   = errors.New("cache is closed")
	ErrTooLarge = errors.New("entry larger than cache capacity")
	ErrNoSpace  = errors.New("eviction could not free enough space")
)

// New constructs a cache and starts background compaction (if enabled).
//
// New never returns a nil Cache.
func New(cfg Config) *Cache {
	ctx, cancel := context.WithCancel(context.Background())

	size := cfg.TableSize
	if size <= 0 {
		size = DefaultTableSize
	}

	c := &Cache{
		maxBytes:     cfg.MaxBytes,
		slots:        make([]slot, size),
		lru:          list.New(),
		ctx:          ctx,
		cancel:       cancel,
		compactEvery: cfg.CompactInterval,
	}

	if c.compactEvery > 0 {
		c.wg.Add(1)
		go c.compactLoop()
	}

	return c
}

// Close stops background goroutines and drops every cached entry.
//
// Close is safe to call multiple times.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	// Cancel outside the lock so the compaction loop can finish its pass.
	cancel()
	c.wg.Wait()

	c.mu.Lock()
	c.slots = nil
	c.lru.Init()
	c.live, c.tombstones, c.used = 0, 0, 0
	c.mu.Unlock()
	return nil
}

// Lookup returns a copy of the cached payload for name without changing
// its recency.
func (c *Cache) Lookup(name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, found := c.probeLocked(name)
	if !found {
		return nil, false
	}
	return cloneBytes(c.slots[idx].e.data), true
}

// Touch marks name as most recently used. It reports whether name is cached.
func (c *Cache) Touch(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, found := c.probeLocked(name)
	if !found {
		return false
	}
	c.lru.MoveToFront(c.slots[idx].el)
	return true
}

// Get looks name up and, on a hit, marks it most recently used. Lookup and
// recency update happen under one lock acquisition.
func (c *Cache) Get(name string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, found := c.probeLocked(name)
	if !found {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	c.lru.MoveToFront(c.slots[idx].el)
	return cloneBytes(c.slots[idx].e.data), true
}

// Insert caches a private copy of data under name.
//
// Inserting a name that is already cached is a no-op. A payload larger than
// the whole capacity returns ErrTooLarge: it can never be cached, and the
// caller should serve it uncached.
//
// Complexity:
//   - expected O(1) probe
//   - O(1) per evicted entry
func (c *Cache) Insert(name string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if _, found := c.probeLocked(name); found {
		return nil
	}

	size := len(data)
	if size > c.maxBytes {
		return ErrTooLarge
	}
	if !c.evictLocked(size) {
		return ErrNoSpace
	}

	c.growIfNeededLocked()
	idx, _ := c.probeLocked(name)

	s := &c.slots[idx]
	if s.state == slotDeleted {
		c.tombstones--
	}
	s.state = slotUsed
	s.e = &entry{name: name, data: cloneBytes(data)}
	s.el = c.lru.PushFront(idx)
	c.live++
	c.used += size
	c.stats.Inserts++
	return nil
}

// Evict removes least recently used entries until need bytes are free.
//
// It reports false without evicting anything if need exceeds the capacity,
// and false if the cache ran out of entries first.
func (c *Cache) Evict(need int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked(need)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// Used returns the number of payload bytes currently cached.
func (c *Cache) Used() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.stats
	st.Used = c.used
	st.Capacity = c.maxBytes
	st.Entries = c.live
	return st
}

// Keys returns cached names in MRU -> LRU order.
//
// This is a debug helper used by tests and the server's status log.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, c.lru.Len())
	for el := c.lru.Front(); el != nil; el = el.Next() {
		out = append(out, c.slots[el.Value.(int)].e.name)
	}
	return out
}

func (c *Cache) evictLocked(need int) bool {
	if need <= c.maxBytes-c.used {
		return true
	}
	if need > c.maxBytes {
		return false
	}

	for c.maxBytes-c.used < need {
		el := c.lru.Back()
		if el == nil {
			break
		}
		c.deleteSlotLocked(el.Value.(int))
		c.stats.Evictions++
	}
	return c.maxBytes-c.used >= need
}

// deleteSlotLocked frees the payload in slot idx and leaves a tombstone.
func (c *Cache) deleteSlotLocked(idx int) {
	s := &c.slots[idx]
	c.used -= len(s.e.data)
	c.lru.Remove(s.el)
	*s = slot{state: slotDeleted}
	c.live--
	c.tombstones++
}

// probeLocked walks the probe sequence for name.
//
// found reports a match at idx. Otherwise idx is the slot an insert should
// use: the first tombstone on the chain, or the empty slot that ended it.
// idx is -1 only for a table with no free slot at all.
func (c *Cache) probeLocked(name string) (idx int, found bool) {
	n := len(c.slots)
	if n == 0 {
		return -1, false
	}
	free := -1
	i := int(hashName(name) % uint64(n))
	for step := 0; step < n; step++ {
		s := &c.slots[i]
		switch s.state {
		case slotEmpty:
			if free < 0 {
				free = i
			}
			return free, false
		case slotDeleted:
			if free < 0 {
				free = i
			}
		case slotUsed:
			if s.e.name == name {
				return i, true
			}
		}
		i = (i + 1) % n
	}
	return free, false
}

// hashName is djb2: h = h*33 + b.
func hashName(name string) uint64 {
	h := uint64(5381)
	for i := 0; i < len(name); i++ {
		h = h<<5 + h + uint64(name[i])
	}
	return h
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
