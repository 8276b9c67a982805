package cache

import (
	"container/list"
	"sort"
	"sync"
	"time"
)

// MemoryCache implements Store with one shard per resource type. Each shard
// has its own lock, so traffic on one resource type never waits on another.
//
// Eviction under capacity pressure removes the least recently inserted entry.
// Reads do not reorder entries.
type MemoryCache struct {
	shards        map[string]*shard
	logger        Logger
	recorder      Recorder
	now           func() time.Time
	sweepInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
	closeOnce     sync.Once
}

type shard struct {
	mu     sync.Mutex
	policy Policy
	items  map[string]*list.Element
	order  *list.List // front is the oldest insertion

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

type memoryItem struct {
	key        string
	value      []byte
	insertedAt time.Time
}

type MemoryCacheOption func(*MemoryCache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryCacheOption {
	return func(m *MemoryCache) {
		m.now = now
	}
}

func WithRecorder(recorder Recorder) MemoryCacheOption {
	return func(m *MemoryCache) {
		if recorder != nil {
			m.recorder = recorder
		}
	}
}

// WithSweepInterval sets how often expired entries are purged. Zero disables
// the background sweeper and leaves only lazy expiry on read.
func WithSweepInterval(interval time.Duration) MemoryCacheOption {
	return func(m *MemoryCache) {
		m.sweepInterval = interval
	}
}

// NewMemoryCache builds a store for the given resource policies. Resource
// types without a policy are never cached.
func NewMemoryCache(policies map[string]Policy, logger Logger, opts ...MemoryCacheOption) *MemoryCache {
	m := &MemoryCache{
		shards:   make(map[string]*shard, len(policies)),
		logger:   logger,
		recorder: nopRecorder{},
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	for resourceType, policy := range policies {
		if policy.TTL <= 0 || policy.MaxEntries <= 0 {
			continue
		}
		m.shards[resourceType] = &shard{
			policy: policy,
			items:  make(map[string]*list.Element, policy.MaxEntries),
			order:  list.New(),
		}
	}

	if m.sweepInterval > 0 {
		go m.sweepLoop()
	} else {
		close(m.doneCh)
	}
	return m
}

func (m *MemoryCache) Get(resourceType, key string) ([]byte, bool) {
	s, ok := m.shards[resourceType]
	if !ok {
		return nil, false
	}

	now := m.now()
	s.mu.Lock()
	elem, found := s.items[key]
	if !found {
		s.misses++
		s.mu.Unlock()
		m.recorder.CacheMiss(resourceType)
		return nil, false
	}

	item := elem.Value.(*memoryItem)
	if s.expired(item, now) {
		s.remove(elem)
		s.expirations++
		s.misses++
		s.mu.Unlock()
		m.recorder.CacheEviction(resourceType, "expired")
		m.recorder.CacheMiss(resourceType)
		return nil, false
	}
	s.hits++
	value := item.value
	s.mu.Unlock()

	m.recorder.CacheHit(resourceType)
	return value, true
}

// Set inserts or replaces key. A replaced entry counts as a fresh insertion.
func (m *MemoryCache) Set(resourceType, key string, value []byte) {
	s, ok := m.shards[resourceType]
	if !ok {
		return
	}

	now := m.now()
	evicted := 0
	s.mu.Lock()
	if elem, found := s.items[key]; found {
		item := elem.Value.(*memoryItem)
		item.value = value
		item.insertedAt = now
		s.order.MoveToBack(elem)
		s.mu.Unlock()
		return
	}

	for s.order.Len() >= s.policy.MaxEntries {
		s.remove(s.order.Front())
		s.evictions++
		evicted++
	}
	s.items[key] = s.order.PushBack(&memoryItem{key: key, value: value, insertedAt: now})
	s.mu.Unlock()

	for i := 0; i < evicted; i++ {
		m.recorder.CacheEviction(resourceType, "capacity")
	}
}

func (m *MemoryCache) Invalidate(resourceType, key string) {
	s, ok := m.shards[resourceType]
	if !ok {
		return
	}

	s.mu.Lock()
	if elem, found := s.items[key]; found {
		s.remove(elem)
	}
	s.mu.Unlock()
}

func (m *MemoryCache) Stats() map[string]Stats {
	out := make(map[string]Stats, len(m.shards))
	for resourceType, s := range m.shards {
		s.mu.Lock()
		st := Stats{
			Hits:        s.hits,
			Misses:      s.misses,
			Evictions:   s.evictions,
			Expirations: s.expirations,
			Entries:     s.order.Len(),
		}
		s.mu.Unlock()
		if total := st.Hits + st.Misses; total > 0 {
			st.HitRate = float64(st.Hits) / float64(total)
		}
		out[resourceType] = st
	}
	return out
}

// ResourceTypes lists the configured resource types in name order.
func (m *MemoryCache) ResourceTypes() []string {
	types := make([]string, 0, len(m.shards))
	for resourceType := range m.shards {
		types = append(types, resourceType)
	}
	sort.Strings(types)
	return types
}

// Sweep removes every expired entry and returns how many were removed.
func (m *MemoryCache) Sweep() int {
	now := m.now()
	total := 0
	for resourceType, s := range m.shards {
		removed := s.sweep(now)
		for i := 0; i < removed; i++ {
			m.recorder.CacheEviction(resourceType, "expired")
		}
		total += removed
	}
	return total
}

func (m *MemoryCache) Close() error {
	m.closeOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.doneCh
	return nil
}

func (m *MemoryCache) sweepLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := m.Sweep(); removed > 0 {
				m.logger.Debugf("Swept expired cache entries: removed=%d", removed)
			}
		case <-m.stopCh:
			return
		}
	}
}

// expired reports whether item may no longer be served. An entry is
// readable up to and including insertedAt+TTL.
func (s *shard) expired(item *memoryItem, now time.Time) bool {
	return now.After(item.insertedAt.Add(s.policy.TTL))
}

func (s *shard) remove(elem *list.Element) {
	item := s.order.Remove(elem).(*memoryItem)
	delete(s.items, item.key)
}

// sweep walks from the oldest insertion. Entries share the shard TTL, so the
// walk stops at the first live entry.
func (s *shard) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for elem := s.order.Front(); elem != nil; {
		item := elem.Value.(*memoryItem)
		if !s.expired(item, now) {
			break
		}
		next := elem.Next()
		s.remove(elem)
		s.expirations++
		removed++
		elem = next
	}
	return removed
}

type nopRecorder struct{}

func (nopRecorder) CacheHit(string)              {}
func (nopRecorder) CacheMiss(string)             {}
func (nopRecorder) CacheEviction(string, string) {}
