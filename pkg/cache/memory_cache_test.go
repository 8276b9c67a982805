package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (testLogger) Info(string, ...interface{})   {}
func (testLogger) Error(string, ...interface{})  {}
func (testLogger) Debug(string, ...interface{})  {}
func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}
func (testLogger) Debugf(string, ...interface{}) {}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, clock *fakeClock, policies map[string]Policy) *MemoryCache {
	t.Helper()
	c := NewMemoryCache(policies, testLogger{}, WithClock(clock.Now))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestMemoryCacheExpiry(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, map[string]Policy{
		"packages": {TTL: 15 * time.Minute, MaxEntries: 10},
	})

	c.Set("packages", "pk1", []byte("basic"))

	clock.Advance(15 * time.Minute)
	value, ok := c.Get("packages", "pk1")
	require.True(t, ok, "readable until the TTL has fully elapsed")
	assert.Equal(t, []byte("basic"), value)

	clock.Advance(time.Millisecond)
	_, ok = c.Get("packages", "pk1")
	assert.False(t, ok)

	stats := c.Stats()["packages"]
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Expirations)
	assert.Zero(t, stats.Entries)
}

func TestMemoryCacheEvictsLeastRecentlyInserted(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, map[string]Policy{
		"users": {TTL: time.Hour, MaxEntries: 2},
	})

	c.Set("users", "a", []byte("1"))
	c.Set("users", "b", []byte("2"))

	// Reads do not protect an entry from eviction.
	_, ok := c.Get("users", "a")
	require.True(t, ok)

	c.Set("users", "c", []byte("3"))

	_, ok = c.Get("users", "a")
	assert.False(t, ok)
	_, ok = c.Get("users", "b")
	assert.True(t, ok)
	_, ok = c.Get("users", "c")
	assert.True(t, ok)
	assert.Equal(t, int64(1), c.Stats()["users"].Evictions)
}

func TestMemoryCacheReinsertRefreshesPosition(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, map[string]Policy{
		"users": {TTL: time.Minute, MaxEntries: 2},
	})

	c.Set("users", "a", []byte("1"))
	c.Set("users", "b", []byte("2"))
	clock.Advance(50 * time.Second)
	c.Set("users", "a", []byte("1b"))
	c.Set("users", "c", []byte("3"))

	_, ok := c.Get("users", "b")
	assert.False(t, ok, "b is now the oldest insertion")

	clock.Advance(30 * time.Second)
	value, ok := c.Get("users", "a")
	require.True(t, ok, "re-set restarts the TTL")
	assert.Equal(t, []byte("1b"), value)
}

func TestMemoryCacheInvalidate(t *testing.T) {
	c := newTestCache(t, newFakeClock(), map[string]Policy{
		"courses": {TTL: time.Minute, MaxEntries: 5},
	})

	c.Set("courses", "c1", []byte("go"))
	c.Invalidate("courses", "c1")
	c.Invalidate("courses", "missing")
	c.Invalidate("unknown", "c1")

	_, ok := c.Get("courses", "c1")
	assert.False(t, ok)
}

func TestMemoryCacheUnknownResourceTypeIsNotCached(t *testing.T) {
	c := newTestCache(t, newFakeClock(), map[string]Policy{
		"courses": {TTL: time.Minute, MaxEntries: 5},
	})

	c.Set("quizzes", "q1", []byte("x"))
	_, ok := c.Get("quizzes", "q1")
	assert.False(t, ok)
	assert.NotContains(t, c.Stats(), "quizzes")
	assert.Equal(t, []string{"courses"}, c.ResourceTypes())
}

func TestMemoryCacheSweep(t *testing.T) {
	clock := newFakeClock()
	c := newTestCache(t, clock, map[string]Policy{
		"packages":    {TTL: time.Minute, MaxEntries: 10},
		"enrollments": {TTL: 5 * time.Minute, MaxEntries: 10},
	})

	c.Set("packages", "old", []byte("1"))
	c.Set("enrollments", "e1", []byte("1"))
	clock.Advance(30 * time.Second)
	c.Set("packages", "new", []byte("2"))
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	stats := c.Stats()
	assert.Equal(t, 1, stats["packages"].Entries)
	assert.Equal(t, 1, stats["enrollments"].Entries)
}

func TestMemoryCacheBackgroundSweeper(t *testing.T) {
	clock := newFakeClock()
	c := NewMemoryCache(map[string]Policy{
		"users": {TTL: time.Minute, MaxEntries: 10},
	}, testLogger{}, WithClock(clock.Now), WithSweepInterval(5*time.Millisecond))

	c.Set("users", "u1", []byte("1"))
	clock.Advance(2 * time.Minute)

	assert.Eventually(t, func() bool {
		return c.Stats()["users"].Entries == 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := newTestCache(t, newFakeClock(), map[string]Policy{
		"users":    {TTL: time.Minute, MaxEntries: 50},
		"packages": {TTL: time.Minute, MaxEntries: 50},
	})

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rt := "users"
			if g%2 == 0 {
				rt = "packages"
			}
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%80)
				c.Set(rt, key, []byte(key))
				c.Get(rt, key)
				if i%7 == 0 {
					c.Invalidate(rt, key)
				}
			}
		}(g)
	}
	wg.Wait()

	for _, st := range c.Stats() {
		assert.LessOrEqual(t, st.Entries, 50)
	}
}

type countingRecorder struct {
	mu        sync.Mutex
	hits      int
	misses    int
	evictions map[string]int
}

func (r *countingRecorder) CacheHit(string) {
	r.mu.Lock()
	r.hits++
	r.mu.Unlock()
}

func (r *countingRecorder) CacheMiss(string) {
	r.mu.Lock()
	r.misses++
	r.mu.Unlock()
}

func (r *countingRecorder) CacheEviction(_ string, reason string) {
	r.mu.Lock()
	r.evictions[reason]++
	r.mu.Unlock()
}

func TestMemoryCacheRecorder(t *testing.T) {
	rec := &countingRecorder{evictions: map[string]int{}}
	clock := newFakeClock()
	c := NewMemoryCache(map[string]Policy{
		"users": {TTL: time.Minute, MaxEntries: 1},
	}, testLogger{}, WithClock(clock.Now), WithRecorder(rec))
	defer c.Close()

	c.Set("users", "a", []byte("1"))
	c.Get("users", "a")
	c.Set("users", "b", []byte("2"))
	c.Get("users", "a")
	clock.Advance(2 * time.Minute)
	c.Get("users", "b")

	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 2, rec.misses)
	assert.Equal(t, 1, rec.evictions["capacity"])
	assert.Equal(t, 1, rec.evictions["expired"])
}
