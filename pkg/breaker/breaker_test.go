package breaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

type transition struct {
	from, to State
}

func newTestBreaker(t *testing.T) (*Breaker, *fakeClock, *[]transition) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	var mu sync.Mutex
	transitions := &[]transition{}
	b := New("course-service", Settings{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenSuccess:  2,
		Now:              clock.Now,
		OnStateChange: func(name string, from, to State) {
			mu.Lock()
			*transitions = append(*transitions, transition{from, to})
			mu.Unlock()
		},
	})
	return b, clock, transitions
}

var errUpstream = errors.New("upstream down")

func fail(b *Breaker) error {
	return b.Execute(func() error { return errUpstream })
}

func succeed(b *Breaker) error {
	return b.Execute(func() error { return nil })
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b, _, transitions := newTestBreaker(t)

	for i := 0; i < 4; i++ {
		require.ErrorIs(t, fail(b), errUpstream)
		assert.Equal(t, StateClosed, b.State())
	}
	require.ErrorIs(t, fail(b), errUpstream)
	assert.Equal(t, StateOpen, b.State())

	calls := 0
	err := b.Execute(func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls, "upstream must not be invoked while open")
	assert.Equal(t, []transition{{StateClosed, StateOpen}}, *transitions)
}

func TestBreakerSuccessResetsFailures(t *testing.T) {
	b, _, _ := newTestBreaker(t)

	for i := 0; i < 4; i++ {
		_ = fail(b)
	}
	require.NoError(t, succeed(b))
	assert.Zero(t, b.Counts().ConsecutiveFailures)

	for i := 0; i < 4; i++ {
		_ = fail(b)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenClosesAfterSuccesses(t *testing.T) {
	b, clock, transitions := newTestBreaker(t)
	for i := 0; i < 5; i++ {
		_ = fail(b)
	}

	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, succeed(b), ErrCircuitOpen)

	clock.Advance(time.Second)
	require.NoError(t, succeed(b))
	assert.Equal(t, StateHalfOpen, b.State())
	assert.Equal(t, 1, b.Counts().HalfOpenSuccesses)

	require.NoError(t, succeed(b))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, Counts{State: StateClosed}, b.Counts())

	assert.Equal(t, []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}, *transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock, _ := newTestBreaker(t)
	for i := 0; i < 5; i++ {
		_ = fail(b)
	}
	clock.Advance(30 * time.Second)

	require.NoError(t, succeed(b))
	require.ErrorIs(t, fail(b), errUpstream)
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, clock.Now(), b.Counts().OpenedAt)

	assert.ErrorIs(t, succeed(b), ErrCircuitOpen, "cooldown restarts")
}

func TestBreakerAdmitsExactlyOneProbe(t *testing.T) {
	b, clock, _ := newTestBreaker(t)
	for i := 0; i < 5; i++ {
		_ = fail(b)
	}
	clock.Advance(31 * time.Second)

	var admitted atomic.Int32
	var dones sync.Map
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			done, err := b.Allow()
			if err == nil {
				admitted.Add(1)
				dones.Store(i, done)
				return
			}
			assert.ErrorIs(t, err, ErrCircuitOpen)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), admitted.Load())
	dones.Range(func(_, v any) bool {
		v.(func(bool))(true)
		return true
	})
	assert.Equal(t, StateHalfOpen, b.State())

	_, err := b.Allow()
	assert.NoError(t, err, "next probe is admitted once the first reported")
}

func TestBreakerIgnoresStaleOutcomes(t *testing.T) {
	b, _, _ := newTestBreaker(t)

	slow, err := b.Allow()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_ = fail(b)
	}
	require.Equal(t, StateOpen, b.State())

	slow(true)
	assert.Equal(t, StateOpen, b.State(), "a call admitted before the trip cannot close the breaker")
}

func TestBreakerDoneIsIdempotent(t *testing.T) {
	b, _, _ := newTestBreaker(t)

	done, err := b.Allow()
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		done(false)
	}
	assert.Equal(t, 1, b.Counts().ConsecutiveFailures)
}

func TestBreakerReplacesLostProbe(t *testing.T) {
	b, clock, _ := newTestBreaker(t)
	for i := 0; i < 5; i++ {
		_ = fail(b)
	}
	clock.Advance(30 * time.Second)

	lost, err := b.Allow()
	require.NoError(t, err)

	_, err = b.Allow()
	require.ErrorIs(t, err, ErrCircuitOpen)

	clock.Advance(30 * time.Second)
	probe, err := b.Allow()
	require.NoError(t, err)

	lost(false)
	assert.Equal(t, StateHalfOpen, b.State(), "the replaced probe no longer counts")

	probe(true)
	assert.Equal(t, 1, b.Counts().HalfOpenSuccesses)
}

func TestRegistryIsolatesUpstreams(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 2, ResetTimeout: time.Minute})

	course := r.Get("course-service")
	assert.Same(t, course, r.Get("course-service"))

	_ = fail(course)
	_ = fail(course)
	assert.Equal(t, StateOpen, course.State())

	user := r.Get("user-service")
	assert.Equal(t, StateClosed, user.State())
	assert.NoError(t, succeed(user))

	snap := r.Snapshot()
	assert.Equal(t, StateOpen, snap["course-service"].State)
	assert.Equal(t, StateClosed, snap["user-service"].State)
}

func TestSettingsDefaults(t *testing.T) {
	s := Settings{}.withDefaults()
	assert.Equal(t, DefaultFailureThreshold, s.FailureThreshold)
	assert.Equal(t, DefaultResetTimeout, s.ResetTimeout)
	assert.Equal(t, DefaultHalfOpenSuccess, s.HalfOpenSuccess)
	assert.NotNil(t, s.Now)
}
