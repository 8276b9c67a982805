package resilient

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go-payment-service/pkg/breaker"
	"go-payment-service/pkg/cache"
	"go-payment-service/pkg/log"
)

type course struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type kvLogger struct{}

func (kvLogger) Info(string, ...interface{})   {}
func (kvLogger) Error(string, ...interface{})  {}
func (kvLogger) Debug(string, ...interface{})  {}
func (kvLogger) Infof(string, ...interface{})  {}
func (kvLogger) Errorf(string, ...interface{}) {}
func (kvLogger) Debugf(string, ...interface{}) {}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	client  *Client
	store   *cache.MemoryCache
	breaker *breaker.Breaker
	clock   *clock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := cache.NewMemoryCache(map[string]cache.Policy{
		"courses": {TTL: 15 * time.Minute, MaxEntries: 100},
	}, kvLogger{}, cache.WithClock(clk.Now))
	t.Cleanup(func() { _ = store.Close() })

	br := breaker.New("course-service", breaker.Settings{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenSuccess:  2,
		Now:              clk.Now,
	})
	if cfg.InitialDelay == 0 {
		cfg.InitialDelay = time.Millisecond
		cfg.MaxDelay = 4 * time.Millisecond
	}
	return &fixture{
		client:  New("course-service", cfg, store, br, log.NewNop()),
		store:   store,
		breaker: br,
		clock:   clk,
	}
}

var errUnavailable = status.Error(codes.Unavailable, "connection refused")

func TestFetchCachesSuccessfulResult(t *testing.T) {
	f := newFixture(t, Config{})
	var calls atomic.Int32
	call := func(ctx context.Context) (*course, error) {
		calls.Add(1)
		return &course{ID: "c1", Title: "Go"}, nil
	}

	got, err := Fetch(context.Background(), f.client, "courses", "c1", call)
	require.NoError(t, err)
	assert.Equal(t, "Go", got.Title)

	got, err = Fetch(context.Background(), f.client, "courses", "c1", call)
	require.NoError(t, err)
	assert.Equal(t, "Go", got.Title)
	assert.Equal(t, int32(1), calls.Load(), "second read is served from cache")

	f.client.Invalidate("courses", "c1")
	_, err = Fetch(context.Background(), f.client, "courses", "c1", call)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	f := newFixture(t, Config{Attempts: 3})
	var calls atomic.Int32

	got, err := Fetch(context.Background(), f.client, "courses", "c1", func(ctx context.Context) (*course, error) {
		if calls.Add(1) < 3 {
			return nil, errUnavailable
		}
		return &course{ID: "c1"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, breaker.StateClosed, f.breaker.State())
	assert.Zero(t, f.breaker.Counts().ConsecutiveFailures)
}

func TestFetchDoesNotRetryPermanentFailures(t *testing.T) {
	f := newFixture(t, Config{Attempts: 3})
	notFound := status.Error(codes.NotFound, "course not found")
	var calls atomic.Int32

	for i := 0; i < 10; i++ {
		_, err := Fetch(context.Background(), f.client, "courses", "missing", func(ctx context.Context) (*course, error) {
			calls.Add(1)
			return nil, notFound
		})
		require.Error(t, err)
		assert.Equal(t, codes.NotFound, status.Code(err))
		assert.False(t, errors.Is(err, ErrUpstreamUnavailable))
	}

	assert.Equal(t, int32(10), calls.Load(), "one attempt per call")
	assert.Equal(t, breaker.StateClosed, f.breaker.State(), "4xx never trips the breaker")
	_, cached := f.store.Get("courses", "missing")
	assert.False(t, cached)
}

func TestFetchExhaustedRetriesSurfaceTypedError(t *testing.T) {
	f := newFixture(t, Config{Attempts: 3})
	var calls atomic.Int32

	_, err := Fetch(context.Background(), f.client, "courses", "c1", func(ctx context.Context) (*course, error) {
		calls.Add(1)
		return nil, errUnavailable
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	var upstreamErr *UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, "course-service", upstreamErr.Upstream)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 1, f.breaker.Counts().ConsecutiveFailures, "one exhausted call is one breaker failure")
}

func TestFetchFailFastAfterBreakerTrips(t *testing.T) {
	f := newFixture(t, Config{Attempts: 1})
	var calls atomic.Int32
	failing := func(ctx context.Context) (*course, error) {
		calls.Add(1)
		return nil, errUnavailable
	}

	for i := 0; i < 5; i++ {
		_, err := Fetch(context.Background(), f.client, "courses", "c1", failing)
		require.True(t, errors.Is(err, ErrUpstreamUnavailable))
	}
	require.Equal(t, breaker.StateOpen, f.client.BreakerState())

	_, err := Fetch(context.Background(), f.client, "courses", "c1", failing)
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.True(t, errors.Is(err, breaker.ErrCircuitOpen))
	assert.Equal(t, int32(5), calls.Load(), "sixth call makes no upstream attempt")

	f.clock.Advance(30 * time.Second)
	healthy := func(ctx context.Context) (*course, error) {
		calls.Add(1)
		return &course{ID: "c1"}, nil
	}
	_, err = Fetch(context.Background(), f.client, "courses", "probe-1", healthy)
	require.NoError(t, err)
	_, err = Fetch(context.Background(), f.client, "courses", "probe-2", healthy)
	require.NoError(t, err)
	assert.Equal(t, breaker.StateClosed, f.client.BreakerState())
}

func TestFetchOutcomeReachesBreakerAfterCallerGivesUp(t *testing.T) {
	f := newFixture(t, Config{Attempts: 1})
	release := make(chan struct{})
	finished := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := Fetch(ctx, f.client, "courses", "slow", func(callCtx context.Context) (*course, error) {
			defer close(finished)
			<-release
			assert.NoError(t, callCtx.Err(), "caller cancellation does not reach the upstream call")
			return nil, errUnavailable
		})
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	<-finished
	assert.Eventually(t, func() bool {
		return f.breaker.Counts().ConsecutiveFailures == 1
	}, time.Second, 5*time.Millisecond)
}

func TestFetchPopulatesCacheAfterCallerGivesUp(t *testing.T) {
	f := newFixture(t, Config{Attempts: 1})
	release := make(chan struct{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := Fetch(ctx, f.client, "courses", "c9", func(callCtx context.Context) (*course, error) {
		<-release
		return &course{ID: "c9", Title: "Late"}, nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	assert.Eventually(t, func() bool {
		_, ok := f.store.Get("courses", "c9")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestFetchSharesInFlightCalls(t *testing.T) {
	f := newFixture(t, Config{})
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Fetch(context.Background(), f.client, "courses", "c1", func(ctx context.Context) (*course, error) {
				calls.Add(1)
				<-release
				return &course{ID: "c1"}, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "c1", got.ID)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(2))
}

// uncached issues one call that bypasses the cache.
func uncached(ctx context.Context, c *Client, key string, call func(context.Context) error) error {
	_, err := Fetch(ctx, c, "", key, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	})
	return err
}

func TestRateLimitRejectPolicy(t *testing.T) {
	f := newFixture(t, Config{RatePerSecond: 0.001, Burst: 1, Policy: PolicyReject})

	err := uncached(context.Background(), f.client, "a", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	err = uncached(context.Background(), f.client, "b", func(ctx context.Context) error {
		t.Error("rate limited call must not run")
		return nil
	})
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, breaker.StateClosed, f.breaker.State())
	assert.Zero(t, f.breaker.Counts().ConsecutiveFailures, "rate limiting is not an upstream failure")
}

func TestRateLimitWaitPolicyHonoursDeadline(t *testing.T) {
	f := newFixture(t, Config{RatePerSecond: 0.001, Burst: 1, Policy: PolicyWait})

	require.NoError(t, uncached(context.Background(), f.client, "a", func(ctx context.Context) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := uncached(ctx, f.client, "b", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRateLimitWaitPolicyQueues(t *testing.T) {
	f := newFixture(t, Config{RatePerSecond: 100, Burst: 1, Policy: PolicyWait})

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, uncached(context.Background(), f.client, strconv.Itoa(i), func(ctx context.Context) error { return nil }))
	}
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

type statusErr int

func (e statusErr) Error() string   { return http.StatusText(int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"grpc unavailable", errUnavailable, true},
		{"grpc resource exhausted", status.Error(codes.ResourceExhausted, "slow down"), true},
		{"grpc not found", status.Error(codes.NotFound, "nope"), false},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad"), false},
		{"http 503", statusErr(http.StatusServiceUnavailable), true},
		{"http 429", statusErr(http.StatusTooManyRequests), true},
		{"http 400", statusErr(http.StatusBadRequest), false},
		{"http 404", statusErr(http.StatusNotFound), false},
		{"unknown", errors.New("connection reset by peer"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}
