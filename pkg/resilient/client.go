package resilient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"go-payment-service/pkg/breaker"
	"go-payment-service/pkg/cache"
	"go-payment-service/pkg/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrUpstreamUnavailable covers an open breaker and exhausted retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrRateLimited is returned when the limiter cannot admit the call in time.
	ErrRateLimited = errors.New("upstream rate limit exceeded")
)

// UpstreamError carries the last cause of an unavailable upstream. It matches
// ErrUpstreamUnavailable with errors.Is.
type UpstreamError struct {
	Upstream string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Upstream, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

type RatePolicy string

const (
	// PolicyWait queues callers until a token frees up or their deadline would pass.
	PolicyWait RatePolicy = "wait"
	// PolicyReject fails excess callers immediately.
	PolicyReject RatePolicy = "reject"
)

type Config struct {
	RatePerSecond float64
	Burst         int
	Policy        RatePolicy

	Attempts     int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	CallTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.Policy == "" {
		c.Policy = PolicyWait
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 200 * time.Millisecond
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	return c
}

// Recorder receives call outcomes, e.g. for Prometheus.
type Recorder interface {
	UpstreamCall(upstream, outcome string, elapsed time.Duration)
	UpstreamRetry(upstream string)
}

// Classifier reports whether err is worth retrying.
type Classifier func(err error) bool

// Client guards calls to one upstream with cache, rate limiter, circuit
// breaker and bounded retry, in that order.
//
// Calls run detached from the caller's context. A caller that gives up only
// stops waiting; the call still completes and its outcome still reaches the
// breaker and the cache.
type Client struct {
	name     string
	cfg      Config
	store    cache.Store
	breaker  *breaker.Breaker
	limiter  *rate.Limiter
	group    singleflight.Group
	classify Classifier
	recorder Recorder
	logger   log.Logger
}

type Option func(*Client)

func WithClassifier(classify Classifier) Option {
	return func(c *Client) {
		if classify != nil {
			c.classify = classify
		}
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(c *Client) {
		if recorder != nil {
			c.recorder = recorder
		}
	}
}

// New builds a client for the named upstream. A nil store disables caching
// and a non-positive rate disables the limiter.
func New(name string, cfg Config, store cache.Store, br *breaker.Breaker, logger log.Logger, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		name:     name,
		cfg:      cfg,
		store:    store,
		breaker:  br,
		classify: IsTransient,
		recorder: nopRecorder{},
		logger:   logger.With(log.Upstream(name)),
	}
	if cfg.RatePerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) BreakerState() breaker.State {
	return c.breaker.State()
}

// Invalidate drops a cached value so the next Fetch reaches the upstream.
func (c *Client) Invalidate(resourceType, key string) {
	if c.store != nil {
		c.store.Invalidate(resourceType, key)
	}
}

// Fetch reads resourceType/key through the client. Identical in-flight
// fetches share one upstream call. A successful result is cached under the
// resource type's policy.
func Fetch[T any](ctx context.Context, c *Client, resourceType, key string, call func(context.Context) (T, error)) (T, error) {
	var zero T

	if value, ok := c.cached(resourceType, key); ok {
		var out T
		if err := json.Unmarshal(value, &out); err == nil {
			return out, nil
		}
		c.store.Invalidate(resourceType, key)
	}

	if err := c.acquire(ctx); err != nil {
		return zero, err
	}

	results := c.group.DoChan(resourceType+":"+key, func() (interface{}, error) {
		v, err := c.execute(ctx, func(callCtx context.Context) (interface{}, error) {
			return call(callCtx)
		})
		if err == nil {
			c.populate(resourceType, key, v)
		}
		return v, err
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return zero, res.Err
		}
		out, _ := res.Val.(T)
		return out, nil
	}
}

func (c *Client) cached(resourceType, key string) ([]byte, bool) {
	if c.store == nil || resourceType == "" {
		return nil, false
	}
	return c.store.Get(resourceType, key)
}

func (c *Client) populate(resourceType, key string, value interface{}) {
	if c.store == nil || resourceType == "" {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to encode upstream result for cache",
			log.ResourceType(resourceType), log.String("key", key), log.Error(err))
		return
	}
	c.store.Set(resourceType, key, raw)
}

// acquire applies the rate policy in the caller's goroutine, under the
// caller's deadline.
func (c *Client) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	if c.cfg.Policy == PolicyReject {
		if !c.limiter.Allow() {
			c.recorder.UpstreamCall(c.name, "rate_limited", 0)
			return ErrRateLimited
		}
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		c.recorder.UpstreamCall(c.name, "rate_limited", 0)
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

// execute runs call behind the breaker with bounded exponential retry. It
// never inherits cancellation from parent, only its values.
func (c *Client) execute(parent context.Context, call func(context.Context) (interface{}, error)) (interface{}, error) {
	start := time.Now()

	done, err := c.breaker.Allow()
	if err != nil {
		c.recorder.UpstreamCall(c.name, "rejected", 0)
		return nil, &UpstreamError{Upstream: c.name, Err: err}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), c.cfg.CallTimeout)
	defer cancel()

	var (
		result    interface{}
		permanent bool
		attempt   int
	)
	operation := func() error {
		attempt++
		v, err := call(ctx)
		if err == nil {
			result = v
			return nil
		}
		if !c.classify(err) {
			permanent = true
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.recorder.UpstreamRetry(c.name)
		c.logger.Warn("Upstream call failed, retrying",
			log.Attempt(attempt), log.Duration("backoff", wait), log.Error(err))
	}

	err = backoff.RetryNotify(operation, c.newBackOff(ctx), notify)
	elapsed := time.Since(start)
	switch {
	case err == nil:
		done(true)
		c.recorder.UpstreamCall(c.name, "success", elapsed)
		return result, nil
	case permanent:
		// The upstream answered; a rejected request says nothing about its health.
		done(true)
		c.recorder.UpstreamCall(c.name, "rejected_by_upstream", elapsed)
		return nil, err
	default:
		done(false)
		c.recorder.UpstreamCall(c.name, "failure", elapsed)
		c.logger.Error("Upstream call failed",
			log.Attempt(attempt), log.String("breaker_state", c.breaker.State().String()), log.Error(err))
		return nil, &UpstreamError{Upstream: c.name, Err: err}
	}
}

func (c *Client) newBackOff(ctx context.Context) backoff.BackOff {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     c.cfg.InitialDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.cfg.MaxDelay,
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.cfg.Attempts-1)), ctx)
}

type nopRecorder struct{}

func (nopRecorder) UpstreamCall(string, string, time.Duration) {}
func (nopRecorder) UpstreamRetry(string)                       {}
