package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
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

var testNames = Names{Primary: "notifications", DeadLetter: "notifications:dead"}

func newTestRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	q, err := NewRedisQueue(rdb, testNames, testLogger{}, WithConsumerID("worker-1"), WithRedisClock(clock.Now))
	require.NoError(t, err)
	return q, mr, clock
}

func newJob(id string) *Job {
	return &Job{
		ID:          id,
		Kind:        "payment-confirmation",
		Payload:     []byte(`{"paymentId":"p1"}`),
		MaxAttempts: 3,
		CreatedAt:   1704067200000,
	}
}

func TestNewRedisQueueValidatesNames(t *testing.T) {
	_, err := NewRedisQueue(nil, Names{Primary: "q"}, testLogger{})
	assert.Error(t, err)

	_, err = NewRedisQueue(nil, Names{Primary: "q", DeadLetter: "q"}, testLogger{})
	assert.Error(t, err)
}

func TestRedisQueueIsFIFO(t *testing.T) {
	q, _, _ := newTestRedisQueue(t)
	ctx := context.Background()

	for _, id := range []string{"j1", "j2", "j3"} {
		require.NoError(t, q.Publish(ctx, newJob(id)))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"j1", "j2", "j3"} {
		job, err := q.Dequeue(ctx, 100*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, want, job.ID)
		assert.JSONEq(t, `{"paymentId":"p1"}`, string(job.Payload))
		require.NoError(t, q.Ack(ctx, job))
	}
}

func TestRedisQueueDequeueTimesOut(t *testing.T) {
	q, _, _ := newTestRedisQueue(t)

	_, err := q.Dequeue(context.Background(), 50*time.Millisecond)
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestRedisQueueAckReleasesReservation(t *testing.T) {
	q, mr, _ := newTestRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, newJob("j1")))
	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	reserved, err := mr.List("notifications:processing:worker-1")
	require.NoError(t, err)
	assert.Len(t, reserved, 1)

	require.NoError(t, q.Ack(ctx, job))
	assert.False(t, mr.Exists("notifications:processing:worker-1"))
	n, _ := q.Len(ctx)
	assert.Zero(t, n)
}

func TestRedisQueueRequeueWaitsForDueTime(t *testing.T) {
	q, _, clock := newTestRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, newJob("j1")))
	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	job.Attempt++
	job.LastError = "smtp timeout"
	require.NoError(t, q.Requeue(ctx, job, clock.Now().Add(5*time.Second)))

	_, err = q.Dequeue(ctx, 50*time.Millisecond)
	require.True(t, errors.Is(err, ErrEmpty), "not due yet")

	clock.Advance(5 * time.Second)
	again, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "j1", again.ID)
	assert.Equal(t, 1, again.Attempt)
	assert.Equal(t, "smtp timeout", again.LastError)
}

func TestRedisQueuePromotesOnlyDueJobs(t *testing.T) {
	q, mr, clock := newTestRedisQueue(t)
	ctx := context.Background()
	now := clock.Now()

	for _, job := range []struct {
		id  string
		due time.Time
	}{
		{"j2", now.Add(-time.Second)},
		{"j1", now.Add(-2 * time.Second)},
		{"j3", now.Add(10 * time.Second)},
	} {
		raw, err := json.Marshal(newJob(job.id))
		require.NoError(t, err)
		_, err = mr.ZAdd(testNames.delayed(), float64(job.due.UnixMilli()), string(raw))
		require.NoError(t, err)
	}

	require.NoError(t, q.promote(ctx))

	delayed, err := mr.ZMembers(testNames.delayed())
	require.NoError(t, err)
	assert.Len(t, delayed, 1, "j3 is not due yet")

	first, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	second, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []string{"j1", "j2"}, []string{first.ID, second.ID}, "earliest due time first")

	_, err = q.Dequeue(ctx, 50*time.Millisecond)
	assert.True(t, errors.Is(err, ErrEmpty))

	clock.Advance(10 * time.Second)
	require.NoError(t, q.promote(ctx))
	assert.False(t, mr.Exists(testNames.delayed()))
	primary, err := mr.List(testNames.Primary)
	require.NoError(t, err)
	assert.Len(t, primary, 1)
}

func TestRedisQueueDeadLetterKeepsJobVerbatim(t *testing.T) {
	q, mr, clock := newTestRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, newJob("j1")))
	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	job.Attempt = 2

	require.NoError(t, q.DeadLetter(ctx, job, errors.New("mailbox unavailable")))

	assert.False(t, mr.Exists("notifications:processing:worker-1"))
	n, _ := q.Len(ctx)
	assert.Zero(t, n, "removed from the primary queue")

	letters, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, "j1", letters[0].Job.ID)
	assert.Equal(t, 2, letters[0].Job.Attempt)
	assert.JSONEq(t, `{"paymentId":"p1"}`, string(letters[0].Job.Payload))
	assert.Equal(t, "mailbox unavailable", letters[0].Error)
	assert.Equal(t, clock.Now().UnixMilli(), letters[0].FailedAt)
}

func TestRedisQueueRequeueDeadLetter(t *testing.T) {
	q, _, _ := newTestRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, newJob("j1")))
	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	job.Attempt = 2
	require.NoError(t, q.DeadLetter(ctx, job, errors.New("boom")))

	_, err = q.RequeueDeadLetter(ctx, "unknown")
	assert.True(t, errors.Is(err, ErrNotFound))

	revived, err := q.RequeueDeadLetter(ctx, "j1")
	require.NoError(t, err)
	assert.Zero(t, revived.Attempt)
	assert.Equal(t, "boom", revived.LastError)

	letters, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, letters)

	again, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "j1", again.ID)
	assert.Zero(t, again.Attempt)
}

func TestRedisQueueMalformedEnvelopeIsDeadLettered(t *testing.T) {
	q, mr, _ := newTestRedisQueue(t)
	ctx := context.Background()

	_, err := mr.Lpush("notifications", "not json")
	require.NoError(t, err)

	_, err = q.Dequeue(ctx, 100*time.Millisecond)
	require.True(t, errors.Is(err, ErrEmpty))

	letters, err := q.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Contains(t, letters[0].Error, "malformed envelope")
}

func TestRedisQueueRecoverReturnsReservedJobs(t *testing.T) {
	q, _, _ := newTestRedisQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, newJob("j1")))
	require.NoError(t, q.Publish(ctx, newJob("j2")))
	_, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)

	recovered, err := q.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	job, err := q.Dequeue(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID, "recovered job goes first")
}

func TestJobExhausted(t *testing.T) {
	job := &Job{MaxAttempts: 3}
	assert.False(t, job.Exhausted())
	job.Attempt = 1
	assert.False(t, job.Exhausted())
	job.Attempt = 2
	assert.True(t, job.Exhausted())
}
