package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

type delayedJob struct {
	raw []byte
	at  time.Time
}

// MemoryQueue is a single-process Queue for local runs and tests. Jobs are
// kept encoded so consumers never share memory with producers.
type MemoryQueue struct {
	mu       sync.Mutex
	ready    [][]byte
	delayed  []delayedJob
	reserved map[string][]byte
	dead     []*DeadLetter

	signal       chan struct{}
	pollInterval time.Duration
	now          func() time.Time
}

type MemoryOption func(*MemoryQueue)

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(q *MemoryQueue) {
		if now != nil {
			q.now = now
		}
	}
}

func WithPollInterval(d time.Duration) MemoryOption {
	return func(q *MemoryQueue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

func NewMemoryQueue(opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		reserved:     make(map[string][]byte),
		signal:       make(chan struct{}, 1),
		pollInterval: 50 * time.Millisecond,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) Publish(_ context.Context, job *Job) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.ready = append(q.ready, raw)
	q.mu.Unlock()
	q.wake()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		if job, err := q.pop(); job != nil || err != nil {
			return job, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ErrEmpty
		case <-q.signal:
		case <-ticker.C:
		}
	}
}

func (q *MemoryQueue) pop() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.promoteLocked()
	if len(q.ready) == 0 {
		return nil, nil
	}
	raw := q.ready[0]
	q.ready = q.ready[1:]

	job, err := decode(raw)
	if err != nil {
		q.dead = append(q.dead, &DeadLetter{
			Job:      Job{Payload: quote(raw)},
			Error:    "malformed envelope: " + err.Error(),
			FailedAt: q.now().UnixMilli(),
		})
		return nil, nil
	}
	q.reserved[job.ID] = raw
	return job, nil
}

func (q *MemoryQueue) promoteLocked() {
	if len(q.delayed) == 0 {
		return
	}
	now := q.now()
	kept := q.delayed[:0]
	for _, d := range q.delayed {
		if d.at.After(now) {
			kept = append(kept, d)
			continue
		}
		q.ready = append(q.ready, d.raw)
	}
	q.delayed = kept
}

func (q *MemoryQueue) Ack(_ context.Context, job *Job) error {
	q.mu.Lock()
	delete(q.reserved, job.ID)
	q.mu.Unlock()
	return nil
}

func (q *MemoryQueue) Requeue(_ context.Context, job *Job, at time.Time) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}
	q.mu.Lock()
	delete(q.reserved, job.ID)
	q.delayed = append(q.delayed, delayedJob{raw: raw, at: at})
	sort.SliceStable(q.delayed, func(i, j int) bool { return q.delayed[i].at.Before(q.delayed[j].at) })
	q.mu.Unlock()
	job.raw = raw
	return nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, job *Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.reserved, job.ID)
	q.dead = append(q.dead, &DeadLetter{Job: *job, Error: errorString(cause), FailedAt: q.now().UnixMilli()})
	return nil
}

// DeadLetters lists the newest dead letters first.
func (q *MemoryQueue) DeadLetters(_ context.Context, limit int) ([]*DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if limit <= 0 || limit > len(q.dead) {
		limit = len(q.dead)
	}
	out := make([]*DeadLetter, 0, limit)
	for i := len(q.dead) - 1; i >= 0 && len(out) < limit; i-- {
		letter := *q.dead[i]
		out = append(out, &letter)
	}
	return out, nil
}

func (q *MemoryQueue) RequeueDeadLetter(_ context.Context, jobID string) (*Job, error) {
	q.mu.Lock()
	var job *Job
	for i, letter := range q.dead {
		if letter.Job.ID != jobID {
			continue
		}
		revived := letter.Job
		revived.Attempt = 0
		revived.LastError = letter.Error
		raw, err := encode(&revived)
		if err != nil {
			q.mu.Unlock()
			return nil, err
		}
		q.dead = append(q.dead[:i], q.dead[i+1:]...)
		q.ready = append(q.ready, raw)
		job = &revived
		break
	}
	q.mu.Unlock()

	if job == nil {
		return nil, ErrNotFound
	}
	q.wake()
	return job, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready)), nil
}

// Pending counts jobs waiting for their retry time.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.delayed)
}

func (q *MemoryQueue) Close() error {
	return nil
}

func (q *MemoryQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
