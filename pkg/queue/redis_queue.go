package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const promoteBatch = 100

// promoteScript moves due members of the delayed set (KEYS[1]) to the primary
// list (KEYS[2]) in one step, oldest due time first. ARGV[1] is now in
// milliseconds, ARGV[2] the batch size.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, member in ipairs(due) do
	if redis.call('ZREM', KEYS[1], member) == 1 then
		redis.call('LPUSH', KEYS[2], member)
	end
end
return #due
`)

// RedisQueue keeps ready jobs in a list, delayed jobs in a sorted set scored
// by due time in milliseconds, and reserved jobs in a per-consumer
// processing list.
type RedisQueue struct {
	client     *redis.Client
	names      Names
	consumerID string
	now        func() time.Time
	logger     Logger
}

type RedisOption func(*RedisQueue)

func WithConsumerID(id string) RedisOption {
	return func(q *RedisQueue) {
		if id != "" {
			q.consumerID = id
		}
	}
}

func WithRedisClock(now func() time.Time) RedisOption {
	return func(q *RedisQueue) {
		if now != nil {
			q.now = now
		}
	}
}

func NewRedisQueue(client *redis.Client, names Names, logger Logger, opts ...RedisOption) (*RedisQueue, error) {
	if err := names.validate(); err != nil {
		return nil, err
	}
	q := &RedisQueue{
		client:     client,
		names:      names,
		consumerID: "default",
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

func (q *RedisQueue) Publish(ctx context.Context, job *Job) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.names.Primary, raw).Err(); err != nil {
		return fmt.Errorf("publish job %s: %w", job.ID, err)
	}
	return nil
}

// Dequeue promotes due delayed jobs, then blocks up to timeout for the oldest
// ready job and reserves it.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	if err := q.promote(ctx); err != nil {
		return nil, err
	}

	raw, err := q.client.BLMove(ctx, q.names.Primary, q.processing(), "RIGHT", "LEFT", timeout).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("dequeue from %s: %w", q.names.Primary, err)
	}

	job, err := decode(raw)
	if err != nil {
		q.logger.Error("Malformed job envelope, moving to dead letter queue", "error", err)
		if buryErr := q.bury(ctx, raw, &DeadLetter{
			Job:      Job{Payload: quote(raw)},
			Error:    fmt.Sprintf("malformed envelope: %v", err),
			FailedAt: q.now().UnixMilli(),
		}); buryErr != nil {
			return nil, buryErr
		}
		return nil, ErrEmpty
	}
	return job, nil
}

func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	if err := q.client.LRem(ctx, q.processing(), 1, job.raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	return nil
}

// Requeue releases the reservation and schedules job, as it is now, for at.
func (q *RedisQueue) Requeue(ctx context.Context, job *Job, at time.Time) error {
	raw, err := encode(job)
	if err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.processing(), 1, job.raw)
	pipe.ZAdd(ctx, q.names.delayed(), redis.Z{Score: float64(at.UnixMilli()), Member: raw})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue job %s: %w", job.ID, err)
	}
	job.raw = raw
	return nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	return q.bury(ctx, job.raw, &DeadLetter{
		Job:      *job,
		Error:    errorString(cause),
		FailedAt: q.now().UnixMilli(),
	})
}

func (q *RedisQueue) bury(ctx context.Context, reserved []byte, letter *DeadLetter) error {
	raw, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("encode dead letter %s: %w", letter.Job.ID, err)
	}

	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.names.DeadLetter, raw)
	pipe.LRem(ctx, q.processing(), 1, reserved)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dead letter job %s: %w", letter.Job.ID, err)
	}
	return nil
}

// DeadLetters lists the newest dead letters first.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	raws, err := q.client.LRange(ctx, q.names.DeadLetter, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	letters := make([]*DeadLetter, 0, len(raws))
	for _, raw := range raws {
		var letter DeadLetter
		if err := json.Unmarshal([]byte(raw), &letter); err != nil {
			q.logger.Error("Skipping unreadable dead letter", "error", err)
			continue
		}
		letters = append(letters, &letter)
	}
	return letters, nil
}

// RequeueDeadLetter moves one dead letter back to the primary queue with a
// fresh attempt budget.
func (q *RedisQueue) RequeueDeadLetter(ctx context.Context, jobID string) (*Job, error) {
	raws, err := q.client.LRange(ctx, q.names.DeadLetter, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	for _, raw := range raws {
		var letter DeadLetter
		if err := json.Unmarshal([]byte(raw), &letter); err != nil || letter.Job.ID != jobID {
			continue
		}

		job := letter.Job
		job.Attempt = 0
		job.LastError = letter.Error
		encoded, err := encode(&job)
		if err != nil {
			return nil, err
		}

		removed, err := q.client.LRem(ctx, q.names.DeadLetter, 1, raw).Result()
		if err != nil {
			return nil, fmt.Errorf("remove dead letter %s: %w", jobID, err)
		}
		if removed == 0 {
			// Another admin requeued it first.
			return nil, ErrNotFound
		}
		if err := q.client.LPush(ctx, q.names.Primary, encoded).Err(); err != nil {
			if restoreErr := q.client.LPush(ctx, q.names.DeadLetter, raw).Err(); restoreErr != nil {
				q.logger.Error("Failed to restore dead letter", "job_id", jobID, "error", restoreErr)
			}
			return nil, fmt.Errorf("requeue dead letter %s: %w", jobID, err)
		}
		return &job, nil
	}
	return nil, ErrNotFound
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.names.Primary).Result()
	if err != nil {
		return 0, fmt.Errorf("length of %s: %w", q.names.Primary, err)
	}
	return n, nil
}

// Recover returns jobs reserved by a previous run of this consumer to the
// ready end of the primary queue.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	recovered := 0
	for {
		err := q.client.LMove(ctx, q.processing(), q.names.Primary, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			if recovered > 0 {
				q.logger.Info("Recovered reserved jobs", "count", recovered, "queue", q.names.Primary)
			}
			return recovered, nil
		}
		if err != nil {
			return recovered, fmt.Errorf("recover reserved jobs: %w", err)
		}
		recovered++
	}
}

func (q *RedisQueue) Close() error {
	return nil
}

// promote moves due delayed jobs to the primary queue.
func (q *RedisQueue) promote(ctx context.Context) error {
	keys := []string{q.names.delayed(), q.names.Primary}
	if err := promoteScript.Run(ctx, q.client, keys, q.now().UnixMilli(), promoteBatch).Err(); err != nil {
		return fmt.Errorf("promote delayed jobs: %w", err)
	}
	return nil
}

func (q *RedisQueue) processing() string {
	return q.names.processing(q.consumerID)
}
