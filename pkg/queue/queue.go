package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrEmpty is returned by Dequeue when nothing arrived before the timeout.
	ErrEmpty = errors.New("queue is empty")
	// ErrNotFound is returned when a dead letter id is unknown.
	ErrNotFound = errors.New("job not found")
)

// Job is the wire envelope shared by producers and consumers. Payload is
// opaque to the queue.
type Job struct {
	ID          string              `json:"id"`
	Kind        string              `json:"kind"`
	Payload     jsoniter.RawMessage `json:"payload"`
	Attempt     int                 `json:"attempt"`
	MaxAttempts int                 `json:"maxAttempts"`
	CreatedAt   int64               `json:"createdAt"`
	LastError   string              `json:"lastError,omitempty"`

	// raw is the encoded form as stored in the processing list; acks and
	// moves remove exactly this value.
	raw []byte
}

// Exhausted reports whether the job has no delivery attempt left.
func (j *Job) Exhausted() bool {
	return j.MaxAttempts > 0 && j.Attempt+1 >= j.MaxAttempts
}

// DeadLetter is a job that ran out of attempts, kept verbatim with the error
// of its final attempt.
type DeadLetter struct {
	Job      Job    `json:"job"`
	Error    string `json:"error"`
	FailedAt int64  `json:"failedAt"`
}

// Queue is a durable FIFO with delayed redelivery and a dead-letter list.
//
// A dequeued job stays reserved until the consumer calls exactly one of Ack,
// Requeue or DeadLetter on it.
type Queue interface {
	Publish(ctx context.Context, job *Job) error
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	Requeue(ctx context.Context, job *Job, at time.Time) error
	DeadLetter(ctx context.Context, job *Job, cause error) error
	DeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error)
	RequeueDeadLetter(ctx context.Context, jobID string) (*Job, error)
	Len(ctx context.Context) (int64, error)
	Close() error
}

// Names identifies the keys of one queue. Both are configuration.
type Names struct {
	Primary    string `json:"primary" yaml:"primary"`
	DeadLetter string `json:"dead_letter" yaml:"dead_letter"`
}

func (n Names) delayed() string {
	return n.Primary + ":delayed"
}

func (n Names) processing(consumerID string) string {
	return n.Primary + ":processing:" + consumerID
}

func (n Names) validate() error {
	if n.Primary == "" || n.DeadLetter == "" {
		return fmt.Errorf("queue names are required: primary=%q dead_letter=%q", n.Primary, n.DeadLetter)
	}
	if n.Primary == n.DeadLetter {
		return fmt.Errorf("dead letter queue must differ from primary queue %q", n.Primary)
	}
	return nil
}

type Logger interface {
	Info(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

func encode(job *Job) ([]byte, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	return raw, nil
}

func decode(raw []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	job.raw = raw
	return &job, nil
}

// quote keeps an undecodable envelope as a JSON string so it can still be
// stored as a payload.
func quote(raw []byte) jsoniter.RawMessage {
	quoted, _ := json.Marshal(string(raw))
	return quoted
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
