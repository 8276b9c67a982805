package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-payment-service/common"
	"go-payment-service/domain"
	"go-payment-service/pkg/email"
	"go-payment-service/pkg/log"
	"go-payment-service/pkg/queue"
	"go-payment-service/pkg/resilient"
)

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

type fakeUsers struct {
	mu        sync.Mutex
	users     map[string]*domain.UserProfile
	err       error
	forgotten []string
}

func (f *fakeUsers) Forget(userID string) {
	f.mu.Lock()
	f.forgotten = append(f.forgotten, userID)
	f.mu.Unlock()
}

func (f *fakeUsers) GetUser(_ context.Context, userID string) (*domain.UserProfile, error) {
	if f.err != nil {
		return nil, f.err
	}
	user, ok := f.users[userID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

type fakeCatalog struct{}

func (fakeCatalog) GetCourse(_ context.Context, id string) (*domain.Course, error) {
	return &domain.Course{ID: id, Title: "Golang Fundamentals", Published: true}, nil
}

func (fakeCatalog) GetPackage(_ context.Context, id string) (*domain.Package, error) {
	return &domain.Package{ID: id}, nil
}

type failingQueue struct {
	queue.Queue
}

func (failingQueue) Publish(context.Context, *queue.Job) error {
	return errors.New("redis: connection refused")
}

type recordingMetrics struct {
	mu           sync.Mutex
	enqueued     int
	failed       int
	delivered    int
	retried      int
	deadLettered int
}

func (m *recordingMetrics) inc(counter *int) {
	m.mu.Lock()
	*counter++
	m.mu.Unlock()
}

func (m *recordingMetrics) JobEnqueued(string)                 { m.inc(&m.enqueued) }
func (m *recordingMetrics) JobPublishFailed(string)            { m.inc(&m.failed) }
func (m *recordingMetrics) JobDelivered(string, time.Duration) { m.inc(&m.delivered) }
func (m *recordingMetrics) JobRetried(string)                  { m.inc(&m.retried) }
func (m *recordingMetrics) JobDeadLettered(string)             { m.inc(&m.deadLettered) }

type dispatcher struct {
	clock    *clock
	queue    *queue.MemoryQueue
	sender   *email.MockClient
	users    *fakeUsers
	metrics  *recordingMetrics
	producer *Producer
	consumer *Consumer
}

func newDispatcher(t *testing.T) *dispatcher {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	q := queue.NewMemoryQueue(queue.WithMemoryClock(clk.Now), queue.WithPollInterval(5*time.Millisecond))
	sender := email.NewMockClient(&email.Config{DefaultFrom: "no-reply@elearning.id"}, common.NewLoggerAdapter(log.NewNop()))
	users := &fakeUsers{users: map[string]*domain.UserProfile{
		"u1": {ID: "u1", Email: "siti@example.com", Name: "Siti"},
		"u2": {ID: "u2", Email: "not-an-address", Name: "Budi"},
	}}
	metrics := &recordingMetrics{}

	renderer, err := NewTemplateRenderer(RendererConfig{AppName: "E-Learning", AppURL: "https://elearning.id", SupportEmail: "support@elearning.id"}, nil)
	require.NoError(t, err)

	producer := NewProducer(q, 3, metrics, nil)
	producer.now = clk.Now
	consumer := NewConsumer(ConsumerDependencies{
		Queue:    q,
		Sender:   sender,
		Renderer: renderer,
		Users:    users,
		Catalog:  fakeCatalog{},
		Metrics:  metrics,
	}, ConsumerConfig{RetryDelay: 5 * time.Second, PollTimeout: 20 * time.Millisecond})
	consumer.now = clk.Now

	return &dispatcher{clock: clk, queue: q, sender: sender, users: users, metrics: metrics, producer: producer, consumer: consumer}
}

func (d *dispatcher) next(t *testing.T) *queue.Job {
	t.Helper()
	job, err := d.queue.Dequeue(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	return job
}

func enrollmentPayload() *domain.EnrollmentConfirmationPayload {
	return &domain.EnrollmentConfirmationPayload{EnrollmentID: "e1", PaymentID: "p1", UserID: "u1", CourseID: "c1"}
}

func TestProducerEnqueue(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	require.NoError(t, d.producer.Enqueue(ctx, domain.NotificationEnrollmentConfirmation, enrollmentPayload()))

	job := d.next(t)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "enrollment-confirmation", job.Kind)
	assert.Equal(t, 0, job.Attempt)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Equal(t, d.clock.Now().UnixMilli(), job.CreatedAt)
	assert.JSONEq(t, `{"enrollment_id":"e1","payment_id":"p1","user_id":"u1","course_id":"c1"}`, string(job.Payload))
	assert.Equal(t, 1, d.metrics.enqueued)

	err := d.producer.Enqueue(ctx, domain.NotificationKind("sms"), enrollmentPayload())
	assert.ErrorIs(t, err, domain.ErrUnknownNotificationKind)

	err = d.producer.Enqueue(ctx, domain.NotificationPasswordReset, domain.JSONB{"name": "Siti"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProducerPublishFailure(t *testing.T) {
	metrics := &recordingMetrics{}
	producer := NewProducer(failingQueue{}, 3, metrics, nil)

	err := producer.Enqueue(context.Background(), domain.NotificationEnrollmentConfirmation, enrollmentPayload())
	assert.ErrorIs(t, err, domain.ErrPublishFailed)
	assert.NotContains(t, err.Error(), "connection refused")
	assert.Equal(t, 1, metrics.failed)
}

func TestConsumerDelivers(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	require.NoError(t, d.producer.Enqueue(ctx, domain.NotificationPaymentConfirmation, &domain.PaymentConfirmationPayload{
		PaymentID: "p1", UserID: "u1", CourseID: "c1", PackageID: "k1", Type: domain.PaymentTypeUmum, Amount: 250000,
	}))
	d.consumer.Process(ctx, d.next(t))

	sent := d.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"siti@example.com"}, sent[0].To)
	assert.Equal(t, "We received your payment for Golang Fundamentals", sent[0].Subject)
	assert.Contains(t, sent[0].HTML, "Rp250.000")
	assert.Contains(t, sent[0].Text, "Payment: p1")
	assert.Equal(t, "payment-confirmation", sent[0].Tags["kind"])

	assert.Equal(t, 1, d.metrics.delivered)
	_, err := d.queue.Dequeue(ctx, 20*time.Millisecond)
	assert.ErrorIs(t, err, queue.ErrEmpty)
}

func TestConsumerRetriesWithGrowingDelay(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	d.sender.FailNext(errors.New("smtp timeout"), errors.New("smtp timeout"))

	require.NoError(t, d.producer.Enqueue(ctx, domain.NotificationEnrollmentConfirmation, enrollmentPayload()))

	d.consumer.Process(ctx, d.next(t))
	assert.Equal(t, 1, d.queue.Pending())

	d.clock.Advance(4 * time.Second)
	_, err := d.queue.Dequeue(ctx, 20*time.Millisecond)
	assert.ErrorIs(t, err, queue.ErrEmpty, "first retry waits one delay")

	d.clock.Advance(time.Second)
	job := d.next(t)
	assert.Equal(t, 1, job.Attempt)
	assert.Contains(t, job.LastError, "smtp timeout")
	d.consumer.Process(ctx, job)

	d.clock.Advance(9 * time.Second)
	_, err = d.queue.Dequeue(ctx, 20*time.Millisecond)
	assert.ErrorIs(t, err, queue.ErrEmpty, "second retry waits two delays")

	d.clock.Advance(time.Second)
	job = d.next(t)
	assert.Equal(t, 2, job.Attempt)
	d.consumer.Process(ctx, job)

	assert.Len(t, d.sender.Sent(), 1)
	assert.Equal(t, 2, d.metrics.retried)
	assert.Equal(t, 1, d.metrics.delivered)
	assert.Zero(t, d.metrics.deadLettered)
}

func TestConsumerDeadLettersAfterLastAttempt(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	d.sender.FailNext(errors.New("smtp timeout"), errors.New("smtp timeout"), errors.New("smtp 451"))

	require.NoError(t, d.producer.Enqueue(ctx, domain.NotificationEnrollmentConfirmation, enrollmentPayload()))

	for i := 0; i < 3; i++ {
		d.consumer.Process(ctx, d.next(t))
		d.clock.Advance(time.Minute)
	}

	letters, err := d.queue.DeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, 2, letters[0].Job.Attempt)
	assert.Contains(t, letters[0].Error, "attempt 3 of 3")
	assert.Contains(t, letters[0].Error, "smtp 451")
	assert.JSONEq(t, `{"enrollment_id":"e1","payment_id":"p1","user_id":"u1","course_id":"c1"}`, string(letters[0].Job.Payload))

	assert.Zero(t, d.queue.Pending())
	length, err := d.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, length)
	assert.Empty(t, d.sender.Sent())
	assert.Equal(t, 1, d.metrics.deadLettered)
}

func TestConsumerDeadLettersPermanentFailuresImmediately(t *testing.T) {
	cases := []struct {
		name string
		job  *queue.Job
	}{
		{"unknown kind", &queue.Job{ID: "j1", Kind: "sms", Payload: []byte(`{"to":"+62811"}`), MaxAttempts: 3}},
		{"malformed payload", &queue.Job{ID: "j2", Kind: "password-reset", Payload: []byte(`"oops"`), MaxAttempts: 3}},
		{"unknown user", &queue.Job{ID: "j3", Kind: "enrollment-confirmation", Payload: []byte(`{"user_id":"ghost","course_id":"c1"}`), MaxAttempts: 3}},
		{"invalid recipient", &queue.Job{ID: "j4", Kind: "enrollment-confirmation", Payload: []byte(`{"user_id":"u2","course_id":"c1"}`), MaxAttempts: 3}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := newDispatcher(t)
			ctx := context.Background()
			require.NoError(t, d.queue.Publish(ctx, tc.job))

			d.consumer.Process(ctx, d.next(t))

			letters, err := d.queue.DeadLetters(ctx, 10)
			require.NoError(t, err)
			require.Len(t, letters, 1)
			assert.Equal(t, tc.job.ID, letters[0].Job.ID)
			assert.Equal(t, 0, letters[0].Job.Attempt)
			assert.Zero(t, d.queue.Pending())
		})
	}
}

func TestConsumerForgetsProfileWithRejectedAddress(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()

	require.NoError(t, d.queue.Publish(ctx, &queue.Job{
		ID: "j1", Kind: "enrollment-confirmation", Payload: []byte(`{"user_id":"u2","course_id":"c1"}`), MaxAttempts: 3,
	}))
	d.consumer.Process(ctx, d.next(t))
	assert.Equal(t, []string{"u2"}, d.users.forgotten)

	require.NoError(t, d.producer.Enqueue(ctx, domain.NotificationEnrollmentConfirmation, enrollmentPayload()))
	d.sender.FailNext(errors.New("smtp timeout"))
	d.consumer.Process(ctx, d.next(t))
	assert.Equal(t, []string{"u2"}, d.users.forgotten, "transient failures keep the cached profile")
}

func TestConsumerRetriesWhenUserServiceIsDown(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	d.users.err = &resilient.UpstreamError{Upstream: domain.UpstreamUser, Err: errors.New("breaker open")}

	require.NoError(t, d.producer.Enqueue(ctx, domain.NotificationEnrollmentConfirmation, enrollmentPayload()))
	d.consumer.Process(ctx, d.next(t))

	assert.Equal(t, 1, d.queue.Pending())
	assert.Equal(t, 1, d.metrics.retried)
}

func TestConsumerShutdownDoesNotSpendAttempt(t *testing.T) {
	d := newDispatcher(t)
	require.NoError(t, d.queue.Publish(context.Background(), &queue.Job{
		ID: "j1", Kind: "enrollment-confirmation", Payload: []byte(`{"user_id":"u1","course_id":"c1"}`),
		Attempt: 2, MaxAttempts: 3,
	}))
	job := d.next(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d.sender.FailNext(context.Canceled)
	d.consumer.Process(ctx, job)

	letters, err := d.queue.DeadLetters(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, letters, "an interrupted send is not a delivery failure")
	assert.Zero(t, d.metrics.retried)

	again := d.next(t)
	assert.Equal(t, "j1", again.ID)
	assert.Equal(t, 2, again.Attempt)
	assert.Empty(t, again.LastError)

	d.consumer.Process(context.Background(), again)
	assert.Len(t, d.sender.Sent(), 1)
}

func TestConsumerRunStopsOnCancel(t *testing.T) {
	d := newDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, d.producer.Enqueue(ctx, domain.NotificationPasswordReset, &domain.PasswordResetPayload{
		Email: "siti@example.com", Name: "Siti", ResetURL: "https://elearning.id/reset?token=abc", ExpiresIn: "15 minutes",
	}))

	done := make(chan error, 1)
	go func() { done <- d.consumer.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(d.sender.Sent()) == 1 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	sent := d.sender.Sent()[0]
	assert.Equal(t, "Reset your password - E-Learning", sent.Subject)
	assert.Contains(t, sent.HTML, "https://elearning.id/reset?token=abc")
	assert.Contains(t, sent.Text, "15 minutes")
}

func TestDeadLetterAdministration(t *testing.T) {
	d := newDispatcher(t)
	ctx := context.Background()
	uc := NewNotificationUsecase(d.producer, d.queue, nil)

	require.NoError(t, d.queue.Publish(ctx, &queue.Job{
		ID: "j1", Kind: "enrollment-confirmation", Payload: []byte(`{"user_id":"ghost","course_id":"c1"}`),
		MaxAttempts: 3, CreatedAt: d.clock.Now().UnixMilli(),
	}))
	d.consumer.Process(ctx, d.next(t))

	views, err := uc.DeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "j1", views[0].JobID)
	assert.Equal(t, domain.NotificationEnrollmentConfirmation, views[0].Kind)
	assert.Equal(t, "ghost", views[0].Payload["user_id"])
	assert.Equal(t, d.clock.Now().UTC(), views[0].CreatedAt)

	d.users.users["ghost"] = &domain.UserProfile{ID: "ghost", Email: "ghost@example.com", Name: "Ghost"}
	require.NoError(t, uc.RequeueDeadLetter(ctx, "j1"))
	d.consumer.Process(ctx, d.next(t))
	assert.Len(t, d.sender.Sent(), 1)

	err = uc.RequeueDeadLetter(ctx, "j1")
	assert.ErrorIs(t, err, domain.ErrDeadLetterNotFound)
}
