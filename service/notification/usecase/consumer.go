package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go-payment-service/domain"
	"go-payment-service/pkg/email"
	"go-payment-service/pkg/log"
	"go-payment-service/pkg/queue"
)

type ConsumerConfig struct {
	// RetryDelay is multiplied by the attempt number, so waits never shrink.
	RetryDelay  time.Duration
	PollTimeout time.Duration
}

type ConsumerDependencies struct {
	Queue    queue.Queue
	Sender   email.Client
	Renderer *TemplateRenderer
	Users    domain.UserDirectory
	// Catalog is optional; without it emails name the course by id.
	Catalog domain.CourseCatalog
	Metrics Metrics
	Logger  log.Logger
}

// Consumer delivers notification jobs one at a time. Every dequeued job ends
// in exactly one of Ack, Requeue or DeadLetter.
type Consumer struct {
	queue    queue.Queue
	sender   email.Client
	renderer *TemplateRenderer
	users    domain.UserDirectory
	catalog  domain.CourseCatalog
	metrics  Metrics
	logger   log.Logger
	config   ConsumerConfig
	now      func() time.Time
}

func NewConsumer(deps ConsumerDependencies, config ConsumerConfig) *Consumer {
	if config.RetryDelay <= 0 {
		config.RetryDelay = 5 * time.Second
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = time.Second
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = log.NewNop()
	}
	return &Consumer{
		queue:    deps.Queue,
		sender:   deps.Sender,
		renderer: deps.Renderer,
		users:    deps.Users,
		catalog:  deps.Catalog,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		config:   config,
		now:      time.Now,
	}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Notification consumer started",
		log.Duration("retry_delay", c.config.RetryDelay),
		log.Duration("poll_timeout", c.config.PollTimeout))

	for {
		if ctx.Err() != nil {
			c.logger.Info("Notification consumer stopped")
			return nil
		}

		job, err := c.queue.Dequeue(ctx, c.config.PollTimeout)
		if errors.Is(err, queue.ErrEmpty) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("Failed to dequeue notification", log.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(c.config.PollTimeout):
			}
			continue
		}

		c.Process(ctx, job)
	}
}

// Process delivers job and settles it. Settling ignores cancellation of ctx
// so a shutdown never leaves the job reserved.
func (c *Consumer) Process(ctx context.Context, job *queue.Job) {
	settle := context.WithoutCancel(ctx)
	start := c.now()

	err := c.deliver(ctx, job)
	if err == nil {
		if ackErr := c.queue.Ack(settle, job); ackErr != nil {
			c.logger.Error("Failed to ack notification", log.JobID(job.ID), log.Error(ackErr))
		}
		c.metrics.JobDelivered(job.Kind, c.now().Sub(start))
		c.logger.Info("Notification delivered",
			log.JobID(job.ID), log.JobKind(job.Kind), log.Attempt(job.Attempt))
		return
	}

	if ctx.Err() != nil && !isPermanent(err) {
		// Interrupted by shutdown: hand the job back without spending an attempt.
		if rqErr := c.queue.Requeue(settle, job, c.now()); rqErr != nil {
			c.logger.Error("Failed to release notification", log.JobID(job.ID), log.Error(rqErr))
			return
		}
		c.logger.Info("Notification released on shutdown",
			log.JobID(job.ID), log.JobKind(job.Kind), log.Attempt(job.Attempt))
		return
	}

	job.LastError = err.Error()
	if isPermanent(err) || job.Exhausted() {
		cause := fmt.Errorf("attempt %d of %d: %w", job.Attempt+1, job.MaxAttempts, err)
		if dlErr := c.queue.DeadLetter(settle, job, cause); dlErr != nil {
			c.logger.Error("Failed to dead-letter notification", log.JobID(job.ID), log.Error(dlErr))
			return
		}
		c.metrics.JobDeadLettered(job.Kind)
		c.logger.Error("Notification dead-lettered",
			log.JobID(job.ID), log.JobKind(job.Kind), log.Attempt(job.Attempt), log.Error(err))
		return
	}

	job.Attempt++
	at := c.now().Add(c.config.RetryDelay * time.Duration(job.Attempt))
	if rqErr := c.queue.Requeue(settle, job, at); rqErr != nil {
		c.logger.Error("Failed to requeue notification", log.JobID(job.ID), log.Error(rqErr))
		return
	}
	c.metrics.JobRetried(job.Kind)
	c.logger.Warn("Notification delivery failed, retrying",
		log.JobID(job.ID), log.JobKind(job.Kind), log.Attempt(job.Attempt),
		log.Time("retry_at", at), log.Error(err))
}

func (c *Consumer) deliver(ctx context.Context, job *queue.Job) error {
	kind := domain.NotificationKind(job.Kind)
	payload, err := decodePayload(kind, job.Payload)
	if err != nil {
		return permanent(err)
	}

	var (
		to     string
		userID string
		data   map[string]any
	)
	switch p := payload.(type) {
	case *domain.PasswordResetPayload:
		to = p.Email
		data = map[string]any{
			"user_name":  p.Name,
			"reset_url":  p.ResetURL,
			"expires_in": p.ExpiresIn,
		}
	case *domain.PaymentConfirmationPayload:
		user, err := c.users.GetUser(ctx, p.UserID)
		if err != nil {
			return err
		}
		to, userID = user.Email, p.UserID
		data = map[string]any{
			"user_name":    user.Name,
			"payment_id":   p.PaymentID,
			"payment_type": string(p.Type),
			"course_title": c.courseTitle(ctx, p.CourseID),
		}
		if p.Amount > 0 {
			data["amount"] = c.renderer.FormatAmount(p.Amount)
		}
	case *domain.EnrollmentConfirmationPayload:
		user, err := c.users.GetUser(ctx, p.UserID)
		if err != nil {
			return err
		}
		to, userID = user.Email, p.UserID
		data = map[string]any{
			"user_name":     user.Name,
			"payment_id":    p.PaymentID,
			"enrollment_id": p.EnrollmentID,
			"course_title":  c.courseTitle(ctx, p.CourseID),
		}
	}

	rendered, err := c.renderer.Render(kind, data)
	if err != nil {
		return permanent(err)
	}
	err = c.sender.Send(ctx, &email.Message{
		To:      []string{to},
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		Text:    rendered.Text,
		Tags:    map[string]string{"kind": job.Kind, "job_id": job.ID},
	})
	if userID != "" && (errors.Is(err, email.ErrInvalidEmail) || errors.Is(err, email.ErrRejected)) {
		// A requeued dead letter must see the corrected address.
		c.users.Forget(userID)
	}
	return err
}

// courseTitle falls back to the course id; the title is cosmetic.
func (c *Consumer) courseTitle(ctx context.Context, courseID string) string {
	if c.catalog == nil {
		return courseID
	}
	course, err := c.catalog.GetCourse(ctx, courseID)
	if err != nil || course.Title == "" {
		c.logger.DebugContext(ctx, "Course title unavailable", log.CourseID(courseID), log.Error(err))
		return courseID
	}
	return course.Title
}
