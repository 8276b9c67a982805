package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"go-payment-service/domain"
	"go-payment-service/pkg/log"
	"go-payment-service/pkg/queue"
)

// Producer publishes notification jobs. It never waits for delivery.
type Producer struct {
	queue       queue.Queue
	maxAttempts int
	metrics     Metrics
	logger      log.Logger
	now         func() time.Time
}

func NewProducer(q queue.Queue, maxAttempts int, metrics Metrics, logger log.Logger) *Producer {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Producer{
		queue:       q,
		maxAttempts: maxAttempts,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Enqueue validates payload against kind and publishes it. A publish failure
// is logged and returned as domain.ErrPublishFailed.
func (p *Producer) Enqueue(ctx context.Context, kind domain.NotificationKind, payload any) error {
	if !kind.IsValid() {
		return domain.ErrUnknownNotificationKind.WithReasonf("unknown notification kind %q", kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.ErrValidation.WithReasonf("payload of %s is not serializable: %v", kind, err)
	}
	if _, err := decodePayload(kind, raw); err != nil {
		return err
	}

	job := &queue.Job{
		ID:          uuid.NewString(),
		Kind:        string(kind),
		Payload:     raw,
		MaxAttempts: p.maxAttempts,
		CreatedAt:   p.now().UnixMilli(),
	}
	if err := p.queue.Publish(ctx, job); err != nil {
		p.metrics.JobPublishFailed(job.Kind)
		p.logger.ErrorContext(ctx, "Failed to publish notification",
			log.JobID(job.ID), log.JobKind(job.Kind), log.Error(err))
		return domain.ErrPublishFailed.WithTrace(err)
	}

	p.metrics.JobEnqueued(job.Kind)
	p.logger.InfoContext(ctx, "Notification enqueued", log.JobID(job.ID), log.JobKind(job.Kind))
	return nil
}
