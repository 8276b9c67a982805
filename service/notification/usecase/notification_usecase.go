package usecase

import (
	"context"
	"errors"
	"time"

	"go-payment-service/domain"
	"go-payment-service/pkg/log"
	"go-payment-service/pkg/queue"
)

const defaultDeadLetterLimit = 50

type notificationUsecase struct {
	producer *Producer
	queue    queue.Queue
	logger   log.Logger
}

func NewNotificationUsecase(producer *Producer, q queue.Queue, logger log.Logger) domain.NotificationUsecase {
	if logger == nil {
		logger = log.NewNop()
	}
	return &notificationUsecase{
		producer: producer,
		queue:    q,
		logger:   logger,
	}
}

func (u *notificationUsecase) Enqueue(ctx context.Context, kind domain.NotificationKind, payload any) error {
	return u.producer.Enqueue(ctx, kind, payload)
}

// DeadLetters lists the newest dead letters first.
func (u *notificationUsecase) DeadLetters(ctx context.Context, limit int) ([]*domain.DeadLetterView, error) {
	if limit <= 0 {
		limit = defaultDeadLetterLimit
	}
	letters, err := u.queue.DeadLetters(ctx, limit)
	if err != nil {
		return nil, domain.ErrInternalServerError.WithTrace(err)
	}

	views := make([]*domain.DeadLetterView, 0, len(letters))
	for _, letter := range letters {
		var payload domain.JSONB
		if err := json.Unmarshal(letter.Job.Payload, &payload); err != nil {
			payload = domain.JSONB{"raw": string(letter.Job.Payload)}
		}
		views = append(views, &domain.DeadLetterView{
			JobID:     letter.Job.ID,
			Kind:      domain.NotificationKind(letter.Job.Kind),
			Payload:   payload,
			Attempt:   letter.Job.Attempt,
			Error:     letter.Error,
			CreatedAt: time.UnixMilli(letter.Job.CreatedAt).UTC(),
			FailedAt:  time.UnixMilli(letter.FailedAt).UTC(),
		})
	}
	return views, nil
}

// RequeueDeadLetter moves one dead letter back to the primary queue with a
// fresh attempt budget.
func (u *notificationUsecase) RequeueDeadLetter(ctx context.Context, jobID string) error {
	job, err := u.queue.RequeueDeadLetter(ctx, jobID)
	if errors.Is(err, queue.ErrNotFound) {
		return domain.ErrDeadLetterNotFound.WithReasonf("no dead letter with id %s", jobID)
	}
	if err != nil {
		return domain.ErrInternalServerError.WithTrace(err)
	}
	u.logger.InfoContext(ctx, "Dead letter requeued", log.JobID(job.ID), log.JobKind(job.Kind))
	return nil
}
