package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"go-payment-service/domain"
	"go-payment-service/pkg/cache"
	"go-payment-service/pkg/log"
)

type EnrollmentRepository interface {
	Create(ctx context.Context, enrollment *domain.Enrollment) error
	FindOne(ctx context.Context, filter *domain.EnrollmentFilter, option *domain.FindOneOption) (*domain.Enrollment, error)
	Exists(ctx context.Context, filter *domain.EnrollmentFilter) (bool, error)
}

type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
	AfterCommit(ctx context.Context, fn func())
}

var enrolledMarker = []byte("1")

type enrollmentUsecase struct {
	repo   EnrollmentRepository
	tx     TxManager
	store  cache.Store
	logger log.Logger
}

// NewEnrollmentUsecase builds the enrollment side-effect handler. store may be
// nil, which disables caching of enrollment checks.
func NewEnrollmentUsecase(repo EnrollmentRepository, tx TxManager, store cache.Store, logger log.Logger) domain.EnrollmentUsecase {
	return &enrollmentUsecase{repo: repo, tx: tx, store: store, logger: logger}
}

func enrollmentKey(userID, courseID string) string {
	return userID + ":" + courseID
}

// EnsureEnrollment returns the enrollment of paymentID, creating it when
// absent. The unique index on payment_id is the only guard against
// duplicates: losing a concurrent insert reads the winner back.
func (u *enrollmentUsecase) EnsureEnrollment(ctx context.Context, userID, courseID, paymentID string) (*domain.Enrollment, error) {
	if userID == "" || courseID == "" || paymentID == "" {
		return nil, domain.ErrValidation.WithReason("user_id, course_id and payment_id are required")
	}

	existing, err := u.findByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	enrollment := &domain.Enrollment{
		SQLModel:  domain.SQLModel{ID: uuid.NewString()},
		UserID:    userID,
		CourseID:  courseID,
		PaymentID: paymentID,
	}
	err = u.tx.WithinTx(ctx, func(ctx context.Context) error {
		return u.repo.Create(ctx, enrollment)
	})
	switch {
	case err == nil:
		u.logger.InfoContext(ctx, "Enrollment created",
			log.PaymentID(paymentID), log.UserID(userID), log.CourseID(courseID))
	case errors.Is(err, domain.ErrAlreadyExists):
		winner, findErr := u.findByPayment(ctx, paymentID)
		if findErr != nil {
			return nil, findErr
		}
		if winner == nil {
			return nil, domain.ErrInternalServerError.WithWrap(err).WithReasonf("enrollment of payment %s conflicted but cannot be read", paymentID)
		}
		u.logger.DebugContext(ctx, "Enrollment already created by a concurrent approval", log.PaymentID(paymentID))
		enrollment = winner
	default:
		return nil, domain.ErrInternalServerError.WithTrace(err)
	}

	// Only positive results are cached, and only once the caller's
	// transaction has committed the row.
	if u.store != nil {
		key := enrollmentKey(enrollment.UserID, enrollment.CourseID)
		u.tx.AfterCommit(ctx, func() {
			u.store.Set(domain.ResourceEnrollments, key, enrolledMarker)
		})
	}
	return enrollment, nil
}

func (u *enrollmentUsecase) IsEnrolled(ctx context.Context, userID, courseID string) (bool, error) {
	key := enrollmentKey(userID, courseID)
	if u.store != nil {
		if _, ok := u.store.Get(domain.ResourceEnrollments, key); ok {
			return true, nil
		}
	}

	enrolled, err := u.repo.Exists(ctx, &domain.EnrollmentFilter{UserID: &userID, CourseID: &courseID})
	if err != nil {
		return false, domain.ErrInternalServerError.WithTrace(err)
	}
	if enrolled && u.store != nil {
		u.store.Set(domain.ResourceEnrollments, key, enrolledMarker)
	}
	return enrolled, nil
}

func (u *enrollmentUsecase) FindByPaymentID(ctx context.Context, paymentID string) (*domain.Enrollment, error) {
	enrollment, err := u.findByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, domain.ErrNotFound.WithReasonf("payment %s has no enrollment", paymentID)
	}
	return enrollment, nil
}

func (u *enrollmentUsecase) findByPayment(ctx context.Context, paymentID string) (*domain.Enrollment, error) {
	enrollment, err := u.repo.FindOne(ctx, &domain.EnrollmentFilter{PaymentID: &paymentID}, nil)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.ErrInternalServerError.WithTrace(err)
	}
	return enrollment, nil
}
