package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go-payment-service/database"
	"go-payment-service/domain"
)

type EnrollmentRepository struct {
	sqlHandler *database.SQLHandler[domain.Enrollment, domain.EnrollmentFilter]
}

func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{
		sqlHandler: database.NewSQLHandler[domain.Enrollment](db, applyFilter),
	}
}

func applyFilter(qb *gorm.DB, filter *domain.EnrollmentFilter) *gorm.DB {
	if filter == nil {
		return qb
	}

	if filter.UserID != nil {
		qb = qb.Where("user_id = ?", *filter.UserID)
	}
	if filter.CourseID != nil {
		qb = qb.Where("course_id = ?", *filter.CourseID)
	}
	if filter.PaymentID != nil {
		qb = qb.Where("payment_id = ?", *filter.PaymentID)
	}
	return qb
}

// Create reports a second enrollment for the same payment as
// domain.ErrAlreadyExists. The connection must translate driver errors.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *domain.Enrollment) error {
	err := r.sqlHandler.Create(ctx, enrollment)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrAlreadyExists.WithWrap(err).WithReasonf("payment %s already has an enrollment", enrollment.PaymentID)
	}
	return err
}

func (r *EnrollmentRepository) FindOne(ctx context.Context, filter *domain.EnrollmentFilter, option *domain.FindOneOption) (*domain.Enrollment, error) {
	return r.sqlHandler.FindOne(ctx, filter, option)
}

func (r *EnrollmentRepository) Exists(ctx context.Context, filter *domain.EnrollmentFilter) (bool, error) {
	return r.sqlHandler.Exists(ctx, filter)
}
