package repository

import (
	"context"

	"gorm.io/gorm"

	"go-payment-service/database"
	"go-payment-service/domain"
)

type PaymentRepository struct {
	sqlHandler *database.SQLHandler[domain.Payment, domain.PaymentFilter]
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{
		sqlHandler: database.NewSQLHandler[domain.Payment](db, applyFilter),
	}
}

func applyFilter(qb *gorm.DB, filter *domain.PaymentFilter) *gorm.DB {
	if filter == nil {
		return qb
	}

	if filter.ID != nil {
		qb = qb.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		qb = qb.Where("user_id = ?", *filter.UserID)
	}
	if filter.CourseID != nil {
		qb = qb.Where("course_id = ?", *filter.CourseID)
	}
	if filter.PackageID != nil {
		qb = qb.Where("package_id = ?", *filter.PackageID)
	}
	if filter.Type != nil {
		qb = qb.Where("type = ?", *filter.Type)
	}
	if filter.Status != nil {
		qb = qb.Where("status = ?", *filter.Status)
	}
	if filter.BackStatus != nil {
		qb = qb.Where("back_status = ?", *filter.BackStatus)
	}
	return qb
}

func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	return r.sqlHandler.Create(ctx, payment)
}

func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	return r.sqlHandler.FindByID(ctx, paymentID)
}

func (r *PaymentRepository) FindPage(ctx context.Context, filter *domain.PaymentFilter, option *domain.FindPageOption) ([]*domain.Payment, *domain.Pagination, error) {
	return r.sqlHandler.FindPage(ctx, filter, option)
}

func (r *PaymentRepository) UpdateFields(ctx context.Context, paymentID string, fields map[string]any) error {
	return r.sqlHandler.UpdateFields(ctx, paymentID, fields)
}

// TransitionStatus applies fields to paymentID only while the row still
// matches guard. It reports false when another writer moved the payment
// first.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, paymentID string, guard domain.PaymentFilter, fields map[string]any) (bool, error) {
	guard.ID = &paymentID
	rows, err := r.sqlHandler.UpdateWhere(ctx, &guard, fields)
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
