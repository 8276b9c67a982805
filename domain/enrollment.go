package domain

import (
	"context"
)

/******************************************
*      Enrollment entities and types      *
******************************************/

// Enrollment is created only when a payment is approved. PaymentID is unique,
// so a payment yields at most one enrollment.
type Enrollment struct {
	SQLModel
	UserID    string `json:"user_id" gorm:"type:varchar(36);not null;index:idx_enrollment_user_course,priority:1"`
	CourseID  string `json:"course_id" gorm:"type:varchar(36);not null;index:idx_enrollment_user_course,priority:2"`
	PaymentID string `json:"payment_id" gorm:"type:varchar(36);not null;uniqueIndex"`
}

type EnrollmentFilter struct {
	UserID    *string `json:"user_id" form:"user_id"`
	CourseID  *string `json:"course_id" form:"course_id"`
	PaymentID *string `json:"payment_id" form:"payment_id"`
}

/***************************************************
*      Enrollment usecase interfaces and types      *
***************************************************/
type EnrollmentUsecase interface {
	// EnsureEnrollment returns the enrollment of paymentID, creating it if absent.
	EnsureEnrollment(ctx context.Context, userID, courseID, paymentID string) (*Enrollment, error)
	IsEnrolled(ctx context.Context, userID, courseID string) (bool, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*Enrollment, error)
}
