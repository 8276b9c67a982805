package domain

import (
	"context"
	"net/http"
	"time"
)

var (
	ErrUnknownNotificationKind = &DetailedError{
		IDField:         "UNKNOWN_NOTIFICATION_KIND",
		StatusDescField: http.StatusText(http.StatusBadRequest),
		ErrorField:      "Unknown notification kind",
		StatusCodeField: http.StatusBadRequest,
	}
	// ErrPublishFailed never fails the operation that produced the job.
	ErrPublishFailed = &DetailedError{
		IDField:         "PUBLISH_FAILED",
		StatusDescField: http.StatusText(http.StatusServiceUnavailable),
		ErrorField:      "The notification could not be queued",
		StatusCodeField: http.StatusServiceUnavailable,
	}
	ErrDeadLetterNotFound = &DetailedError{
		IDField:         "DEAD_LETTER_NOT_FOUND",
		StatusDescField: http.StatusText(http.StatusNotFound),
		ErrorField:      "Dead letter not found",
		StatusCodeField: http.StatusNotFound,
	}
)

type NotificationKind string

const (
	NotificationPasswordReset          NotificationKind = "password-reset"
	NotificationPaymentConfirmation    NotificationKind = "payment-confirmation"
	NotificationEnrollmentConfirmation NotificationKind = "enrollment-confirmation"
)

func (k NotificationKind) IsValid() bool {
	switch k {
	case NotificationPasswordReset, NotificationPaymentConfirmation, NotificationEnrollmentConfirmation:
		return true
	}
	return false
}

type PasswordResetPayload struct {
	Email     string `json:"email" binding:"required,email"`
	Name      string `json:"name"`
	ResetURL  string `json:"reset_url" binding:"required,url"`
	ExpiresIn string `json:"expires_in"`
}

type PaymentConfirmationPayload struct {
	PaymentID string      `json:"payment_id"`
	UserID    string      `json:"user_id"`
	CourseID  string      `json:"course_id"`
	PackageID string      `json:"package_id"`
	Type      PaymentType `json:"type"`
	Amount    int64       `json:"amount"`
}

type EnrollmentConfirmationPayload struct {
	EnrollmentID string `json:"enrollment_id"`
	PaymentID    string `json:"payment_id"`
	UserID       string `json:"user_id"`
	CourseID     string `json:"course_id"`
}

// DeadLetterView is the admin-facing projection of a dead-lettered job.
type DeadLetterView struct {
	JobID     string           `json:"job_id"`
	Kind      NotificationKind `json:"kind"`
	Payload   JSONB            `json:"payload"`
	Attempt   int              `json:"attempt"`
	Error     string           `json:"error"`
	CreatedAt time.Time        `json:"created_at"`
	FailedAt  time.Time        `json:"failed_at"`
}

/*****************************************************
*      Notification usecase interfaces and types      *
*****************************************************/
type NotificationUsecase interface {
	Enqueue(ctx context.Context, kind NotificationKind, payload any) error
	DeadLetters(ctx context.Context, limit int) ([]*DeadLetterView, error)
	RequeueDeadLetter(ctx context.Context, jobID string) error
}

type NotificationEnqueueRequest struct {
	Kind    NotificationKind `json:"kind" binding:"required,notification_kind"`
	Payload JSONB            `json:"payload" binding:"required"`
}
