package usecase

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"go-payment-service/domain"
	"go-payment-service/pkg/email"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Metrics records the job lifecycle. *metrics.Collector implements it.
type Metrics interface {
	JobEnqueued(kind string)
	JobPublishFailed(kind string)
	JobDelivered(kind string, elapsed time.Duration)
	JobRetried(kind string)
	JobDeadLettered(kind string)
}

type nopMetrics struct{}

func (nopMetrics) JobEnqueued(string)                 {}
func (nopMetrics) JobPublishFailed(string)            {}
func (nopMetrics) JobDelivered(string, time.Duration) {}
func (nopMetrics) JobRetried(string)                  {}
func (nopMetrics) JobDeadLettered(string)             {}

// permanentError marks a failure that no redelivery can fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error {
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var pe *permanentError
	if errors.As(err, &pe) || email.IsPermanent(err) {
		return true
	}
	return errors.Is(err, domain.ErrUserNotFound) ||
		errors.Is(err, domain.ErrUnknownNotificationKind) ||
		errors.Is(err, domain.ErrValidation)
}

// decodePayload turns a job payload into the typed payload of kind and checks
// the fields delivery depends on.
func decodePayload(kind domain.NotificationKind, raw []byte) (any, error) {
	var (
		payload any
		missing string
	)
	switch kind {
	case domain.NotificationPasswordReset:
		p := new(domain.PasswordResetPayload)
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, domain.ErrValidation.WithReasonf("malformed %s payload: %v", kind, err)
		}
		if p.Email == "" {
			missing = "email"
		} else if p.ResetURL == "" {
			missing = "reset_url"
		}
		payload = p
	case domain.NotificationPaymentConfirmation:
		p := new(domain.PaymentConfirmationPayload)
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, domain.ErrValidation.WithReasonf("malformed %s payload: %v", kind, err)
		}
		if p.UserID == "" {
			missing = "user_id"
		} else if p.PaymentID == "" {
			missing = "payment_id"
		}
		payload = p
	case domain.NotificationEnrollmentConfirmation:
		p := new(domain.EnrollmentConfirmationPayload)
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, domain.ErrValidation.WithReasonf("malformed %s payload: %v", kind, err)
		}
		if p.UserID == "" {
			missing = "user_id"
		} else if p.CourseID == "" {
			missing = "course_id"
		}
		payload = p
	default:
		return nil, domain.ErrUnknownNotificationKind.WithReasonf("unknown notification kind %q", kind)
	}

	if missing != "" {
		return nil, domain.ErrValidation.WithReason(fmt.Sprintf("%s payload requires %s", kind, missing))
	}
	return payload, nil
}
