package domain

import (
	stderr "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// ErrRecordNotFound keeps repository callers independent of the ORM's own sentinel.
var ErrRecordNotFound = errors.New("record not found")

var (
	ErrNotFound = &DetailedError{
		IDField:         "NOT_FOUND",
		StatusDescField: http.StatusText(http.StatusNotFound),
		ErrorField:      "The requested resource could not be found",
		StatusCodeField: http.StatusNotFound,
	}

	ErrBadRequest = &DetailedError{
		IDField:         "BAD_REQUEST",
		StatusDescField: http.StatusText(http.StatusBadRequest),
		ErrorField:      "The request was malformed or contained invalid parameters",
		StatusCodeField: http.StatusBadRequest,
	}

	ErrTooManyRequests = &DetailedError{
		IDField:         "TOO_MANY_REQUESTS",
		StatusDescField: http.StatusText(http.StatusTooManyRequests),
		ErrorField:      "Too many requests, please try again later",
		StatusCodeField: http.StatusTooManyRequests,
	}

	ErrInternalServerError = &DetailedError{
		IDField:         "INTERNAL_SERVER_ERROR",
		StatusDescField: http.StatusText(http.StatusInternalServerError),
		ErrorField:      "An internal server error occurred, please contact the system administrator",
		StatusCodeField: http.StatusInternalServerError,
	}
)

// Error taxonomy shared by every service in the payment flow.
var (
	// ErrValidation is the caller's fault and is never retried.
	ErrValidation = &DetailedError{
		IDField:         "VALIDATION_ERROR",
		StatusDescField: http.StatusText(http.StatusBadRequest),
		ErrorField:      "The request failed validation",
		StatusCodeField: http.StatusBadRequest,
	}

	ErrUnauthorized = &DetailedError{
		IDField:         "UNAUTHORIZED",
		StatusDescField: http.StatusText(http.StatusUnauthorized),
		ErrorField:      "The request could not be authorized",
		StatusCodeField: http.StatusUnauthorized,
	}

	ErrForbidden = &DetailedError{
		IDField:         "FORBIDDEN",
		StatusDescField: http.StatusText(http.StatusForbidden),
		ErrorField:      "The requested action was forbidden",
		StatusCodeField: http.StatusForbidden,
	}

	// ErrUpstreamUnavailable never carries breaker or retry internals to the client.
	ErrUpstreamUnavailable = &DetailedError{
		IDField:         "UPSTREAM_UNAVAILABLE",
		StatusDescField: http.StatusText(http.StatusServiceUnavailable),
		ErrorField:      "The service is temporarily unavailable, please try again later",
		StatusCodeField: http.StatusServiceUnavailable,
	}

	ErrInvalidStateTransition = &DetailedError{
		IDField:         "INVALID_STATE_TRANSITION",
		StatusDescField: http.StatusText(http.StatusConflict),
		ErrorField:      "The resource is not in a state that allows this action",
		StatusCodeField: http.StatusConflict,
	}

	ErrAlreadyExists = &DetailedError{
		IDField:         "ALREADY_EXISTS",
		StatusDescField: http.StatusText(http.StatusConflict),
		ErrorField:      "The resource already exists",
		StatusCodeField: http.StatusConflict,
	}

	// ErrDeliveryFailed only lives on the notification path.
	ErrDeliveryFailed = &DetailedError{
		IDField:         "DELIVERY_FAILED",
		StatusDescField: http.StatusText(http.StatusInternalServerError),
		ErrorField:      "The notification could not be delivered",
		StatusCodeField: http.StatusInternalServerError,
	}
)

type DetailedError struct {
	// Machine readable error ID, e.g. INVALID_STATE_TRANSITION.
	IDField string `json:"id,omitempty"`

	// HTTP status code, e.g. 409.
	StatusCodeField int `json:"code,omitempty"`

	// HTTP status text, e.g. Conflict.
	StatusDescField string `json:"status,omitempty"`

	// Request ID used to correlate the error with logs.
	RIDField string `json:"request,omitempty"`

	// Human readable reason, e.g. "payment p1 is APPROVED".
	ReasonField string `json:"reason,omitempty"`

	// Debug information. Never rendered to clients.
	DebugField string `json:"debug,omitempty"`

	// Error message.
	//
	// required: true
	ErrorField string `json:"message"`

	// Further error details, e.g. per-field validation messages.
	DetailsField map[string]interface{} `json:"details,omitempty"`

	err error
}

func (e *DetailedError) StackTrace() (trace errors.StackTrace) {
	if e.err == e {
		return
	}

	if st := stackTracer(nil); stderr.As(e.err, &st) {
		trace = st.StackTrace()
	}

	return
}

func (e DetailedError) Unwrap() error {
	return e.err
}

func (e DetailedError) WithWrap(err error) *DetailedError {
	e.err = err
	return &e
}

// WithTrace wraps err with a stack trace unless it already carries one.
func (e DetailedError) WithTrace(err error) *DetailedError {
	if st := stackTracer(nil); stderr.As(err, &st) {
		e.err = err
	} else {
		e.err = errors.WithStack(err)
	}
	return &e
}

func (e DetailedError) Is(err error) bool {
	switch te := err.(type) {
	case DetailedError:
		return e.IDField == te.IDField && e.StatusCodeField == te.StatusCodeField
	case *DetailedError:
		return e.IDField == te.IDField && e.StatusCodeField == te.StatusCodeField
	default:
		return false
	}
}

func (e DetailedError) Status() string {
	return e.StatusDescField
}

func (e DetailedError) ID() string {
	return e.IDField
}

func (e DetailedError) Error() string {
	return e.ErrorField
}

func (e DetailedError) RequestID() string {
	return e.RIDField
}

func (e DetailedError) Reason() string {
	return e.ReasonField
}

func (e DetailedError) Debug() string {
	return e.DebugField
}

func (e DetailedError) Details() map[string]interface{} {
	return e.DetailsField
}

func (e DetailedError) StatusCode() int {
	return e.StatusCodeField
}

func (e DetailedError) WithRequestID(id string) *DetailedError {
	e.RIDField = id
	return &e
}

func (e DetailedError) WithReason(reason string) *DetailedError {
	e.ReasonField = reason
	return &e
}

func (e DetailedError) WithReasonf(reason string, args ...interface{}) *DetailedError {
	return e.WithReason(fmt.Sprintf(reason, args...))
}

func (e DetailedError) WithError(message string) *DetailedError {
	e.ErrorField = message
	return &e
}

func (e DetailedError) WithDebug(debug string) *DetailedError {
	e.DebugField = debug
	return &e
}

func (e DetailedError) WithDebugf(debug string, args ...interface{}) *DetailedError {
	return e.WithDebug(fmt.Sprintf(debug, args...))
}

// WithDetail copies the details map so shared error values are never mutated.
func (e DetailedError) WithDetail(key string, detail interface{}) *DetailedError {
	details := make(map[string]interface{}, len(e.DetailsField)+1)
	for k, v := range e.DetailsField {
		details[k] = v
	}
	details[key] = detail
	e.DetailsField = details
	return &e
}

func (e DetailedError) WithDetails(details map[string]interface{}) *DetailedError {
	out := &e
	for k, v := range details {
		out = out.WithDetail(k, v)
	}
	return out
}

func (e DetailedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "id=%s\n", e.IDField)
			_, _ = fmt.Fprintf(s, "rid=%s\n", e.RIDField)
			_, _ = fmt.Fprintf(s, "error=%s\n", e.ErrorField)
			_, _ = fmt.Fprintf(s, "reason=%s\n", e.ReasonField)
			_, _ = fmt.Fprintf(s, "details=%+v\n", e.DetailsField)
			_, _ = fmt.Fprintf(s, "debug=%s\n", e.DebugField)
			if e.err != nil {
				_, _ = fmt.Fprintf(s, "cause=%+v\n", e.err)
			}
			return
		}
		fallthrough
	case 's':
		_, _ = io.WriteString(s, e.ErrorField)
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.ErrorField)
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}
