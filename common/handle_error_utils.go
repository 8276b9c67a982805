package common

import (
	"context"
	"errors"

	"go-payment-service/domain"
	"go-payment-service/pkg/breaker"
	"go-payment-service/pkg/resilient"
)

func IsRecordNotFound(err error) bool {
	return errors.Is(err, domain.ErrRecordNotFound)
}

func IsDetailError(err error) (*domain.DetailedError, bool) {
	var de *domain.DetailedError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// MapUpstreamError folds resilience-layer failures into the domain taxonomy.
// Breaker state and retry counts stay in the wrapped cause, never in the
// client-facing message. Errors it does not recognise are returned unchanged.
func MapUpstreamError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := IsDetailError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, resilient.ErrRateLimited):
		return domain.ErrTooManyRequests.WithTrace(err)
	case errors.Is(err, resilient.ErrUpstreamUnavailable),
		errors.Is(err, breaker.ErrCircuitOpen),
		errors.Is(err, context.DeadlineExceeded):
		return domain.ErrUpstreamUnavailable.WithTrace(err)
	}
	return err
}
