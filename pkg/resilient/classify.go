package resilient

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type statusCoder interface {
	StatusCode() int
}

// IsTransient is the default Classifier. Timeouts, 5xx/429 and unavailable
// gRPC upstreams are retried; caller mistakes (4xx, invalid argument, not
// found) are not. Errors it cannot place are treated as transient.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if st, ok := status.FromError(err); ok {
		return transientCode(st.Code())
	}

	var coder statusCoder
	if errors.As(err, &coder) {
		code := coder.StatusCode()
		return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
	}

	return true
}

func transientCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable,
		codes.DeadlineExceeded,
		codes.ResourceExhausted,
		codes.Aborted,
		codes.Internal,
		codes.Unknown:
		return true
	default:
		return false
	}
}
