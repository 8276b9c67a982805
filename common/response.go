package common

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go-payment-service/domain"
)

type ResponseT[T any] struct {
	Status      int    `json:"status"`
	Code        string `json:"code"`
	Data        T      `json:"data"`
	Description string `json:"description"`
}

var logger Logger

// SetLogger sets the logger for response logging
func SetLogger(l Logger) {
	logger = l
}

func Response[T any](c *gin.Context, status int, code string, data T, desc string) {
	c.AbortWithStatusJSON(status, ResponseT[T]{
		Status:      status,
		Code:        code,
		Data:        data,
		Description: desc,
	})
}

// Success responses
func ResponseOK[T any](c *gin.Context, data T, desc string) {
	Response(c, http.StatusOK, "SUCCESS", data, desc)
}

func ResponseCreated[T any](c *gin.Context, data T, desc string) {
	Response(c, http.StatusCreated, "SUCCESS", data, desc)
}

func ResponseAccepted[T any](c *gin.Context, data T, desc string) {
	Response(c, http.StatusAccepted, "SUCCESS", data, desc)
}

func ResponseBadRequest(c *gin.Context, desc string) {
	ResponseError(c, domain.ErrBadRequest.WithReason(desc))
}

// ResponseError renders err with the envelope of its DetailedError. Anything
// else becomes a 500 and its message never reaches the client.
func ResponseError(c *gin.Context, err error) {
	dErr, ok := IsDetailError(err)
	if !ok {
		dErr = domain.ErrInternalServerError.WithTrace(err)
	}

	if logger != nil {
		kv := []interface{}{
			"status", dErr.StatusCode(),
			"code", dErr.ID(),
			"reason", dErr.Reason(),
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", GetRequestIDFromCtx(c),
		}
		if cause := errors.Unwrap(dErr); cause != nil {
			kv = append(kv, "cause", cause.Error())
		}
		if dErr.StatusCode() >= http.StatusInternalServerError {
			logger.Error("API Error", kv...)
		} else {
			logger.Info("API Error", kv...)
		}
	}

	Response(c, dErr.StatusCode(), dErr.ID(), errorData(dErr), dErr.Error())
}

func errorData(dErr *domain.DetailedError) map[string]interface{} {
	if dErr.Reason() == "" && len(dErr.Details()) == 0 {
		return nil
	}
	data := make(map[string]interface{}, len(dErr.Details())+1)
	for k, v := range dErr.Details() {
		data[k] = v
	}
	if dErr.Reason() != "" {
		data["reason"] = dErr.Reason()
	}
	return data
}

func ResponseTooManyRequests(c *gin.Context, desc string, retryAt time.Time) {
	retryAfterSeconds := int64(0)
	retryAtISO := ""

	if !retryAt.IsZero() {
		retryAfterSeconds = int64(time.Until(retryAt).Seconds())
		if retryAfterSeconds > 0 {
			c.Header("Retry-After", strconv.FormatInt(retryAfterSeconds, 10))
		}
		retryAtISO = retryAt.Format(time.RFC3339)
	}

	Response(c, http.StatusTooManyRequests, domain.ErrTooManyRequests.ID(), map[string]interface{}{
		"retry_at":            retryAtISO,
		"retry_after_seconds": retryAfterSeconds,
	}, desc)
}
