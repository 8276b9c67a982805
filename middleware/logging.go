package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-payment-service/common"
	"go-payment-service/pkg/log"
)

type LoggerConfig struct {
	// SkipPaths is an url path array which logs are not written.
	SkipPaths []string
}

// RequestID propagates the caller's X-Request-ID or generates one, and puts
// it on the request context for downstream logs.
func (m *middlewares) RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(common.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(common.RequestIDContextKey, requestID)
		c.Header(common.RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(log.ContextWithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func (m *middlewares) Logging(config ...LoggerConfig) gin.HandlerFunc {
	var conf LoggerConfig
	if len(config) > 0 {
		conf = config[0]
	}

	skipPaths := make(map[string]bool, len(conf.SkipPaths))
	for _, path := range conf.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if m.metrics != nil {
			m.metrics.HTTPRequest(c.Request.Method, route, status, latency)
		}

		if skipPaths[path] {
			return
		}

		fields := []log.Field{
			log.Method(c.Request.Method),
			log.String("path", path),
			log.String("route", route),
			log.StatusCode(status),
			log.ResponseTime(latency),
			log.String("client_ip", common.GetClientIP(c)),
			log.String("user_agent", c.Request.UserAgent()),
			log.Int("response_size", c.Writer.Size()),
		}
		if requestID := common.GetRequestIDFromCtx(c); requestID != "" {
			fields = append(fields, log.RequestID(requestID))
		}
		if principal := common.GetPrincipalFromCtx(c); principal != nil && principal.UserID != "" {
			fields = append(fields, log.UserID(principal.UserID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, log.Strings("errors", c.Errors.Errors()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			m.logger.Error("HTTP Request Completed", fields...)
		case status >= http.StatusBadRequest:
			m.logger.Warn("HTTP Request Completed", fields...)
		default:
			m.logger.Info("HTTP Request Completed", fields...)
		}
	}
}
