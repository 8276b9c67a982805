package common

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"

	"go-payment-service/domain"
)

const (
	PrincipalContextKey = "principal"
	RequestIDContextKey = "request_id"
	RequestIDHeader     = "X-Request-ID"
)

type ClientInfo struct {
	UserAgent string
	IPAddress string
}

// ExtractClientInfo extracts client information from the Gin context
func ExtractClientInfo(c *gin.Context) *ClientInfo {
	return &ClientInfo{
		UserAgent: c.GetHeader("User-Agent"),
		IPAddress: GetClientIP(c),
	}
}

// GetClientIP gets the real client IP address
func GetClientIP(c *gin.Context) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := c.GetHeader("X-Forwarded-For"); xff != "" {
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if ip != "" && net.ParseIP(ip) != nil {
			return ip
		}
	}

	if xri := c.GetHeader("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}

	remoteIP, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return remoteIP
}

func SetPrincipal(c *gin.Context, principal *domain.Principal) {
	c.Set(PrincipalContextKey, principal)
}

// GetPrincipalFromCtx returns nil for unauthenticated requests.
func GetPrincipalFromCtx(c *gin.Context) *domain.Principal {
	if v, ok := c.Get(PrincipalContextKey); ok {
		if principal, ok := v.(*domain.Principal); ok {
			return principal
		}
	}
	return nil
}

func GetRequestIDFromCtx(c *gin.Context) string {
	return c.GetString(RequestIDContextKey)
}
