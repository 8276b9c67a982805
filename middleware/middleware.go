package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"go-payment-service/domain"
	"go-payment-service/pkg/cache"
	"go-payment-service/pkg/log"
)

// Middlewares defines all available middleware methods
type Middlewares interface {
	// Rate limiting middlewares
	RateLimit(config ...RateLimitConfig) gin.HandlerFunc

	// Logging middlewares
	RequestID() gin.HandlerFunc
	Logging(config ...LoggerConfig) gin.HandlerFunc

	// CORS middlewares
	CORS(config ...CORSConfig) gin.HandlerFunc

	// Authentication and authorization middlewares
	Authenticator() gin.HandlerFunc
	ServiceAuthenticator() gin.HandlerFunc
	Permit(roles ...domain.Role) gin.HandlerFunc
	PermitWithPermission(permission domain.Permission) gin.HandlerFunc
	PermitSelfOrAdmin(resolve OwnerResolver) gin.HandlerFunc
}

type JwtProvider interface {
	VerifyAccess(tokenStr string) (*domain.Principal, error)
	VerifyService(tokenStr string) (*domain.Principal, error)
}

type HTTPRecorder interface {
	HTTPRequest(method, route string, status int, elapsed time.Duration)
}

// Dependencies holds all dependencies needed by middlewares
type Dependencies struct {
	Cache       cache.Client
	Logger      log.Logger
	JwtProvider JwtProvider
	Permissions *domain.PermissionTable
	Metrics     HTTPRecorder
	// RateLimit is applied by RateLimit() when called without arguments.
	RateLimit RateLimitConfig
}

// NewMiddlewares creates a new instance of middlewares with dependencies
func NewMiddlewares(deps Dependencies) Middlewares {
	if deps.Logger == nil {
		deps.Logger = log.NewNop()
	}
	if deps.RateLimit.WindowSize == 0 && deps.RateLimit.MaxRequests == 0 {
		deps.RateLimit = DefaultRateLimitConfig()
	}
	if deps.Permissions == nil {
		deps.Permissions = domain.DefaultPermissionTable()
	}
	return &middlewares{
		cache:       deps.Cache,
		logger:      deps.Logger,
		jwtProvider: deps.JwtProvider,
		permissions: deps.Permissions,
		metrics:     deps.Metrics,
		rateLimit:   deps.RateLimit,
	}
}

type middlewares struct {
	cache       cache.Client
	logger      log.Logger
	jwtProvider JwtProvider
	permissions *domain.PermissionTable
	metrics     HTTPRecorder
	rateLimit   RateLimitConfig
}
