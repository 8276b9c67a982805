package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"go-payment-service/common"
	"go-payment-service/domain"
	"go-payment-service/pkg/log"
)

// OwnerResolver returns the user id owning the resource addressed by the
// request.
type OwnerResolver func(c *gin.Context) (ownerID string, err error)

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}

func (m *middlewares) authenticate(c *gin.Context, verify func(string) (*domain.Principal, error)) {
	token := bearerToken(c)
	if token == "" {
		common.ResponseError(c, domain.ErrUnauthorized.WithReason("missing bearer token"))
		return
	}

	principal, err := verify(token)
	if err != nil {
		common.ResponseError(c, err)
		return
	}

	common.SetPrincipal(c, principal)
	if principal.UserID != "" {
		c.Request = c.Request.WithContext(log.ContextWithUserID(c.Request.Context(), principal.UserID))
	}
	c.Next()
}

// Authenticator accepts end-user access tokens only. A token claiming the
// SERVICE role is rejected even when its signature is valid.
func (m *middlewares) Authenticator() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.authenticate(c, m.jwtProvider.VerifyAccess)
	}
}

// ServiceAuthenticator accepts service tokens issued to sibling services.
func (m *middlewares) ServiceAuthenticator() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.authenticate(c, m.jwtProvider.VerifyService)
	}
}

func principalOrAbort(c *gin.Context) *domain.Principal {
	principal := common.GetPrincipalFromCtx(c)
	if principal == nil {
		common.ResponseError(c, domain.ErrUnauthorized.WithReason("principal not found"))
	}
	return principal
}

func (m *middlewares) Permit(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := principalOrAbort(c)
		if principal == nil {
			return
		}

		if !domain.IsPermitted(principal.Role, roles...) {
			common.ResponseError(c, domain.ErrForbidden.WithReasonf("role %s is not allowed", principal.Role))
			return
		}
		c.Next()
	}
}

func (m *middlewares) PermitWithPermission(permission domain.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := principalOrAbort(c)
		if principal == nil {
			return
		}

		if !m.permissions.HasPermission(principal.Role, permission) {
			common.ResponseError(c, domain.ErrForbidden.WithReasonf("missing permission %s", permission))
			return
		}
		c.Next()
	}
}

// PermitSelfOrAdmin lets admins and services through and otherwise requires
// the caller to own the addressed resource.
func (m *middlewares) PermitSelfOrAdmin(resolve OwnerResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := principalOrAbort(c)
		if principal == nil {
			return
		}

		if principal.Role == domain.RoleAdmin || principal.IsService() {
			c.Next()
			return
		}

		ownerID, err := resolve(c)
		if err != nil {
			common.ResponseError(c, err)
			return
		}
		if !principal.CanAccessOwned(ownerID) {
			common.ResponseError(c, domain.ErrForbidden.WithReason("resource belongs to another user"))
			return
		}
		c.Next()
	}
}
