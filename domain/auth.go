package domain

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
)

/****************************
*        Auth errors        *
****************************/
var (
	ErrInvalidToken = &DetailedError{
		IDField:         "INVALID_TOKEN",
		StatusDescField: http.StatusText(http.StatusUnauthorized),
		ErrorField:      "Invalid or expired token",
		StatusCodeField: http.StatusUnauthorized,
	}
	ErrInvalidServiceToken = &DetailedError{
		IDField:         "INVALID_SERVICE_TOKEN",
		StatusDescField: http.StatusText(http.StatusUnauthorized),
		ErrorField:      "Invalid or expired service token",
		StatusCodeField: http.StatusUnauthorized,
	}
	ErrPrivilegedRoleInUserToken = &DetailedError{
		IDField:         "PRIVILEGED_ROLE_IN_USER_TOKEN",
		StatusDescField: http.StatusText(http.StatusUnauthorized),
		ErrorField:      "The token carries a role that end users cannot hold",
		StatusCodeField: http.StatusUnauthorized,
	}
)

/***************************************
*       Auth entities and types       *
***************************************/

// AccessClaims are issued by the auth service. Only verification happens here.
type AccessClaims struct {
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ServiceClaims identify the calling service on inter-service requests.
type ServiceClaims struct {
	Service string `json:"svc"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID  string `json:"user_id"`
	Role    Role   `json:"role"`
	Email   string `json:"email,omitempty"`
	Service string `json:"service,omitempty"`
}

func (p *Principal) IsService() bool {
	return p != nil && p.Role == RoleService
}

// CanAccessOwned reports whether p may act on a resource owned by ownerID.
func (p *Principal) CanAccessOwned(ownerID string) bool {
	if p == nil {
		return false
	}
	if p.Role == RoleAdmin || p.Role == RoleService {
		return true
	}
	return ownerID != "" && p.UserID == ownerID
}
