package common

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"go-payment-service/domain"
)

type JwtProviderConfig interface {
	AccessTokenSecret() string
	ServiceTokenSecret() string
	ServiceTokenExpiresIn() time.Duration
	TokenIssuer() string
	ServiceName() string
}

// JWTProvider verifies end-user access tokens issued by the auth service and
// issues and verifies the service tokens used between services. The two token
// kinds are signed with different secrets.
type JWTProvider struct {
	cfg JwtProviderConfig
	now func() time.Time
}

func NewJWTProvider(cfg JwtProviderConfig) *JWTProvider {
	return &JWTProvider{cfg: cfg, now: time.Now}
}

func (j *JWTProvider) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	}
	if issuer := j.cfg.TokenIssuer(); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return opts
}

// VerifyAccess turns an end-user bearer token into a principal. A token that
// claims the SERVICE role is rejected even when its signature is valid.
func (j *JWTProvider) VerifyAccess(tokenStr string) (*domain.Principal, error) {
	claims := &domain.AccessClaims{}
	if err := j.parse(tokenStr, claims, j.cfg.AccessTokenSecret()); err != nil {
		return nil, domain.ErrInvalidToken.WithTrace(err)
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return nil, domain.ErrInvalidToken.WithReason("token has no subject")
	}
	if !claims.Role.IsEndUser() {
		if claims.Role == domain.RoleService {
			return nil, domain.ErrPrivilegedRoleInUserToken
		}
		return nil, domain.ErrInvalidToken.WithReasonf("unknown role %q", claims.Role)
	}

	return &domain.Principal{
		UserID: subject,
		Role:   claims.Role,
		Email:  claims.Email,
	}, nil
}

// VerifyService authenticates a calling service.
func (j *JWTProvider) VerifyService(tokenStr string) (*domain.Principal, error) {
	claims := &domain.ServiceClaims{}
	if err := j.parse(tokenStr, claims, j.cfg.ServiceTokenSecret()); err != nil {
		return nil, domain.ErrInvalidServiceToken.WithTrace(err)
	}
	if claims.Service == "" {
		return nil, domain.ErrInvalidServiceToken.WithReason("token has no service name")
	}

	return &domain.Principal{
		UserID:  claims.Service,
		Role:    domain.RoleService,
		Service: claims.Service,
	}, nil
}

// IssueServiceToken signs a short-lived token naming this service, attached to
// outbound upstream calls.
func (j *JWTProvider) IssueServiceToken() (string, error) {
	now := j.now()
	claims := domain.ServiceClaims{
		Service: j.cfg.ServiceName(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    j.cfg.TokenIssuer(),
			Subject:   j.cfg.ServiceName(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.cfg.ServiceTokenExpiresIn())),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.cfg.ServiceTokenSecret()))
}

func (j *JWTProvider) parse(tokenStr string, claims jwt.Claims, secret string) error {
	if tokenStr == "" {
		return errors.New("empty token")
	}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, j.parserOptions()...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("invalid token")
	}
	return nil
}
