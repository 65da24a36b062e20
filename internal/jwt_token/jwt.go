package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	id "assurly/pkg/domain"
	dErrors "assurly/pkg/domain-errors"
)

// Claims are the access-token claims the engine's API layer issues. The
// tenant ID is the authorization boundary: every engine call is scoped to it.
type Claims struct {
	TenantID string `json:"tenant_id"`
	ActorID  string `json:"actor_id"`
	jwt.RegisteredClaims
}

// Service handles JWT creation and validation.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer}
}

// GenerateToken signs an access token carrying tenant and actor identity.
func (s *Service) GenerateToken(tenantID id.TenantID, actorID string, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID: tenantID.String(),
		ActorID:  actorID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken parses and validates an access token.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if claims.TenantID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token missing tenant")
	}
	return claims, nil
}
