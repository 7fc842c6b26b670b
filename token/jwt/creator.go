package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-session/token"
	"github.com/jrsteele09/go-tenant-session/users"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Creator issues access tokens for the mock backend
type Creator struct {
	signer token.Signer
	ttl    time.Duration
}

func NewCreator(signer token.Signer, ttl time.Duration) (*Creator, error) {
	if signer == nil {
		return nil, errors.New("[NewCreator] signer is required")
	}
	if ttl <= 0 {
		return nil, errors.New("[NewCreator] ttl must be positive")
	}
	return &Creator{signer: signer, ttl: ttl}, nil
}

// CreateAccessToken issues a token for user acting as tenantID
func (c *Creator) CreateAccessToken(user *users.User, tenantID string) (*string, error) {
	now := NowTimeFunc()
	claims := jwtlib.MapClaims{
		"sub":    user.ID,
		"email":  user.Email,
		"tenant": tenantID,
		"role":   string(user.Role),
		"iat":    now.Unix(),
		"exp":    now.Add(c.ttl).Unix(),
		"jti":    uuid.New().String(), // Unique token ID for revocation
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return nil, fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return &signed, nil
}
