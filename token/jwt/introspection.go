package jwt

import (
	"errors"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-tenant-session/token"
)

// TokenIntrospection is what the mock backend knows about a presented access token.
// If Active is false the other fields may not be populated.
type TokenIntrospection struct {
	Active bool      `json:"active"`
	Sub    string    `json:"sub,omitempty"`
	Email  string    `json:"email,omitempty"`
	Tenant string    `json:"tenant,omitempty"`
	Role   string    `json:"role,omitempty"`
	JTI    string    `json:"jti,omitempty"`
	Exp    time.Time `json:"exp"`
}

// RevokedChecker is an interface for checking if a token has been revoked
type RevokedChecker interface {
	IsRevoked(jti string) bool
}

// Inspector verifies access tokens issued by Creator
type Inspector struct {
	signer         token.Signer
	revokedChecker RevokedChecker
}

func NewInspector(signer token.Signer, revokedChecker RevokedChecker) *Inspector {
	return &Inspector{
		signer:         signer,
		revokedChecker: revokedChecker,
	}
}

// Introspect verifies signature, expiry and revocation. A token that fails any
// check is reported inactive together with the reason.
func (i *Inspector) Introspect(rawToken string) (*TokenIntrospection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &TokenIntrospection{Active: false}, nil
	}

	parsed, err := jwtlib.ParseWithClaims(rawToken, jwtlib.MapClaims{}, i.signer.GetVerificationKey,
		jwtlib.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwtlib.WithTimeFunc(NowTimeFunc),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return &TokenIntrospection{Active: false}, err
	}

	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return &TokenIntrospection{Active: false}, errors.New("error extracting claims from token")
	}

	result := &TokenIntrospection{Active: true}
	result.Sub, _ = claims["sub"].(string)
	result.Email, _ = claims["email"].(string)
	result.Tenant, _ = claims["tenant"].(string)
	result.Role, _ = claims["role"].(string)
	result.JTI, _ = claims["jti"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		result.Exp = exp.Time
	}

	if result.JTI != "" && i.revokedChecker != nil && i.revokedChecker.IsRevoked(result.JTI) {
		result.Active = false
	}
	return result, nil
}
