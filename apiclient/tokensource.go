package apiclient

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"golang.org/x/oauth2"
)

// tokenExpiry reads the exp claim without verifying the signature. The client
// never holds the signing key; the server remains the authority.
func tokenExpiry(raw string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

type tokenSource struct {
	ctx    context.Context
	client *Client
}

var _ oauth2.TokenSource = (*tokenSource)(nil)

// TokenSource exposes the stored session as an oauth2.TokenSource, refreshing
// through the same single-flight path as Send when the token is near expiry.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, client: c}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := ts.client.session.Tokens()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, errors.ErrNotAuthenticated
	}
	if ts.client.expiresSoon(tok.AccessToken) {
		if _, err := ts.client.refresh(ts.ctx, tok.AccessToken); err != nil {
			return nil, err
		}
		if tok, err = ts.client.session.Tokens(); err != nil {
			return nil, err
		}
		if tok == nil {
			return nil, errors.ErrNotAuthenticated
		}
	}
	if exp, ok := tokenExpiry(tok.AccessToken); ok {
		tok.Expiry = exp
	}
	return tok, nil
}
