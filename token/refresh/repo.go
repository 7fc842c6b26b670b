package refresh

import (
	"time"
)

// StoredRefreshToken is the server-side record behind an opaque refresh token.
// The client only receives the Token field.
type StoredRefreshToken struct {
	Token    string
	UserID   string
	TenantID string // tenant the refreshed access token is issued for
	Iat      time.Time
}

// Repo stores refresh token metadata keyed by the token string
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	GetByUserID(userID string) (*StoredRefreshToken, error)
}
