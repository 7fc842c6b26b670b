package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo        Repo
	tokenLength int
	expiry      time.Duration
}

func NewManager(repo Repo, tokenLength int, expiry time.Duration) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("[refresh.NewManager] repo is required")
	}
	if tokenLength <= 0 {
		return nil, errors.New("[refresh.NewManager] tokenLength must be positive")
	}
	return &Manager{
		repo:        repo,
		tokenLength: tokenLength,
		expiry:      expiry,
	}, nil
}

// Create generates a new refresh token, replacing any the user already holds
func (m *Manager) Create(userID, tenantID string) (*string, error) {
	if existingToken, err := m.repo.GetByUserID(userID); err == nil && existingToken != nil {
		if err := m.repo.Delete(existingToken.Token); err != nil {
			return nil, fmt.Errorf("failed to delete existing refresh token: %w", err)
		}
	}

	tokenBytes := make([]byte, m.tokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:    tokenStr,
		UserID:   userID,
		TenantID: tenantID,
		Iat:      NowTimeFunc(),
	}); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &tokenStr, nil
}

// Validate returns the stored record when token exists and has not expired
func (m *Manager) Validate(token string) (*StoredRefreshToken, error) {
	rt, err := m.repo.Get(token)
	if err != nil {
		return nil, err
	}
	if m.IsExpired(rt) {
		_ = m.repo.Delete(token)
		return nil, errors.New("refresh token expired")
	}
	return rt, nil
}

// SetTenantForUser moves the user's refresh token to tenantID so refreshed
// access tokens follow a tenant switch
func (m *Manager) SetTenantForUser(userID, tenantID string) error {
	rt, err := m.repo.GetByUserID(userID)
	if err != nil {
		return err
	}
	cpy := *rt
	cpy.TenantID = tenantID
	return m.repo.Upsert(&cpy)
}

func (m *Manager) Delete(token string) error {
	return m.repo.Delete(token)
}

// DeleteForUser revokes whatever refresh token the user holds
func (m *Manager) DeleteForUser(userID string) error {
	rt, err := m.repo.GetByUserID(userID)
	if err != nil || rt == nil {
		return nil
	}
	return m.repo.Delete(rt.Token)
}

// IsExpired reports whether rt is older than the configured expiry; zero never expires
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	if m.expiry == 0 {
		return false
	}
	return NowTimeFunc().Sub(rt.Iat) > m.expiry
}
