package config

import "time"

// MockConfig configures the in-memory backend served by cmd/server
type MockConfig interface {
	GetSigningSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenLength() int
}

type Mock struct {
	SigningSecret  string        `env:"MOCK_SIGNING_SECRET" envDefault:"dev-signing-secret"`
	AccessTokenTTL time.Duration `env:"MOCK_ACCESS_TOKEN_TTL" envDefault:"15m"`
}

var _ MockConfig = Mock{}

func (m Mock) GetSigningSecret() string {
	return m.SigningSecret
}

func (m Mock) GetAccessTokenTTL() time.Duration {
	return m.AccessTokenTTL
}

func (Mock) GetRefreshTokenLength() int {
	return 32 // 32 bytes = 256 bits
}
