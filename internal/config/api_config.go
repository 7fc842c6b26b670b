package config

import (
	"strings"
	"time"
)

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetRefreshLeeway() time.Duration
	GetCircuitBreakerEnabled() bool
}

type API struct {
	BaseURL        string        `env:"API_BASE_URL" envDefault:"http://localhost:8000/api"`
	Timeout        time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
	RefreshLeeway  time.Duration `env:"API_REFRESH_LEEWAY" envDefault:"30s"`
	CircuitBreaker bool          `env:"API_CIRCUIT_BREAKER" envDefault:"false"`
}

var _ APIConfig = API{}

// GetBaseURL returns the API root without a trailing slash
func (a API) GetBaseURL() string {
	return strings.TrimRight(a.BaseURL, "/")
}

func (a API) GetRequestTimeout() time.Duration {
	return a.Timeout
}

func (a API) GetRefreshLeeway() time.Duration {
	return a.RefreshLeeway
}

func (a API) GetCircuitBreakerEnabled() bool {
	return a.CircuitBreaker
}
