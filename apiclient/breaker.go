package apiclient

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig configures the optional breaker in front of the API
type CircuitBreakerConfig struct {
	Name string
	// MaxRequests allowed while half-open
	MaxRequests uint32
	// Interval clears counts while closed; 0 never clears
	Interval time.Duration
	// Timeout is how long the breaker stays open
	Timeout      time.Duration
	FailureRatio float64
	MinRequests  uint32
}

func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

func newBreaker(cfg CircuitBreakerConfig, logger zerolog.Logger, metrics *Metrics) *gobreaker.CircuitBreaker[*http.Response] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.setBreakerState(name, to)
		},
	}
	metrics.setBreakerState(cfg.Name, gobreaker.StateClosed)
	return gobreaker.NewCircuitBreaker[*http.Response](settings)
}
