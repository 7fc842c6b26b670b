package apiclient

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// Refresh outcomes recorded by Metrics.Refreshes
const (
	RefreshSuccess = "success"
	RefreshFailure = "failure"
	RefreshReused  = "reused"
)

// Metrics are the client's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	Requests     *prometheus.CounterVec
	Refreshes    *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg when reg is not nil
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenant_session",
			Name:      "api_requests_total",
			Help:      "API requests sent, by method and status code.",
		}, []string{"method", "code"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenant_session",
			Name:      "token_refresh_total",
			Help:      "Access token refresh attempts, by outcome.",
		}, []string{"outcome"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tenant_session",
			Name:      "circuit_breaker_state",
			Help:      "Current state of the API circuit breaker (0=closed, 1=half-open, 2=open).",
		}, []string{"name"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Requests, m.Refreshes, m.BreakerState} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeRequest(method string, code int) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	m.Requests.WithLabelValues(method, label).Inc()
}

func (m *Metrics) observeRefresh(outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) setBreakerState(name string, state gobreaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case gobreaker.StateClosed:
		v = 0
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	default:
		v = -1
	}
	m.BreakerState.WithLabelValues(name).Set(v)
}
