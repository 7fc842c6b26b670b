// Package guard decides whether a protected location may be shown. The
// decision is a pure function of the session status; Middleware adapts it to
// net/http.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-tenant-session/auth"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultLoginPath = "/login"
	// NextParam carries the originally requested location through the login page
	NextParam = "next"
)

// Status is what the guard needs to know about the session
type Status struct {
	IsAuthenticated bool
	IsLoading       bool
	// HasTenant is only consulted when Policy.TenantPath is set
	HasTenant bool
}

type Outcome int

const (
	// Pending means the session is still resolving; show a placeholder and never redirect
	Pending Outcome = iota
	Allow
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

type Decision struct {
	Outcome    Outcome
	RedirectTo string
}

type Policy struct {
	LoginPath string
	// TenantPath, when set, is where an authenticated session without an
	// active tenant is sent
	TenantPath string
}

func (p Policy) loginPath() string {
	if p.LoginPath == "" {
		return DefaultLoginPath
	}
	return p.LoginPath
}

// Decide resolves the outcome for requested, a path with optional query
func Decide(s Status, requested string, p Policy) Decision {
	if s.IsLoading {
		return Decision{Outcome: Pending}
	}
	if !s.IsAuthenticated {
		return Decision{Outcome: Redirect, RedirectTo: withNext(p.loginPath(), requested)}
	}
	if p.TenantPath != "" && !s.HasTenant && pathOf(requested) != pathOf(p.TenantPath) {
		return Decision{Outcome: Redirect, RedirectTo: withNext(p.TenantPath, requested)}
	}
	return Decision{Outcome: Allow}
}

func withNext(target, requested string) string {
	next := SafeNext(requested)
	if next == "/" || pathOf(next) == pathOf(target) {
		return target
	}
	return target + "?" + url.Values{NextParam: {next}}.Encode()
}

func pathOf(uri string) string {
	if i := strings.IndexAny(uri, "?#"); i >= 0 {
		return uri[:i]
	}
	return uri
}

// SafeNext returns next when it is a local absolute path, otherwise "/".
// Post-login redirects must go through it.
func SafeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.ContainsAny(next, "\\\r\n") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" || u.User != nil {
		return "/"
	}
	return next
}

// StatusFunc reports the session status for a request
type StatusFunc func(r *http.Request) Status

// SessionStatus reads the status from an auth manager and, when registry is
// not nil, the tenant selection
func SessionStatus(manager *auth.Manager, registry *tenants.Registry) StatusFunc {
	return func(r *http.Request) Status {
		snap := manager.Snapshot()
		s := Status{IsAuthenticated: snap.IsAuthenticated, IsLoading: snap.IsLoading}
		if registry != nil {
			ts := registry.Snapshot()
			s.HasTenant = ts.Current != nil
			s.IsLoading = s.IsLoading || (s.IsAuthenticated && ts.IsLoading)
		}
		return s
	}
}

type middleware struct {
	status      StatusFunc
	policy      Policy
	placeholder http.HandlerFunc
	logger      zerolog.Logger
}

type Option func(*middleware)

// WithPlaceholder replaces the response served while the session is loading
func WithPlaceholder(h http.HandlerFunc) Option {
	return func(m *middleware) {
		m.placeholder = h
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *middleware) {
		m.logger = logger
	}
}

// Middleware guards next with Decide
func Middleware(status StatusFunc, p Policy, options ...Option) func(http.HandlerFunc) http.HandlerFunc {
	m := &middleware{
		status:      status,
		policy:      p,
		placeholder: loadingPlaceholder,
		logger:      log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			d := Decide(m.status(r), r.URL.RequestURI(), m.policy)
			switch d.Outcome {
			case Allow:
				next(w, r)
			case Pending:
				m.placeholder(w, r)
			case Redirect:
				m.logger.Debug().Str("path", r.URL.Path).Str("to", d.RedirectTo).Msg("guard redirect")
				redirect(w, r, d.RedirectTo)
			}
		}
	}
}

// redirect is htmx-aware: partial requests get an HX-Redirect instruction
func redirect(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func loadingPlaceholder(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", "1")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("loading\n"))
}
