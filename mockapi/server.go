// Package mockapi serves the tenant API contract from memory. It backs
// cmd/server for local development and the client's integration tests.
package mockapi

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-tenant-session/tenants"
	tenantrepofakes "github.com/jrsteele09/go-tenant-session/tenants/repofakes"
	"github.com/jrsteele09/go-tenant-session/token"
	"github.com/jrsteele09/go-tenant-session/token/jwt"
	"github.com/jrsteele09/go-tenant-session/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-tenant-session/token/refresh/repofake"
	"github.com/jrsteele09/go-tenant-session/users"
	userrepofakes "github.com/jrsteele09/go-tenant-session/users/repofakes"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Routes served by Server
const (
	RouteLogin        = "/auth/login/"
	RouteRegister     = "/auth/register/"
	RouteRefresh      = "/auth/refresh/"
	RouteLogout       = "/auth/logout/"
	RouteVerifyToken  = "/auth/verify-token/"
	RouteProfile      = "/auth/profile/"
	RouteSwitchTenant = "/auth/switch-tenant/"
	RouteTenants      = "/tenants/"
	RouteCreateTenant = "/tenants/create-tenant/"
	RouteTenant       = "/tenants/{id}/"
	RouteHealthCheck  = "/health-check/"
)

type Repos struct {
	Users   users.Repo
	Tenants tenants.Repo
	Refresh refresh.Repo
}

// FakeRepos returns empty in-memory repositories
func FakeRepos() Repos {
	return Repos{
		Users:   userrepofakes.NewFakeUserRepo(),
		Tenants: tenantrepofakes.NewFakeTenantRepo(),
		Refresh: refreshrepofake.NewFakeRefreshTokenRepo(),
	}
}

type Config interface {
	GetSigningSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenLength() int
}

type Server struct {
	env       string
	mux       *http.ServeMux
	routes    []string
	logger    zerolog.Logger
	repos     Repos
	creator   *jwt.Creator
	inspector *jwt.Inspector
	refresh   *refresh.Manager
	revoked   *token.Revocations
	rotate    bool

	// registration and tenant creation mutate several records at once
	writeLock sync.Mutex

	controls controls
}

type Option func(*Server)

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithEnv enables route logging when env is "DEV"
func WithEnv(env string) Option {
	return func(s *Server) {
		s.env = env
	}
}

// WithRefreshRotation makes the refresh endpoint return a new refresh token each call
func WithRefreshRotation() Option {
	return func(s *Server) {
		s.rotate = true
	}
}

func New(cfg Config, repos Repos, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[mockapi.New] config is required")
	}
	if repos.Users == nil || repos.Tenants == nil || repos.Refresh == nil {
		return nil, errors.New("[mockapi.New] repos are required")
	}

	signer, err := token.NewHMACSigner(cfg.GetSigningSecret())
	if err != nil {
		return nil, fmt.Errorf("[mockapi.New] %w", err)
	}
	creator, err := jwt.NewCreator(signer, cfg.GetAccessTokenTTL())
	if err != nil {
		return nil, fmt.Errorf("[mockapi.New] %w", err)
	}
	refreshManager, err := refresh.NewManager(repos.Refresh, cfg.GetRefreshTokenLength(), 0)
	if err != nil {
		return nil, fmt.Errorf("[mockapi.New] %w", err)
	}

	revoked := token.NewRevocations(nil)
	s := &Server{
		mux:       http.NewServeMux(),
		logger:    log.Logger,
		repos:     repos,
		creator:   creator,
		inspector: jwt.NewInspector(signer, revoked),
		refresh:   refreshManager,
		revoked:   revoked,
		controls:  newControls(),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteFunc(pattern string, handler http.HandlerFunc) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) initRoutes() {
	public := s.APIMiddleware()
	protected := s.APIMiddleware(s.RequireAuth())

	s.RegisterRouteFunc("GET "+RouteHealthCheck, ChainMiddleware(s.HealthCheck(), public...))

	s.RegisterRouteFunc("POST "+RouteLogin, ChainMiddleware(s.Login(), public...))
	s.RegisterRouteFunc("POST "+RouteRegister, ChainMiddleware(s.Register(), public...))
	s.RegisterRouteFunc("POST "+RouteRefresh, ChainMiddleware(s.Refresh(), public...))
	s.RegisterRouteFunc("POST "+RouteVerifyToken, ChainMiddleware(s.VerifyToken(), public...))
	s.RegisterRouteFunc("POST "+RouteLogout, ChainMiddleware(s.Logout(), protected...))
	s.RegisterRouteFunc("GET "+RouteProfile, ChainMiddleware(s.Profile(), protected...))
	s.RegisterRouteFunc("POST "+RouteSwitchTenant, ChainMiddleware(s.SwitchTenant(), protected...))

	s.RegisterRouteFunc("GET "+RouteTenants, ChainMiddleware(s.ListTenants(), protected...))
	// creation is public; a bearer token, when present, also makes the caller a member
	s.RegisterRouteFunc("POST "+RouteCreateTenant, ChainMiddleware(s.CreateTenant(), s.APIMiddleware(s.OptionalAuth())...))
	s.RegisterRouteFunc("PUT "+RouteTenant, ChainMiddleware(s.UpdateTenant(), protected...))
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		s.logger.Info().Str("route", route).Msg("registered")
	}
}
