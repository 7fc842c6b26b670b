// Package session wires authentication to the tenant registry. The auth
// manager and the registry never reference each other; the Coordinator
// subscribes to auth transitions and drives the registry from them.
package session

import (
	"context"

	"github.com/jrsteele09/go-tenant-session/apiclient"
	"github.com/jrsteele09/go-tenant-session/auth"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Coordinator struct {
	client      *apiclient.Client
	auth        *auth.Manager
	tenants     *tenants.Registry
	logger      zerolog.Logger
	unsubscribe func()
}

type Option func(*Coordinator)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// New builds the auth manager and tenant registry over client and its token
// store, and connects the client's refresh hooks to the manager.
func New(client *apiclient.Client, options ...Option) (*Coordinator, error) {
	if client == nil {
		return nil, errors.New("[session.New] client is required")
	}
	c := &Coordinator{
		client: client,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}

	var err error
	c.auth, err = auth.NewManager(client, client.Session(), auth.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	c.tenants, err = tenants.NewRegistry(client, c.auth, client.Session(), tenants.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	client.SetHooks(c.auth.Hooks())
	c.unsubscribe = c.auth.Subscribe(c.onAuthEvent)
	return c, nil
}

func (c *Coordinator) Auth() *auth.Manager {
	return c.auth
}

func (c *Coordinator) Tenants() *tenants.Registry {
	return c.tenants
}

func (c *Coordinator) Client() *apiclient.Client {
	return c.client
}

// onAuthEvent runs on the goroutine that made the transition. Login, signup
// and verify each load tenants exactly once; leaving the session drops them.
func (c *Coordinator) onAuthEvent(ctx context.Context, e auth.Event) {
	switch {
	case e.To == auth.Authenticated && e.Cause == auth.CauseVerify:
		if err := c.tenants.Restore(); err != nil {
			c.logger.Warn().Err(err).Msg("restore tenant selection")
		}
		c.refreshTenants(ctx)
	case e.To == auth.Authenticated && (e.Cause == auth.CauseLogin || e.Cause == auth.CauseSignup):
		c.tenants.Invalidate()
		c.refreshTenants(ctx)
	case e.To == auth.LoggedOut, e.To == auth.Unauthenticated:
		c.tenants.Invalidate()
	}
}

func (c *Coordinator) refreshTenants(ctx context.Context) {
	if _, err := c.tenants.Refresh(ctx); err != nil {
		c.logger.Err(err).Msg("load tenants after sign-in")
	}
}

// Start verifies a stored session. Loading is resolved when it returns, even on error.
func (c *Coordinator) Start(ctx context.Context) error {
	return c.auth.Verify(ctx)
}

// Login signs in and loads the user's tenants. A tenant load failure does not
// fail the login; it is reported through Tenants().Snapshot().Err.
func (c *Coordinator) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	return c.auth.Login(ctx, email, password)
}

func (c *Coordinator) Signup(ctx context.Context, in auth.SignupRequest) (*auth.Session, error) {
	return c.auth.Signup(ctx, in)
}

// Logout always clears the local session and tenant state
func (c *Coordinator) Logout(ctx context.Context) error {
	return c.auth.Logout(ctx)
}

// Bootstrap creates a new tenant with its first admin account, signs in as
// that admin and makes the new tenant current.
func (c *Coordinator) Bootstrap(ctx context.Context, in tenants.CreateRequest) (*tenants.Tenant, *auth.Session, error) {
	t, err := c.client.CreateTenant(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	sess, err := c.auth.LoginToTenant(ctx, in.Email, in.Password, t.ID)
	if err != nil {
		return t, nil, errors.Wrapf(err, "[Coordinator.Bootstrap] sign in to %s", t.ID)
	}
	if current := c.tenants.Current(); current == nil || current.ID != t.ID {
		if err := c.tenants.SwitchTenant(ctx, t.ID); err != nil {
			return t, sess, err
		}
	}
	return t, sess, nil
}

// Close stops reacting to auth transitions
func (c *Coordinator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}
