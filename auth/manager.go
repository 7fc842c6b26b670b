// Package auth owns the client's authentication state machine:
// Unauthenticated → Verifying → Authenticated, Authenticated ⇄ RefreshingToken,
// and any state → LoggedOut → Unauthenticated.
package auth

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-tenant-session/apiclient"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/tokenstore"
	"github.com/jrsteele09/go-tenant-session/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// API is the part of the remote API the manager calls
type API interface {
	Login(ctx context.Context, in apiclient.LoginRequest) (*apiclient.AuthResponse, error)
	Register(ctx context.Context, in apiclient.RegisterRequest) (*apiclient.AuthResponse, error)
	Logout(ctx context.Context) error
	VerifyToken(ctx context.Context, token string) (bool, error)
	Profile(ctx context.Context) (*users.User, error)
}

// SignupRequest registers a new account, optionally joining tenantID
type SignupRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Username  string
	TenantID  string
}

type subscriber struct {
	id int
	fn func(ctx context.Context, e Event)
}

type Manager struct {
	api    API
	store  *tokenstore.Session
	logger zerolog.Logger

	lock    sync.RWMutex
	state   State
	session *Session
	user    *users.User
	loading bool

	verifyOnce sync.Once
	verifyErr  error

	subsLock    sync.Mutex
	subscribers []subscriber
	nextSubID   int
}

type Option func(*Manager)

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager starts Unauthenticated and loading until Verify resolves
func NewManager(api API, store *tokenstore.Session, options ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("[auth.NewManager] api is required")
	}
	if store == nil {
		return nil, errors.New("[auth.NewManager] store is required")
	}
	m := &Manager{
		api:     api,
		store:   store,
		logger:  log.Logger,
		state:   Unauthenticated,
		loading: true,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Subscribe registers fn for every transition. Callbacks run in subscription
// order on the goroutine that made the transition, after internal locks are
// released. The returned func removes the subscription.
func (m *Manager) Subscribe(fn func(ctx context.Context, e Event)) func() {
	m.subsLock.Lock()
	defer m.subsLock.Unlock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})
	return func() {
		m.subsLock.Lock()
		defer m.subsLock.Unlock()
		for i, s := range m.subscribers {
			if s.id == id {
				m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) emit(ctx context.Context, e Event) {
	m.subsLock.Lock()
	subs := append([]subscriber(nil), m.subscribers...)
	m.subsLock.Unlock()
	for _, s := range subs {
		s.fn(ctx, e)
	}
}

// transition applies mutate and the new state under the lock, then notifies
// subscribers
func (m *Manager) transition(ctx context.Context, to State, cause Cause, mutate func()) {
	m.lock.Lock()
	from := m.state
	if mutate != nil {
		mutate()
	}
	m.state = to
	m.loading = to == Verifying
	sess := m.session.clone()
	m.lock.Unlock()

	// a login or signup replaces the session even when already authenticated
	if from == to && cause != CauseLogin && cause != CauseSignup {
		return
	}
	m.logger.Debug().Str("from", string(from)).Str("to", string(to)).Str("cause", string(cause)).Msg("auth transition")
	m.emit(ctx, Event{From: from, To: to, Cause: cause, Session: sess})
}

func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

// Session returns a copy of the current session, or nil
func (m *Manager) Session() *Session {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.session.clone()
}

func (m *Manager) Snapshot() Snapshot {
	m.lock.RLock()
	defer m.lock.RUnlock()
	var user *users.User
	if m.user != nil {
		u := *m.user
		user = &u
	}
	return Snapshot{
		State:           m.state,
		Session:         m.session.clone(),
		User:            user,
		IsAuthenticated: m.session != nil && (m.state == Authenticated || m.state == RefreshingToken),
		IsLoading:       m.loading,
	}
}

func (m *Manager) Authenticated() bool {
	return m.Snapshot().IsAuthenticated
}

// Verify checks a stored token with the server once per manager. Whatever
// the outcome, loading has finished when it returns.
func (m *Manager) Verify(ctx context.Context) error {
	m.verifyOnce.Do(func() {
		m.verifyErr = m.verify(ctx)
	})
	return m.verifyErr
}

func (m *Manager) verify(ctx context.Context) error {
	tok, err := m.store.Tokens()
	if err != nil || tok == nil {
		if err != nil {
			m.logger.Err(err).Msg("read stored tokens")
		}
		m.transition(ctx, Unauthenticated, CauseVerify, nil)
		return nil
	}

	m.transition(ctx, Verifying, CauseVerify, nil)

	user, err := m.store.User()
	if err != nil {
		m.logger.Warn().Err(err).Msg("cached user unreadable, reloading profile")
		user = nil
	}

	valid, err := m.api.VerifyToken(ctx, tok.AccessToken)
	if err != nil || !valid {
		m.logger.Info().Err(err).Msg("stored token rejected, clearing session")
		m.reset(ctx, CauseVerify)
		return err
	}

	if user == nil {
		if user, err = m.api.Profile(ctx); err != nil {
			m.logger.Err(err).Msg("load profile during verify")
			m.reset(ctx, CauseVerify)
			return err
		}
		if err := m.store.SaveUser(user); err != nil {
			m.logger.Err(err).Msg("cache user record")
		}
	}

	// Profile may have refreshed the pair
	if current, err := m.store.Tokens(); err == nil && current != nil {
		tok = current
	}
	m.transition(ctx, Authenticated, CauseVerify, func() {
		m.session = newSession(user, tok)
		m.user = user
	})
	return nil
}

// reset clears the store and the in-memory session and lands in Unauthenticated
func (m *Manager) reset(ctx context.Context, cause Cause) {
	if err := m.store.Clear(); err != nil {
		m.logger.Err(err).Msg("clear token store")
	}
	m.transition(ctx, Unauthenticated, cause, func() {
		m.session = nil
		m.user = nil
	})
}

// Login authenticates with email and password. Credential failures come
// back as errors.ErrInvalidCredentials.
func (m *Manager) Login(ctx context.Context, email, password string) (*Session, error) {
	return m.LoginToTenant(ctx, email, password, "")
}

// LoginToTenant is Login landing in tenantID instead of the user's default tenant
func (m *Manager) LoginToTenant(ctx context.Context, email, password, tenantID string) (*Session, error) {
	resp, err := m.api.Login(ctx, apiclient.LoginRequest{Email: email, Password: password, TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, resp, CauseLogin)
}

func (m *Manager) Signup(ctx context.Context, in SignupRequest) (*Session, error) {
	resp, err := m.api.Register(ctx, apiclient.RegisterRequest{
		Email:     in.Email,
		Password:  in.Password,
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		TenantID:  in.TenantID,
	})
	if err != nil {
		return nil, err
	}
	return m.establish(ctx, resp, CauseSignup)
}

func (m *Manager) establish(ctx context.Context, resp *apiclient.AuthResponse, cause Cause) (*Session, error) {
	tok := resp.OAuth2Token()
	if err := m.store.SaveLogin(tok, resp.User); err != nil {
		return nil, errors.Wrapf(err, "[Manager.%s] store session", cause)
	}

	session := newSession(resp.User, tok)
	m.transition(ctx, Authenticated, cause, func() {
		m.session = session
		m.user = resp.User
	})
	return session.clone(), nil
}

// Logout tells the server on a best-effort basis, then always clears local state
func (m *Manager) Logout(ctx context.Context) error {
	if m.Session() != nil {
		if err := m.api.Logout(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("logout request failed, clearing local session anyway")
		}
	}

	return m.end(ctx, CauseLogout)
}

// end drops the session. Subscribers see LoggedOut before the store is
// cleared, so anything they persisted while the session was ending goes too.
func (m *Manager) end(ctx context.Context, cause Cause) error {
	m.transition(ctx, LoggedOut, cause, func() {
		m.session = nil
		m.user = nil
	})
	err := m.store.Clear()
	if err != nil {
		m.logger.Err(err).Str("cause", string(cause)).Msg("clear token store")
	}
	m.transition(ctx, Unauthenticated, cause, nil)
	return err
}

// SetTenant records tenantID as the session's active tenant
func (m *Manager) SetTenant(tenantID string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.session == nil {
		return
	}
	m.session.TenantID = tenantID
	if m.user != nil {
		m.user.TenantID = tenantID
		if err := m.store.SaveUser(m.user); err != nil {
			m.logger.Err(err).Msg("cache user tenant")
		}
	}
}

// Hooks connects the manager to the client's refresh protocol
func (m *Manager) Hooks() apiclient.Hooks {
	return apiclient.Hooks{
		OnRefreshStart:   m.onRefreshStart,
		OnRefreshed:      m.onRefreshed,
		OnRefreshAborted: m.onRefreshAborted,
		OnSessionExpired: m.onSessionExpired,
	}
}

func (m *Manager) onRefreshStart(ctx context.Context) {
	if m.State() != Authenticated {
		return
	}
	m.transition(ctx, RefreshingToken, CauseRefresh, nil)
}

func (m *Manager) onRefreshed(ctx context.Context, tok *oauth2.Token) {
	m.lock.Lock()
	if m.session != nil {
		m.session.AccessToken = tok.AccessToken
		m.session.RefreshToken = tok.RefreshToken
	}
	refreshing := m.state == RefreshingToken
	m.lock.Unlock()

	if refreshing {
		m.transition(ctx, Authenticated, CauseRefresh, nil)
	}
}

func (m *Manager) onRefreshAborted(ctx context.Context, cause error) {
	m.logger.Warn().Err(cause).Msg("token refresh aborted")
	if m.State() == RefreshingToken {
		m.transition(ctx, Authenticated, CauseRefresh, nil)
	}
}

// onSessionExpired runs after the client has already cleared the store
func (m *Manager) onSessionExpired(ctx context.Context, cause error) {
	if m.Session() == nil {
		return
	}
	m.logger.Warn().Err(cause).Msg("session expired, logging out")
	_ = m.end(ctx, CauseExpired)
}
