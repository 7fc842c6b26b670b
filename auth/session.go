package auth

import (
	"github.com/jrsteele09/go-tenant-session/users"
	"golang.org/x/oauth2"
)

// State is the authentication state of the client
type State string

const (
	Unauthenticated State = "unauthenticated"
	Verifying       State = "verifying"
	Authenticated   State = "authenticated"
	RefreshingToken State = "refreshing_token"
	LoggedOut       State = "logged_out"
)

// Cause names the operation that drove a transition
type Cause string

const (
	CauseVerify  Cause = "verify"
	CauseLogin   Cause = "login"
	CauseSignup  Cause = "signup"
	CauseRefresh Cause = "refresh"
	CauseLogout  Cause = "logout"
	CauseExpired Cause = "expired"
)

// Session is the authenticated identity held between login and logout
type Session struct {
	UserID       string
	Email        string
	DisplayName  string
	Role         users.RoleType
	TenantID     string
	AccessToken  string
	RefreshToken string
}

func newSession(user *users.User, tok *oauth2.Token) *Session {
	s := &Session{}
	if user != nil {
		s.UserID = user.ID
		s.Email = user.Email
		s.DisplayName = user.DisplayName()
		s.Role = user.Role
		s.TenantID = user.TenantID
	}
	if tok != nil {
		s.AccessToken = tok.AccessToken
		s.RefreshToken = tok.RefreshToken
	}
	return s
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// Event describes one state transition
type Event struct {
	From    State
	To      State
	Cause   Cause
	Session *Session
}

// Snapshot is a consistent read of the manager's state
type Snapshot struct {
	State           State
	Session         *Session
	User            *users.User
	IsAuthenticated bool
	IsLoading       bool
}
