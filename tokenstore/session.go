package tokenstore

import (
	"encoding/json"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/internal/utils"
	"github.com/jrsteele09/go-tenant-session/users"
	"golang.org/x/oauth2"
)

// Session is the typed view over a Store used by the rest of the client.
type Session struct {
	store Store
}

func NewSession(store Store) (*Session, error) {
	if store == nil {
		return nil, errors.New("[NewSession] store is required")
	}
	return &Session{store: store}, nil
}

// Tokens returns the stored token pair, or nil when no access token is stored.
func (s *Session) Tokens() (*oauth2.Token, error) {
	access, err := s.store.Get(KeyAccessToken)
	if err != nil {
		return nil, err
	}
	if utils.Value(access) == "" {
		return nil, nil
	}
	refresh, err := s.store.Get(KeyRefreshToken)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken:  *access,
		RefreshToken: utils.Value(refresh),
		TokenType:    "Bearer",
	}, nil
}

func (s *Session) AccessToken() (string, error) {
	v, err := s.store.Get(KeyAccessToken)
	return utils.Value(v), err
}

func (s *Session) RefreshToken() (string, error) {
	v, err := s.store.Get(KeyRefreshToken)
	return utils.Value(v), err
}

// SaveTokens replaces the token pair in one write. An empty refresh token
// removes the stored one so a fresh access token is never paired with a stale refresh token.
func (s *Session) SaveTokens(tok *oauth2.Token) error {
	set, remove, err := tokenWrites(tok)
	if err != nil {
		return err
	}
	return apply(s.store, set, remove)
}

// SaveLogin stores the token pair and the user record together.
func (s *Session) SaveLogin(tok *oauth2.Token, user *users.User) error {
	set, remove, err := tokenWrites(tok)
	if err != nil {
		return err
	}
	if user != nil {
		data, err := json.Marshal(user)
		if err != nil {
			return errors.Wrapf(err, "[Session.SaveLogin] encode user")
		}
		set[KeyCurrentUser] = string(data)
	}
	return apply(s.store, set, remove)
}

func tokenWrites(tok *oauth2.Token) (map[Key]string, []Key, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, nil, errors.New("[Session] access token is required")
	}
	set := map[Key]string{KeyAccessToken: tok.AccessToken}
	var remove []Key
	if tok.RefreshToken != "" {
		set[KeyRefreshToken] = tok.RefreshToken
	} else {
		remove = append(remove, KeyRefreshToken)
	}
	return set, remove, nil
}

// User returns the cached user record, or nil when none is stored.
func (s *Session) User() (*users.User, error) {
	var u users.User
	ok, err := s.LoadJSON(KeyCurrentUser, &u)
	if err != nil || !ok {
		return nil, err
	}
	return &u, nil
}

func (s *Session) SaveUser(u *users.User) error {
	return s.SaveJSON(KeyCurrentUser, u)
}

// CurrentTenantID reads the id field of the stored tenant selection.
func (s *Session) CurrentTenantID() (string, error) {
	var sel struct {
		ID string `json:"id"`
	}
	if _, err := s.LoadJSON(KeyCurrentTenant, &sel); err != nil {
		return "", err
	}
	return sel.ID, nil
}

// LoadJSON decodes the value at key into v and reports whether it was present.
func (s *Session) LoadJSON(key Key, v any) (bool, error) {
	raw, err := s.store.Get(key)
	if err != nil {
		return false, err
	}
	if utils.Value(raw) == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(*raw), v); err != nil {
		return false, errors.Wrapf(err, "[Session.LoadJSON] decode %s", key)
	}
	return true, nil
}

func (s *Session) SaveJSON(key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "[Session.SaveJSON] encode %s", key)
	}
	return s.store.Set(key, string(data))
}

func (s *Session) Remove(key Key) error {
	return s.store.Remove(key)
}

// Clear removes every stored key
func (s *Session) Clear() error {
	return s.store.Clear()
}
