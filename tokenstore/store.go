// Package tokenstore persists the client side of a session: the access and
// refresh tokens, the cached user record and the current tenant selection.
//
// Writers are expected to use two shapes only: setting the token pair (via
// Session.SaveTokens / Session.SaveLogin) and clearing everything (Clear).
package tokenstore

// Key is a logical storage key
type Key string

const (
	KeyAccessToken   Key = "access_token"
	KeyRefreshToken  Key = "refresh_token"
	KeyCurrentUser   Key = "current_user"
	KeyCurrentTenant Key = "current_tenant"
)

// AllKeys lists every key this layer writes
var AllKeys = []Key{KeyAccessToken, KeyRefreshToken, KeyCurrentUser, KeyCurrentTenant}

// Store is a durable key-value store. A missing key is reported as a nil
// value, never as an error.
type Store interface {
	Get(key Key) (*string, error)
	Set(key Key, value string) error
	Remove(key Key) error
	// Clear removes every key the store has ever written
	Clear() error
}

// Batcher is implemented by stores that can apply several writes as one step
type Batcher interface {
	Apply(set map[Key]string, remove []Key) error
}

// apply writes through Batcher when available, otherwise key by key
func apply(s Store, set map[Key]string, remove []Key) error {
	if b, ok := s.(Batcher); ok {
		return b.Apply(set, remove)
	}
	for k, v := range set {
		if err := s.Set(k, v); err != nil {
			return err
		}
	}
	for _, k := range remove {
		if err := s.Remove(k); err != nil {
			return err
		}
	}
	return nil
}
