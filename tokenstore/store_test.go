package tokenstore_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-tenant-session/tokenstore"
	"github.com/jrsteele09/go-tenant-session/users"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type storeFactory struct {
	name string
	open func(t *testing.T) tokenstore.Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{
			name: "memory",
			open: func(t *testing.T) tokenstore.Store {
				return tokenstore.NewMemoryStore()
			},
		},
		{
			name: "file",
			open: func(t *testing.T) tokenstore.Store {
				fs, err := tokenstore.OpenFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))
				require.NoError(t, err)
				return fs
			},
		},
		{
			name: "redis",
			open: func(t *testing.T) tokenstore.Store {
				mr := miniredis.RunT(t)
				rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
				t.Cleanup(func() { rdb.Close() })
				rs, err := tokenstore.NewRedisStore(rdb, "test")
				require.NoError(t, err)
				return rs
			},
		},
	}
}

func TestStore_GetMissingIsNil(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			v, err := s.Get(tokenstore.KeyAccessToken)
			require.NoError(t, err)
			require.Nil(t, v)
			require.NoError(t, s.Remove(tokenstore.KeyAccessToken))
		})
	}
}

func TestStore_SetGetRemove(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			require.NoError(t, s.Set(tokenstore.KeyAccessToken, "tok-1"))

			v, err := s.Get(tokenstore.KeyAccessToken)
			require.NoError(t, err)
			require.NotNil(t, v)
			require.Equal(t, "tok-1", *v)

			require.NoError(t, s.Remove(tokenstore.KeyAccessToken))
			v, err = s.Get(tokenstore.KeyAccessToken)
			require.NoError(t, err)
			require.Nil(t, v)
		})
	}
}

func TestStore_ClearRemovesEveryWrittenKey(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			s := f.open(t)
			for _, k := range tokenstore.AllKeys {
				require.NoError(t, s.Set(k, "value-"+string(k)))
			}
			require.NoError(t, s.Set("extra", "x"))

			require.NoError(t, s.Clear())

			for _, k := range append(tokenstore.AllKeys, "extra") {
				v, err := s.Get(k)
				require.NoError(t, err)
				require.Nil(t, v, "key %s survived Clear", k)
			}
		})
	}
}

func TestFileStore_PersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	fs, err := tokenstore.OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.Set(tokenstore.KeyRefreshToken, "refresh-1"))

	reopened, err := tokenstore.OpenFileStore(path)
	require.NoError(t, err)
	v, err := reopened.Get(tokenstore.KeyRefreshToken)
	require.NoError(t, err)
	require.Equal(t, "refresh-1", *v)
}

func TestOpenFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := tokenstore.OpenFileStore(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "[OpenFileStore] decode")
	var syntaxErr *json.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
}

func TestNewRedisStore_Validation(t *testing.T) {
	_, err := tokenstore.NewRedisStore(nil, "p")
	require.Error(t, err)
}

func TestSession_TokenPairWrites(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			sess, err := tokenstore.NewSession(f.open(t))
			require.NoError(t, err)

			tok, err := sess.Tokens()
			require.NoError(t, err)
			require.Nil(t, tok)

			require.NoError(t, sess.SaveLogin(
				&oauth2.Token{AccessToken: "access-1", RefreshToken: "refresh-1"},
				&users.User{ID: "u1", Email: "admin@example.com", TenantID: "t1"},
			))

			tok, err = sess.Tokens()
			require.NoError(t, err)
			require.Equal(t, "access-1", tok.AccessToken)
			require.Equal(t, "refresh-1", tok.RefreshToken)

			u, err := sess.User()
			require.NoError(t, err)
			require.Equal(t, "u1", u.ID)
			require.Equal(t, "t1", u.TenantID)

			// A pair without a refresh token must not keep the old one
			require.NoError(t, sess.SaveTokens(&oauth2.Token{AccessToken: "access-2"}))
			tok, err = sess.Tokens()
			require.NoError(t, err)
			require.Equal(t, "access-2", tok.AccessToken)
			require.Empty(t, tok.RefreshToken)

			require.Error(t, sess.SaveTokens(&oauth2.Token{}))
		})
	}
}

func TestSession_TenantSelection(t *testing.T) {
	sess, err := tokenstore.NewSession(tokenstore.NewMemoryStore())
	require.NoError(t, err)

	id, err := sess.CurrentTenantID()
	require.NoError(t, err)
	require.Empty(t, id)

	require.NoError(t, sess.SaveJSON(tokenstore.KeyCurrentTenant, map[string]string{"id": "t2", "name": "Beta"}))
	id, err = sess.CurrentTenantID()
	require.NoError(t, err)
	require.Equal(t, "t2", id)

	require.NoError(t, sess.Clear())
	id, err = sess.CurrentTenantID()
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestSession_CorruptUserRecord(t *testing.T) {
	store := tokenstore.NewMemoryStore()
	require.NoError(t, store.Set(tokenstore.KeyCurrentUser, "{not json"))
	sess, err := tokenstore.NewSession(store)
	require.NoError(t, err)

	u, err := sess.User()
	require.Error(t, err)
	require.Nil(t, u)
	var syntaxErr *json.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)
}
