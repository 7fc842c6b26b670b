package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-tenant-session/internal/cli"
	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/mockapi"
	"github.com/jrsteele09/go-tenant-session/tokenstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	api       *mockapi.Server
	serverURL string
	storeFile string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("LOG_LEVEL", "disabled")
	t.Setenv("ENV", "TEST")
	t.Setenv("API_CIRCUIT_BREAKER", "true")

	cfg := config.Mock{SigningSecret: "1234", AccessTokenTTL: 15 * time.Minute}
	api, err := mockapi.New(cfg, mockapi.FakeRepos(), mockapi.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	require.NoError(t, api.SeedDemo())
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	return &testFixture{
		api:       api,
		serverURL: server.URL,
		storeFile: filepath.Join(t.TempDir(), "session.json"),
	}
}

func (f *testFixture) run(args ...string) (string, error) {
	var out bytes.Buffer
	cmd := cli.NewRootCommand(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"--api-url", f.serverURL, "--store", "file", "--store-file", f.storeFile}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (f *testFixture) login(t *testing.T) string {
	t.Helper()
	out, err := f.run("login", "--email", mockapi.DemoEmail, "--password", mockapi.DemoPassword)
	require.NoError(t, err)
	return out
}

type statusOutput struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"userId"`
	TenantID      string `json:"tenantId"`
	TenantName    string `json:"tenantName"`
	Tenants       int    `json:"tenants"`
}

func (f *testFixture) status(t *testing.T) statusOutput {
	t.Helper()
	out, err := f.run("status", "--json")
	require.NoError(t, err)
	var s statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	return s
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)

	out := f.login(t)
	require.Contains(t, out, "Signed in as Ada Admin <admin@example.com>")
	require.Contains(t, out, "Acme (t1)")
	require.Contains(t, out, "Tenants: 2")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run("login", "--email", mockapi.DemoEmail, "--password", "wrong")
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)
	require.False(t, f.status(t).Authenticated)
}

func TestSessionSurvivesBetweenCommands(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	out, err := f.run("tenants", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Acme")
	require.Contains(t, out, "Beta")

	out, err = f.run("tenants", "switch", "t2")
	require.NoError(t, err)
	require.Equal(t, "Switched to t2\n", out)
	require.Equal(t, []string{"t2"}, f.api.SwitchRequests())

	s := f.status(t)
	require.True(t, s.Authenticated)
	require.Equal(t, "u1", s.UserID)
	require.Equal(t, "t2", s.TenantID)
	require.Equal(t, "Beta", s.TenantName)
	require.Equal(t, 2, s.Tenants)
}

func TestTenantsSwitch_Unknown(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	_, err := f.run("tenants", "switch", "t9")
	require.ErrorIs(t, err, errors.ErrTenantNotFound)
	require.Equal(t, "t1", f.status(t).TenantID)
}

func TestTenantsCreateAndUpdate(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	out, err := f.run("--json", "tenants", "create", "--name", "NewCo", "--email", "a@b.com", "--password", "pw123456")
	require.NoError(t, err)
	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.Equal(t, "NewCo", created.Name)
	require.Equal(t, created.ID, f.status(t).TenantID)

	out, err = f.run("tenants", "update", created.ID, "--name", "NewCo Ltd")
	require.NoError(t, err)
	require.Contains(t, out, "Updated NewCo Ltd")
	require.Equal(t, "NewCo Ltd", f.status(t).TenantName)
}

func TestLogout(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t)

	out, err := f.run("logout")
	require.NoError(t, err)
	require.Equal(t, "Signed out\n", out)

	store, err := tokenstore.OpenFileStore(f.storeFile)
	require.NoError(t, err)
	for _, key := range tokenstore.AllKeys {
		v, err := store.Get(key)
		require.NoError(t, err)
		require.Nil(t, v, key)
	}

	out, err = f.run("status")
	require.NoError(t, err)
	require.Equal(t, "Not signed in\n", out)

	_, err = f.run("tenants", "list")
	require.Error(t, err)
}

func TestBootstrap(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.run("bootstrap", "--name", "NewCo", "--email", "owner@newco.com", "--password", "pw123456")
	require.NoError(t, err)

	s := f.status(t)
	require.True(t, s.Authenticated)
	require.Equal(t, "NewCo", s.TenantName)
	require.Equal(t, 1, s.Tenants)
}

func TestHealth(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run("health")
	require.NoError(t, err)
	require.Contains(t, out, "Status: ok")
}

func TestVersion(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.run("version")
	require.NoError(t, err)
	require.Contains(t, out, "sessionctl ")
}
