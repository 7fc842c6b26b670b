package guard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-tenant-session/apiclient"
	"github.com/jrsteele09/go-tenant-session/guard"
	"github.com/jrsteele09/go-tenant-session/session"
	"github.com/jrsteele09/go-tenant-session/tokenstore"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	policy := guard.Policy{LoginPath: "/login"}
	tests := []struct {
		name      string
		status    guard.Status
		requested string
		policy    guard.Policy
		want      guard.Decision
	}{
		{
			name:      "loading never redirects",
			status:    guard.Status{IsLoading: true},
			requested: "/reports",
			policy:    policy,
			want:      guard.Decision{Outcome: guard.Pending},
		},
		{
			name:      "loading wins over authenticated",
			status:    guard.Status{IsLoading: true, IsAuthenticated: true},
			requested: "/reports",
			policy:    policy,
			want:      guard.Decision{Outcome: guard.Pending},
		},
		{
			name:      "authenticated",
			status:    guard.Status{IsAuthenticated: true},
			requested: "/reports",
			policy:    policy,
			want:      guard.Decision{Outcome: guard.Allow},
		},
		{
			name:      "anonymous keeps requested location",
			status:    guard.Status{},
			requested: "/reports?year=2024",
			policy:    policy,
			want:      guard.Decision{Outcome: guard.Redirect, RedirectTo: "/login?next=%2Freports%3Fyear%3D2024"},
		},
		{
			name:      "anonymous at root",
			status:    guard.Status{},
			requested: "/",
			policy:    policy,
			want:      guard.Decision{Outcome: guard.Redirect, RedirectTo: "/login"},
		},
		{
			name:      "default login path",
			status:    guard.Status{},
			requested: "/a",
			policy:    guard.Policy{},
			want:      guard.Decision{Outcome: guard.Redirect, RedirectTo: "/login?next=%2Fa"},
		},
		{
			name:      "external next dropped",
			status:    guard.Status{},
			requested: "//evil.example.com/x",
			policy:    policy,
			want:      guard.Decision{Outcome: guard.Redirect, RedirectTo: "/login"},
		},
		{
			name:      "tenant required",
			status:    guard.Status{IsAuthenticated: true},
			requested: "/reports",
			policy:    guard.Policy{LoginPath: "/login", TenantPath: "/tenants"},
			want:      guard.Decision{Outcome: guard.Redirect, RedirectTo: "/tenants?next=%2Freports"},
		},
		{
			name:      "tenant page itself allowed without tenant",
			status:    guard.Status{IsAuthenticated: true},
			requested: "/tenants?tab=new",
			policy:    guard.Policy{LoginPath: "/login", TenantPath: "/tenants"},
			want:      guard.Decision{Outcome: guard.Allow},
		},
		{
			name:      "tenant present",
			status:    guard.Status{IsAuthenticated: true, HasTenant: true},
			requested: "/reports",
			policy:    guard.Policy{LoginPath: "/login", TenantPath: "/tenants"},
			want:      guard.Decision{Outcome: guard.Allow},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, guard.Decide(tt.status, tt.requested, tt.policy))
		})
	}
}

func TestSafeNext(t *testing.T) {
	require.Equal(t, "/reports?x=1", guard.SafeNext("/reports?x=1"))
	require.Equal(t, "/", guard.SafeNext(""))
	require.Equal(t, "/", guard.SafeNext("https://evil.example.com"))
	require.Equal(t, "/", guard.SafeNext("//evil.example.com"))
	require.Equal(t, "/", guard.SafeNext("/\\evil.example.com"))
	require.Equal(t, "/", guard.SafeNext("reports"))
}

func TestMiddleware(t *testing.T) {
	status := guard.Status{IsLoading: true}
	handler := guard.Middleware(
		func(r *http.Request) guard.Status { return status },
		guard.Policy{LoginPath: "/login"},
		guard.WithLogger(zerolog.Nop()),
	)(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("secret"))
	})

	serve := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler(rec, httptest.NewRequest(http.MethodGet, "/reports?year=2024", nil))
		return rec
	}

	rec := serve()
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "1", rec.Header().Get("Retry-After"))
	require.NotContains(t, rec.Body.String(), "secret")

	status = guard.Status{}
	rec = serve()
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login?next=%2Freports%3Fyear%3D2024", rec.Header().Get("Location"))

	status = guard.Status{IsAuthenticated: true}
	rec = serve()
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "secret", rec.Body.String())
}

func TestMiddleware_HTMXRedirect(t *testing.T) {
	handler := guard.Middleware(
		func(r *http.Request) guard.Status { return guard.Status{} },
		guard.Policy{LoginPath: "/login"},
		guard.WithLogger(zerolog.Nop()),
	)(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	handler(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "/login?next=%2Freports", rec.Header().Get("HX-Redirect"))
}

func TestMiddleware_CustomPlaceholder(t *testing.T) {
	handler := guard.Middleware(
		func(r *http.Request) guard.Status { return guard.Status{IsLoading: true} },
		guard.Policy{},
		guard.WithPlaceholder(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusAccepted)
		}),
	)(func(w http.ResponseWriter, r *http.Request) {})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestSessionStatus(t *testing.T) {
	sess, err := tokenstore.NewSession(tokenstore.NewMemoryStore())
	require.NoError(t, err)
	client, err := apiclient.New("http://127.0.0.1:1", sess, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	c, err := session.New(client, session.WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	defer c.Close()

	status := guard.SessionStatus(c.Auth(), c.Tenants())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Equal(t, guard.Status{IsLoading: true}, status(req))

	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, guard.Status{}, status(req))
}
