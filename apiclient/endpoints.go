package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/tenants"
	"github.com/jrsteele09/go-tenant-session/users"
	"golang.org/x/oauth2"
)

const (
	PathLogin        = "/auth/login/"
	PathRegister     = "/auth/register/"
	PathLogout       = "/auth/logout/"
	PathRefresh      = refreshPath
	PathVerifyToken  = "/auth/verify-token/"
	PathProfile      = "/auth/profile/"
	PathSwitchTenant = "/auth/switch-tenant/"
	PathTenants      = "/tenants/"
	PathCreateTenant = "/tenants/create-tenant/"
	PathHealth       = "/health-check/"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenantId,omitempty"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	TenantID  string `json:"tenantId,omitempty"`
}

// AuthResponse is returned by login and register. Servers send either a
// single token or an access/refresh pair.
type AuthResponse struct {
	Token   string      `json:"token,omitempty"`
	Access  string      `json:"access,omitempty"`
	Refresh string      `json:"refresh,omitempty"`
	User    *users.User `json:"user"`
}

// OAuth2Token normalizes either response shape into a token pair
func (r *AuthResponse) OAuth2Token() *oauth2.Token {
	access := r.Access
	if access == "" {
		access = r.Token
	}
	if access == "" {
		return nil
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: r.Refresh, TokenType: "Bearer"}
	if exp, ok := tokenExpiry(access); ok {
		tok.Expiry = exp
	}
	return tok
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Login exchanges credentials for a token pair. Any 4xx is reported as
// ErrInvalidCredentials without the server's detail.
func (c *Client) Login(ctx context.Context, in LoginRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, PathLogin, in, true)
}

// Register creates an account. Field validation failures come back as
// *APIError so they can be shown next to the form fields.
func (c *Client) Register(ctx context.Context, in RegisterRequest) (*AuthResponse, error) {
	return c.authenticate(ctx, PathRegister, in, false)
}

func (c *Client) authenticate(ctx context.Context, path string, in any, hideDetail bool) (*AuthResponse, error) {
	var out AuthResponse
	err := c.DoJSON(ctx, Request{Method: http.MethodPost, Path: path, Body: in, NoAuth: true, NoRefresh: true}, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
			if hideDetail || apiErr.Kind != KindFieldErrors {
				return nil, &credentialsError{cause: apiErr}
			}
		}
		return nil, err
	}
	if out.OAuth2Token() == nil {
		return nil, errors.Wrapf(errors.ErrInternal, "[Client.authenticate] %s returned no token", path)
	}
	return &out, nil
}

// Logout invalidates the session server side
func (c *Client) Logout(ctx context.Context) error {
	return c.DoJSON(ctx, Request{Method: http.MethodPost, Path: PathLogout, NoRefresh: true}, nil)
}

// VerifyToken reports whether the server still accepts token
func (c *Client) VerifyToken(ctx context.Context, token string) (bool, error) {
	err := c.DoJSON(ctx, Request{
		Method:    http.MethodPost,
		Path:      PathVerifyToken,
		Body:      map[string]string{"token": token},
		NoAuth:    true,
		NoRefresh: true,
	}, nil)
	if err == nil {
		return true, nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
		return false, nil
	}
	return false, err
}

func (c *Client) Profile(ctx context.Context) (*users.User, error) {
	var u users.User
	if err := c.DoJSON(ctx, Request{Method: http.MethodGet, Path: PathProfile}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SwitchTenant tells the server which tenant the session acts for
func (c *Client) SwitchTenant(ctx context.Context, tenantID string) error {
	return c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   PathSwitchTenant,
		Body:   map[string]string{"tenantId": tenantID},
	}, nil)
}

// ListTenants returns the tenants visible to the current user
func (c *Client) ListTenants(ctx context.Context) ([]tenants.Tenant, error) {
	list := []tenants.Tenant{}
	if err := c.DoJSON(ctx, Request{Method: http.MethodGet, Path: PathTenants}, &list); err != nil {
		return nil, err
	}
	return list, nil
}

type tenantEnvelope struct {
	Tenant tenants.Tenant `json:"tenant"`
}

func (c *Client) CreateTenant(ctx context.Context, in tenants.CreateRequest) (*tenants.Tenant, error) {
	var out tenantEnvelope
	if err := c.DoJSON(ctx, Request{Method: http.MethodPost, Path: PathCreateTenant, Body: in}, &out); err != nil {
		return nil, err
	}
	return &out.Tenant, nil
}

func (c *Client) UpdateTenant(ctx context.Context, tenantID string, in tenants.UpdateRequest) (*tenants.Tenant, error) {
	var out tenants.Tenant
	path := PathTenants + url.PathEscape(tenantID) + "/"
	if err := c.DoJSON(ctx, Request{Method: http.MethodPut, Path: path, Body: in}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.DoJSON(ctx, Request{Method: http.MethodGet, Path: PathHealth, NoAuth: true, NoRefresh: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
