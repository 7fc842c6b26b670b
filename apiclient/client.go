// Package apiclient is the HTTP client for the tenant API. Every request
// carries the stored access token; a 401 triggers at most one refresh and one
// retry for that request, and concurrent 401s share a single refresh call.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/tokenstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTenantID  = "X-Tenant-ID"

	refreshPath    = "/auth/refresh/"
	refreshTimeout = 15 * time.Second
)

// NowTimeFunc is the clock used for proactive refresh decisions
var NowTimeFunc = time.Now

// Hooks lets the session layer observe the refresh protocol. All fields are optional.
type Hooks struct {
	// OnRefreshStart runs once per refresh network call
	OnRefreshStart func(ctx context.Context)
	// OnRefreshed runs after the new token pair has been stored
	OnRefreshed func(ctx context.Context, tok *oauth2.Token)
	// OnRefreshAborted runs when a refresh stopped on a local store failure; the session is kept
	OnRefreshAborted func(ctx context.Context, cause error)
	// OnSessionExpired runs after a rejected refresh has cleared the store
	OnSessionExpired func(ctx context.Context, cause error)
}

// Request describes one API call. Body is JSON-encoded when not nil.
type Request struct {
	Method string
	Path   string
	Body   any
	// NoAuth sends the request without a bearer token
	NoAuth bool
	// NoRefresh passes a 401 straight back to the caller
	NoRefresh bool
}

type Client struct {
	baseURL       string
	httpClient    *http.Client
	session       *tokenstore.Session
	logger        zerolog.Logger
	refreshLeeway time.Duration
	breakerConfig *CircuitBreakerConfig
	breaker       *gobreaker.CircuitBreaker[*http.Response]
	metrics       *Metrics
	nowTime       func() time.Time

	refreshGroup singleflight.Group

	hooksLock sync.RWMutex
	hooks     Hooks
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHooks(h Hooks) Option {
	return func(c *Client) {
		c.hooks = h
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithCircuitBreaker puts a breaker in front of the API. 5xx responses and
// transport errors count as failures.
func WithCircuitBreaker(cfg CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breakerConfig = &cfg
	}
}

// WithRefreshLeeway refreshes ahead of time when the access token's exp claim
// falls within d. Zero disables proactive refresh.
func WithRefreshLeeway(d time.Duration) Option {
	return func(c *Client) {
		c.refreshLeeway = d
	}
}

func WithNowTime(nowTime func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowTime
	}
}

func New(baseURL string, session *tokenstore.Session, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[apiclient.New] baseURL is required")
	}
	if session == nil {
		return nil, errors.New("[apiclient.New] session is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		session:    session,
		logger:     log.Logger,
		nowTime:    NowTimeFunc,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.breakerConfig != nil {
		c.breaker = newBreaker(*c.breakerConfig, c.logger, c.metrics)
	}
	return c, nil
}

// SetHooks replaces the refresh hooks
func (c *Client) SetHooks(h Hooks) {
	c.hooksLock.Lock()
	defer c.hooksLock.Unlock()
	c.hooks = h
}

func (c *Client) getHooks() Hooks {
	c.hooksLock.RLock()
	defer c.hooksLock.RUnlock()
	return c.hooks
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Session returns the token store view the client reads tokens from
func (c *Client) Session() *tokenstore.Session {
	return c.session
}

// Send issues req and returns the raw response. Responses other than 401 are
// returned unchanged. A 401 on an authenticated request triggers one refresh
// and one retry; a failed refresh clears the store and returns ErrRefreshFailed.
func (c *Client) Send(ctx context.Context, req Request) (*http.Response, error) {
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	var token string
	if !req.NoAuth {
		if token, err = c.session.AccessToken(); err != nil {
			return nil, errors.Wrapf(err, "[Client.Send] read access token")
		}
		if !req.NoRefresh && c.expiresSoon(token) {
			c.logger.Debug().Str("path", req.Path).Msg("access token near expiry, refreshing")
			if token, err = c.refresh(ctx, token); err != nil {
				return nil, err
			}
		}
	}

	resp, err := c.do(ctx, req, body, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || req.NoAuth || req.NoRefresh {
		return resp, nil
	}
	drain(resp)

	token, err = c.refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	// retried requests never refresh again
	return c.do(ctx, req, body, token)
}

// DoJSON sends req and decodes a 2xx body into out. Other statuses become *APIError.
func (c *Client) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ParseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("[Client.DoJSON] decode %s %s: %w", req.Method, req.Path, err)
	}
	return nil
}

// refresh exchanges the refresh token for a new access token. Callers pass the
// token their request was sent with; if the store already holds a different
// one, another caller refreshed in the meantime and it is reused.
func (c *Client) refresh(ctx context.Context, staleToken string) (string, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		current, err := c.session.AccessToken()
		if err != nil {
			return "", errors.Wrapf(err, "[Client.refresh] read access token")
		}
		if current != "" && current != staleToken {
			c.metrics.observeRefresh(RefreshReused)
			return current, nil
		}
		// the flight outlives any single caller's cancellation
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return c.doRefresh(flightCtx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

func (c *Client) doRefresh(ctx context.Context) (string, error) {
	hooks := c.getHooks()
	if hooks.OnRefreshStart != nil {
		hooks.OnRefreshStart(ctx)
	}

	refreshToken, err := c.session.RefreshToken()
	if err != nil {
		return "", c.abort(ctx, hooks, errors.Wrapf(err, "[Client.refresh] read refresh token"))
	}
	if refreshToken == "" {
		return "", c.expire(ctx, hooks, errors.New("no refresh token stored"))
	}

	req := Request{Method: http.MethodPost, Path: refreshPath, NoAuth: true, NoRefresh: true}
	body, err := encodeBody(refreshRequest{Refresh: refreshToken})
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, req, body, "")
	if err != nil {
		return "", c.expire(ctx, hooks, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.expire(ctx, hooks, ParseError(resp))
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", c.expire(ctx, hooks, fmt.Errorf("decode refresh response: %w", err))
	}
	if out.Access == "" {
		return "", c.expire(ctx, hooks, errors.New("refresh response has no access token"))
	}
	if out.Refresh == "" {
		out.Refresh = refreshToken
	}
	tok := &oauth2.Token{AccessToken: out.Access, RefreshToken: out.Refresh, TokenType: "Bearer"}
	if exp, ok := tokenExpiry(out.Access); ok {
		tok.Expiry = exp
	}
	if err := c.session.SaveTokens(tok); err != nil {
		return "", c.abort(ctx, hooks, errors.Wrapf(err, "[Client.refresh] store tokens"))
	}
	c.metrics.observeRefresh(RefreshSuccess)
	c.logger.Debug().Msg("access token refreshed")

	if hooks.OnRefreshed != nil {
		hooks.OnRefreshed(ctx, tok)
	}
	return out.Access, nil
}

// abort reports a refresh that stopped on a local store failure
func (c *Client) abort(ctx context.Context, hooks Hooks, cause error) error {
	c.metrics.observeRefresh(RefreshFailure)
	if hooks.OnRefreshAborted != nil {
		hooks.OnRefreshAborted(ctx, cause)
	}
	return fmt.Errorf("%w: %w", errors.ErrRefreshFailed, cause)
}

// expire clears every stored key and reports the session as gone. Any failed
// refresh call ends here, including one that never got a response.
func (c *Client) expire(ctx context.Context, hooks Hooks, cause error) error {
	c.metrics.observeRefresh(RefreshFailure)
	if err := c.session.Clear(); err != nil {
		c.logger.Err(err).Msg("clear token store after failed refresh")
	}
	c.logger.Warn().Err(cause).Msg("token refresh failed, session expired")
	if hooks.OnSessionExpired != nil {
		hooks.OnSessionExpired(ctx, cause)
	}
	return fmt.Errorf("%w: %w", errors.ErrRefreshFailed, cause)
}

func (c *Client) expiresSoon(token string) bool {
	if token == "" || c.refreshLeeway <= 0 {
		return false
	}
	exp, ok := tokenExpiry(token)
	if !ok {
		return false
	}
	return !c.nowTime().Add(c.refreshLeeway).Before(exp)
}

var errServerStatus = errors.New("server error status")

// do builds and executes a single HTTP round trip
func (c *Client) do(ctx context.Context, req Request, body []byte, token string) (*http.Response, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		reader = bytes.NewReader(body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, reader)
	if err != nil {
		return nil, fmt.Errorf("[Client.do] create %s request: %w", req.Method, err)
	}

	requestID := uuid.New().String()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}).SetAuthHeader(httpReq)
	}
	if tenantID, err := c.session.CurrentTenantID(); err != nil {
		c.logger.Err(err).Msg("read tenant selection")
	} else if tenantID != "" {
		httpReq.Header.Set(HeaderTenantID, tenantID)
	}

	start := time.Now()
	resp, err := c.execute(httpReq)
	if err != nil {
		c.metrics.observeRequest(req.Method, 0)
		c.logger.Debug().Err(err).
			Str("request_id", requestID).
			Str("method", req.Method).
			Str("path", req.Path).
			Msg("api request failed")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", errors.ErrNetwork, errors.ErrCircuitOpen)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", errors.ErrNetwork, req.Method, req.Path, err)
	}

	c.metrics.observeRequest(req.Method, resp.StatusCode)
	c.logger.Debug().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api request")
	return resp, nil
}

func (c *Client) execute(httpReq *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(httpReq)
	}
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if errors.Is(err, errServerStatus) {
		// counted against the breaker, still handed back to the caller
		return resp, nil
	}
	return resp, err
}

func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("[apiclient] encode request body: %w", err)
	}
	return data, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}
