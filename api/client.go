// Package api is the session-aware client for the partner backend. Every
// endpoint the SDK touches has a typed method here; nothing else in the
// module constructs request URLs or decodes payloads.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spenselabs/partnersdk/device"
	"github.com/spenselabs/partnersdk/internal/config"
	sdkerrors "github.com/spenselabs/partnersdk/internal/errors"
	"golang.org/x/oauth2"
)

const defaultRequestTimeout = 30 * time.Second

// Client issues authenticated calls against the partner backend. The session
// cookie jar is shared with the embedded browser surface so a login performed
// here is visible to the handoff.
type Client struct {
	baseHost string
	http     *http.Client
	jar      http.CookieJar
	log      zerolog.Logger

	sourceMu sync.RWMutex
	source   oauth2.TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithHTTPClient replaces the underlying HTTP client (primarily for tests).
// The client's jar, if any, becomes the shared session jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
		if hc.Jar != nil {
			c.jar = hc.Jar
		}
	}
}

// NewClient builds a client for the given base host.
func NewClient(baseHost string, options ...Option) (*Client, error) {
	if baseHost == "" {
		return nil, errors.New("[NewClient] baseHost is required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "[NewClient] cookie jar")
	}

	client := &Client{
		baseHost: baseHost,
		jar:      jar,
		http:     &http.Client{Jar: jar, Timeout: defaultRequestTimeout},
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(client)
	}
	return client, nil
}

// SetBearerToken installs the bearer token attached to subsequent requests.
// An empty token removes the Authorization header.
func (c *Client) SetBearerToken(token string) {
	c.sourceMu.Lock()
	defer c.sourceMu.Unlock()
	if token == "" {
		c.source = nil
		return
	}
	c.source = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
}

// Jar exposes the shared session cookie jar for propagation into the browser
// surface.
func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// BaseHost returns the configured backend origin.
func (c *Client) BaseHost() string {
	return c.baseHost
}

// Login exchanges the host token for a backend session. The session cookie
// lands in the shared jar.
func (c *Client) Login(ctx context.Context, token string) (LoginResponse, error) {
	c.SetBearerToken(token)
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, config.EndpointLogin, nil, LoginRequest{Token: token}, &resp)
	return resp, err
}

// LoggedIn reports whether the backend still considers the session active.
func (c *Client) LoggedIn(ctx context.Context) (LoggedInResponse, error) {
	var resp LoggedInResponse
	err := c.do(ctx, http.MethodGet, config.EndpointLoggedIn, nil, nil, &resp)
	return resp, err
}

// OnboardingNext returns the next onboarding step for a bank.
func (c *Client) OnboardingNext(ctx context.Context, bank string) (OnboardingNextResponse, error) {
	var resp OnboardingNextResponse
	err := c.do(ctx, http.MethodGet, config.EndpointOnboardingNext, map[string]string{"bank": bank}, nil, &resp)
	return resp, err
}

// ServerTime fetches the backend clock.
func (c *Client) ServerTime(ctx context.Context) (ServerTimeResponse, error) {
	var resp ServerTimeResponse
	err := c.do(ctx, http.MethodGet, config.EndpointServerTime, nil, nil, &resp)
	return resp, err
}

// InitiateBinding opens a binding challenge.
func (c *Client) InitiateBinding(ctx context.Context, partner string, req InitiateBindingRequest) (InitiateBindingResponse, error) {
	var resp InitiateBindingResponse
	err := c.do(ctx, http.MethodPost, config.EndpointDeviceBind, map[string]string{"partner": partner}, req, &resp)
	return resp, err
}

// BindingStatus polls the state of the open binding challenge. The challenge
// id rides along as a query parameter so the backend addresses the exact
// pending record.
func (c *Client) BindingStatus(ctx context.Context, partner, bindingID string) (BindingStatusResponse, error) {
	var resp BindingStatusResponse
	err := c.do(ctx, http.MethodGet, config.EndpointDeviceBind, map[string]string{"partner": partner}, nil, &resp,
		url.Values{"device_binding_id": {bindingID}})
	return resp, err
}

// FailBinding releases the server-side pending state for a challenge.
func (c *Client) FailBinding(ctx context.Context, partner, bindingID string) error {
	return c.do(ctx, http.MethodDelete, config.EndpointDeviceBind, map[string]string{"partner": partner}, FailBindingRequest{DeviceBindingID: bindingID}, nil)
}

// RegisterDeviceSession attaches the device to the current backend session.
func (c *Client) RegisterDeviceSession(ctx context.Context, partner string, fp device.Fingerprint) (DeviceSessionResponse, error) {
	var resp DeviceSessionResponse
	err := c.do(ctx, http.MethodPost, config.EndpointDeviceSession, map[string]string{"partner": partner}, fp, &resp)
	return resp, err
}

// NetworkKeys fetches the published signing key set, keyed by an opaque id.
func (c *Client) NetworkKeys(ctx context.Context) (map[string]NetworkKey, error) {
	var resp map[string]NetworkKey
	err := c.do(ctx, http.MethodGet, config.EndpointNetworkKeys, nil, nil, &resp)
	return resp, err
}

// WebViewConfig fetches the server-driven browser configuration. Failures
// degrade to the zero value; the classifier falls back to its built-in
// defaults.
func (c *Client) WebViewConfig(ctx context.Context) (WebViewConfig, error) {
	var envelope sdkConfigEnvelope
	if err := c.do(ctx, http.MethodGet, config.EndpointSDKConfig, nil, nil, &envelope); err != nil {
		return WebViewConfig{}, err
	}
	if envelope.Type != "success" {
		return WebViewConfig{}, errors.Errorf("[Client.WebViewConfig] unexpected response type %q", envelope.Type)
	}
	return envelope.Data.Info.WebView.URLHandling, nil
}

// PostAnalytics uploads a batch of analytics events.
func (c *Client) PostAnalytics(ctx context.Context, events []AnalyticsEvent) error {
	return c.do(ctx, http.MethodPost, config.EndpointAnalytics, nil, analyticsBatchRequest{Data: events}, nil)
}

// do performs one request/response cycle. Transport failures, non-2xx
// statuses and undecodable bodies all surface as ErrNetwork so callers have a
// single failure kind to branch on.
func (c *Client) do(ctx context.Context, method string, endpoint config.Endpoint, params map[string]string, payload, out any, query ...url.Values) error {
	reqURL := endpoint.Expand(c.baseHost, params)
	if len(query) > 0 && len(query[0]) > 0 {
		reqURL += "?" + query[0].Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return sdkerrors.Wrapf(sdkerrors.ErrNetwork, "[Client.do] marshal payload for %s: %v", reqURL, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return sdkerrors.Wrapf(sdkerrors.ErrNetwork, "[Client.do] build request for %s: %v", reqURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return sdkerrors.Wrapf(sdkerrors.ErrNetwork, "[Client.do] %s %s: %v", method, reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn().Str("method", method).Str("url", reqURL).Int("status", resp.StatusCode).Msg("backend returned error status")
		return sdkerrors.Wrapf(sdkerrors.ErrNetwork, "[Client.do] %s %s: status %d", method, reqURL, resp.StatusCode)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return sdkerrors.Wrapf(sdkerrors.ErrNetwork, "[Client.do] decode %s %s: %v", method, reqURL, err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	c.sourceMu.RLock()
	source := c.source
	c.sourceMu.RUnlock()
	if source == nil {
		return
	}
	token, err := source.Token()
	if err != nil || token.AccessToken == "" {
		return
	}
	token.SetAuthHeader(req)
}
