package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

// DefaultBaseURL is the profile endpoint the identifier is appended to.
const DefaultBaseURL = "https://i.instagram.com/api/v1/users/web_profile_info/?username="

const defaultFetchTimeout = 10 * time.Second

// DefaultHeaders are sent with every request unless [ClientConfig.Headers]
// sets the same header.
var DefaultHeaders = map[string]string{
	"sec-fetch-site": "same-site",
}

// connection pooling limits; one host, few concurrent polls
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// ClientConfig configures a [Client].
type ClientConfig struct {
	// BaseURL is the URL prefix; the query-escaped identifier is appended.
	// Defaults to [DefaultBaseURL].
	BaseURL string

	// Headers are sent with every request (cookie, x-ig-app-id, ...), on top
	// of [DefaultHeaders]. Names are case-insensitive.
	Headers map[string]string

	// Fields maps measurement names to JSON dot paths in the response.
	// Defaults to [DefaultFields].
	Fields map[string]string

	// Timeout bounds a single request. Defaults to 10s.
	Timeout time.Duration
}

// Client fetches metric snapshots for profile identifiers.
//
// Client performs exactly one request per [Client.Fetch] call and never
// retries. Expected failures (redirects, bad status, malformed body) are
// returned as [*FetchError] values.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	fields     []fieldPath
	timeout    time.Duration
	now        func() time.Time
}

// NewClient creates a new fetch [Client] from cfg, applying defaults for
// any zero fields.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	fields := cfg.Fields
	if len(fields) == 0 {
		fields = DefaultFields
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	headers := make(map[string]string, len(DefaultHeaders)+len(cfg.Headers))
	for k, v := range DefaultHeaders {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	for k, v := range cfg.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}

	return &Client{
		httpClient: &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		baseURL: baseURL,
		headers: headers,
		fields:  compileFields(fields),
		timeout: timeout,
		now:     time.Now,
	}
}

// Fetch requests the profile for identifier and returns its [Snapshot].
//
// A response is rejected when the final URL differs from the requested one
// (the upstream redirects to a login page when the session is invalid), when
// the status is not 2xx, or when any configured field is missing from the body.
func (c *Client) Fetch(ctx context.Context, identifier string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+url.QueryEscape(identifier), nil)
	if err != nil {
		return Snapshot{}, &FetchError{Identifier: identifier, Kind: FailureTransport, Reason: "failed to create request", Err: err}
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	requested := req.URL.String()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Snapshot{}, &FetchError{Identifier: identifier, Kind: FailureTransport, Reason: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if final := resp.Request.URL.String(); final != requested {
		return Snapshot{}, &FetchError{
			Identifier: identifier,
			Kind:       FailureRedirect,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("redirected to %s", final),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Snapshot{}, &FetchError{
			Identifier: identifier,
			Kind:       FailureStatus,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("status was %s (%d)", http.StatusText(resp.StatusCode), resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Snapshot{}, &FetchError{
			Identifier: identifier,
			Kind:       FailureBody,
			StatusCode: resp.StatusCode,
			Reason:     "failed to read response body",
			Err:        err,
		}
	}

	values, err := extractFields(body, c.fields)
	if err != nil {
		return Snapshot{}, &FetchError{
			Identifier: identifier,
			Kind:       FailureBody,
			StatusCode: resp.StatusCode,
			Reason:     "malformed response body",
			Err:        err,
		}
	}

	return Snapshot{
		Identifier: identifier,
		Fields:     values,
		CapturedAt: c.now(),
	}, nil
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times and on a nil receiver. After Close, the client
// remains usable but new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
