package api

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
)

// badge reports can carry a large backlog, so the limit is well above a
// typical health payload
const maxResponseBodySize = 16 << 20 // 16MB

const defaultRequestTimeout = 30 * time.Second

// connection pooling limits; the poll loop talks to a single host sequentially
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 2
	defaultIdleConnTimeout     = 60 * time.Second
)

// Config holds the settings for a [Client].
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com. A trailing
	// slash is ignored.
	BaseURL string

	// AppID and Secret are exchanged for an access token on each fetch.
	AppID  string
	Secret string

	// HTTPClient performs the requests. If nil, a pooled client is created.
	HTTPClient *http.Client

	// Timeout bounds each individual request. Zero means 30 seconds.
	Timeout time.Duration

	// Location is used to format window bounds and to interpret event
	// timestamps that carry no zone. Nil means time.Local.
	Location *time.Location

	// ReuseToken keeps the access token between fetches and only requests a
	// new one when the report endpoint answers 401.
	ReuseToken bool

	// Now returns the current instant, stamped as the window end.
	// Nil means time.Now.
	Now func() time.Time

	// OnTokenRequest is called after every token request with its outcome.
	OnTokenRequest func(err error)
}

// Client issues authenticated requests against the badge API.
//
// Client is safe for concurrent use, although the poll loop only ever calls
// it from one goroutine.
type Client struct {
	httpClient *http.Client
	baseURL    string
	timeout    time.Duration
	location   *time.Location
	now        func() time.Time
	tokens     *TokenSource
	reuseToken bool

	mu          sync.Mutex
	cachedToken string
}

// NewClient creates a [Client] from cfg, filling in defaults.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		timeout:    timeout,
		location:   loc,
		now:        now,
		reuseToken: cfg.ReuseToken,
	}
	c.tokens = &TokenSource{
		client:    c,
		appID:     cfg.AppID,
		secret:    cfg.Secret,
		onRequest: cfg.OnTokenRequest,
	}
	return c
}

// newHTTPClient returns a client with a small keep-alive pool. Timeouts are
// applied per request via context, not on the client.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		},
	}
}

// Tokens returns the credential provider used by the client.
func (c *Client) Tokens() *TokenSource {
	return c.tokens
}

// Close closes idle connections in the client's pool. Safe to call on a nil
// client and more than once; the client stays usable afterwards.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// doJSON sends a request and decodes a 2xx JSON response into out.
// body, when non-nil, is encoded as the JSON request body.
func (c *Client) doJSON(ctx context.Context, op, method, url string, headers map[string]string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &TransportError{Op: op, URL: url, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return &TransportError{Op: op, URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, URL: url, Err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return &TransportError{Op: op, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &TransportError{Op: op, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected response: %s", snippet(data))}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// snippet trims a response body for inclusion in an error message.
func snippet(b []byte) string {
	const max = 200
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "(empty body)"
	}
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
