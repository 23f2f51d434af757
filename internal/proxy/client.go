package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DefaultUpstreamTimeout bounds every upstream fetch so a stalled origin
// fails the request instead of hanging it.
const DefaultUpstreamTimeout = 30 * time.Second

// defaultUserAgent is the browser identity presented to the origin site when
// none is configured.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// ErrUpstreamFetch is returned when the origin site cannot be reached, times
// out, or answers with a non-2xx status.
var ErrUpstreamFetch = errors.New("upstream fetch failed")

// UpstreamHeaders is the stable header set presented to the origin site on
// every fetch, so its access checks see a generic browser client.
type UpstreamHeaders struct {
	UserAgent string
	Referer   string
	Origin    string
}

// UpstreamClient wraps http.Client to automatically stamp the configured
// upstream-facing headers on each request.
type UpstreamClient struct {
	client  *http.Client
	headers UpstreamHeaders
}

// NewUpstreamClient returns a client with the given total-request timeout and
// header set. If timeout <= 0, DefaultUpstreamTimeout is used; an empty
// user-agent falls back to defaultUserAgent.
func NewUpstreamClient(timeout time.Duration, headers UpstreamHeaders) *UpstreamClient {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	if headers.UserAgent == "" {
		headers.UserAgent = defaultUserAgent
	}
	return &UpstreamClient{
		client:  &http.Client{Timeout: timeout},
		headers: headers,
	}
}

// Fetch issues a GET for rawURL with the configured headers. The caller owns
// the response body and must close it. Transport errors, timeouts, and
// non-2xx statuses are all reported as ErrUpstreamFetch.
func (c *UpstreamClient) Fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}

	req.Header.Set("User-Agent", c.headers.UserAgent)
	req.Header.Set("Accept", "*/*")
	if c.headers.Referer != "" {
		req.Header.Set("Referer", c.headers.Referer)
	}
	if c.headers.Origin != "" {
		req.Header.Set("Origin", c.headers.Origin)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: upstream returned status %d", ErrUpstreamFetch, resp.StatusCode)
	}
	return resp, nil
}
