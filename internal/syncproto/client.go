package syncproto

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Logf is a debug-logging hook, matching the teacher's plain-stderr
// tracing pattern (SPEC_FULL.md AMBIENT STACK). A nil Logf is a silent
// no-op.
type Logf func(format string, args ...any)

// Client is a thin HTTP client for one remote smit root, carrying the
// session cookie and retrying transient network errors with
// exponential backoff the way the teacher's internal/github client
// retries doRequest (SPEC_FULL.md DOMAIN STACK).
type Client struct {
	httpClient *http.Client
	rootURL    string
	cookie     string
	MaxRetries uint64
	Logf       Logf
}

// NewClient returns a Client for rootURL (no trailing slash) using s's
// session cookie, if any.
func NewClient(rootURL string, s Session) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		rootURL:    trimTrailingSlash(rootURL),
		cookie:     s.Cookie,
		MaxRetries: 5,
	}
}

func trimTrailingSlash(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

func (c *Client) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	return c.httpClient.Do(req)
}

// doWithRetry runs req (rebuilding its body via newBody each attempt,
// since an *http.Request's body can only be read once) and retries
// transient transport errors with exponential backoff, up to
// c.MaxRetries retries after the first attempt. A successful round trip that merely returned
// a non-2xx status is not retried here -- callers interpret status
// codes themselves, matching the original's own per-call error checks.
func (c *Client) doWithRetry(ctx context.Context, method, url string, newBody func() io.Reader) (*http.Response, error) {
	var resp *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, newBody())
		if err != nil {
			return backoff.Permanent(err)
		}
		r, err := c.do(req)
		if err != nil {
			c.logf("syncproto: transient error on %s %s: %v", method, url, err)
			return err
		}
		resp = r
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.MaxRetries)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("syncproto: %s %s: %w", method, url, err)
	}
	return resp, nil
}

// Get fetches path (joined onto rootURL) and returns its body and
// status code.
func (c *Client) Get(ctx context.Context, path string) ([]byte, int, error) {
	resp, err := c.doWithRetry(ctx, http.MethodGet, c.rootURL+path, func() io.Reader { return nil })
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("syncproto: read body of %s: %w", path, err)
	}
	return data, resp.StatusCode, nil
}

// Head issues a HEAD request and reports whether the status is 2xx,
// matching original_source/src/clone.cpp::getHead (used to probe
// whether an object already exists on the server before pushing it).
func (c *Client) Head(ctx context.Context, path string) (bool, error) {
	resp, err := c.doWithRetry(ctx, http.MethodHead, c.rootURL+path, func() io.Reader { return nil })
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// PostBytes posts data to path and returns the response body and
// status code.
func (c *Client) PostBytes(ctx context.Context, path string, data []byte) ([]byte, int, error) {
	resp, err := c.doWithRetry(ctx, http.MethodPost, c.rootURL+path, func() io.Reader { return bytes.NewReader(data) })
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("syncproto: read response of %s: %w", path, err)
	}
	return body, resp.StatusCode, nil
}
