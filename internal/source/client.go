// Package source fetches shard and paper archives from local paths or
// HTTP(S) URLs.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

var ErrTooLarge = errors.New("source: object exceeds size limit")

// Client reads archives by location. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	maxBytes   int64
	userAgent  string
}

// NewClient builds a client. maxBytes caps any single object; timeout
// bounds each HTTP request.
func NewClient(timeout time.Duration, maxBytes int64) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
		userAgent:  "figcap/1.0",
	}
}

// Fetch reads the object at location: a filesystem path, a file:// URL or
// an http(s):// URL. Throttling, server errors and transport failures are
// returned as *RetryableError.
func (c *Client) Fetch(ctx context.Context, location string) ([]byte, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// plain path (a one-letter scheme is a Windows drive)
		return c.readFile(location)
	}
	switch u.Scheme {
	case "file":
		return c.readFile(u.Path)
	case "http", "https":
		return c.get(ctx, location)
	default:
		return nil, fmt.Errorf("unsupported location scheme %q", u.Scheme)
	}
}

func (c *Client) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return c.readAll(f, path)
}

func (c *Client) get(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &RetryableError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &RetryableError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("get %s: status %d: %s", location, resp.StatusCode, string(body))
	}
	if c.maxBytes > 0 && resp.ContentLength > c.maxBytes {
		return nil, fmt.Errorf("get %s: %w (%d bytes)", location, ErrTooLarge, resp.ContentLength)
	}
	return c.readAll(resp.Body, location)
}

func (c *Client) readAll(r io.Reader, name string) ([]byte, error) {
	if c.maxBytes > 0 {
		r = io.LimitReader(r, c.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("read %s: %w", name, ErrTooLarge)
	}
	return data, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("transient fetch error: %s", e.Message)
	}
	return fmt.Sprintf("retryable status %d: %s", e.StatusCode, e.Message)
}
