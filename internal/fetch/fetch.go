// Package fetch performs bounded HTTP GETs for source pages, feeds and data files.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultUserAgent   = "Mozilla/5.0 (compatible; purefact/1.0; +https://github.com/ppiankov/purefact)"
	DefaultMaxAttempts = 3
	DefaultMaxBytes    = 64 << 20
)

// ErrTooLarge is returned when a response body exceeds Client.MaxBytes.
var ErrTooLarge = errors.New("response body exceeds size limit")

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Client wraps http.Client with a per-request timeout, a user agent, a body
// size cap and limited retry on transient failures.
type Client struct {
	HTTPClient  *http.Client
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int // includes the first attempt
	MaxBytes    int64
}

// New returns a Client with package defaults for anything left zero.
func New(timeout time.Duration, userAgent string) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		HTTPClient:  &http.Client{Timeout: timeout},
		UserAgent:   userAgent,
		Timeout:     timeout,
		MaxAttempts: DefaultMaxAttempts,
		MaxBytes:    DefaultMaxBytes,
	}
}

// sleepFunc waits out a retry backoff, returning early when ctx ends.
// Tests replace it.
var sleepFunc = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Get fetches rawURL and returns the response body.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := range attempts {
		body, err := c.getOnce(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt < attempts-1 {
			if err := sleepFunc(ctx, time.Duration(1<<uint(attempt))*time.Second); err != nil { // 1s, 2s, 4s
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (c *Client) getOnce(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	reader := io.Reader(resp.Body)
	if c.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, c.MaxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if c.MaxBytes > 0 && int64(len(body)) > c.MaxBytes {
		return nil, fmt.Errorf("GET %s: %w", rawURL, ErrTooLarge)
	}
	return body, nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
