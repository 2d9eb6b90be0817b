// Package fetch provides the HTTP client used by strategies and the
// resolver. Every call carries an explicit timeout through its context;
// expiry fails only that call.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonesrussell/insight-crawler/internal/config"
)

// maxBodyBytes caps how much of a response body is read. List pages and
// feeds fit comfortably; anything larger is not an article list.
const maxBodyBytes = 10 * 1024 * 1024

// Fetcher is the read-side contract consumed by the resolver and the
// DOM-based strategies.
type Fetcher interface {
	// Get downloads a URL and returns status, headers, and body.
	Get(ctx context.Context, url string) (*Response, error)
	// Exists reports whether a URL answers with a non-error status.
	Exists(ctx context.Context, url string) bool
}

// Response is the result of one fetch.
type Response struct {
	// StatusCode is the HTTP status.
	StatusCode int
	// Header holds the response headers.
	Header http.Header
	// Body is the response body as a string.
	Body string
	// FinalURL is the URL after redirects.
	FinalURL string
}

// ContentType returns the Content-Type header without parameters.
func (r *Response) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}

	return strings.TrimSpace(strings.ToLower(ct))
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// Client implements Fetcher using net/http.
type Client struct {
	client         *http.Client
	userAgent      string
	acceptLanguage string
}

// NewClient creates a Client from crawler configuration. The returned
// client follows redirects with default client behavior.
func NewClient(cfg config.CrawlerConfig) *Client {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}

	return &Client{
		client:         &http.Client{Timeout: timeout},
		userAgent:      cfg.UserAgent,
		acceptLanguage: cfg.AcceptLanguage,
	}
}

// NewClientWithHTTP creates a Client around an existing http.Client.
// Used by tests to point at an httptest server.
func NewClientWithHTTP(client *http.Client, userAgent string) *Client {
	return &Client{client: client, userAgent: userAgent}
}

// Get downloads a URL. The context bounds the whole call; the client
// timeout is the outer limit when the context has none.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("fetch new request: %w", err)
	}

	c.setHeaders(req)

	resp, doErr := c.client.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, doErr)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if readErr != nil {
		return nil, fmt.Errorf("fetch read body: %w", readErr)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(raw),
		FinalURL:   resp.Request.URL.String(),
	}, nil
}

// Exists probes a URL with HEAD, retrying as GET when the server rejects
// HEAD. Any status below 400 counts as existing.
func (c *Client) Exists(ctx context.Context, url string) bool {
	status, err := c.probe(ctx, http.MethodHead, url)
	if err != nil {
		return false
	}

	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		status, err = c.probe(ctx, http.MethodGet, url)
		if err != nil {
			return false
		}
	}

	return status < http.StatusBadRequest
}

// probe issues a minimal request and discards the body.
func (c *Client) probe(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("probe new request: %w", err)
	}

	c.setHeaders(req)

	resp, doErr := c.client.Do(req)
	if doErr != nil {
		return 0, fmt.Errorf("probe %s: %w", url, doErr)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return resp.StatusCode, nil
}

// setHeaders applies the standard header set.
func (c *Client) setHeaders(req *http.Request) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	if c.acceptLanguage != "" {
		req.Header.Set("Accept-Language", c.acceptLanguage)
	}

	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
}

// WithTimeout derives a context bounded by d, defaulting to the parent
// when d is zero or negative.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}
