// Package classifier is the HTTP client for the external page
// classifier service. The classifier is advisory: it votes on source
// types, proposes listing selectors, and picks list endpoints among
// captured API responses. Any failure, timeout, or malformed reply is
// treated as "no opinion" so detection can continue on heuristics
// alone.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

const (
	// DefaultTimeout bounds one classifier call.
	DefaultTimeout = 20 * time.Second

	// maxPageSampleBytes truncates page HTML sent to the classifier.
	maxPageSampleBytes = 200 << 10
)

// Client talks to the classifier service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a classifier client for the given endpoint.
func NewClient(baseURL string, opts ...Option) *Client {
	client := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		log:        logger.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// TypeVote is the classifier's opinion on what kind of source a page is.
type TypeVote struct {
	// Technique is the suggested crawl technique.
	Technique domain.Technique `json:"technique"`
	// Confidence is the classifier's own confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// SelectorProposal is a suggested listing selector set.
type SelectorProposal struct {
	Selectors domain.SelectorConfig `json:"selectors"`
	// Confidence is the classifier's own confidence in [0,1].
	Confidence float64 `json:"confidence"`
}

// EndpointCandidate describes one captured API response offered to the
// classifier.
type EndpointCandidate struct {
	URL string `json:"url"`
	// Method is the HTTP method the page used.
	Method string `json:"method"`
	// Sample is a truncated body excerpt.
	Sample string `json:"sample"`
}

// EndpointPick is the classifier's choice among endpoint candidates.
type EndpointPick struct {
	// Index selects into the submitted candidate list.
	Index int `json:"index"`
	// ItemsPath is the dotted path to the article array.
	ItemsPath string `json:"items_path"`
	// Fields maps article fields to dotted paths within one item.
	Fields domain.APIFieldMap `json:"fields"`
}

// ClassifySourceType asks for a technique vote on a page. A nil vote
// with nil error means the classifier had no opinion.
func (c *Client) ClassifySourceType(ctx context.Context, pageURL, html string) (*TypeVote, error) {
	payload := map[string]string{
		"url":  pageURL,
		"html": truncate(html, maxPageSampleBytes),
	}

	var vote TypeVote
	if ok := c.post(ctx, "/classify/source-type", payload, &vote); !ok {
		return nil, nil
	}

	if _, err := domain.ParseTechnique(string(vote.Technique)); err != nil {
		c.log.Warn("classifier returned unknown technique",
			logger.String("technique", string(vote.Technique)))

		return nil, nil
	}

	return &vote, nil
}

// ProposeSelectors asks for a listing selector set for a page. A nil
// proposal with nil error means no opinion.
func (c *Client) ProposeSelectors(ctx context.Context, pageURL, html string) (*SelectorProposal, error) {
	payload := map[string]string{
		"url":  pageURL,
		"html": truncate(html, maxPageSampleBytes),
	}

	var proposal SelectorProposal
	if ok := c.post(ctx, "/classify/selectors", payload, &proposal); !ok {
		return nil, nil
	}

	if proposal.Selectors.Item == "" || proposal.Selectors.Title == "" {
		return nil, nil
	}

	return &proposal, nil
}

// PickEndpoint asks which captured API response is the article list and
// how to read it. A nil pick with nil error means no opinion.
func (c *Client) PickEndpoint(ctx context.Context, pageURL string, candidates []EndpointCandidate) (*EndpointPick, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	payload := map[string]any{
		"url":        pageURL,
		"candidates": candidates,
	}

	var pick EndpointPick
	if ok := c.post(ctx, "/classify/api-endpoint", payload, &pick); !ok {
		return nil, nil
	}

	if pick.Index < 0 || pick.Index >= len(candidates) {
		return nil, nil
	}

	if pick.Fields.Title == "" || pick.Fields.Link == "" {
		return nil, nil
	}

	return &pick, nil
}

// post sends a JSON request and decodes the reply. Returns false on any
// transport, status, or decode failure; the classifier is best-effort.
func (c *Client) post(ctx context.Context, path string, payload, result any) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("classifier call failed",
			logger.String("path", path), logger.Err(err))

		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.log.Debug("classifier returned error status",
			logger.String("path", path), logger.Int("status", resp.StatusCode))

		return false
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSampleBytes))
	if err != nil {
		return false
	}

	if err := json.Unmarshal(raw, result); err != nil {
		c.log.Debug("classifier reply malformed",
			logger.String("path", path), logger.Err(err))

		return false
	}

	return true
}

// truncate bounds s to max bytes without splitting the final rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}

	cut := s[:max]
	for len(cut) > 0 && cut[len(cut)-1] >= 0x80 && cut[len(cut)-1] < 0xC0 {
		cut = cut[:len(cut)-1]
	}

	if len(cut) > 0 && cut[len(cut)-1] >= 0xC0 {
		cut = cut[:len(cut)-1]
	}

	return cut
}
