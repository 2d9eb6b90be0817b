package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/extract"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/jsonpath"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// apiMaxBodyBytes caps a list response read.
const apiMaxBodyBytes = 4 << 20

// ErrNoAPIConfig is returned when the api technique runs without a
// descriptor.
var ErrNoAPIConfig = errors.New("api: source has no api descriptor")

// API crawls sources whose list lives behind a JSON endpoint, using a
// descriptor produced by the auto-detector or entered by hand.
type API struct {
	fetcher    fetch.Fetcher
	httpClient *http.Client
	cfg        config.CrawlerConfig
	log        logger.Logger
}

// NewAPI creates the JSON API strategy.
func NewAPI(fetcher fetch.Fetcher, cfg config.CrawlerConfig, log logger.Logger) *API {
	return &API{
		fetcher:    fetcher,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		cfg:        cfg,
		log:        log,
	}
}

// Technique implements Strategy.
func (a *API) Technique() domain.Technique {
	return domain.TechniqueAPI
}

// ListItems calls the configured endpoint and maps response items to
// content items through the descriptor's field paths.
func (a *API) ListItems(ctx context.Context, src *domain.Source) ([]domain.RawContentItem, error) {
	descriptor := src.Config.API
	if descriptor == nil || descriptor.URL == "" {
		return nil, ErrNoAPIConfig
	}

	doc, err := a.callEndpoint(ctx, descriptor)
	if err != nil {
		return nil, err
	}

	rawItems, err := jsonpath.Array(doc, descriptor.ItemsPath)
	if err != nil {
		return nil, fmt.Errorf("api items at %q: %w", descriptor.ItemsPath, err)
	}

	items := make([]domain.RawContentItem, 0, len(rawItems))

	for _, raw := range rawItems {
		item := mapAPIItem(raw, descriptor)
		if item != nil {
			items = append(items, *item)
		}
	}

	a.log.Debug("api list mapped",
		logger.String("endpoint", descriptor.URL), logger.Int("items", len(items)))

	return finalizeItems(items, descriptor.URL, recencyDays(src, RecencyDaysFeed), time.Now(), a.log), nil
}

// FetchContent downloads the article page behind an API item.
func (a *API) FetchContent(ctx context.Context, articleURL string, hints extract.Hints) (*Content, error) {
	fetchCtx, cancel := fetch.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	resp, err := a.fetcher.Get(fetchCtx, articleURL)
	if err != nil {
		return nil, fmt.Errorf("api content: %w", err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("api content %s: status %d", articleURL, resp.StatusCode)
	}

	preview := extract.BodyPreview(resp.Body, articleURL, hints)
	meta := extract.PageMetadata(resp.Body)

	return &Content{BodyPreview: preview, Thumbnail: meta.Image}, nil
}

// callEndpoint performs the descriptor's request and decodes the JSON
// document.
func (a *API) callEndpoint(ctx context.Context, descriptor *domain.APIDescriptor) (any, error) {
	method := descriptor.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader = http.NoBody
	if descriptor.Body != "" {
		body = strings.NewReader(descriptor.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, descriptor.URL, body)
	if err != nil {
		return nil, fmt.Errorf("api request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", a.cfg.UserAgent)

	if descriptor.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, doErr := a.httpClient.Do(req)
	if doErr != nil {
		return nil, fmt.Errorf("api call %s: %w", descriptor.URL, doErr)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("api call %s: status %d", descriptor.URL, resp.StatusCode)
	}

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, apiMaxBodyBytes))
	if readErr != nil {
		return nil, fmt.Errorf("api read body: %w", readErr)
	}

	var doc any
	if jsonErr := json.Unmarshal(bytes.TrimSpace(raw), &doc); jsonErr != nil {
		return nil, fmt.Errorf("api decode %s: %w", descriptor.URL, jsonErr)
	}

	return doc, nil
}

// mapAPIItem maps one response object through the descriptor's field
// paths. Missing optional fields are fine; missing title or link drops
// the item.
func mapAPIItem(raw any, descriptor *domain.APIDescriptor) *domain.RawContentItem {
	title, err := jsonpath.String(raw, descriptor.Fields.Title)
	if err != nil {
		return nil
	}

	link, err := jsonpath.String(raw, descriptor.Fields.Link)
	if err != nil {
		return nil
	}

	if descriptor.LinkTemplate != "" {
		link = strings.ReplaceAll(descriptor.LinkTemplate, "{value}", link)
	}

	item := domain.RawContentItem{Title: title, Link: link}

	if descriptor.Fields.Date != "" {
		if date, dateErr := jsonpath.String(raw, descriptor.Fields.Date); dateErr == nil {
			item.RawDate = date
		}
	}

	if descriptor.Fields.Thumbnail != "" {
		if thumb, thumbErr := jsonpath.String(raw, descriptor.Fields.Thumbnail); thumbErr == nil {
			item.Thumbnail = thumb
		}
	}

	if descriptor.Fields.Author != "" {
		if author, authorErr := jsonpath.String(raw, descriptor.Fields.Author); authorErr == nil {
			item.Author = author
		}
	}

	return &item
}
