package strategy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	colly "github.com/gocolly/colly/v2"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/extract"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// staticMaxPages caps pagination walks when the source config does not.
const staticMaxPages = 3

// staticOptions are the per-source tuning knobs stored in the options
// blob.
type staticOptions struct {
	// MaxItems caps how many raw entries one listing returns.
	MaxItems int `mapstructure:"max_items"`
	// Referer is sent on list requests for sites that require one.
	Referer string `mapstructure:"referer"`
}

// Static scrapes server-rendered list pages with CSS selectors.
type Static struct {
	fetcher fetch.Fetcher
	cfg     config.CrawlerConfig
	log     logger.Logger
}

// NewStatic creates the static HTML strategy. The fetcher serves
// article-content fetches; listing goes through its own collector.
func NewStatic(fetcher fetch.Fetcher, cfg config.CrawlerConfig, log logger.Logger) *Static {
	return &Static{fetcher: fetcher, cfg: cfg, log: log}
}

// Technique implements Strategy.
func (s *Static) Technique() domain.Technique {
	return domain.TechniqueStatic
}

// ListItems scrapes the source's list page, following configured
// pagination up to its page cap.
func (s *Static) ListItems(ctx context.Context, src *domain.Source) ([]domain.RawContentItem, error) {
	selectors := src.Config.Selectors
	if selectors == nil || selectors.Item == "" {
		return nil, fmt.Errorf("static: source %s has no item selector", src.ID)
	}

	var opts staticOptions
	if err := decodeOptions(src, &opts); err != nil {
		return nil, err
	}

	target := src.EffectiveURL()

	// The collector is async, so paginated sources run their page
	// fetches concurrently. Everything the callbacks touch is guarded.
	var (
		mu       sync.Mutex
		items    []domain.RawContentItem
		visitErr error
	)

	collector := s.newCollector(ctx, maxDepth(src.Config.Pagination))

	if opts.Referer != "" {
		collector.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Referer", opts.Referer)
		})
	}

	itemSelector := selectors.Item
	if selectors.Container != "" {
		itemSelector = selectors.Container + " " + selectors.Item
	}

	collector.OnHTML(itemSelector, func(e *colly.HTMLElement) {
		if item := extractItem(e, selectors); item != nil {
			mu.Lock()
			items = append(items, *item)
			mu.Unlock()
		}
	})

	if src.Config.Pagination != nil && src.Config.Pagination.Type == "next" {
		s.followNextLinks(collector, src.Config.Pagination)
	}

	collector.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		visitErr = fmt.Errorf("static visit %s: %w", r.Request.URL, err)
		mu.Unlock()
	})

	startURLs := pagedURLs(target, src.Config.Pagination)
	for _, u := range startURLs {
		if err := collector.Visit(u); err != nil {
			mu.Lock()
			if len(items) == 0 && visitErr == nil {
				visitErr = fmt.Errorf("static visit %s: %w", u, err)
			}
			mu.Unlock()
		}
	}

	collector.Wait()

	if len(items) == 0 && visitErr != nil {
		return nil, visitErr
	}

	if opts.MaxItems > 0 && len(items) > opts.MaxItems {
		items = items[:opts.MaxItems]
	}

	return finalizeItems(items, target, recencyDays(src, RecencyDaysList), time.Now(), s.log), nil
}

// FetchContent downloads one article page and extracts a body preview
// plus metadata thumbnail.
func (s *Static) FetchContent(ctx context.Context, articleURL string, hints extract.Hints) (*Content, error) {
	fetchCtx, cancel := fetch.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	resp, err := s.fetcher.Get(fetchCtx, articleURL)
	if err != nil {
		return nil, fmt.Errorf("static content: %w", err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("static content %s: status %d", articleURL, resp.StatusCode)
	}

	preview := extract.BodyPreview(resp.Body, articleURL, hints)
	meta := extract.PageMetadata(resp.Body)

	return &Content{BodyPreview: preview, Thumbnail: meta.Image}, nil
}

// maxDepth sizes the collector's recursion limit. Next-link pagination
// deepens one level per page; everything else stays on the start pages.
func maxDepth(pagination *domain.PaginationConfig) int {
	if pagination == nil || pagination.Type != "next" {
		return 1
	}

	if pagination.MaxPages > 0 {
		return pagination.MaxPages
	}

	return staticMaxPages
}

// newCollector builds a collector bound to ctx.
func (s *Static) newCollector(ctx context.Context, depth int) *colly.Collector {
	collector := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.MaxDepth(depth),
		colly.UserAgent(s.cfg.UserAgent),
		colly.Async(true),
	)

	collector.SetRequestTimeout(s.cfg.FetchTimeout)

	collector.OnRequest(func(r *colly.Request) {
		if s.cfg.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", s.cfg.AcceptLanguage)
		}
	})

	return collector
}

// followNextLinks wires pagination by next-page link, bounded by the
// configured page cap.
func (s *Static) followNextLinks(collector *colly.Collector, pagination *domain.PaginationConfig) {
	maxPages := pagination.MaxPages
	if maxPages <= 0 {
		maxPages = staticMaxPages
	}

	var (
		mu      sync.Mutex
		visited int
	)

	collector.OnHTML(pagination.NextSelector, func(e *colly.HTMLElement) {
		href := e.Attr("href")
		if href == "" {
			return
		}

		mu.Lock()
		if visited >= maxPages-1 {
			mu.Unlock()

			return
		}

		visited++
		mu.Unlock()

		if err := e.Request.Visit(e.Request.AbsoluteURL(href)); err != nil {
			s.log.Debug("pagination visit declined", logger.Err(err))
		}
	})
}

// pagedURLs expands a target into its numbered page URLs for query and
// path pagination. Next-link pagination returns just the target.
func pagedURLs(target string, pagination *domain.PaginationConfig) []string {
	if pagination == nil || pagination.Param == "" ||
		(pagination.Type != "query" && pagination.Type != "path") {
		return []string{target}
	}

	maxPages := pagination.MaxPages
	if maxPages <= 0 {
		maxPages = staticMaxPages
	}

	urls := make([]string, 0, maxPages)

	for page := 1; page <= maxPages; page++ {
		switch pagination.Type {
		case "query":
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}

			urls = append(urls, fmt.Sprintf("%s%s%s=%d", target, sep, pagination.Param, page))
		case "path":
			urls = append(urls, fmt.Sprintf("%s%s%d",
				strings.TrimRight(target, "/"), pagination.Param, page))
		}
	}

	return urls
}

// extractItem reads one list entry from a matched element.
func extractItem(e *colly.HTMLElement, selectors *domain.SelectorConfig) *domain.RawContentItem {
	item := domain.RawContentItem{}

	if selectors.Title != "" {
		item.Title = strings.TrimSpace(e.ChildText(selectors.Title))
	}

	linkSelector := selectors.Link
	if linkSelector == "" {
		linkSelector = "a"
	}

	item.Link = e.ChildAttr(linkSelector, "href")
	if item.Link == "" && e.Name == "a" {
		item.Link = e.Attr("href")
	}

	if item.Title == "" {
		item.Title = strings.TrimSpace(e.ChildText("a"))
	}

	if selectors.Date != "" {
		if selectors.DateAttr != "" {
			item.RawDate = e.ChildAttr(selectors.Date, selectors.DateAttr)
		} else {
			item.RawDate = strings.TrimSpace(e.ChildText(selectors.Date))
		}
	}

	if selectors.Thumbnail != "" {
		item.Thumbnail = e.ChildAttr(selectors.Thumbnail, "src")
		if item.Thumbnail == "" {
			item.Thumbnail = e.ChildAttr(selectors.Thumbnail, "data-src")
		}
	}

	if selectors.Author != "" {
		item.Author = strings.TrimSpace(e.ChildText(selectors.Author))
	}

	item.Link = e.Request.AbsoluteURL(item.Link)

	if item.Title == "" || item.Link == "" {
		return nil
	}

	return &item
}
