package strategy

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/extract"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// Medium crawls Medium profiles and publications through their feed.
// Medium feeds are full-text, so listing usually carries the body and
// no per-article fetch is needed.
type Medium struct {
	fetcher fetch.Fetcher
	cfg     config.CrawlerConfig
	log     logger.Logger
	parser  *gofeed.Parser
}

// NewMedium creates the Medium strategy.
func NewMedium(fetcher fetch.Fetcher, cfg config.CrawlerConfig, log logger.Logger) *Medium {
	parser := gofeed.NewParser()
	parser.UserAgent = cfg.UserAgent

	return &Medium{fetcher: fetcher, cfg: cfg, log: log, parser: parser}
}

// Technique implements Strategy.
func (m *Medium) Technique() domain.Technique {
	return domain.TechniqueMedium
}

// ListItems parses the Medium feed, deriving its location from the
// profile URL when detection did not store one.
func (m *Medium) ListItems(ctx context.Context, src *domain.Source) ([]domain.RawContentItem, error) {
	feedURL := src.Config.FeedURL
	if feedURL == "" {
		feedURL = MediumFeedURL(src.EffectiveURL())
	}

	if feedURL == "" {
		return nil, fmt.Errorf("medium: cannot derive feed from %s", src.EffectiveURL())
	}

	feedCtx, cancel := fetch.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	feed, err := m.parser.ParseURLWithContext(feedURL, feedCtx)
	if err != nil {
		return nil, fmt.Errorf("medium feed %s: %w", feedURL, err)
	}

	items := make([]domain.RawContentItem, 0, len(feed.Items))

	for _, entry := range feed.Items {
		item := feedEntryToItem(entry)
		if item == nil {
			continue
		}

		// Medium links carry a tracking query (?source=rss-...).
		item.Link = stripQuery(item.Link)
		items = append(items, *item)
	}

	return finalizeItems(items, feedURL, recencyDays(src, RecencyDaysFeed), time.Now(), m.log), nil
}

// FetchContent downloads a Medium article page. Only reached when the
// feed entry carried no body.
func (m *Medium) FetchContent(ctx context.Context, articleURL string, hints extract.Hints) (*Content, error) {
	fetchCtx, cancel := fetch.WithTimeout(ctx, m.cfg.FetchTimeout)
	defer cancel()

	resp, err := m.fetcher.Get(fetchCtx, articleURL)
	if err != nil {
		return nil, fmt.Errorf("medium content: %w", err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("medium content %s: status %d", articleURL, resp.StatusCode)
	}

	if hints.Selector == "" {
		hints.Selector = "article"
	}

	preview := extract.BodyPreview(resp.Body, articleURL, hints)
	meta := extract.PageMetadata(resp.Body)

	return &Content{BodyPreview: preview, Thumbnail: meta.Image}, nil
}

// MediumFeedURL derives the feed location for a Medium profile,
// publication, or custom-domain publication URL.
func MediumFeedURL(profileURL string) string {
	parsed, err := url.Parse(profileURL)
	if err != nil || parsed.Host == "" {
		return ""
	}

	host := strings.ToLower(parsed.Host)
	path := strings.Trim(parsed.Path, "/")

	if host == "medium.com" || strings.HasSuffix(host, ".medium.com") {
		if host != "medium.com" {
			// user.medium.com subdomain profiles feed at /feed.
			return parsed.Scheme + "://" + parsed.Host + "/feed"
		}

		if path == "" {
			return ""
		}

		if i := strings.IndexByte(path, '/'); i >= 0 {
			path = path[:i]
		}

		return "https://medium.com/feed/" + path
	}

	// Custom-domain publications feed at /feed.
	return parsed.Scheme + "://" + parsed.Host + "/feed"
}

// stripQuery removes the query and fragment from a link.
func stripQuery(link string) string {
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		return link[:i]
	}

	return link
}
