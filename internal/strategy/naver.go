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

// naverContentSelectors locate the post body in Naver's editors, newest
// first.
var naverContentSelectors = []string{
	".se-main-container",
	".post-view",
	"#postViewArea",
}

// Naver crawls Naver blogs. Listing goes through the per-blog RSS host;
// content comes from the mobile page, because the desktop page wraps
// the post in an iframe that plain fetching never reaches.
type Naver struct {
	fetcher fetch.Fetcher
	cfg     config.CrawlerConfig
	log     logger.Logger
	parser  *gofeed.Parser
}

// NewNaver creates the Naver blog strategy.
func NewNaver(fetcher fetch.Fetcher, cfg config.CrawlerConfig, log logger.Logger) *Naver {
	parser := gofeed.NewParser()
	parser.UserAgent = cfg.UserAgent

	return &Naver{fetcher: fetcher, cfg: cfg, log: log, parser: parser}
}

// Technique implements Strategy.
func (n *Naver) Technique() domain.Technique {
	return domain.TechniqueNaver
}

// ListItems parses the blog's RSS feed, deriving the feed host from the
// blog URL when detection did not store one.
func (n *Naver) ListItems(ctx context.Context, src *domain.Source) ([]domain.RawContentItem, error) {
	feedURL := src.Config.FeedURL
	if feedURL == "" {
		feedURL = NaverFeedURL(src.EffectiveURL())
	}

	if feedURL == "" {
		return nil, fmt.Errorf("naver: cannot derive feed from %s", src.EffectiveURL())
	}

	feedCtx, cancel := fetch.WithTimeout(ctx, n.cfg.FetchTimeout)
	defer cancel()

	feed, err := n.parser.ParseURLWithContext(feedURL, feedCtx)
	if err != nil {
		return nil, fmt.Errorf("naver feed %s: %w", feedURL, err)
	}

	items := make([]domain.RawContentItem, 0, len(feed.Items))

	for _, entry := range feed.Items {
		if item := feedEntryToItem(entry); item != nil {
			items = append(items, *item)
		}
	}

	return finalizeItems(items, feedURL, recencyDays(src, RecencyDaysFeed), time.Now(), n.log), nil
}

// FetchContent downloads the mobile rendition of a post and extracts
// the body from the editor container.
func (n *Naver) FetchContent(ctx context.Context, articleURL string, hints extract.Hints) (*Content, error) {
	mobileURL := NaverMobileURL(articleURL)

	fetchCtx, cancel := fetch.WithTimeout(ctx, n.cfg.FetchTimeout)
	defer cancel()

	resp, err := n.fetcher.Get(fetchCtx, mobileURL)
	if err != nil {
		return nil, fmt.Errorf("naver content: %w", err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("naver content %s: status %d", mobileURL, resp.StatusCode)
	}

	preview := ""

	if hints.Selector != "" {
		preview = extract.BodyPreview(resp.Body, mobileURL, hints)
	}

	for _, selector := range naverContentSelectors {
		if preview != "" {
			break
		}

		preview = extract.BodyPreview(resp.Body, mobileURL, extract.Hints{
			Selector: selector,
			Exclude:  hints.Exclude,
		})
	}

	meta := extract.PageMetadata(resp.Body)

	return &Content{BodyPreview: preview, Thumbnail: meta.Image}, nil
}

// NaverFeedURL derives the RSS location for a blog URL. Naver feeds
// live on a dedicated host keyed by blog ID.
func NaverFeedURL(blogURL string) string {
	parsed, err := url.Parse(blogURL)
	if err != nil {
		return ""
	}

	host := strings.ToLower(parsed.Host)
	if host != "blog.naver.com" && host != "m.blog.naver.com" {
		return ""
	}

	blogID := strings.Trim(parsed.Path, "/")
	if i := strings.IndexByte(blogID, '/'); i >= 0 {
		blogID = blogID[:i]
	}

	if blogID == "" {
		return ""
	}

	return "https://rss.blog.naver.com/" + blogID + ".xml"
}

// NaverMobileURL rewrites a desktop post link to its mobile rendition,
// which serves the post body without the iframe indirection.
func NaverMobileURL(articleURL string) string {
	parsed, err := url.Parse(articleURL)
	if err != nil {
		return articleURL
	}

	if strings.ToLower(parsed.Host) != "blog.naver.com" {
		return articleURL
	}

	parsed.Host = "m.blog.naver.com"

	return parsed.String()
}
