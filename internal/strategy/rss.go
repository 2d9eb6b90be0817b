package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/extract"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// RSS crawls RSS and Atom feeds.
type RSS struct {
	fetcher fetch.Fetcher
	cfg     config.CrawlerConfig
	log     logger.Logger
	parser  *gofeed.Parser
}

// NewRSS creates the feed strategy.
func NewRSS(fetcher fetch.Fetcher, cfg config.CrawlerConfig, log logger.Logger) *RSS {
	parser := gofeed.NewParser()
	parser.UserAgent = cfg.UserAgent

	return &RSS{fetcher: fetcher, cfg: cfg, log: log, parser: parser}
}

// Technique implements Strategy.
func (r *RSS) Technique() domain.Technique {
	return domain.TechniqueRSS
}

// ListItems parses the source's feed. The feed URL comes from detection
// metadata; without one, conventional root paths are guessed.
func (r *RSS) ListItems(ctx context.Context, src *domain.Source) ([]domain.RawContentItem, error) {
	feedURL := src.Config.FeedURL
	if feedURL == "" {
		feedURL = src.EffectiveURL()
	}

	feedCtx, cancel := fetch.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	feed, err := r.parser.ParseURLWithContext(feedURL, feedCtx)
	if err != nil {
		return nil, fmt.Errorf("rss parse %s: %w", feedURL, err)
	}

	items := make([]domain.RawContentItem, 0, len(feed.Items))

	for _, entry := range feed.Items {
		item := feedEntryToItem(entry)
		if item != nil {
			items = append(items, *item)
		}
	}

	r.log.Debug("feed parsed",
		logger.String("feed", feedURL), logger.Int("entries", len(items)))

	return finalizeItems(items, feedURL, recencyDays(src, RecencyDaysFeed), time.Now(), r.log), nil
}

// FetchContent downloads the article page behind a feed entry. Used
// when the feed carried no usable body.
func (r *RSS) FetchContent(ctx context.Context, articleURL string, hints extract.Hints) (*Content, error) {
	fetchCtx, cancel := fetch.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	resp, err := r.fetcher.Get(fetchCtx, articleURL)
	if err != nil {
		return nil, fmt.Errorf("rss content: %w", err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("rss content %s: status %d", articleURL, resp.StatusCode)
	}

	preview := extract.BodyPreview(resp.Body, articleURL, hints)
	meta := extract.PageMetadata(resp.Body)

	return &Content{BodyPreview: preview, Thumbnail: meta.Image}, nil
}

// feedEntryToItem converts one gofeed entry, carrying feed-provided
// content so no page fetch is needed when the feed is full-text.
func feedEntryToItem(entry *gofeed.Item) *domain.RawContentItem {
	if entry == nil || entry.Link == "" {
		return nil
	}

	item := domain.RawContentItem{
		Title: entry.Title,
		Link:  entry.Link,
	}

	if entry.PublishedParsed != nil {
		item.RawDate = entry.PublishedParsed.Format(time.RFC3339)
	} else if entry.UpdatedParsed != nil {
		item.RawDate = entry.UpdatedParsed.Format(time.RFC3339)
	} else {
		item.RawDate = entry.Published
	}

	if entry.Image != nil {
		item.Thumbnail = entry.Image.URL
	}

	if item.Thumbnail == "" {
		for _, enc := range entry.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				item.Thumbnail = enc.URL

				break
			}
		}
	}

	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		item.Author = entry.Authors[0].Name
	}

	if entry.Content != "" {
		item.Content = feedBodyText(entry.Content)
	} else if entry.Description != "" {
		item.Content = feedBodyText(entry.Description)
	}

	return &item
}

// feedBodyText strips markup from feed-embedded content and bounds it
// like any other preview.
func feedBodyText(html string) string {
	return extract.Preview(stripTags(html), extract.PreviewMaxChars)
}

// stripTags flattens feed-embedded markup to collapsed text.
func stripTags(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}

	return strings.Join(strings.Fields(doc.Text()), " ")
}
