package strategy

import (
	"context"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/extract"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
	"github.com/jonesrussell/insight-crawler/internal/normalize"
)

const (
	// sitemapMaxEntries caps how many recent URLs get a title fetch.
	sitemapMaxEntries = 15

	// sitemapMaxChildren caps how many child sitemaps an index expands.
	sitemapMaxChildren = 3

	// sitemapTitleFetchers bounds concurrent title fetches.
	sitemapTitleFetchers = 3
)

// sitemapURLSet is the <urlset> document shape.
type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// sitemapIndex is the <sitemapindex> document shape.
type sitemapIndex struct {
	XMLName  xml.Name       `xml:"sitemapindex"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type sitemapEntry struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod"`
}

// Sitemap crawls sources through their sitemap: recent URLs are read
// from the XML and titles are filled from each page's metadata.
type Sitemap struct {
	fetcher fetch.Fetcher
	cfg     config.CrawlerConfig
	log     logger.Logger
}

// NewSitemap creates the sitemap strategy.
func NewSitemap(fetcher fetch.Fetcher, cfg config.CrawlerConfig, log logger.Logger) *Sitemap {
	return &Sitemap{fetcher: fetcher, cfg: cfg, log: log}
}

// Technique implements Strategy.
func (s *Sitemap) Technique() domain.Technique {
	return domain.TechniqueSitemap
}

// ListItems reads the sitemap (expanding an index), keeps entries
// within the recency window, and fetches page metadata for the most
// recent ones.
func (s *Sitemap) ListItems(ctx context.Context, src *domain.Source) ([]domain.RawContentItem, error) {
	sitemapURLStr := src.Config.FeedURL
	if sitemapURLStr == "" {
		sitemapURLStr = src.EffectiveURL()
	}

	days := recencyDays(src, RecencyDaysFeed)
	now := time.Now()

	entries, err := s.readSitemap(ctx, sitemapURLStr, days, now, 0)
	if err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, nil
	}

	// Most recent first; unknown lastmod sorts last.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastMod > entries[j].LastMod
	})

	if len(entries) > sitemapMaxEntries {
		entries = entries[:sitemapMaxEntries]
	}

	items := s.fetchTitles(ctx, entries)

	return finalizeItems(items, sitemapURLStr, days, now, s.log), nil
}

// FetchContent downloads one article page for its body preview.
func (s *Sitemap) FetchContent(ctx context.Context, articleURL string, hints extract.Hints) (*Content, error) {
	fetchCtx, cancel := fetch.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	resp, err := s.fetcher.Get(fetchCtx, articleURL)
	if err != nil {
		return nil, fmt.Errorf("sitemap content: %w", err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("sitemap content %s: status %d", articleURL, resp.StatusCode)
	}

	preview := extract.BodyPreview(resp.Body, articleURL, hints)
	meta := extract.PageMetadata(resp.Body)

	return &Content{BodyPreview: preview, Thumbnail: meta.Image}, nil
}

// readSitemap downloads and parses one sitemap document, recursing one
// level into sitemap indexes.
func (s *Sitemap) readSitemap(ctx context.Context, sitemapURLStr string, days int, now time.Time, depth int) ([]sitemapURL, error) {
	boxCtx, cancel := fetch.WithTimeout(ctx, s.cfg.SitemapTimeout)
	defer cancel()

	resp, err := s.fetcher.Get(boxCtx, sitemapURLStr)
	if err != nil {
		return nil, fmt.Errorf("sitemap fetch %s: %w", sitemapURLStr, err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("sitemap fetch %s: status %d", sitemapURLStr, resp.StatusCode)
	}

	body := []byte(resp.Body)

	var urlset sitemapURLSet
	if xmlErr := xml.Unmarshal(body, &urlset); xmlErr == nil && len(urlset.URLs) > 0 {
		return filterRecent(urlset.URLs, days, now), nil
	}

	if depth > 0 {
		return nil, nil
	}

	var index sitemapIndex
	if xmlErr := xml.Unmarshal(body, &index); xmlErr != nil || len(index.Sitemaps) == 0 {
		return nil, fmt.Errorf("sitemap parse %s: unrecognized document", sitemapURLStr)
	}

	// Newest child sitemaps first; most generators order them that way
	// by lastmod.
	sort.SliceStable(index.Sitemaps, func(i, j int) bool {
		return index.Sitemaps[i].LastMod > index.Sitemaps[j].LastMod
	})

	children := index.Sitemaps
	if len(children) > sitemapMaxChildren {
		children = children[:sitemapMaxChildren]
	}

	var all []sitemapURL

	for _, child := range children {
		entries, childErr := s.readSitemap(ctx, child.Loc, days, now, depth+1)
		if childErr != nil {
			s.log.Debug("child sitemap skipped",
				logger.String("sitemap", child.Loc), logger.Err(childErr))

			continue
		}

		all = append(all, entries...)
	}

	return all, nil
}

// filterRecent keeps entries whose lastmod is inside the window.
// Entries without lastmod are kept.
func filterRecent(urls []sitemapURL, days int, now time.Time) []sitemapURL {
	out := make([]sitemapURL, 0, len(urls))

	for _, u := range urls {
		if strings.TrimSpace(u.Loc) == "" {
			continue
		}

		if normalize.ParseDate(u.LastMod, now).WithinDays(days, now) {
			out = append(out, u)
		}
	}

	return out
}

// fetchTitles fills titles and thumbnails from each page's metadata,
// with bounded parallelism. Pages that fail to fetch are dropped.
func (s *Sitemap) fetchTitles(ctx context.Context, entries []sitemapURL) []domain.RawContentItem {
	items := make([]domain.RawContentItem, len(entries))

	g, fetchCtx := errgroup.WithContext(ctx)
	g.SetLimit(sitemapTitleFetchers)

	for i, entry := range entries {
		g.Go(func() error {
			boxCtx, cancel := fetch.WithTimeout(fetchCtx, s.cfg.FetchTimeout)
			defer cancel()

			resp, err := s.fetcher.Get(boxCtx, entry.Loc)
			if err != nil || !resp.OK() {
				return nil
			}

			meta := extract.PageMetadata(resp.Body)
			if meta.Title == "" {
				return nil
			}

			items[i] = domain.RawContentItem{
				Title:     meta.Title,
				Link:      entry.Loc,
				Thumbnail: meta.Image,
				Author:    meta.Author,
				RawDate:   firstNonEmpty(meta.PublishedTime, entry.LastMod),
			}

			return nil
		})
	}

	_ = g.Wait()

	out := make([]domain.RawContentItem, 0, len(items))
	for _, item := range items {
		if item.Link != "" {
			out = append(out, item)
		}
	}

	return out
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
