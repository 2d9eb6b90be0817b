package strategy

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/extract"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
	"github.com/jonesrussell/insight-crawler/internal/resolver"
)

// newsletterSelectors are per-platform archive list selectors, tried
// before generic detection.
var newsletterSelectors = map[string]*domain.SelectorConfig{
	"stibee.com": {
		Item:  "li.list_item",
		Title: ".title",
		Link:  "a",
		Date:  ".date",
	},
	"maily.so": {
		Item:  "a[href*='/posts/']",
		Title: "h3",
		Link:  "",
	},
	"substack.com": {
		Item:  "div.post-preview",
		Title: "a.post-preview-title",
		Link:  "a.post-preview-title",
		Date:  "time",
	},
}

// Newsletter crawls hosted newsletter archive pages. Archives are
// server-rendered lists; the platform is recognized by host, with
// stored or detected selectors as fallback.
type Newsletter struct {
	fetcher fetch.Fetcher
	cfg     config.CrawlerConfig
	log     logger.Logger
}

// NewNewsletter creates the newsletter-archive strategy.
func NewNewsletter(fetcher fetch.Fetcher, cfg config.CrawlerConfig, log logger.Logger) *Newsletter {
	return &Newsletter{fetcher: fetcher, cfg: cfg, log: log}
}

// Technique implements Strategy.
func (n *Newsletter) Technique() domain.Technique {
	return domain.TechniqueNewsletter
}

// ListItems fetches the archive page and extracts entries using stored
// selectors, then platform conventions, then rule-based detection.
func (n *Newsletter) ListItems(ctx context.Context, src *domain.Source) ([]domain.RawContentItem, error) {
	target := src.EffectiveURL()

	fetchCtx, cancel := fetch.WithTimeout(ctx, n.cfg.FetchTimeout)
	defer cancel()

	resp, err := n.fetcher.Get(fetchCtx, target)
	if err != nil {
		return nil, fmt.Errorf("newsletter list: %w", err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("newsletter list %s: status %d", target, resp.StatusCode)
	}

	selectors := n.resolveSelectors(src, target, resp.Body)
	if selectors == nil {
		return nil, fmt.Errorf("newsletter list %s: no archive structure found", target)
	}

	items := parseListHTML(resp.Body, selectors)

	return finalizeItems(items, target, recencyDays(src, RecencyDaysFeed), time.Now(), n.log), nil
}

// FetchContent downloads one issue page for its body preview.
func (n *Newsletter) FetchContent(ctx context.Context, articleURL string, hints extract.Hints) (*Content, error) {
	fetchCtx, cancel := fetch.WithTimeout(ctx, n.cfg.FetchTimeout)
	defer cancel()

	resp, err := n.fetcher.Get(fetchCtx, articleURL)
	if err != nil {
		return nil, fmt.Errorf("newsletter content: %w", err)
	}

	if !resp.OK() {
		return nil, fmt.Errorf("newsletter content %s: status %d", articleURL, resp.StatusCode)
	}

	preview := extract.BodyPreview(resp.Body, articleURL, hints)
	meta := extract.PageMetadata(resp.Body)

	return &Content{BodyPreview: preview, Thumbnail: meta.Image}, nil
}

// resolveSelectors layers selector sources: stored config, platform
// convention by host, rule-based detection on the fetched page.
func (n *Newsletter) resolveSelectors(src *domain.Source, target, html string) *domain.SelectorConfig {
	if src.Config.Selectors != nil && src.Config.Selectors.Item != "" {
		return src.Config.Selectors
	}

	if parsed, err := url.Parse(target); err == nil {
		host := strings.ToLower(parsed.Host)

		for platformHost, selectors := range newsletterSelectors {
			if host == platformHost || strings.HasSuffix(host, "."+platformHost) {
				return selectors
			}
		}
	}

	detected, score := resolver.DetectSelectors(html)
	if detected != nil {
		n.log.Debug("newsletter selectors detected",
			logger.String("item", detected.Item), logger.Float64("score", score))
	}

	return detected
}
