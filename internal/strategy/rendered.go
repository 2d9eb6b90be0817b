package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/insight-crawler/internal/browser"
	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/extract"
	"github.com/jonesrussell/insight-crawler/internal/logger"
	"github.com/jonesrussell/insight-crawler/internal/resolver"
)

// PageRenderer is the browser capability the rendered strategy needs.
type PageRenderer interface {
	Render(ctx context.Context, pageURL string) (*browser.RenderResult, error)
	LargestImage(ctx context.Context, pageURL string) (string, error)
}

// Rendered crawls SPA sources through the shared headless browser and
// parses the rendered DOM with the same selector mechanics as the
// static strategy.
type Rendered struct {
	renderer PageRenderer
	cfg      config.CrawlerConfig
	log      logger.Logger
}

// NewRendered creates the browser-rendered strategy.
func NewRendered(renderer PageRenderer, cfg config.CrawlerConfig, log logger.Logger) *Rendered {
	return &Rendered{renderer: renderer, cfg: cfg, log: log}
}

// Technique implements Strategy.
func (r *Rendered) Technique() domain.Technique {
	return domain.TechniqueRendered
}

// ListItems renders the list page and extracts entries. Without stored
// selectors it runs the rule-based detector against the rendered DOM,
// since an SPA's structure only exists after rendering.
func (r *Rendered) ListItems(ctx context.Context, src *domain.Source) ([]domain.RawContentItem, error) {
	target := src.EffectiveURL()

	result, err := r.renderer.Render(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("rendered list: %w", err)
	}

	selectors := src.Config.Selectors
	if selectors == nil || selectors.Item == "" {
		detected, score := resolver.DetectSelectors(result.HTML)
		if detected == nil {
			return nil, fmt.Errorf("rendered list %s: no repeating structure found", target)
		}

		r.log.Debug("selectors detected on rendered dom",
			logger.String("item", detected.Item), logger.Float64("score", score))

		selectors = detected
	}

	items := parseListHTML(result.HTML, selectors)

	return finalizeItems(items, target, recencyDays(src, RecencyDaysList), time.Now(), r.log), nil
}

// FetchContent renders one article page, extracts the body preview, and
// falls back to the largest rendered image when metadata has none.
func (r *Rendered) FetchContent(ctx context.Context, articleURL string, hints extract.Hints) (*Content, error) {
	result, err := r.renderer.Render(ctx, articleURL)
	if err != nil {
		return nil, fmt.Errorf("rendered content: %w", err)
	}

	preview := extract.BodyPreview(result.HTML, articleURL, hints)
	meta := extract.PageMetadata(result.HTML)

	thumbnail := meta.Image
	if thumbnail == "" {
		if img, imgErr := r.renderer.LargestImage(ctx, articleURL); imgErr == nil {
			thumbnail = img
		}
	}

	return &Content{BodyPreview: preview, Thumbnail: thumbnail}, nil
}

// parseListHTML extracts list entries from an HTML snapshot with a
// selector set. Shared by the rendered and platform strategies, which
// hold HTML rather than a live collector. Relative links are resolved
// later by the shared finalize pipeline.
func parseListHTML(html string, selectors *domain.SelectorConfig) []domain.RawContentItem {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	scope := doc.Selection
	if selectors.Container != "" {
		if container := doc.Find(selectors.Container); container.Length() > 0 {
			scope = container
		}
	}

	var items []domain.RawContentItem

	scope.Find(selectors.Item).Each(func(_ int, sel *goquery.Selection) {
		item := domain.RawContentItem{}

		if selectors.Title != "" {
			item.Title = strings.TrimSpace(sel.Find(selectors.Title).First().Text())
		}

		linkSelector := selectors.Link
		if linkSelector == "" {
			linkSelector = "a"
		}

		link := sel.Find(linkSelector).First()
		item.Link = link.AttrOr("href", "")

		if item.Link == "" && goquery.NodeName(sel) == "a" {
			item.Link = sel.AttrOr("href", "")
		}

		if item.Title == "" {
			item.Title = strings.TrimSpace(sel.Find("a").First().Text())
		}

		if selectors.Date != "" {
			dateSel := sel.Find(selectors.Date).First()
			if selectors.DateAttr != "" {
				item.RawDate = dateSel.AttrOr(selectors.DateAttr, "")
			} else {
				item.RawDate = strings.TrimSpace(dateSel.Text())
			}
		}

		if selectors.Thumbnail != "" {
			img := sel.Find(selectors.Thumbnail).First()
			item.Thumbnail = img.AttrOr("src", img.AttrOr("data-src", ""))
		}

		if selectors.Author != "" {
			item.Author = strings.TrimSpace(sel.Find(selectors.Author).First().Text())
		}

		if item.Title == "" || item.Link == "" {
			return
		}

		items = append(items, item)
	})

	return items
}
