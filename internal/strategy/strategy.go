// Package strategy implements the crawling techniques. Each technique
// owns its own fetch and parse mechanics behind a shared contract, so
// the execution engine never special-cases one. All techniques apply
// the same recency filter and title normalization before returning
// items.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/extract"
	"github.com/jonesrussell/insight-crawler/internal/logger"
	"github.com/jonesrussell/insight-crawler/internal/normalize"
)

// Per-technique recency thresholds in days. Feeds and sitemaps carry
// reliable dates so they get the longer window; scraped list pages
// often have unparseable dates and get the shorter one.
const (
	RecencyDaysFeed = 14
	RecencyDaysList = 7
)

// ErrNotSupported is returned by Registry.Get for unknown techniques.
var ErrNotSupported = errors.New("technique not supported")

// Content is the result of fetching one article's body.
type Content struct {
	// BodyPreview is the cleaned, bounded body text.
	BodyPreview string
	// Thumbnail is a discovered image URL, when any.
	Thumbnail string
}

// Strategy is the common capability set. ListItems harvests the list
// entries a source currently shows; FetchContent fills in one item's
// body after listing.
type Strategy interface {
	// Technique identifies the strategy in logs and attempt records.
	Technique() domain.Technique
	// ListItems harvests the source's current list entries.
	ListItems(ctx context.Context, src *domain.Source) ([]domain.RawContentItem, error)
	// FetchContent extracts a body preview for one article URL.
	FetchContent(ctx context.Context, articleURL string, hints extract.Hints) (*Content, error)
}

// Registry dispatches techniques to their implementations.
type Registry struct {
	strategies map[domain.Technique]Strategy
}

// NewRegistry builds a registry from the given strategies.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[domain.Technique]Strategy, len(strategies))}

	for _, s := range strategies {
		r.strategies[s.Technique()] = s
	}

	return r
}

// Get looks up the implementation for a technique.
func (r *Registry) Get(t domain.Technique) (Strategy, error) {
	s, ok := r.strategies[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotSupported, t)
	}

	return s, nil
}

// Has reports whether a technique is registered.
func (r *Registry) Has(t domain.Technique) bool {
	_, ok := r.strategies[t]

	return ok
}

// decodeOptions decodes a source's technique-specific options blob into
// the owning strategy's option struct. An absent blob leaves defaults.
func decodeOptions(src *domain.Source, out any) error {
	if len(src.Config.Options) == 0 {
		return nil
	}

	if err := mapstructure.Decode(src.Config.Options, out); err != nil {
		return fmt.Errorf("decode options for %s: %w", src.ID, err)
	}

	return nil
}

// recencyDays resolves the effective recency window for a source.
func recencyDays(src *domain.Source, techniqueDefault int) int {
	if src.Config.RecencyDays > 0 {
		return src.Config.RecencyDays
	}

	return techniqueDefault
}

// finalizeItems applies the shared post-listing pipeline: title
// normalization, absolute-link resolution, recency filtering, and
// per-batch link dedup. Items with unknown dates are kept.
func finalizeItems(items []domain.RawContentItem, baseURL string, days int, now time.Time, log logger.Logger) []domain.RawContentItem {
	base, baseErr := url.Parse(baseURL)

	seen := make(map[string]bool, len(items))
	out := make([]domain.RawContentItem, 0, len(items))

	for _, item := range items {
		title, ok := normalize.ProcessTitle(item.Title)
		if !ok {
			continue
		}

		item.Title = title

		if baseErr == nil {
			item.Link = absoluteLink(base, item.Link)
			item.Thumbnail = absoluteLink(base, item.Thumbnail)
		}

		if !item.Usable() {
			continue
		}

		parsed := normalize.ParseDate(item.RawDate, now)
		if !parsed.WithinDays(days, now) {
			continue
		}

		key := domain.NormalizeLink(item.Link)
		if seen[key] {
			continue
		}

		seen[key] = true
		out = append(out, item)
	}

	if len(out) < len(items) {
		log.Debug("items filtered",
			logger.Int("in", len(items)), logger.Int("out", len(out)))
	}

	return out
}

// absoluteLink resolves a possibly-relative reference against base.
// Empty input stays empty.
func absoluteLink(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}

	if parsed.IsAbs() {
		return ref
	}

	return base.ResolveReference(parsed).String()
}
