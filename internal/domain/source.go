package domain

import "time"

// Source is a registered crawl target. It is read at the start of a run
// and only mutated by the resolver after a run completes.
type Source struct {
	// ID is the stable source identifier.
	ID string `json:"id" db:"id"`
	// Name is the display name.
	Name string `json:"name" db:"name"`
	// URL is the URL the source was registered with.
	URL string `json:"url" db:"url"`
	// CrawlURL is an optional optimized crawl URL discovered by the
	// resolver (e.g. a /blog subpage). Empty means use URL.
	CrawlURL string `json:"crawl_url,omitempty" db:"crawl_url"`
	// Technique is the declared crawling technique, or "auto".
	Technique Technique `json:"technique" db:"technique"`
	// Config holds the structured crawl configuration.
	Config SourceConfig `json:"config" db:"config"`
	// Active controls whether the source participates in runs.
	Active bool `json:"active" db:"active"`
	// Priority orders sources within a batch run; higher runs first.
	Priority int `json:"priority" db:"priority"`
	// LastCrawledAt is the completion time of the last run, if any.
	LastCrawledAt *time.Time `json:"last_crawled_at,omitempty" db:"last_crawled_at"`
}

// EffectiveURL returns the optimized crawl URL when one was discovered,
// else the registered URL.
func (s *Source) EffectiveURL() string {
	if s.CrawlURL != "" {
		return s.CrawlURL
	}

	return s.URL
}

// ApplyResolution copies a resolver decision onto the source so it can
// be persisted and executed.
func (s *Source) ApplyResolution(res *StrategyResolution, at time.Time) {
	s.Technique = res.Technique
	s.CrawlURL = res.CrawlURL

	if res.FeedURL != "" {
		s.Config.FeedURL = res.FeedURL
	}

	if res.Selectors != nil {
		s.Config.Selectors = res.Selectors
	}

	if len(res.ExcludeSelectors) > 0 {
		s.Config.ExcludeSelectors = res.ExcludeSelectors
	}

	if res.Pagination != nil {
		s.Config.Pagination = res.Pagination
	}

	if res.API != nil {
		s.Config.API = res.API
	}

	s.Config.Detection = &DetectionMeta{
		Method:     res.Method,
		Confidence: res.Confidence,
		Fallbacks:  res.Fallbacks,
		RequiresJS: res.RequiresJS,
		ResolvedAt: at,
	}
}

// SourceConfig is the structured configuration blob stored on a source.
// Fields are pointers where absence is meaningful.
type SourceConfig struct {
	// Selectors holds the DOM selector set for list extraction.
	Selectors *SelectorConfig `json:"selectors,omitempty" mapstructure:"selectors"`
	// ContentSelector overrides body extraction on article pages.
	ContentSelector string `json:"content_selector,omitempty" mapstructure:"content_selector"`
	// ExcludeSelectors are removed before body extraction (ads, nav,
	// related-article blocks).
	ExcludeSelectors []string `json:"exclude_selectors,omitempty" mapstructure:"exclude_selectors"`
	// FeedURL is a discovered feed or sitemap URL.
	FeedURL string `json:"feed_url,omitempty" mapstructure:"feed_url"`
	// API is the auto-detected API descriptor for the api technique.
	API *APIDescriptor `json:"api,omitempty" mapstructure:"api"`
	// Pagination describes how list pages link to more items.
	Pagination *PaginationConfig `json:"pagination,omitempty" mapstructure:"pagination"`
	// Category is attached to every article from this source.
	Category string `json:"category,omitempty" mapstructure:"category"`
	// RecencyDays overrides the per-technique recency threshold.
	RecencyDays int `json:"recency_days,omitempty" mapstructure:"recency_days"`
	// Detection records how the technique was decided.
	Detection *DetectionMeta `json:"detection,omitempty" mapstructure:"detection"`
	// Options carries technique-specific settings, decoded with
	// mapstructure by the owning strategy.
	Options map[string]any `json:"options,omitempty" mapstructure:"options"`
}

// SelectorConfig is the selector set used by DOM-based techniques.
type SelectorConfig struct {
	// Container scopes the item search; empty means whole document.
	Container string `json:"container,omitempty" mapstructure:"container"`
	// Item matches one list entry.
	Item string `json:"item" mapstructure:"item"`
	// Title, Link, Date, Thumbnail, and Author locate fields inside an item.
	Title     string `json:"title,omitempty" mapstructure:"title"`
	Link      string `json:"link,omitempty" mapstructure:"link"`
	Date      string `json:"date,omitempty" mapstructure:"date"`
	Thumbnail string `json:"thumbnail,omitempty" mapstructure:"thumbnail"`
	Author    string `json:"author,omitempty" mapstructure:"author"`
	// DateAttr names an attribute to read the date from (e.g. "datetime")
	// instead of element text.
	DateAttr string `json:"date_attr,omitempty" mapstructure:"date_attr"`
}

// PaginationConfig describes how to reach further list pages.
type PaginationConfig struct {
	// Type is "query" (page number in a query parameter), "path"
	// (page number in the path), or "next" (a next-page link selector).
	Type string `json:"type" mapstructure:"type"`
	// Param is the query parameter or path template for numbered paging.
	Param string `json:"param,omitempty" mapstructure:"param"`
	// NextSelector matches the next-page link for type "next".
	NextSelector string `json:"next_selector,omitempty" mapstructure:"next_selector"`
	// MaxPages caps how many pages a single listing may walk.
	MaxPages int `json:"max_pages,omitempty" mapstructure:"max_pages"`
}

// APIDescriptor configures the JSON API technique. Produced by the API
// endpoint auto-detector or entered by an administrator.
type APIDescriptor struct {
	// URL is the endpoint serving the article list.
	URL string `json:"url" mapstructure:"url"`
	// Method is the HTTP method, default GET.
	Method string `json:"method,omitempty" mapstructure:"method"`
	// Body is the request body for POST endpoints.
	Body string `json:"body,omitempty" mapstructure:"body"`
	// ItemsPath is the dotted JSON path to the item array.
	ItemsPath string `json:"items_path" mapstructure:"items_path"`
	// Fields maps article fields to JSON paths inside one item.
	Fields APIFieldMap `json:"fields" mapstructure:"fields"`
	// LinkTemplate rebuilds absolute links from a relative field value;
	// "{value}" is replaced by the field content.
	LinkTemplate string `json:"link_template,omitempty" mapstructure:"link_template"`
}

// APIFieldMap names the JSON paths for each article field within one
// captured item object.
type APIFieldMap struct {
	Title     string `json:"title" mapstructure:"title"`
	Link      string `json:"link" mapstructure:"link"`
	Thumbnail string `json:"thumbnail,omitempty" mapstructure:"thumbnail"`
	Date      string `json:"date,omitempty" mapstructure:"date"`
	Author    string `json:"author,omitempty" mapstructure:"author"`
}

// DetectionMeta records the resolver's decision for a source.
type DetectionMeta struct {
	// Method tags the pipeline stage that produced the decision.
	Method string `json:"method" mapstructure:"method"`
	// Confidence is the resolver's confidence in [0,1].
	Confidence float64 `json:"confidence" mapstructure:"confidence"`
	// Fallbacks is the ordered fallback chain decided at resolution time.
	Fallbacks []Technique `json:"fallbacks,omitempty" mapstructure:"fallbacks"`
	// RequiresJS records that rendering signals were detected.
	RequiresJS bool `json:"requires_js,omitempty" mapstructure:"requires_js"`
	// ResolvedAt is when the resolution was produced.
	ResolvedAt time.Time `json:"resolved_at" mapstructure:"resolved_at"`
}
