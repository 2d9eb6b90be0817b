package domain

// Detection method tags identify which resolver stage produced a
// resolution.
const (
	DetectionFeedLink   = "feed_link"
	DetectionFeedProbe  = "feed_probe"
	DetectionSitemap    = "sitemap_probe"
	DetectionPlatform   = "platform_signature"
	DetectionURLPattern = "url_pattern"
	DetectionRendering  = "rendering_score"
	DetectionHiddenAPI  = "hidden_api"
	DetectionSelectors  = "selector_match"
	DetectionClassifier = "classifier"
	DetectionFallback   = "fallback_guess"
)

// StrategyResolution is the resolver's answer for one URL: which
// technique to use, in what order to fall back, and with what
// configuration.
type StrategyResolution struct {
	// Technique is the primary technique.
	Technique Technique `json:"technique"`
	// Fallbacks is the ordered fallback chain. Never repeats the
	// primary technique or itself.
	Fallbacks []Technique `json:"fallbacks,omitempty"`
	// FeedURL is a discovered feed or sitemap URL, when relevant.
	FeedURL string `json:"feed_url,omitempty"`
	// Selectors is the discovered selector set, when any.
	Selectors *SelectorConfig `json:"selectors,omitempty"`
	// ExcludeSelectors are removal selectors for content extraction.
	ExcludeSelectors []string `json:"exclude_selectors,omitempty"`
	// Pagination describes discovered paging, when any.
	Pagination *PaginationConfig `json:"pagination,omitempty"`
	// API is the auto-detected API descriptor, when any.
	API *APIDescriptor `json:"api,omitempty"`
	// Confidence is the deciding stage's confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Method tags the pipeline stage that produced the answer.
	Method string `json:"method"`
	// RequiresJS records that JS rendering was detected.
	RequiresJS bool `json:"requires_js,omitempty"`
	// CrawlURL is a rewritten crawl URL, when URL optimization found a
	// better entry point.
	CrawlURL string `json:"crawl_url,omitempty"`
}

// Normalize enforces the resolution invariants in place: the fallback
// chain never repeats the primary technique or itself, and confidence
// stays within [0,1].
func (r *StrategyResolution) Normalize() {
	r.Fallbacks = DedupeChain(r.Technique, r.Fallbacks)

	if r.Confidence < 0 {
		r.Confidence = 0
	}

	if r.Confidence > 1 {
		r.Confidence = 1
	}
}
