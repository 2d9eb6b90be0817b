package resolver

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// feedPaths are conventional feed locations probed when no feed link
// tag is declared, in preference order.
var feedPaths = []string{
	"/feed",
	"/rss",
	"/rss.xml",
	"/atom.xml",
	"/feed.xml",
	"/index.xml",
	"/feed/rss",
}

// feedContentTypes validate a candidate by Content-Type alone.
var feedContentTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"application/xml":      true,
	"text/xml":             true,
}

// feedRootTags validate a candidate by a shallow body sniff.
var feedRootTags = []string{"<rss", "<feed", "<rdf:RDF", "<rdf:rdf"}

// discoverFeed looks for a declared feed link tag, then probes
// conventional paths in parallel. A validated feed wins with high
// confidence and fallback chain [static, rendered].
func (r *Resolver) discoverFeed(ctx context.Context, pageURL, html string) *domain.StrategyResolution {
	if html != "" {
		if feedURL := declaredFeedLink(html, pageURL); feedURL != "" {
			if r.validateFeed(ctx, feedURL) {
				r.log.Info("feed link validated", logger.String("feed", feedURL))

				return feedResolution(feedURL, domain.DetectionFeedLink)
			}
		}
	}

	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return nil
	}

	root := base.Scheme + "://" + base.Host

	if feedURL := r.probeFeedPaths(ctx, root); feedURL != "" {
		r.log.Info("feed path validated", logger.String("feed", feedURL))

		return feedResolution(feedURL, domain.DetectionFeedProbe)
	}

	return nil
}

// feedResolution builds the winning feed resolution.
func feedResolution(feedURL, method string) *domain.StrategyResolution {
	return &domain.StrategyResolution{
		Technique:  domain.TechniqueRSS,
		Fallbacks:  []domain.Technique{domain.TechniqueStatic, domain.TechniqueRendered},
		FeedURL:    feedURL,
		Confidence: ConfidenceFeed,
		Method:     method,
	}
}

// declaredFeedLink extracts the first feed alternate link from a page
// head, resolved to an absolute URL.
func declaredFeedLink(html, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	var found string

	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		linkType := strings.ToLower(sel.AttrOr("type", ""))
		if !strings.Contains(linkType, "rss") && !strings.Contains(linkType, "atom") {
			return true
		}

		href := sel.AttrOr("href", "")
		if href == "" {
			return true
		}

		found = resolveRef(base, href)

		return found == ""
	})

	return found
}

// probeFeedPaths checks conventional feed paths in parallel, validating
// each candidate. The winner is picked in list order.
func (r *Resolver) probeFeedPaths(ctx context.Context, root string) string {
	valid := make([]bool, len(feedPaths))

	g, probeCtx := errgroup.WithContext(ctx)

	for i, path := range feedPaths {
		g.Go(func() error {
			valid[i] = r.validateFeed(probeCtx, root+path)

			return nil
		})
	}

	_ = g.Wait()

	for i, ok := range valid {
		if ok {
			return root + feedPaths[i]
		}
	}

	return ""
}

// validateFeed confirms a candidate URL serves a feed, by content type
// and a shallow read for feed root tags, within the probe timeout.
func (r *Resolver) validateFeed(ctx context.Context, feedURL string) bool {
	boxCtx, cancel := fetch.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	resp, err := r.fetcher.Get(boxCtx, feedURL)
	if err != nil || !resp.OK() {
		return false
	}

	if feedContentTypes[resp.ContentType()] {
		return sniffFeedBody(resp.Body)
	}

	// Some servers mislabel feeds as text/html; trust the body.
	return sniffFeedBody(resp.Body)
}

// sniffFeedBody looks for a feed root tag in the first kilobyte.
func sniffFeedBody(body string) bool {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}

	for _, tag := range feedRootTags {
		if strings.Contains(head, tag) {
			return true
		}
	}

	return false
}
