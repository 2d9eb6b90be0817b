package resolver

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// contentPaths are probed on bare domains, in preference order.
var contentPaths = []string{
	"/blog",
	"/news",
	"/insights",
	"/post",
	"/posts",
	"/articles",
	"/press",
	"/media",
}

// navKeywords match navigation link text pointing at a content listing.
var navKeywords = []string{
	"blog", "news", "insight", "article", "press",
	"블로그", "뉴스", "소식", "인사이트", "보도자료", "공지사항",
}

// optimizeURL looks for a better crawl entry point than the registered
// URL. Returns "" when the registered URL is already the best known.
func (r *Resolver) optimizeURL(ctx context.Context, parsed *url.URL) string {
	// A URL registered with a content path is trusted as-is.
	if parsed.Path != "" && parsed.Path != "/" {
		return ""
	}

	base := parsed.Scheme + "://" + parsed.Host

	if found := r.probeContentPaths(ctx, base); found != "" {
		return found
	}

	return r.discoverNavLink(ctx, base)
}

// probeContentPaths checks conventional content paths in parallel.
// Results are picked in list order, not completion order.
func (r *Resolver) probeContentPaths(ctx context.Context, base string) string {
	exists := make([]bool, len(contentPaths))

	g, probeCtx := errgroup.WithContext(ctx)

	for i, path := range contentPaths {
		g.Go(func() error {
			probeURL := base + path

			boxCtx, cancel := fetch.WithTimeout(probeCtx, r.cfg.ProbeTimeout)
			defer cancel()

			exists[i] = r.fetcher.Exists(boxCtx, probeURL)

			return nil
		})
	}

	_ = g.Wait()

	for i, ok := range exists {
		if ok {
			found := base + contentPaths[i]
			r.log.Debug("content path found", logger.String("url", found))

			return found
		}
	}

	return ""
}

// discoverNavLink fetches the homepage and follows the first navigation
// link whose text suggests a content listing.
func (r *Resolver) discoverNavLink(ctx context.Context, base string) string {
	fetchCtx, cancel := fetch.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	resp, err := r.fetcher.Get(fetchCtx, base)
	if err != nil || !resp.OK() {
		return ""
	}

	candidate := findNavCandidate(resp.Body, base)
	if candidate == "" {
		return ""
	}

	boxCtx, boxCancel := fetch.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer boxCancel()

	if !r.fetcher.Exists(boxCtx, candidate) {
		return ""
	}

	r.log.Debug("nav link found", logger.String("url", candidate))

	return candidate
}

// findNavCandidate scans anchors for content-listing keywords and
// returns the first same-host absolute candidate.
func findNavCandidate(html, base string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var candidate string

	doc.Find("nav a, header a, a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		if text == "" || len(text) > 40 {
			return true
		}

		if !matchesNavKeyword(text) {
			return true
		}

		href, ok := sel.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return true
		}

		resolved := resolveRef(baseURL, href)
		if resolved == "" {
			return true
		}

		resolvedURL, parseErr := url.Parse(resolved)
		if parseErr != nil || resolvedURL.Host != baseURL.Host {
			return true
		}

		// The homepage itself is not an optimization.
		if resolvedURL.Path == "" || resolvedURL.Path == "/" {
			return true
		}

		candidate = resolved

		return false
	})

	return candidate
}

// matchesNavKeyword reports whether link text names a content listing.
func matchesNavKeyword(text string) bool {
	for _, kw := range navKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}

	return false
}

// resolveRef resolves href against base, dropping fragments.
func resolveRef(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	return resolved.String()
}
