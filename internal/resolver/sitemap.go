package resolver

import (
	"bufio"
	"context"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// sitemapPaths are conventional sitemap locations, in preference order.
var sitemapPaths = []string{
	"/sitemap.xml",
	"/sitemap_index.xml",
	"/sitemap-index.xml",
	"/wp-sitemap.xml",
	"/sitemap/sitemap.xml",
}

// sitemapRootTags validate a candidate by a shallow body sniff.
var sitemapRootTags = []string{"<urlset", "<sitemapindex"}

// discoverSitemap checks robots.txt declarations, then probes
// conventional sitemap paths in parallel. A hit wins with confidence
// 0.9 and fallback [static].
func (r *Resolver) discoverSitemap(ctx context.Context, pageURL string) *domain.StrategyResolution {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return nil
	}

	root := base.Scheme + "://" + base.Host

	if sitemapURL := r.robotsSitemap(ctx, root); sitemapURL != "" {
		r.log.Info("sitemap from robots.txt", logger.String("sitemap", sitemapURL))

		return sitemapResolution(sitemapURL)
	}

	valid := make([]bool, len(sitemapPaths))

	g, probeCtx := errgroup.WithContext(ctx)

	for i, path := range sitemapPaths {
		g.Go(func() error {
			valid[i] = r.validateSitemap(probeCtx, root+path)

			return nil
		})
	}

	_ = g.Wait()

	for i, ok := range valid {
		if ok {
			sitemapURL := root + sitemapPaths[i]
			r.log.Info("sitemap path validated", logger.String("sitemap", sitemapURL))

			return sitemapResolution(sitemapURL)
		}
	}

	return nil
}

// sitemapResolution builds the winning sitemap resolution.
func sitemapResolution(sitemapURL string) *domain.StrategyResolution {
	return &domain.StrategyResolution{
		Technique:  domain.TechniqueSitemap,
		Fallbacks:  []domain.Technique{domain.TechniqueStatic},
		FeedURL:    sitemapURL,
		Confidence: ConfidenceSitemap,
		Method:     domain.DetectionSitemap,
	}
}

// robotsSitemap reads Sitemap: lines from robots.txt and validates the
// first declared sitemap.
func (r *Resolver) robotsSitemap(ctx context.Context, root string) string {
	boxCtx, cancel := fetch.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()

	resp, err := r.fetcher.Get(boxCtx, root+"/robots.txt")
	if err != nil || !resp.OK() {
		return ""
	}

	scanner := bufio.NewScanner(strings.NewReader(resp.Body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToLower(line), "sitemap:") {
			continue
		}

		sitemapURL := strings.TrimSpace(line[len("sitemap:"):])
		if sitemapURL == "" {
			continue
		}

		if r.validateSitemap(ctx, sitemapURL) {
			return sitemapURL
		}
	}

	return ""
}

// validateSitemap confirms a candidate serves sitemap XML by root-tag
// sniff within the sitemap timeout.
func (r *Resolver) validateSitemap(ctx context.Context, sitemapURL string) bool {
	boxCtx, cancel := fetch.WithTimeout(ctx, r.cfg.SitemapTimeout)
	defer cancel()

	resp, err := r.fetcher.Get(boxCtx, sitemapURL)
	if err != nil || !resp.OK() {
		return false
	}

	head := resp.Body
	if len(head) > 2048 {
		head = head[:2048]
	}

	lower := strings.ToLower(head)
	for _, tag := range sitemapRootTags {
		if strings.Contains(lower, tag) {
			return true
		}
	}

	return false
}
