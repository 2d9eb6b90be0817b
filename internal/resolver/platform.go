package resolver

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// newsletterHosts are hosted newsletter-archive platforms.
var newsletterHosts = []string{
	"stibee.com",
	"maily.so",
	"substack.com",
}

// detectPlatform recognizes hosted platforms by domain and CMS
// signatures in page metadata. Platform matches carry their own
// technique and conventional feed location.
func (r *Resolver) detectPlatform(ctx context.Context, pageURL, html string) *domain.StrategyResolution {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return nil
	}

	host := strings.ToLower(parsed.Host)

	if resolution := r.detectMedium(ctx, host, parsed, html); resolution != nil {
		return resolution
	}

	if resolution := r.detectNaver(host, parsed); resolution != nil {
		return resolution
	}

	for _, nh := range newsletterHosts {
		if hostMatches(host, nh) {
			r.log.Info("newsletter platform detected", logger.String("host", host))

			return &domain.StrategyResolution{
				Technique:  domain.TechniqueNewsletter,
				Fallbacks:  domain.DefaultFallbacks(domain.TechniqueNewsletter),
				Confidence: ConfidencePlatform,
				Method:     domain.DetectionPlatform,
			}
		}
	}

	if html != "" {
		if resolution := r.detectCMS(ctx, parsed, html); resolution != nil {
			return resolution
		}
	}

	return nil
}

// detectMedium matches medium.com and custom-domain Medium publications
// by their client assets.
func (r *Resolver) detectMedium(ctx context.Context, host string, parsed *url.URL, html string) *domain.StrategyResolution {
	onMedium := hostMatches(host, "medium.com")
	customDomain := !onMedium && strings.Contains(html, "cdn-client.medium.com")

	if !onMedium && !customDomain {
		return nil
	}

	var feedURL string

	if onMedium {
		// medium.com/@user and medium.com/publication both feed from
		// medium.com/feed/<path>.
		path := strings.Trim(parsed.Path, "/")
		if path != "" {
			feedURL = "https://medium.com/feed/" + path
		}
	} else {
		feedURL = parsed.Scheme + "://" + parsed.Host + "/feed"
	}

	if feedURL != "" && !r.validateFeed(ctx, feedURL) {
		feedURL = ""
	}

	r.log.Info("medium platform detected",
		logger.String("host", host), logger.String("feed", feedURL))

	return &domain.StrategyResolution{
		Technique:  domain.TechniqueMedium,
		Fallbacks:  domain.DefaultFallbacks(domain.TechniqueMedium),
		FeedURL:    feedURL,
		Confidence: ConfidencePlatform,
		Method:     domain.DetectionPlatform,
	}
}

// detectNaver matches Naver blogs, whose feeds live on a separate RSS
// host keyed by blog ID.
func (r *Resolver) detectNaver(host string, parsed *url.URL) *domain.StrategyResolution {
	if !hostMatches(host, "blog.naver.com") {
		return nil
	}

	var feedURL string

	blogID := strings.Trim(parsed.Path, "/")
	if i := strings.IndexByte(blogID, '/'); i >= 0 {
		blogID = blogID[:i]
	}

	if blogID != "" {
		feedURL = "https://rss.blog.naver.com/" + blogID + ".xml"
	}

	r.log.Info("naver blog detected", logger.String("blog_id", blogID))

	return &domain.StrategyResolution{
		Technique:  domain.TechniqueNaver,
		Fallbacks:  domain.DefaultFallbacks(domain.TechniqueNaver),
		FeedURL:    feedURL,
		Confidence: ConfidencePlatform,
		Method:     domain.DetectionPlatform,
	}
}

// cmsFeedPaths maps recognized CMS generators to their conventional
// feed path.
var cmsFeedPaths = map[string]string{
	"wordpress": "/feed",
	"tistory":   "/rss",
	"ghost":     "/rss",
	"hugo":      "/index.xml",
	"jekyll":    "/feed.xml",
}

// detectCMS inspects generator metadata for a recognizable CMS. A
// validated conventional feed upgrades the match to the feed technique;
// otherwise the CMS implies parseable static HTML.
func (r *Resolver) detectCMS(ctx context.Context, parsed *url.URL, html string) *domain.StrategyResolution {
	generator := pageGenerator(html)
	if generator == "" {
		return nil
	}

	for cms, feedPath := range cmsFeedPaths {
		if !strings.Contains(generator, cms) {
			continue
		}

		r.log.Info("cms signature detected", logger.String("generator", generator))

		feedURL := parsed.Scheme + "://" + parsed.Host + feedPath
		if r.validateFeed(ctx, feedURL) {
			return &domain.StrategyResolution{
				Technique:  domain.TechniqueRSS,
				Fallbacks:  []domain.Technique{domain.TechniqueStatic, domain.TechniqueRendered},
				FeedURL:    feedURL,
				Confidence: ConfidencePlatform,
				Method:     domain.DetectionPlatform,
			}
		}

		return &domain.StrategyResolution{
			Technique:  domain.TechniqueStatic,
			Fallbacks:  domain.DefaultFallbacks(domain.TechniqueStatic),
			Confidence: ConfidencePlatform,
			Method:     domain.DetectionPlatform,
		}
	}

	return nil
}

// pageGenerator reads the lowercased generator meta content.
func pageGenerator(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	content := doc.Find(`meta[name="generator"]`).First().AttrOr("content", "")

	return strings.ToLower(strings.TrimSpace(content))
}

// hostMatches reports whether host is domain or a subdomain of it.
func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
