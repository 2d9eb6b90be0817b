package resolver

import (
	"net/url"
	"strings"

	"github.com/jonesrussell/insight-crawler/internal/domain"
)

// patternGuess is URL-pattern inference's answer: a technique and how
// strongly the URL shape implies it.
type patternGuess struct {
	technique  domain.Technique
	confidence float64
	feedURL    string
}

// feedLikeSuffixes mark a URL as pointing directly at a feed.
var feedLikeSuffixes = []string{
	"/feed", "/rss", ".rss", "/atom.xml", "/rss.xml", "/feed.xml", "/index.xml",
}

// apiLikeMarkers mark a URL as pointing at a JSON endpoint.
var apiLikeMarkers = []string{"/api/", "/wp-json/", "format=json", ".json"}

// inferFromURL classifies a URL by shape alone. Runs without any
// network access; it is the stage of last resort and the provisional
// guess carried through selector discovery.
func inferFromURL(rawURL string) patternGuess {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return patternGuess{technique: domain.TechniqueStatic, confidence: ConfidenceFloor}
	}

	host := strings.ToLower(parsed.Host)
	path := strings.ToLower(parsed.Path)

	for _, suffix := range feedLikeSuffixes {
		if strings.HasSuffix(path, suffix) {
			return patternGuess{
				technique:  domain.TechniqueRSS,
				confidence: ConfidencePatternAccept,
				feedURL:    rawURL,
			}
		}
	}

	if strings.HasSuffix(path, "sitemap.xml") || strings.Contains(path, "sitemap") && strings.HasSuffix(path, ".xml") {
		return patternGuess{
			technique:  domain.TechniqueSitemap,
			confidence: ConfidencePatternAccept,
			feedURL:    rawURL,
		}
	}

	if hostMatches(host, "medium.com") {
		return patternGuess{technique: domain.TechniqueMedium, confidence: ConfidencePatternAccept}
	}

	if hostMatches(host, "blog.naver.com") || hostMatches(host, "post.naver.com") {
		return patternGuess{technique: domain.TechniqueNaver, confidence: ConfidencePatternAccept}
	}

	for _, nh := range newsletterHosts {
		if hostMatches(host, nh) {
			return patternGuess{technique: domain.TechniqueNewsletter, confidence: ConfidencePatternAccept}
		}
	}

	lowered := strings.ToLower(rawURL)
	for _, marker := range apiLikeMarkers {
		if strings.Contains(lowered, marker) {
			return patternGuess{technique: domain.TechniqueAPI, confidence: 0.7}
		}
	}

	// Blog-ish paths lean static with moderate confidence.
	for _, p := range contentPaths {
		if strings.HasPrefix(path, p) {
			return patternGuess{technique: domain.TechniqueStatic, confidence: 0.5}
		}
	}

	return patternGuess{technique: domain.TechniqueStatic, confidence: ConfidenceFloor}
}
