// Package quality implements the statistical acceptance test applied to
// a harvested batch before it is treated as a successful crawl. Without
// this gate a technique that "runs" but returns forty copies of a cookie
// banner would be indistinguishable from success.
package quality

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/jonesrussell/insight-crawler/internal/domain"
)

// Acceptance thresholds. A batch passes only when the garbage ratio is
// below garbageLimit and both diversity ratios are at least
// diversityFloor.
const (
	garbageLimit   = 0.5
	diversityFloor = 0.5
	minUsableItems = 2
)

// garbageTitles are UI labels that list-extraction mistakes harvest as
// items.
var garbageTitles = map[string]bool{
	"login":      true,
	"log in":     true,
	"sign in":    true,
	"sign up":    true,
	"register":   true,
	"subscribe":  true,
	"menu":       true,
	"search":     true,
	"share":      true,
	"home":       true,
	"about":      true,
	"contact":    true,
	"more":       true,
	"read more":  true,
	"next":       true,
	"prev":       true,
	"previous":   true,
	"first":      true,
	"last":       true,
	"로그인":        true,
	"회원가입":       true,
	"구독":         true,
	"구독하기":       true,
	"메뉴":         true,
	"검색":         true,
	"공유":         true,
	"공유하기":       true,
	"더보기":        true,
	"이전":         true,
	"다음":         true,
	"처음":         true,
	"마지막":        true,
	"홈":          true,
}

// bareDigitsPattern matches pagination numbers harvested as titles.
var bareDigitsPattern = regexp.MustCompile(`^\d+$`)

// disallowedURLSegments mark links that never point at articles.
var disallowedURLSegments = []string{
	"/login", "/signin", "/signup", "/register", "/search",
	"/tag/", "/tags/", "/category/", "/categories/", "/author/",
	"/page/", "/privacy", "/terms", "/cart", "/account",
	"javascript:", "mailto:",
}

// Diagnostics reports the counts behind a gate decision.
type Diagnostics struct {
	// Total is the batch size.
	Total int `json:"total"`
	// Garbage is the count of items matching non-content patterns.
	Garbage int `json:"garbage"`
	// GarbageRatio is Garbage / Total.
	GarbageRatio float64 `json:"garbage_ratio"`
	// UniqueTitleRatio is distinct titles / non-garbage items.
	UniqueTitleRatio float64 `json:"unique_title_ratio"`
	// UniqueURLRatio is distinct links / non-garbage items.
	UniqueURLRatio float64 `json:"unique_url_ratio"`
	// Reason explains a rejection; empty on acceptance.
	Reason string `json:"reason,omitempty"`
}

// Evaluate is a pure function over a harvested batch. It rejects the
// batch, triggering fallback, when any single acceptance rule fails.
func Evaluate(items []domain.RawContentItem) (bool, Diagnostics) {
	diag := Diagnostics{Total: len(items)}

	if len(items) == 0 {
		diag.Reason = "no items found"
		return false, diag
	}

	clean := make([]domain.RawContentItem, 0, len(items))
	for i := range items {
		if IsGarbage(&items[i]) {
			diag.Garbage++
			continue
		}

		clean = append(clean, items[i])
	}

	diag.GarbageRatio = float64(diag.Garbage) / float64(diag.Total)

	if diag.GarbageRatio >= garbageLimit {
		diag.Reason = fmt.Sprintf("garbage ratio %.2f", diag.GarbageRatio)
		return false, diag
	}

	if len(clean) < minUsableItems {
		diag.Reason = fmt.Sprintf("only %d non-garbage items", len(clean))
		return false, diag
	}

	diag.UniqueTitleRatio = uniqueRatio(clean, func(it *domain.RawContentItem) string {
		return strings.ToLower(strings.TrimSpace(it.Title))
	})
	diag.UniqueURLRatio = uniqueRatio(clean, func(it *domain.RawContentItem) string {
		return domain.NormalizeLink(it.Link)
	})

	if diag.UniqueTitleRatio < diversityFloor {
		diag.Reason = fmt.Sprintf("unique title ratio %.2f", diag.UniqueTitleRatio)
		return false, diag
	}

	if diag.UniqueURLRatio < diversityFloor {
		diag.Reason = fmt.Sprintf("unique url ratio %.2f", diag.UniqueURLRatio)
		return false, diag
	}

	return true, diag
}

// Filter returns the batch with garbage items removed. Applied after a
// batch passes the gate, before conversion to articles.
func Filter(items []domain.RawContentItem) []domain.RawContentItem {
	clean := make([]domain.RawContentItem, 0, len(items))

	for i := range items {
		if !IsGarbage(&items[i]) {
			clean = append(clean, items[i])
		}
	}

	return clean
}

// IsGarbage reports whether a single item matches a known non-content
// pattern: a boilerplate or bare-digit title, an unusable record, or a
// link into a disallowed URL segment.
func IsGarbage(item *domain.RawContentItem) bool {
	if !item.Usable() {
		return true
	}

	title := strings.ToLower(strings.TrimSpace(item.Title))
	if garbageTitles[title] || bareDigitsPattern.MatchString(title) {
		return true
	}

	return hasDisallowedSegment(item.Link)
}

// hasDisallowedSegment checks the link path against the disallowed
// segment list.
func hasDisallowedSegment(link string) bool {
	lower := strings.ToLower(link)

	for _, seg := range disallowedURLSegments {
		if strings.Contains(lower, seg) {
			return true
		}
	}

	// A link that is only a fragment or query never leaves the page.
	if u, err := url.Parse(link); err == nil && u.Path == "" && u.Host == "" {
		return true
	}

	return false
}

// uniqueRatio computes distinct keys over batch size for the given key
// function.
func uniqueRatio(items []domain.RawContentItem, key func(*domain.RawContentItem) string) float64 {
	seen := make(map[string]bool, len(items))

	for i := range items {
		seen[key(&items[i])] = true
	}

	return float64(len(seen)) / float64(len(items))
}
