package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// RawContentItem is one harvested list entry before normalization.
type RawContentItem struct {
	// Title is the extracted item title.
	Title string `json:"title"`
	// Link is the absolute article URL.
	Link string `json:"link"`
	// Thumbnail is an optional image URL.
	Thumbnail string `json:"thumbnail,omitempty"`
	// Author is an optional byline.
	Author string `json:"author,omitempty"`
	// RawDate is the unparsed date string as found on the page.
	RawDate string `json:"raw_date,omitempty"`
	// Content is an optional body text carried from the listing
	// (feeds and APIs often include it).
	Content string `json:"content,omitempty"`
}

// Usable reports whether the item carries the minimum fields needed to
// become an article.
func (i *RawContentItem) Usable() bool {
	return i.Title != "" && i.Link != ""
}

// CrawledArticle is a RawContentItem resolved into persistence-ready form.
type CrawledArticle struct {
	// ID is derived deterministically from the normalized link.
	ID string `json:"id" db:"id"`
	// SourceID identifies the source the article came from.
	SourceID string `json:"source_id" db:"source_id"`
	// Title is the normalized title.
	Title string `json:"title" db:"title"`
	// URL is the article link.
	URL string `json:"url" db:"url"`
	// Thumbnail is an optional image URL.
	Thumbnail string `json:"thumbnail,omitempty" db:"thumbnail"`
	// Author is an optional byline.
	Author string `json:"author,omitempty" db:"author"`
	// Category is inherited from the source configuration.
	Category string `json:"category,omitempty" db:"category"`
	// PublishedAt is the ISO-normalized publish time, empty when unknown.
	PublishedAt string `json:"published_at,omitempty" db:"published_at"`
	// Preview is the bounded body-text preview.
	Preview string `json:"preview,omitempty" db:"preview"`
}

// trackingParams are query parameters stripped before deriving an
// article identifier, so share links and campaign links collapse to the
// same article.
var trackingParams = map[string]bool{
	"fbclid":       true,
	"gclid":        true,
	"igshid":       true,
	"ref":          true,
	"utm_campaign": true,
	"utm_content":  true,
	"utm_medium":   true,
	"utm_source":   true,
	"utm_term":     true,
}

// ArticleID derives a stable identifier from a link. Identical links
// always yield the same identifier; tracking parameters and fragments
// are ignored so near-duplicate links collapse.
func ArticleID(link string) string {
	normalized := NormalizeLink(link)
	sum := sha256.Sum256([]byte(normalized))

	return hex.EncodeToString(sum[:])
}

// NormalizeLink canonicalizes a link for identity purposes: lowercases
// scheme and host, drops fragments and tracking parameters, sorts the
// remaining query, and trims a trailing slash from the path.
func NormalizeLink(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(link)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
	}

	u.RawQuery = normalizeQuery(u.Query())

	return u.String()
}

// normalizeQuery drops tracking parameters and re-encodes the remaining
// query in sorted key order.
func normalizeQuery(q url.Values) string {
	keys := make([]string, 0, len(q))
	for k := range q {
		if trackingParams[strings.ToLower(k)] {
			continue
		}

		keys = append(keys, k)
	}

	if len(keys) == 0 {
		return ""
	}

	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}

			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}

	return b.String()
}
