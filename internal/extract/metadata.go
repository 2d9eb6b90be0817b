package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Metadata is the page-level metadata extracted independently of body
// extraction. Used when no selector set is available.
type Metadata struct {
	// Title prefers og:title over the title tag.
	Title string
	// Description prefers og:description over the meta description.
	Description string
	// Image is the social preview image, when declared.
	Image string
	// Author comes from meta author or article:author.
	Author string
	// PublishedTime is the raw article:published_time value.
	PublishedTime string
}

// PageMetadata extracts title, description, social preview image,
// author, and published time from a page's head.
func PageMetadata(html string) Metadata {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Metadata{}
	}

	meta := Metadata{
		Title:       metaProperty(doc, "og:title"),
		Description: metaProperty(doc, "og:description"),
		Image:       metaProperty(doc, "og:image"),
		Author:      metaName(doc, "author"),
		PublishedTime: firstNonEmpty(
			metaProperty(doc, "article:published_time"),
			metaName(doc, "date"),
			doc.Find("time[datetime]").First().AttrOr("datetime", ""),
		),
	}

	if meta.Title == "" {
		meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	if meta.Description == "" {
		meta.Description = metaName(doc, "description")
	}

	if meta.Image == "" {
		meta.Image = metaName(doc, "twitter:image")
	}

	if meta.Author == "" {
		meta.Author = metaProperty(doc, "article:author")
	}

	return meta
}

// metaProperty reads a meta tag by its property attribute.
func metaProperty(doc *goquery.Document, property string) string {
	content := doc.Find(`meta[property="` + property + `"]`).First().AttrOr("content", "")

	return strings.TrimSpace(content)
}

// metaName reads a meta tag by its name attribute.
func metaName(doc *goquery.Document, name string) string {
	content := doc.Find(`meta[name="` + name + `"]`).First().AttrOr("content", "")

	return strings.TrimSpace(content)
}

// firstNonEmpty returns the first non-empty string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
