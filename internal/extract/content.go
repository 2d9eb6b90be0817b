// Package extract produces cleaned body-text previews and page metadata
// from raw HTML. Extraction is layered: a caller-supplied selector, a
// readability pass, conventional content containers, and finally the
// whole document.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// minContentChars is the text length below which a layer's result is
// considered negligible and the next layer is tried.
const minContentChars = 100

// PreviewMaxChars bounds the body preview carried on an article.
const PreviewMaxChars = 500

// conventionalContainers are content selectors that cover most blog and
// CMS themes, in rank order.
var conventionalContainers = []string{
	"article",
	"main",
	".post-content",
	".entry-content",
	".article-content",
	".article-body",
	".post-body",
	".content-body",
	"#article-body",
	"#content",
	".content",
	".view_con",
	".board_view",
}

// defaultExcludes are stripped from any container before text
// extraction.
var defaultExcludes = []string{
	"script", "style", "noscript", "iframe",
	"nav", "header", "footer", "aside", "form",
}

// Hints carries caller-supplied extraction overrides.
type Hints struct {
	// Selector scopes body extraction; tried before any fallback.
	Selector string
	// Exclude lists selectors removed before extraction (ads,
	// navigation, related-content blocks).
	Exclude []string
}

// BodyPreview extracts a cleaned, bounded body-text preview from a
// page. Layers are tried in priority order and the first one yielding
// substantial text wins.
func BodyPreview(html, pageURL string, hints Hints) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	if hints.Selector != "" {
		if text := selectText(doc, hints.Selector, hints.Exclude); len(text) >= minContentChars {
			return Preview(text, PreviewMaxChars)
		}
	}

	if text := readabilityText(html, pageURL); len(text) >= minContentChars {
		return Preview(text, PreviewMaxChars)
	}

	for _, sel := range conventionalContainers {
		if text := selectText(doc, sel, hints.Exclude); len(text) >= minContentChars {
			return Preview(text, PreviewMaxChars)
		}
	}

	return Preview(documentText(doc), PreviewMaxChars)
}

// selectText extracts collapsed text from the first match of a
// selector, removing excluded and default noise elements first.
func selectText(doc *goquery.Document, selector string, exclude []string) string {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return ""
	}

	// Clone so removals do not affect later layers.
	clone := sel.Clone()

	for _, ex := range defaultExcludes {
		clone.Find(ex).Remove()
	}

	for _, ex := range exclude {
		if ex != "" {
			clone.Find(ex).Remove()
		}
	}

	return collapse(clone.Text())
}

// readabilityText runs a readability-style extraction over the full
// document. Returns "" when readability fails or yields nothing.
func readabilityText(html, pageURL string) string {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}

	article, err := readability.FromReader(strings.NewReader(html), parsedURL)
	if err != nil {
		return ""
	}

	return collapse(article.TextContent)
}

// documentText is the last-resort layer: body text with noise removed.
func documentText(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return collapse(doc.Text())
	}

	clone := body.Clone()
	for _, ex := range defaultExcludes {
		clone.Find(ex).Remove()
	}

	return collapse(clone.Text())
}

// collapse trims and collapses all whitespace runs to single spaces.
func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Preview bounds text to max characters, preferring to cut at a
// sentence boundary, then a word boundary, before a hard truncation.
func Preview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	window := string(runes[:max])

	if cut := lastSentenceEnd(window); cut >= max/2 {
		return strings.TrimSpace(window[:cut])
	}

	if cut := strings.LastIndexByte(window, ' '); cut >= max/2 {
		return strings.TrimSpace(window[:cut]) + "…"
	}

	return strings.TrimSpace(window) + "…"
}

// sentenceEnders are the byte offsets of sentence-final punctuation,
// including the Korean-style full stop.
var sentenceEnders = []string{". ", "! ", "? ", "다. ", "요. ", "。"}

// lastSentenceEnd returns the byte offset just past the last sentence
// terminator in s, or -1.
func lastSentenceEnd(s string) int {
	best := -1

	for _, ender := range sentenceEnders {
		if i := strings.LastIndex(s, ender); i >= 0 {
			end := i + len(ender)
			if end > best {
				best = end
			}
		}
	}

	return best
}
