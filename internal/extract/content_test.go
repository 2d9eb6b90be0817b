package extract_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/insight-crawler/internal/extract"
)

const longParagraph = "Observability is the discipline of understanding what a " +
	"system is doing from the outside. Good telemetry answers questions you did " +
	"not know you would need to ask. This article walks through the tradeoffs."

func pageWith(body string) string {
	return `<!DOCTYPE html><html><head><title>T</title></head><body>` + body + `</body></html>`
}

func TestBodyPreviewUsesCallerSelector(t *testing.T) {
	html := pageWith(`
		<div class="ads">BUY NOW BUY NOW</div>
		<div class="story"><p>` + longParagraph + `</p><div class="related">Related posts</div></div>`)

	preview := extract.BodyPreview(html, "https://example.com/a", extract.Hints{
		Selector: ".story",
		Exclude:  []string{".related"},
	})

	assert.Contains(t, preview, "Observability is the discipline")
	assert.NotContains(t, preview, "Related posts")
	assert.NotContains(t, preview, "BUY NOW")
}

func TestBodyPreviewFallsBackToConventionalContainer(t *testing.T) {
	html := pageWith(`<article><p>` + longParagraph + `</p></article>`)

	preview := extract.BodyPreview(html, "https://example.com/a", extract.Hints{
		Selector: ".does-not-exist",
	})

	assert.Contains(t, preview, "Observability is the discipline")
}

func TestBodyPreviewStripsNoiseElements(t *testing.T) {
	html := pageWith(`<article><script>var x=1;</script><nav>Home | About</nav><p>` +
		longParagraph + `</p></article>`)

	preview := extract.BodyPreview(html, "https://example.com/a", extract.Hints{})

	assert.NotContains(t, preview, "var x=1")
	assert.NotContains(t, preview, "Home | About")
}

func TestPreviewCutsAtSentenceBoundary(t *testing.T) {
	text := strings.Repeat("A short sentence ends here. ", 40)

	preview := extract.Preview(text, 200)

	require.LessOrEqual(t, len([]rune(preview)), 200)
	assert.True(t, strings.HasSuffix(preview, "here."),
		"expected sentence-boundary cut, got %q", preview)
}

func TestPreviewCutsAtWordBoundary(t *testing.T) {
	text := strings.Repeat("unbroken words without sentence enders ", 30)

	preview := extract.Preview(text, 150)

	require.LessOrEqual(t, len([]rune(preview)), 151)
	assert.True(t, strings.HasSuffix(preview, "…"))
	assert.NotContains(t, strings.TrimSuffix(preview, "…"), "  ")
}

func TestPreviewShortTextUnchanged(t *testing.T) {
	assert.Equal(t, "short", extract.Preview("short", 100))
}

func TestPageMetadata(t *testing.T) {
	html := `<!DOCTYPE html><html><head>
		<title>Fallback title</title>
		<meta property="og:title" content="Social title">
		<meta property="og:description" content="A description">
		<meta property="og:image" content="https://cdn.example.com/hero.jpg">
		<meta name="author" content="Jo Writer">
		<meta property="article:published_time" content="2026-03-01T08:00:00Z">
	</head><body></body></html>`

	meta := extract.PageMetadata(html)

	assert.Equal(t, "Social title", meta.Title)
	assert.Equal(t, "A description", meta.Description)
	assert.Equal(t, "https://cdn.example.com/hero.jpg", meta.Image)
	assert.Equal(t, "Jo Writer", meta.Author)
	assert.Equal(t, "2026-03-01T08:00:00Z", meta.PublishedTime)
}

func TestPageMetadataFallbacks(t *testing.T) {
	html := `<!DOCTYPE html><html><head>
		<title>Only a title tag</title>
		<meta name="description" content="Plain description">
	</head><body></body></html>`

	meta := extract.PageMetadata(html)

	assert.Equal(t, "Only a title tag", meta.Title)
	assert.Equal(t, "Plain description", meta.Description)
	assert.Empty(t, meta.Image)
}
