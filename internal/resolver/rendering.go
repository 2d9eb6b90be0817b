package resolver

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Rendering-score weights. Additive; the sum is clamped to 1. The
// empty-body-with-mount signal alone crosses the threshold because a
// framework shell with no server-rendered text cannot be scraped
// statically.
const (
	weightEmptyBodyMount  = 0.9
	weightHeavyScripts    = 0.3
	weightFrameworkAssets = 0.2
	weightNoscriptNotice  = 0.3
	weightScriptNav       = 0.1
	weightPublicSector    = 0.2

	// emptyBodyChars is the body-text length under which a page counts
	// as an unrendered shell.
	emptyBodyChars = 200

	// heavyScriptRatio is the script-bytes to text-bytes ratio that
	// marks a script-dominated page.
	heavyScriptRatio = 5.0
)

// mountSelectors are SPA framework mount points.
var mountSelectors = []string{"#root", "#app", "#__next", "#___gatsby", "#q-app", "#nuxt"}

// frameworkAssetMarkers fingerprint bundler and framework output.
var frameworkAssetMarkers = []string{
	"/_next/", "/static/js/main.", "webpack", "__NUXT__", "data-reactroot", "ng-version", "vite",
}

// noscriptNotices are "enable JavaScript" messages in either language.
var noscriptNotices = []string{
	"enable javascript", "requires javascript",
	"자바스크립트", "스크립트를 허용",
}

// renderingScore computes a 0..1 "needs a browser" score from
// structural signals in fetched HTML.
func renderingScore(html, host string) float64 {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}

	var score float64

	bodyText := collapseSpace(doc.Find("body").Text())
	hasMount := hasMountNode(doc)

	if len(bodyText) < emptyBodyChars && hasMount {
		score += weightEmptyBodyMount
	}

	if scriptByteRatio(doc, len(bodyText)) > heavyScriptRatio {
		score += weightHeavyScripts
	}

	lowered := strings.ToLower(html)

	for _, marker := range frameworkAssetMarkers {
		if strings.Contains(lowered, strings.ToLower(marker)) {
			score += weightFrameworkAssets

			break
		}
	}

	noscript := strings.ToLower(doc.Find("noscript").Text())
	for _, notice := range noscriptNotices {
		if strings.Contains(noscript, notice) {
			score += weightNoscriptNotice

			break
		}
	}

	if strings.Contains(lowered, "location.href=") || strings.Contains(lowered, "window.location=") {
		score += weightScriptNav
	}

	// Korean public-sector portals are disproportionately script-driven
	// board systems.
	if strings.HasSuffix(host, ".go.kr") || strings.HasSuffix(host, ".or.kr") {
		score += weightPublicSector
	}

	if score > 1 {
		score = 1
	}

	return score
}

// hasMountNode reports whether any known SPA mount point exists.
func hasMountNode(doc *goquery.Document) bool {
	for _, sel := range mountSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}

	return false
}

// scriptByteRatio compares inline and referenced script volume with
// visible text volume.
func scriptByteRatio(doc *goquery.Document, textLen int) float64 {
	if textLen == 0 {
		textLen = 1
	}

	var scriptBytes int

	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		scriptBytes += len(sel.Text())

		// External bundles count a nominal weight per reference.
		if src := sel.AttrOr("src", ""); src != "" {
			scriptBytes += 1024
		}
	})

	return float64(scriptBytes) / float64(textLen)
}

// collapseSpace trims and collapses whitespace runs.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
