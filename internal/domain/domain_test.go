package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/insight-crawler/internal/domain"
)

func TestArticleIDDeterministic(t *testing.T) {
	link := "https://example.com/posts/42"

	assert.Equal(t, domain.ArticleID(link), domain.ArticleID(link))
	assert.NotEqual(t, domain.ArticleID(link), domain.ArticleID("https://example.com/posts/43"))
}

func TestArticleIDCollapsesTrackingVariants(t *testing.T) {
	base := domain.ArticleID("https://example.com/posts/42")

	variants := []string{
		"https://example.com/posts/42?utm_source=newsletter&utm_medium=email",
		"https://example.com/posts/42#comments",
		"https://EXAMPLE.com/posts/42/",
		"https://example.com/posts/42?fbclid=abc123",
	}

	for _, v := range variants {
		assert.Equal(t, base, domain.ArticleID(v), "variant %s", v)
	}
}

func TestNormalizeLinkSortsQuery(t *testing.T) {
	a := domain.NormalizeLink("https://example.com/p?b=2&a=1")
	b := domain.NormalizeLink("https://example.com/p?a=1&b=2")

	assert.Equal(t, a, b)
}

func TestDedupeChain(t *testing.T) {
	chain := domain.DedupeChain(domain.TechniqueRSS, []domain.Technique{
		domain.TechniqueStatic,
		domain.TechniqueRSS,
		domain.TechniqueRendered,
		domain.TechniqueStatic,
	})

	assert.Equal(t, []domain.Technique{domain.TechniqueStatic, domain.TechniqueRendered}, chain)
}

func TestDefaultFallbacksNeverContainPrimary(t *testing.T) {
	for _, primary := range []domain.Technique{
		domain.TechniqueStatic, domain.TechniqueRendered, domain.TechniqueRSS,
		domain.TechniqueSitemap, domain.TechniqueAPI, domain.TechniqueMedium,
		domain.TechniqueNaver, domain.TechniqueNewsletter,
	} {
		for _, fb := range domain.DefaultFallbacks(primary) {
			assert.NotEqual(t, primary, fb)
		}
	}
}

func TestParseTechnique(t *testing.T) {
	got, err := domain.ParseTechnique(" RSS ")
	require.NoError(t, err)
	assert.Equal(t, domain.TechniqueRSS, got)

	_, err = domain.ParseTechnique("carrier-pigeon")
	assert.ErrorIs(t, err, domain.ErrUnknownTechnique)
}

func TestResolutionNormalize(t *testing.T) {
	res := &domain.StrategyResolution{
		Technique:  domain.TechniqueRSS,
		Fallbacks:  []domain.Technique{domain.TechniqueRSS, domain.TechniqueStatic},
		Confidence: 1.3,
	}

	res.Normalize()

	assert.Equal(t, []domain.Technique{domain.TechniqueStatic}, res.Fallbacks)
	assert.InDelta(t, 1.0, res.Confidence, 0.0001)
}
