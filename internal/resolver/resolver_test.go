package resolver_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
	"github.com/jonesrussell/insight-crawler/internal/resolver"
)

// mockFetcher serves canned responses by exact URL.
type mockFetcher struct {
	pages map[string]string
	types map[string]string
}

func (m *mockFetcher) Get(_ context.Context, url string) (*fetch.Response, error) {
	body, ok := m.pages[url]
	if !ok {
		return nil, errors.New("connection refused")
	}

	header := http.Header{}
	if ct, typed := m.types[url]; typed {
		header.Set("Content-Type", ct)
	} else {
		header.Set("Content-Type", "text/html")
	}

	return &fetch.Response{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       body,
		FinalURL:   url,
	}, nil
}

func (m *mockFetcher) Exists(_ context.Context, url string) bool {
	_, ok := m.pages[url]

	return ok
}

func newResolver(fetcher fetch.Fetcher, opts ...resolver.Option) *resolver.Resolver {
	return resolver.New(fetcher, config.CrawlerConfig{}, logger.NewNop(), opts...)
}

const rssBody = `<?xml version="1.0"?><rss version="2.0"><channel><title>Blog</title></channel></rss>`

func TestResolveDeclaredFeedLink(t *testing.T) {
	fetcher := &mockFetcher{
		pages: map[string]string{
			"https://example.com/blog": `<html><head>
				<link rel="alternate" type="application/rss+xml" href="/feed">
			</head><body><p>posts</p></body></html>`,
			"https://example.com/feed": rssBody,
		},
		types: map[string]string{
			"https://example.com/feed": "application/rss+xml",
		},
	}

	resolution := newResolver(fetcher).Resolve(context.Background(), "https://example.com/blog")

	assert.Equal(t, domain.TechniqueRSS, resolution.Technique)
	assert.InDelta(t, 0.95, resolution.Confidence, 0.001)
	assert.Equal(t, domain.DetectionFeedLink, resolution.Method)
	assert.Equal(t, "https://example.com/feed", resolution.FeedURL)
	assert.Equal(t,
		[]domain.Technique{domain.TechniqueStatic, domain.TechniqueRendered},
		resolution.Fallbacks)
}

func TestResolveFeedPathProbe(t *testing.T) {
	fetcher := &mockFetcher{
		pages: map[string]string{
			"https://example.com/news": `<html><body><p>plain page, no feed link</p></body></html>`,
			"https://example.com/rss":  rssBody,
		},
		types: map[string]string{
			"https://example.com/rss": "application/rss+xml",
		},
	}

	resolution := newResolver(fetcher).Resolve(context.Background(), "https://example.com/news")

	assert.Equal(t, domain.TechniqueRSS, resolution.Technique)
	assert.Equal(t, domain.DetectionFeedProbe, resolution.Method)
	assert.Equal(t, "https://example.com/rss", resolution.FeedURL)
}

func TestResolveSitemap(t *testing.T) {
	fetcher := &mockFetcher{
		pages: map[string]string{
			"https://example.com/news":        `<html><body><p>no feeds here</p></body></html>`,
			"https://example.com/sitemap.xml": `<?xml version="1.0"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"></urlset>`,
		},
		types: map[string]string{
			"https://example.com/sitemap.xml": "application/xml",
		},
	}

	resolution := newResolver(fetcher).Resolve(context.Background(), "https://example.com/news")

	assert.Equal(t, domain.TechniqueSitemap, resolution.Technique)
	assert.InDelta(t, 0.9, resolution.Confidence, 0.001)
	assert.Equal(t, "https://example.com/sitemap.xml", resolution.FeedURL)
	assert.Equal(t, []domain.Technique{domain.TechniqueStatic}, resolution.Fallbacks)
}

func TestResolveNaverBlog(t *testing.T) {
	fetcher := &mockFetcher{pages: map[string]string{}}

	resolution := newResolver(fetcher).Resolve(context.Background(), "https://blog.naver.com/myblog")

	assert.Equal(t, domain.TechniqueNaver, resolution.Technique)
	assert.Equal(t, domain.DetectionPlatform, resolution.Method)
	assert.Equal(t, "https://rss.blog.naver.com/myblog.xml", resolution.FeedURL)
	assert.InDelta(t, 0.75, resolution.Confidence, 0.001)
}

func TestResolveRenderedShell(t *testing.T) {
	fetcher := &mockFetcher{
		pages: map[string]string{
			"https://spa.example.com/app": `<html><head>
				<script src="/static/js/main.3f2a.js"></script>
			</head><body><div id="root"></div></body></html>`,
		},
	}

	resolution := newResolver(fetcher).Resolve(context.Background(), "https://spa.example.com/app")

	assert.Equal(t, domain.TechniqueRendered, resolution.Technique)
	assert.True(t, resolution.RequiresJS)
	assert.GreaterOrEqual(t, resolution.Confidence, 0.9)
}

func TestResolveStaticListBySelectors(t *testing.T) {
	fetcher := &mockFetcher{
		pages: map[string]string{
			"https://example.com/blog": `<html><body>` +
				`<ul class="posts">` +
				`<li class="post"><h2>How we scaled search</h2><a href="/p/1">read</a><span class="date">2026-08-01</span></li>` +
				`<li class="post"><h2>Queue design notes</h2><a href="/p/2">read</a><span class="date">2026-08-05</span></li>` +
				`<li class="post"><h2>Caching strategies</h2><a href="/p/3">read</a><span class="date">2026-08-10</span></li>` +
				`<li class="post"><h2>Retry budgets</h2><a href="/p/4">read</a><span class="date">2026-08-12</span></li>` +
				`<li class="post"><h2>Tracing rollout</h2><a href="/p/5">read</a><span class="date">2026-08-14</span></li>` +
				`</ul></body></html>`,
		},
	}

	resolution := newResolver(fetcher).Resolve(context.Background(), "https://example.com/blog")

	assert.Equal(t, domain.TechniqueStatic, resolution.Technique)
	assert.Equal(t, domain.DetectionSelectors, resolution.Method)
	require.NotNil(t, resolution.Selectors)
	assert.Equal(t, "li.post", resolution.Selectors.Item)
	assert.Equal(t, "h2", resolution.Selectors.Title)
	assert.Equal(t, "a", resolution.Selectors.Link)
}

func TestResolveUnreachableFallsBackToPattern(t *testing.T) {
	fetcher := &mockFetcher{pages: map[string]string{}}

	resolution := newResolver(fetcher).Resolve(context.Background(), "https://down.example.com/blog")

	assert.Equal(t, domain.TechniqueStatic, resolution.Technique)
	assert.Equal(t, domain.DetectionFallback, resolution.Method)
	assert.GreaterOrEqual(t, resolution.Confidence, 0.3)
}

func TestResolveFeedLikeURLWithoutNetwork(t *testing.T) {
	fetcher := &mockFetcher{pages: map[string]string{}}

	resolution := newResolver(fetcher).Resolve(context.Background(), "https://down.example.com/atom.xml")

	assert.Equal(t, domain.TechniqueRSS, resolution.Technique)
	assert.Equal(t, "https://down.example.com/atom.xml", resolution.FeedURL)
}

func TestResolveNeverReturnsRepeatedFallbacks(t *testing.T) {
	fetcher := &mockFetcher{pages: map[string]string{}}

	resolution := newResolver(fetcher).Resolve(context.Background(), "https://example.com/blog")

	seen := map[domain.Technique]bool{resolution.Technique: true}
	for _, fb := range resolution.Fallbacks {
		assert.False(t, seen[fb], "fallback %s repeats", fb)
		seen[fb] = true
	}
}

func TestDetectSelectorsIgnoresSparseGroups(t *testing.T) {
	selectors, score := resolver.DetectSelectors(`<html><body>
		<ul><li><a href="/one">Only</a></li><li><a href="/two">Two</a></li></ul>
	</body></html>`)

	assert.Nil(t, selectors)
	assert.Zero(t, score)
}

func TestDetectSelectorsReadsTimeDatetimeAttr(t *testing.T) {
	selectors, score := resolver.DetectSelectors(`<html><body><ul class="posts">
		<li class="post"><h3>Scaling the ingest tier</h3><a href="/p/1">read</a><time datetime="2026-08-20">Aug 20</time></li>
		<li class="post"><h3>Postmortem culture notes</h3><a href="/p/2">read</a><time datetime="2026-08-18">Aug 18</time></li>
		<li class="post"><h3>Queue depth as a signal</h3><a href="/p/3">read</a><time datetime="2026-08-15">Aug 15</time></li>
	</ul></body></html>`)

	require.NotNil(t, selectors)
	assert.Equal(t, "time", selectors.Date)
	assert.Equal(t, "datetime", selectors.DateAttr)
	assert.Positive(t, score)
}

func TestDetectSelectorsFindsTableRows(t *testing.T) {
	selectors, score := resolver.DetectSelectors(`<html><body><table class="board"><tbody>
		<tr class="row"><td class="subject"><a href="/b/1">공지사항이 아닌 글</a></td><td class="date">2026.08.01</td></tr>
		<tr class="row"><td class="subject"><a href="/b/2">두 번째 게시글</a></td><td class="date">2026.08.02</td></tr>
		<tr class="row"><td class="subject"><a href="/b/3">세 번째 게시글</a></td><td class="date">2026.08.03</td></tr>
	</tbody></table></body></html>`)

	require.NotNil(t, selectors)
	assert.Equal(t, "tr.row", selectors.Item)
	assert.Positive(t, score)
}
