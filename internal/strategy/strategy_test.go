package strategy_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/extract"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
	"github.com/jonesrussell/insight-crawler/internal/strategy"
)

// mockFetcher serves canned bodies by exact URL.
type mockFetcher struct {
	pages map[string]string
}

func (m *mockFetcher) Get(_ context.Context, url string) (*fetch.Response, error) {
	body, ok := m.pages[url]
	if !ok {
		return nil, errors.New("connection refused")
	}

	return &fetch.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       body,
		FinalURL:   url,
	}, nil
}

func (m *mockFetcher) Exists(_ context.Context, url string) bool {
	_, ok := m.pages[url]

	return ok
}

func testConfig() config.CrawlerConfig {
	return config.CrawlerConfig{
		UserAgent:    "test-agent",
		FetchTimeout: 5 * time.Second,
	}
}

func TestRegistryDispatch(t *testing.T) {
	static := strategy.NewStatic(&mockFetcher{}, testConfig(), logger.NewNop())
	rss := strategy.NewRSS(&mockFetcher{}, testConfig(), logger.NewNop())

	registry := strategy.NewRegistry(static, rss)

	got, err := registry.Get(domain.TechniqueStatic)
	require.NoError(t, err)
	assert.Equal(t, domain.TechniqueStatic, got.Technique())

	_, err = registry.Get(domain.TechniqueMedium)
	assert.ErrorIs(t, err, strategy.ErrNotSupported)
	assert.False(t, registry.Has(domain.TechniqueMedium))
}

func rssFeed(now time.Time) string {
	recent := now.AddDate(0, 0, -2).Format(time.RFC1123Z)
	stale := now.AddDate(0, 0, -40).Format(time.RFC1123Z)

	return fmt.Sprintf(`<?xml version="1.0"?>
<rss version="2.0"><channel><title>Blog</title>
<item><title>Fresh insight on caching</title><link>https://example.com/p/fresh</link><pubDate>%s</pubDate></item>
<item><title>Stale post from last month</title><link>https://example.com/p/stale</link><pubDate>%s</pubDate></item>
<item><title>Login</title><link>https://example.com/p/garbage</link><pubDate>%s</pubDate></item>
</channel></rss>`, recent, stale, recent)
}

func TestRSSListItemsFiltersStaleAndGarbage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(rssFeed(time.Now())))
	}))
	t.Cleanup(srv.Close)

	rss := strategy.NewRSS(&mockFetcher{}, testConfig(), logger.NewNop())

	src := &domain.Source{
		ID:     "s1",
		URL:    "https://example.com",
		Config: domain.SourceConfig{FeedURL: srv.URL + "/feed"},
	}

	items, err := rss.ListItems(context.Background(), src)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Fresh insight on caching", items[0].Title)
	assert.Equal(t, "https://example.com/p/fresh", items[0].Link)
}

func TestRSSListItemsUnreachableFeed(t *testing.T) {
	rss := strategy.NewRSS(&mockFetcher{}, testConfig(), logger.NewNop())

	src := &domain.Source{
		ID:     "s1",
		Config: domain.SourceConfig{FeedURL: "http://127.0.0.1:1/feed"},
	}

	_, err := rss.ListItems(context.Background(), src)

	assert.Error(t, err)
}

func TestStaticListItems(t *testing.T) {
	page := `<html><body><div class="list">
		<div class="item"><h3>Design review culture</h3><a href="/posts/1">read</a><span class="when">2일 전</span></div>
		<div class="item"><h3>Incident writeups that help</h3><a href="/posts/2">read</a><span class="when">3일 전</span></div>
		<div class="item"><h3>Platform teams at scale</h3><a href="/posts/3">read</a><span class="when">1일 전</span></div>
	</div></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	static := strategy.NewStatic(&mockFetcher{}, testConfig(), logger.NewNop())

	src := &domain.Source{
		ID:  "s1",
		URL: srv.URL,
		Config: domain.SourceConfig{
			Selectors: &domain.SelectorConfig{
				Container: ".list",
				Item:      ".item",
				Title:     "h3",
				Link:      "a",
				Date:      ".when",
			},
		},
	}

	items, err := static.ListItems(context.Background(), src)

	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "Design review culture", items[0].Title)
	assert.Contains(t, items[0].Link, "/posts/1")
}

func listPage(page, perPage int, next string) string {
	var b strings.Builder

	b.WriteString(`<html><body><div class="list">`)

	for i := 0; i < perPage; i++ {
		n := page*perPage + i
		fmt.Fprintf(&b,
			`<div class="item"><h3>Engineering note %d on queue depth</h3><a href="/posts/%d">read</a></div>`,
			n, n)
	}

	b.WriteString(`</div>`)

	if next != "" {
		fmt.Fprintf(&b, `<a class="next" href="%s">next</a>`, next)
	}

	b.WriteString(`</body></html>`)

	return b.String()
}

func TestStaticListItemsQueryPagination(t *testing.T) {
	const (
		pages   = 3
		perPage = 50
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(listPage(page, perPage, "")))
	}))
	t.Cleanup(srv.Close)

	static := strategy.NewStatic(&mockFetcher{}, testConfig(), logger.NewNop())

	src := &domain.Source{
		ID:  "s1",
		URL: srv.URL,
		Config: domain.SourceConfig{
			Selectors:  &domain.SelectorConfig{Container: ".list", Item: ".item", Title: "h3", Link: "a"},
			Pagination: &domain.PaginationConfig{Type: "query", Param: "page", MaxPages: pages},
		},
	}

	items, err := static.ListItems(context.Background(), src)

	require.NoError(t, err)
	assert.Len(t, items, pages*perPage)

	links := make(map[string]bool, len(items))
	for _, item := range items {
		links[item.Link] = true
	}

	assert.Len(t, links, pages*perPage)
}

func TestStaticListItemsNextLinkPaginationCap(t *testing.T) {
	const perPage = 4

	var srv *httptest.Server

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("p"))
		next := fmt.Sprintf("%s/?p=%d", srv.URL, page+1)
		_, _ = w.Write([]byte(listPage(page, perPage, next)))
	}))
	t.Cleanup(srv.Close)

	static := strategy.NewStatic(&mockFetcher{}, testConfig(), logger.NewNop())

	src := &domain.Source{
		ID:  "s1",
		URL: srv.URL,
		Config: domain.SourceConfig{
			Selectors:  &domain.SelectorConfig{Container: ".list", Item: ".item", Title: "h3", Link: "a"},
			Pagination: &domain.PaginationConfig{Type: "next", NextSelector: "a.next", MaxPages: 2},
		},
	}

	items, err := static.ListItems(context.Background(), src)

	require.NoError(t, err)
	assert.Len(t, items, 2*perPage)
}

func TestStaticListItemsMaxItemsOption(t *testing.T) {
	page := `<html><body><div class="list">
		<div class="item"><h3>Design review culture</h3><a href="/posts/1">read</a></div>
		<div class="item"><h3>Incident writeups that help</h3><a href="/posts/2">read</a></div>
		<div class="item"><h3>Platform teams at scale</h3><a href="/posts/3">read</a></div>
	</div></body></html>`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(srv.Close)

	static := strategy.NewStatic(&mockFetcher{}, testConfig(), logger.NewNop())

	src := &domain.Source{
		ID:  "s1",
		URL: srv.URL,
		Config: domain.SourceConfig{
			Selectors: &domain.SelectorConfig{Container: ".list", Item: ".item", Title: "h3", Link: "a"},
			Options:   map[string]any{"max_items": 2},
		},
	}

	items, err := static.ListItems(context.Background(), src)

	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestStaticListItemsRequiresSelectors(t *testing.T) {
	static := strategy.NewStatic(&mockFetcher{}, testConfig(), logger.NewNop())

	_, err := static.ListItems(context.Background(), &domain.Source{ID: "s1", URL: "https://example.com"})

	assert.Error(t, err)
}

func TestAPIListItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"data":{"posts":[
			{"subject":"Quarterly infra notes","slug":"infra-notes","when":"%s"},
			{"subject":"Reliability deep dive","slug":"reliability","when":"%s"}
		]}}`,
			time.Now().AddDate(0, 0, -1).Format("2006-01-02"),
			time.Now().AddDate(0, 0, -3).Format("2006-01-02"))
	}))
	t.Cleanup(srv.Close)

	api := strategy.NewAPI(&mockFetcher{}, testConfig(), logger.NewNop())

	src := &domain.Source{
		ID: "s1",
		Config: domain.SourceConfig{
			API: &domain.APIDescriptor{
				URL:       srv.URL + "/api/posts",
				ItemsPath: "data.posts",
				Fields: domain.APIFieldMap{
					Title: "subject",
					Link:  "slug",
					Date:  "when",
				},
				LinkTemplate: "https://example.com/posts/{value}",
			},
		},
	}

	items, err := api.ListItems(context.Background(), src)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "https://example.com/posts/infra-notes", items[0].Link)
	assert.Equal(t, "Quarterly infra notes", items[0].Title)
}

func TestAPIListItemsWithoutDescriptor(t *testing.T) {
	api := strategy.NewAPI(&mockFetcher{}, testConfig(), logger.NewNop())

	_, err := api.ListItems(context.Background(), &domain.Source{ID: "s1"})

	assert.ErrorIs(t, err, strategy.ErrNoAPIConfig)
}

func TestNewsletterListItemsWithPlatformSelectors(t *testing.T) {
	archive := `<html><body><ul>
		<li class="list_item"><a href="/archive/1"><span class="title">8월 둘째 주 소식</span><span class="date">2일 전</span></a></li>
		<li class="list_item"><a href="/archive/2"><span class="title">8월 첫째 주 소식</span><span class="date">9일 전</span></a></li>
		<li class="list_item"><a href="/archive/3"><span class="title">7월 마지막 소식</span><span class="date">16일 전</span></a></li>
	</ul></body></html>`

	fetcher := &mockFetcher{pages: map[string]string{
		"https://page.stibee.com/archives/123": archive,
	}}

	newsletter := strategy.NewNewsletter(fetcher, testConfig(), logger.NewNop())

	src := &domain.Source{ID: "s1", URL: "https://page.stibee.com/archives/123"}

	items, err := newsletter.ListItems(context.Background(), src)

	require.NoError(t, err)
	// The 16-day-old issue is outside the 14-day feed window.
	require.Len(t, items, 2)
	assert.Equal(t, "8월 둘째 주 소식", items[0].Title)
	assert.Equal(t, "https://page.stibee.com/archive/1", items[0].Link)
}

func TestMediumFeedURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://medium.com/@writer", "https://medium.com/feed/@writer"},
		{"https://medium.com/some-publication", "https://medium.com/feed/some-publication"},
		{"https://writer.medium.com", "https://writer.medium.com/feed"},
		{"https://engineering.example.com", "https://engineering.example.com/feed"},
		{"https://medium.com", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, strategy.MediumFeedURL(tc.in), "input %s", tc.in)
	}
}

func TestNaverURLs(t *testing.T) {
	assert.Equal(t, "https://rss.blog.naver.com/myblog.xml",
		strategy.NaverFeedURL("https://blog.naver.com/myblog"))
	assert.Equal(t, "https://rss.blog.naver.com/myblog.xml",
		strategy.NaverFeedURL("https://blog.naver.com/myblog/223456789"))
	assert.Empty(t, strategy.NaverFeedURL("https://example.com/myblog"))

	assert.Equal(t, "https://m.blog.naver.com/myblog/223456789",
		strategy.NaverMobileURL("https://blog.naver.com/myblog/223456789"))
	assert.Equal(t, "https://example.com/post",
		strategy.NaverMobileURL("https://example.com/post"))
}

func TestStaticFetchContent(t *testing.T) {
	article := `<html><head><meta property="og:image" content="https://cdn.example.com/hero.jpg"></head>
		<body><article><p>` + longBody + `</p></article></body></html>`

	fetcher := &mockFetcher{pages: map[string]string{
		"https://example.com/posts/1": article,
	}}

	static := strategy.NewStatic(fetcher, testConfig(), logger.NewNop())

	content, err := static.FetchContent(context.Background(), "https://example.com/posts/1", extract.Hints{})

	require.NoError(t, err)
	assert.Contains(t, content.BodyPreview, "A long enough paragraph")
	assert.Equal(t, "https://cdn.example.com/hero.jpg", content.Thumbnail)
}

const longBody = "A long enough paragraph about engineering practice to clear the " +
	"minimum extraction threshold. It keeps going with concrete detail so the " +
	"preview has something meaningful to carry back to the caller."
