package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/logger"
	"github.com/jonesrussell/insight-crawler/internal/runner"
)

// mockStore records persistence calls in memory.
type mockStore struct {
	mu          sync.Mutex
	sources     []domain.Source
	sourcesErr  error
	resolutions map[string]domain.Technique
	articles    []domain.CrawledArticle
	logs        []domain.CrawlLog
	touched     map[string]time.Time
}

func newMockStore(sources ...domain.Source) *mockStore {
	return &mockStore{
		sources:     sources,
		resolutions: map[string]domain.Technique{},
		touched:     map[string]time.Time{},
	}
}

func (m *mockStore) ActiveSources(_ context.Context) ([]domain.Source, error) {
	return m.sources, m.sourcesErr
}

func (m *mockStore) SaveResolution(_ context.Context, src *domain.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions[src.ID] = src.Technique

	return nil
}

func (m *mockStore) UpsertArticles(_ context.Context, articles []domain.CrawledArticle) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles = append(m.articles, articles...)

	return len(articles), nil
}

func (m *mockStore) InsertCrawlLog(_ context.Context, entry *domain.CrawlLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *entry)

	return nil
}

func (m *mockStore) TouchLastCrawled(_ context.Context, sourceID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[sourceID] = at

	return nil
}

// mockCrawler returns a scripted result per source.
type mockCrawler struct {
	mu       sync.Mutex
	articles map[string][]domain.CrawledArticle
	results  map[string]*domain.CrawlResult
	calls    []string
}

func (m *mockCrawler) Crawl(_ context.Context, src *domain.Source) ([]domain.CrawledArticle, *domain.CrawlResult) {
	m.mu.Lock()
	m.calls = append(m.calls, src.ID)
	m.mu.Unlock()

	if res, ok := m.results[src.ID]; ok {
		return m.articles[src.ID], res
	}

	return nil, &domain.CrawlResult{SourceID: src.ID}
}

// mockResolver always answers with a fixed resolution.
type mockResolver struct {
	resolution domain.StrategyResolution
	calls      int
}

func (m *mockResolver) ResolveSource(_ context.Context, _ *domain.Source) *domain.StrategyResolution {
	m.calls++
	res := m.resolution

	return &res
}

// mockTracker marks everything new except listed identifiers.
type mockTracker struct {
	seen map[string]bool
	err  error
}

func (m *mockTracker) MarkNew(_ context.Context, articles []domain.CrawledArticle) ([]domain.CrawledArticle, error) {
	if m.err != nil {
		return nil, m.err
	}

	fresh := make([]domain.CrawledArticle, 0, len(articles))

	for _, a := range articles {
		if !m.seen[a.ID] {
			fresh = append(fresh, a)
		}
	}

	return fresh, nil
}

func article(id, sourceID string) domain.CrawledArticle {
	return domain.CrawledArticle{ID: id, SourceID: sourceID, Title: "T " + id, URL: "https://example.com/" + id}
}

func okResult(sourceID string, found int) *domain.CrawlResult {
	return &domain.CrawlResult{SourceID: sourceID, Technique: domain.TechniqueRSS, Found: found}
}

func TestRunSourcePersistsArticlesAndLog(t *testing.T) {
	src := domain.Source{ID: "s1", URL: "https://example.com", Technique: domain.TechniqueRSS}
	store := newMockStore(src)
	crawler := &mockCrawler{
		articles: map[string][]domain.CrawledArticle{"s1": {article("a1", "s1"), article("a2", "s1")}},
		results:  map[string]*domain.CrawlResult{"s1": okResult("s1", 2)},
	}

	r := runner.New(store, crawler, config.CrawlerConfig{}, logger.NewNop())

	result := r.RunSource(context.Background(), "run-1", &src)

	assert.Equal(t, 2, result.New)
	assert.Len(t, store.articles, 2)
	require.Len(t, store.logs, 1)
	assert.Equal(t, runner.StatusOK, store.logs[0].Status)
	assert.Equal(t, "run-1", store.logs[0].RunID)
	assert.Contains(t, store.touched, "s1")
}

func TestRunSourceResolvesAutoSource(t *testing.T) {
	src := domain.Source{ID: "s1", URL: "https://example.com", Technique: domain.TechniqueAuto}
	store := newMockStore(src)
	crawler := &mockCrawler{
		articles: map[string][]domain.CrawledArticle{"s1": {article("a1", "s1")}},
		results:  map[string]*domain.CrawlResult{"s1": okResult("s1", 1)},
	}
	resolver := &mockResolver{resolution: domain.StrategyResolution{
		Technique:  domain.TechniqueRSS,
		Fallbacks:  []domain.Technique{domain.TechniqueStatic},
		FeedURL:    "https://example.com/feed",
		Confidence: 0.95,
		Method:     domain.DetectionFeedLink,
	}}

	r := runner.New(store, crawler, config.CrawlerConfig{}, logger.NewNop(), runner.WithResolver(resolver))

	r.RunSource(context.Background(), "run-1", &src)

	assert.Equal(t, 1, resolver.calls)
	assert.Equal(t, domain.TechniqueRSS, src.Technique)
	assert.Equal(t, "https://example.com/feed", src.Config.FeedURL)
	require.NotNil(t, src.Config.Detection)
	assert.Equal(t, domain.DetectionFeedLink, src.Config.Detection.Method)
	assert.Equal(t, domain.TechniqueRSS, store.resolutions["s1"])
}

func TestRunSourceUnresolvedWithoutResolver(t *testing.T) {
	src := domain.Source{ID: "s1", URL: "https://example.com", Technique: domain.TechniqueAuto}
	store := newMockStore(src)
	crawler := &mockCrawler{}

	r := runner.New(store, crawler, config.CrawlerConfig{}, logger.NewNop())

	result := r.RunSource(context.Background(), "run-1", &src)

	assert.Empty(t, crawler.calls, "engine must not run an unresolved source")
	require.Len(t, result.Errors, 1)
	require.Len(t, store.logs, 1)
	assert.Equal(t, runner.StatusFailed, store.logs[0].Status)
}

func TestRunSourceTrackerFiltersSeen(t *testing.T) {
	src := domain.Source{ID: "s1", URL: "https://example.com", Technique: domain.TechniqueRSS}
	store := newMockStore(src)
	crawler := &mockCrawler{
		articles: map[string][]domain.CrawledArticle{"s1": {article("a1", "s1"), article("a2", "s1")}},
		results:  map[string]*domain.CrawlResult{"s1": okResult("s1", 2)},
	}
	tracker := &mockTracker{seen: map[string]bool{"a1": true}}

	r := runner.New(store, crawler, config.CrawlerConfig{}, logger.NewNop(), runner.WithTracker(tracker))

	result := r.RunSource(context.Background(), "run-1", &src)

	assert.Equal(t, 1, result.New)
	require.Len(t, store.articles, 1)
	assert.Equal(t, "a2", store.articles[0].ID)
}

func TestRunSourceTrackerFailureDegrades(t *testing.T) {
	src := domain.Source{ID: "s1", URL: "https://example.com", Technique: domain.TechniqueRSS}
	store := newMockStore(src)
	crawler := &mockCrawler{
		articles: map[string][]domain.CrawledArticle{"s1": {article("a1", "s1")}},
		results:  map[string]*domain.CrawlResult{"s1": okResult("s1", 1)},
	}
	tracker := &mockTracker{err: errors.New("redis down")}

	r := runner.New(store, crawler, config.CrawlerConfig{}, logger.NewNop(), runner.WithTracker(tracker))

	result := r.RunSource(context.Background(), "run-1", &src)

	// All articles count as new when tracking is unavailable.
	assert.Equal(t, 1, result.New)
	assert.Len(t, store.articles, 1)
}

func TestRunAllIsolatesSources(t *testing.T) {
	sources := []domain.Source{
		{ID: "s1", URL: "https://one.example.com", Technique: domain.TechniqueRSS, Priority: 9},
		{ID: "s2", URL: "https://two.example.com", Technique: domain.TechniqueStatic, Priority: 1},
	}
	store := newMockStore(sources...)
	crawler := &mockCrawler{
		articles: map[string][]domain.CrawledArticle{"s2": {article("b1", "s2")}},
		results: map[string]*domain.CrawlResult{
			"s1": {SourceID: "s1", Errors: []string{"rss: errored: feed gone"}},
			"s2": okResult("s2", 1),
		},
	}

	r := runner.New(store, crawler, config.CrawlerConfig{MaxConcurrent: 2}, logger.NewNop())

	results, err := r.RunAll(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Len(t, store.logs, 2)
	assert.Len(t, crawler.calls, 2, "a failed source must not stop the batch")
	assert.Len(t, store.articles, 1)
}

func TestRunAllEmptyResultStatus(t *testing.T) {
	src := domain.Source{ID: "s1", URL: "https://example.com", Technique: domain.TechniqueRSS}
	store := newMockStore(src)
	crawler := &mockCrawler{
		results: map[string]*domain.CrawlResult{"s1": okResult("s1", 0)},
	}

	r := runner.New(store, crawler, config.CrawlerConfig{}, logger.NewNop())

	_, err := r.RunAll(context.Background())

	require.NoError(t, err)
	require.Len(t, store.logs, 1)
	assert.Equal(t, runner.StatusEmpty, store.logs[0].Status)
}
