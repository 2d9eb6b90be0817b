// Package runner orchestrates batch crawl runs: it loads the active
// sources, resolves the unresolved ones, executes each source through
// the fallback engine with bounded concurrency, and persists articles
// and run logs. One failing source never aborts the batch.
package runner

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/logger"
	"github.com/jonesrussell/insight-crawler/internal/metrics"
)

// Run statuses persisted on crawl logs.
const (
	StatusOK     = "ok"
	StatusEmpty  = "empty"
	StatusFailed = "failed"
)

// Store is the persistence surface the runner needs.
type Store interface {
	ActiveSources(ctx context.Context) ([]domain.Source, error)
	SaveResolution(ctx context.Context, src *domain.Source) error
	UpsertArticles(ctx context.Context, articles []domain.CrawledArticle) (int, error)
	InsertCrawlLog(ctx context.Context, entry *domain.CrawlLog) error
	TouchLastCrawled(ctx context.Context, sourceID string, at time.Time) error
}

// Crawler executes one source through its fallback chain.
type Crawler interface {
	Crawl(ctx context.Context, src *domain.Source) ([]domain.CrawledArticle, *domain.CrawlResult)
}

// SourceResolver decides the technique for a source.
type SourceResolver interface {
	ResolveSource(ctx context.Context, src *domain.Source) *domain.StrategyResolution
}

// Tracker filters articles down to the ones not seen before.
type Tracker interface {
	MarkNew(ctx context.Context, articles []domain.CrawledArticle) ([]domain.CrawledArticle, error)
}

// Runner drives batch and single-source crawl runs.
type Runner struct {
	store    Store
	crawler  Crawler
	resolver SourceResolver
	tracker  Tracker
	metrics  *metrics.Metrics
	cfg      config.CrawlerConfig
	log      logger.Logger
}

// Option configures optional runner collaborators.
type Option func(*Runner)

// WithResolver enables automatic resolution of auto-technique sources.
func WithResolver(r SourceResolver) Option {
	return func(rn *Runner) {
		rn.resolver = r
	}
}

// WithTracker enables seen-article filtering for New counts.
func WithTracker(t Tracker) Option {
	return func(rn *Runner) {
		rn.tracker = t
	}
}

// WithMetrics attaches crawl instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(rn *Runner) {
		rn.metrics = m
	}
}

// New creates a runner.
func New(store Store, crawler Crawler, cfg config.CrawlerConfig, log logger.Logger, opts ...Option) *Runner {
	r := &Runner{store: store, crawler: crawler, cfg: cfg, log: log}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RunAll crawls every active source with bounded concurrency and
// returns the per-source results in completion order.
func (r *Runner) RunAll(ctx context.Context) ([]domain.CrawlResult, error) {
	sources, err := r.store.ActiveSources(ctx)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()

	r.log.Info("starting batch run",
		logger.String("run", runID),
		logger.Int("sources", len(sources)))

	limit := r.cfg.MaxConcurrent
	if limit <= 0 {
		limit = config.DefaultMaxConcurrent
	}

	results := make([]domain.CrawlResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i := range sources {
		g.Go(func() error {
			results[i] = *r.RunSource(gctx, runID, &sources[i])

			// Source failures are recorded, not propagated; only
			// context cancellation stops the batch.
			return gctx.Err()
		})
	}

	err = g.Wait()

	return results, err
}

// RunSource crawls one source end to end: resolve when needed, execute
// the fallback chain, persist articles, and log the run.
func (r *Runner) RunSource(ctx context.Context, runID string, src *domain.Source) *domain.CrawlResult {
	started := time.Now()

	result := r.crawlResolved(ctx, src)

	entry := &domain.CrawlLog{
		RunID:      runID,
		SourceID:   src.ID,
		Status:     statusOf(result),
		Found:      result.Found,
		New:        result.New,
		Errors:     strings.Join(result.Errors, "; "),
		StartedAt:  started,
		FinishedAt: time.Now(),
	}

	if err := r.store.InsertCrawlLog(ctx, entry); err != nil {
		r.log.Warn("crawl log write failed",
			logger.String("source", src.ID),
			logger.String("error", err.Error()))
	}

	if err := r.store.TouchLastCrawled(ctx, src.ID, entry.FinishedAt); err != nil {
		r.log.Warn("last-crawled update failed",
			logger.String("source", src.ID),
			logger.String("error", err.Error()))
	}

	r.log.Info("source run finished",
		logger.String("source", src.ID),
		logger.String("status", entry.Status),
		logger.String("technique", result.Technique.String()),
		logger.Int("found", result.Found),
		logger.Int("new", result.New),
		logger.Duration("took", entry.FinishedAt.Sub(started)))

	return result
}

// crawlResolved makes sure the source has an executable technique,
// runs the engine, and persists what it produced.
func (r *Runner) crawlResolved(ctx context.Context, src *domain.Source) *domain.CrawlResult {
	if needsResolution(src) {
		if !r.resolve(ctx, src) {
			return &domain.CrawlResult{
				SourceID: src.ID,
				Errors:   []string{"source is unresolved and no resolver is configured"},
			}
		}
	}

	articles, result := r.crawler.Crawl(ctx, src)
	if len(articles) == 0 {
		return result
	}

	fresh := articles

	if r.tracker != nil {
		marked, err := r.tracker.MarkNew(ctx, articles)
		if err != nil {
			// Dedupe degrades to counting everything as new.
			r.log.Warn("seen-article tracking failed",
				logger.String("source", src.ID),
				logger.String("error", err.Error()))
		} else {
			fresh = marked
		}
	}

	inserted, err := r.store.UpsertArticles(ctx, fresh)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())

		return result
	}

	result.New = inserted

	return result
}

// resolve runs the resolver and persists its decision. It reports
// whether the source is now executable.
func (r *Runner) resolve(ctx context.Context, src *domain.Source) bool {
	if r.resolver == nil {
		return false
	}

	res := r.resolver.ResolveSource(ctx, src)
	src.ApplyResolution(res, time.Now())
	r.metrics.ObserveResolution(res.Technique.String(), res.Method)

	r.log.Info("source resolved",
		logger.String("source", src.ID),
		logger.String("technique", res.Technique.String()),
		logger.String("method", res.Method),
		logger.Float64("confidence", res.Confidence))

	if err := r.store.SaveResolution(ctx, src); err != nil {
		r.log.Warn("resolution write-back failed",
			logger.String("source", src.ID),
			logger.String("error", err.Error()))
	}

	return true
}

// needsResolution reports whether the source cannot be executed as-is.
func needsResolution(src *domain.Source) bool {
	return src.Technique == "" || src.Technique == domain.TechniqueAuto
}

// statusOf maps an engine result to a log status.
func statusOf(result *domain.CrawlResult) string {
	if result.Technique == "" {
		return StatusFailed
	}

	if result.Found == 0 {
		return StatusEmpty
	}

	return StatusOK
}
