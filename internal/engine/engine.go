// Package engine runs the fallback execution state machine: one
// technique attempt at a time, each bounded by a timeout and judged by
// the quality gate, advancing down the fallback chain until an attempt
// produces an acceptable batch or the chain is exhausted. A run never
// commits a batch that failed the gate.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/extract"
	"github.com/jonesrussell/insight-crawler/internal/logger"
	"github.com/jonesrussell/insight-crawler/internal/metrics"
	"github.com/jonesrussell/insight-crawler/internal/normalize"
	"github.com/jonesrussell/insight-crawler/internal/quality"
	"github.com/jonesrussell/insight-crawler/internal/strategy"
)

// ErrUnresolvedSource is returned when a source reaches the engine with
// its technique still set to auto.
var ErrUnresolvedSource = errors.New("source technique is unresolved")

// Engine executes the fallback chain for one source.
type Engine struct {
	registry *strategy.Registry
	cfg      config.CrawlerConfig
	metrics  *metrics.Metrics
	log      logger.Logger
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithMetrics attaches crawl instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// New creates an engine over the given strategy registry.
func New(registry *strategy.Registry, cfg config.CrawlerConfig, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{registry: registry, cfg: cfg, log: log}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Crawl runs the source's technique and its fallback chain. It returns
// the accepted articles together with a result describing every
// attempt. Exhaustion is not an error: the result then carries zero
// articles, an empty technique, and the reasons per attempt.
func (e *Engine) Crawl(ctx context.Context, src *domain.Source) ([]domain.CrawledArticle, *domain.CrawlResult) {
	result := &domain.CrawlResult{SourceID: src.ID}

	if src.Technique == "" || src.Technique == domain.TechniqueAuto {
		result.Errors = append(result.Errors, ErrUnresolvedSource.Error())

		return nil, result
	}

	chain := e.chain(src)

	var articles []domain.CrawledArticle

	for _, technique := range chain {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, ctx.Err().Error())

			break
		}

		attempt, batch := e.attempt(ctx, src, technique)
		result.Attempts = append(result.Attempts, attempt)
		e.metrics.ObserveAttempt(technique.String(), attempt.Outcome, attempt.Duration.Seconds())

		if attempt.Outcome != domain.AttemptSucceeded {
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: %s: %s", technique, attempt.Outcome, attempt.Reason))

			e.log.Info("technique failed, advancing",
				logger.String("source", src.ID),
				logger.String("technique", technique.String()),
				logger.String("outcome", attempt.Outcome),
				logger.String("reason", attempt.Reason))

			continue
		}

		articles = e.harvest(ctx, src, technique, batch)
		result.Technique = technique
		result.Found = len(articles)
		e.metrics.ObserveArticles(technique.String(), len(articles))

		break
	}

	e.metrics.ObserveRun(len(result.Attempts))

	if result.Technique == "" {
		e.log.Warn("fallback chain exhausted",
			logger.String("source", src.ID),
			logger.Int("attempts", len(result.Attempts)))
	}

	return articles, result
}

// chain builds the ordered technique list: the source's technique first,
// then the fallbacks recorded at resolution time, else the defaults.
func (e *Engine) chain(src *domain.Source) []domain.Technique {
	primary := src.Technique

	fallbacks := domain.DefaultFallbacks(primary)
	if src.Config.Detection != nil && len(src.Config.Detection.Fallbacks) > 0 {
		fallbacks = src.Config.Detection.Fallbacks
	}

	return append([]domain.Technique{primary}, domain.DedupeChain(primary, fallbacks)...)
}

// attempt runs one technique under the attempt timeout and classifies
// the outcome. The returned batch is non-nil only on success.
func (e *Engine) attempt(ctx context.Context, src *domain.Source, technique domain.Technique) (domain.Attempt, []domain.RawContentItem) {
	attempt := domain.Attempt{Technique: technique}

	strat, err := e.registry.Get(technique)
	if err != nil {
		attempt.Outcome = domain.AttemptErrored
		attempt.Reason = err.Error()

		return attempt, nil
	}

	timeout := e.cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = config.DefaultAttemptTimeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	items, err := strat.ListItems(attemptCtx, src)
	attempt.Duration = time.Since(started)
	attempt.Items = len(items)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			attempt.Outcome = domain.AttemptTimedOut
			attempt.Reason = fmt.Sprintf("no result within %s", timeout)
		} else {
			attempt.Outcome = domain.AttemptErrored
			attempt.Reason = err.Error()
		}

		return attempt, nil
	}

	ok, diag := quality.Evaluate(items)
	if !ok {
		attempt.Outcome = domain.AttemptRejected
		attempt.Reason = diag.Reason
		e.metrics.ObserveGateRejection(diag.Reason)

		return attempt, nil
	}

	attempt.Outcome = domain.AttemptSucceeded

	return attempt, items
}

// harvest turns an accepted batch into persistence-ready articles:
// garbage items are dropped, missing bodies are fetched politely, and
// each item is converted with a deterministic identifier.
func (e *Engine) harvest(ctx context.Context, src *domain.Source, technique domain.Technique, batch []domain.RawContentItem) []domain.CrawledArticle {
	clean := quality.Filter(batch)

	strat, err := e.registry.Get(technique)
	if err == nil {
		e.fillContent(ctx, src, strat, clean)
	}

	now := time.Now()
	articles := make([]domain.CrawledArticle, 0, len(clean))

	for i := range clean {
		articles = append(articles, convert(src, &clean[i], now))
	}

	return articles
}

// fillContent fetches article bodies for items the listing did not
// carry one for, pausing between requests. A failed fetch leaves the
// preview empty; it never fails the run.
func (e *Engine) fillContent(ctx context.Context, src *domain.Source, strat strategy.Strategy, items []domain.RawContentItem) {
	delay := e.cfg.ContentDelay
	if delay <= 0 {
		delay = config.DefaultContentDelay
	}

	hints := extract.Hints{
		Selector: src.Config.ContentSelector,
		Exclude:  src.Config.ExcludeSelectors,
	}

	fetched := 0

	for i := range items {
		if items[i].Content != "" {
			continue
		}

		if fetched > 0 {
			if !sleepCtx(ctx, delay) {
				return
			}
		}

		fetched++

		content, err := strat.FetchContent(ctx, items[i].Link, hints)
		if err != nil {
			e.log.Debug("content fetch failed",
				logger.String("url", items[i].Link),
				logger.String("error", err.Error()))

			continue
		}

		items[i].Content = content.BodyPreview

		if items[i].Thumbnail == "" {
			items[i].Thumbnail = content.Thumbnail
		}
	}
}

// convert maps one raw item to its stored article form.
func convert(src *domain.Source, item *domain.RawContentItem, now time.Time) domain.CrawledArticle {
	return domain.CrawledArticle{
		ID:          domain.ArticleID(item.Link),
		SourceID:    src.ID,
		Title:       item.Title,
		URL:         item.Link,
		Thumbnail:   item.Thumbnail,
		Author:      item.Author,
		Category:    src.Config.Category,
		PublishedAt: normalize.ParseDate(item.RawDate, now).ISO(),
		Preview:     item.Content,
	}
}

// sleepCtx sleeps for d unless the context ends first. It reports
// whether the full sleep completed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
