// Package resolver decides how to crawl a URL. Given only a source URL
// it runs an ordered pipeline of detection stages (URL optimization,
// feed and sitemap probes, platform signatures, URL-pattern inference,
// rendering scoring, hidden-API detection, selector discovery) and
// produces a StrategyResolution. Earlier stages win over later ones
// regardless of probe completion order.
package resolver

import (
	"context"
	"net/url"
	"strings"

	"github.com/jonesrussell/insight-crawler/internal/apidetect"
	"github.com/jonesrussell/insight-crawler/internal/browser"
	"github.com/jonesrussell/insight-crawler/internal/classifier"
	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// Renderer produces browser-rendered HTML. Optional; without it the
// resolver relies on the raw fetch alone.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (*browser.RenderResult, error)
}

// APIDetector finds hidden list APIs behind a page. Optional.
type APIDetector interface {
	Detect(ctx context.Context, pageURL string) (*domain.APIDescriptor, error)
}

// Classifier is the advisory classification service. Optional; nil
// results mean no opinion.
type Classifier interface {
	ClassifySourceType(ctx context.Context, pageURL, html string) (*classifier.TypeVote, error)
	ProposeSelectors(ctx context.Context, pageURL, html string) (*classifier.SelectorProposal, error)
}

// Resolver runs the detection pipeline.
type Resolver struct {
	fetcher    fetch.Fetcher
	renderer   Renderer
	detector   APIDetector
	classifier Classifier
	cfg        config.CrawlerConfig
	log        logger.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRenderer attaches a browser renderer.
func WithRenderer(r Renderer) Option {
	return func(res *Resolver) {
		res.renderer = r
	}
}

// WithAPIDetector attaches a hidden-API detector.
func WithAPIDetector(d APIDetector) Option {
	return func(res *Resolver) {
		res.detector = d
	}
}

// WithClassifier attaches the classifier service.
func WithClassifier(c Classifier) Option {
	return func(res *Resolver) {
		res.classifier = c
	}
}

// New creates a Resolver. Renderer, detector, and classifier are
// optional; the heuristic stages work without them.
func New(fetcher fetch.Fetcher, cfg config.CrawlerConfig, log logger.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		fetcher: fetcher,
		cfg:     cfg,
		log:     log,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve decides how to crawl a URL. It is idempotent, safe to re-run,
// and never fails: any internal error degrades to a URL-pattern guess.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) *domain.StrategyResolution {
	rawURL = strings.TrimSpace(rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		r.log.Warn("unparseable source url", logger.String("url", rawURL))

		return r.terminal()
	}

	// Stage 1: URL optimization. A discovered entry point replaces the
	// registered URL for every later stage.
	crawlURL := r.optimizeURL(ctx, parsed)
	target := rawURL
	if crawlURL != "" {
		target = crawlURL
	}

	// Stage 2: fetch. Failure falls through to pattern inference only.
	html, finalURL := r.fetchPage(ctx, target)
	if finalURL != "" {
		target = finalURL
	}

	// Stage 3: feed discovery.
	if resolution := r.discoverFeed(ctx, target, html); resolution != nil {
		return r.finish(resolution, crawlURL)
	}

	// Stage 4: sitemap discovery.
	if resolution := r.discoverSitemap(ctx, target); resolution != nil {
		return r.finish(resolution, crawlURL)
	}

	// Stage 5: platform signatures.
	if resolution := r.detectPlatform(ctx, target, html); resolution != nil {
		return r.finish(resolution, crawlURL)
	}

	// Stage 6: URL-pattern inference. A strong guess is provisionally
	// accepted but selector discovery still runs.
	guess := inferFromURL(target)

	if html == "" {
		// Nothing to inspect; the pattern guess is all we have.
		return r.finish(r.guessResolution(guess), crawlURL)
	}

	// Stage 7: rendering-requirement scoring.
	score := renderingScore(html, parsed.Host)
	requiresJS := score >= RenderingThreshold

	if requiresJS {
		r.log.Debug("rendering suspected",
			logger.String("url", target), logger.Float64("score", score))

		// Stage 8: hidden-API detection, only when rendering is
		// suspected. A hit wins immediately.
		if resolution := r.detectHiddenAPI(ctx, target); resolution != nil {
			return r.finish(resolution, crawlURL)
		}
	}

	// Stage 9: heuristic and assisted selector detection.
	resolution := r.detectSelectors(ctx, target, html, guess, requiresJS, score)
	if resolution != nil && resolution.Confidence >= ConfidenceDefault {
		return r.finish(resolution, crawlURL)
	}

	// Stage 10: terminal fallback.
	terminal := r.guessResolution(guess)
	terminal.RequiresJS = requiresJS

	return r.finish(terminal, crawlURL)
}

// finish applies the crawl URL rewrite and the resolution invariants.
func (r *Resolver) finish(resolution *domain.StrategyResolution, crawlURL string) *domain.StrategyResolution {
	if crawlURL != "" {
		resolution.CrawlURL = crawlURL
	}

	resolution.Normalize()

	r.log.Info("strategy resolved",
		logger.String("technique", resolution.Technique.String()),
		logger.String("method", resolution.Method),
		logger.Float64("confidence", resolution.Confidence))

	return resolution
}

// fetchPage downloads a page with the fetch timeout. Errors degrade to
// an empty page.
func (r *Resolver) fetchPage(ctx context.Context, target string) (html, finalURL string) {
	fetchCtx, cancel := fetch.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	resp, err := r.fetcher.Get(fetchCtx, target)
	if err != nil {
		r.log.Warn("resolution fetch failed",
			logger.String("url", target), logger.Err(err))

		return "", ""
	}

	if !resp.OK() {
		r.log.Warn("resolution fetch status",
			logger.String("url", target), logger.Int("status", resp.StatusCode))

		return "", ""
	}

	return resp.Body, resp.FinalURL
}

// detectHiddenAPI time-boxes the API auto-detector. Absence and failure
// both mean "stage declined".
func (r *Resolver) detectHiddenAPI(ctx context.Context, target string) *domain.StrategyResolution {
	if r.detector == nil {
		return nil
	}

	boxCtx, cancel := fetch.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()

	descriptor, err := r.detector.Detect(boxCtx, target)
	if err != nil {
		r.log.Warn("hidden api detection failed",
			logger.String("url", target), logger.Err(err))

		return nil
	}

	if descriptor == nil {
		return nil
	}

	return &domain.StrategyResolution{
		Technique:  domain.TechniqueAPI,
		Fallbacks:  []domain.Technique{domain.TechniqueRendered, domain.TechniqueStatic},
		API:        descriptor,
		Confidence: ConfidenceAPIFloor,
		Method:     domain.DetectionHiddenAPI,
		RequiresJS: true,
	}
}

// guessResolution turns a URL-pattern guess into the terminal
// resolution, confidence floored.
func (r *Resolver) guessResolution(guess patternGuess) *domain.StrategyResolution {
	confidence := guess.confidence
	if confidence < ConfidenceFloor {
		confidence = ConfidenceFloor
	}

	resolution := &domain.StrategyResolution{
		Technique:  guess.technique,
		Fallbacks:  domain.DefaultFallbacks(guess.technique),
		Confidence: confidence,
		Method:     domain.DetectionFallback,
	}

	if guess.feedURL != "" {
		resolution.FeedURL = guess.feedURL
	}

	return resolution
}

// terminal is the resolution for URLs that cannot even be parsed.
func (r *Resolver) terminal() *domain.StrategyResolution {
	resolution := &domain.StrategyResolution{
		Technique:  domain.TechniqueStatic,
		Fallbacks:  domain.DefaultFallbacks(domain.TechniqueStatic),
		Confidence: ConfidenceFloor,
		Method:     domain.DetectionFallback,
	}
	resolution.Normalize()

	return resolution
}

// ResolveSource resolves a source and writes the decision back onto a
// copy of its config, the shape the persistence layer stores.
func (r *Resolver) ResolveSource(ctx context.Context, src *domain.Source) *domain.StrategyResolution {
	return r.Resolve(ctx, src.EffectiveURL())
}

var _ APIDetector = (*apidetect.Detector)(nil)
