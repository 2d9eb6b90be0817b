package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonesrussell/insight-crawler/internal/apidetect"
	"github.com/jonesrussell/insight-crawler/internal/browser"
	"github.com/jonesrussell/insight-crawler/internal/classifier"
	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/dedupe"
	"github.com/jonesrussell/insight-crawler/internal/engine"
	"github.com/jonesrussell/insight-crawler/internal/fetch"
	"github.com/jonesrussell/insight-crawler/internal/logger"
	"github.com/jonesrussell/insight-crawler/internal/metrics"
	"github.com/jonesrussell/insight-crawler/internal/resolver"
	"github.com/jonesrussell/insight-crawler/internal/runner"
	"github.com/jonesrussell/insight-crawler/internal/storage"
	"github.com/jonesrussell/insight-crawler/internal/strategy"

	"github.com/redis/go-redis/v9"
)

// app wires the application graph for one command invocation.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	fetcher *fetch.Client
	browser *browser.Manager
	metrics *metrics.Metrics

	closers []func()
}

// newApp loads configuration and builds the collaborators every
// command needs. Database and Redis connections are opened on demand.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if debug {
		cfg.Log.Level = "debug"
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		fetcher: fetch.NewClient(cfg.Crawler),
		browser: browser.NewManager(cfg.Browser, log),
		metrics: metrics.New(prometheus.DefaultRegisterer),
	}
	a.closers = append(a.closers, a.browser.Close)

	return a, nil
}

// close releases everything the command opened, most recent first.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newResolver builds the detection pipeline with the optional
// classifier and hidden-API stages.
func (a *app) newResolver() *resolver.Resolver {
	opts := []resolver.Option{
		resolver.WithRenderer(a.browser),
	}

	var cls *classifier.Client

	if a.cfg.Classifier.Enabled {
		cls = classifier.NewClient(a.cfg.Classifier.URL,
			classifier.WithTimeout(a.cfg.Classifier.Timeout),
			classifier.WithLogger(a.log))
		opts = append(opts, resolver.WithClassifier(cls))
	}

	var picker apidetect.Picker
	if cls != nil {
		picker = cls
	}

	detector := apidetect.NewDetector(a.browser, picker, a.log)
	opts = append(opts, resolver.WithAPIDetector(detector))

	return resolver.New(a.fetcher, a.cfg.Crawler, a.log, opts...)
}

// newEngine builds the fallback engine over the full strategy set.
func (a *app) newEngine() *engine.Engine {
	registry := strategy.NewRegistry(
		strategy.NewStatic(a.fetcher, a.cfg.Crawler, a.log),
		strategy.NewRendered(a.browser, a.cfg.Crawler, a.log),
		strategy.NewRSS(a.fetcher, a.cfg.Crawler, a.log),
		strategy.NewSitemap(a.fetcher, a.cfg.Crawler, a.log),
		strategy.NewAPI(a.fetcher, a.cfg.Crawler, a.log),
		strategy.NewMedium(a.fetcher, a.cfg.Crawler, a.log),
		strategy.NewNaver(a.fetcher, a.cfg.Crawler, a.log),
		strategy.NewNewsletter(a.fetcher, a.cfg.Crawler, a.log),
	)

	return engine.New(registry, a.cfg.Crawler, a.log,
		engine.WithMetrics(a.metrics))
}

// openStore connects to Postgres and applies the schema.
func (a *app) openStore(ctx context.Context) (*storage.Store, error) {
	db, err := storage.Connect(ctx, a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = db.Close() })

	if err := storage.Migrate(ctx, db); err != nil {
		return nil, err
	}

	return storage.NewStore(db, a.log), nil
}

// openTracker connects to Redis for seen-article tracking. A connection
// failure disables tracking rather than failing the run.
func (a *app) openTracker(ctx context.Context) *dedupe.Tracker {
	client := redis.NewClient(&redis.Options{
		Addr: a.cfg.Redis.Addr,
		DB:   a.cfg.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		a.log.Warn("redis unavailable, new-article counts will include repeats",
			logger.String("addr", a.cfg.Redis.Addr),
			logger.String("error", err.Error()))
		_ = client.Close()

		return nil
	}

	a.closers = append(a.closers, func() { _ = client.Close() })

	return dedupe.NewTracker(client, a.cfg.Redis)
}

// newRunner assembles the batch orchestrator.
func (a *app) newRunner(store *storage.Store, tracker *dedupe.Tracker) *runner.Runner {
	opts := []runner.Option{
		runner.WithResolver(a.newResolver()),
		runner.WithMetrics(a.metrics),
	}

	if tracker != nil {
		opts = append(opts, runner.WithTracker(tracker))
	}

	return runner.New(store, a.newEngine(), a.cfg.Crawler, a.log, opts...)
}
