package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/insight-crawler/internal/domain"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

const previewColumnWidth = 60

// newCrawlCommand builds the crawl subcommand. Without arguments it
// runs every active source from the database; with --url it crawls one
// URL ad hoc, resolving it first and printing the articles instead of
// persisting them.
func newCrawlCommand() *cobra.Command {
	var (
		adhocURL    string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "crawl [source-id]",
		Short: "Run crawls through the fallback engine",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			if metricsAddr != "" {
				serveMetrics(a, metricsAddr)
			}

			if adhocURL != "" {
				return crawlAdhoc(a, cmd, adhocURL)
			}

			return crawlStored(a, cmd, args)
		},
	}

	cmd.Flags().StringVar(&adhocURL, "url", "", "crawl one URL without touching the database")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while crawling")

	return cmd
}

// crawlAdhoc resolves and crawls a URL that is not registered as a
// source.
func crawlAdhoc(a *app, cmd *cobra.Command, url string) error {
	ctx := cmd.Context()

	src := &domain.Source{
		ID:        "adhoc-" + uuid.NewString(),
		Name:      url,
		URL:       url,
		Technique: domain.TechniqueAuto,
	}

	res := a.newResolver().ResolveSource(ctx, src)
	src.ApplyResolution(res, time.Now())

	renderResolution(url, res)

	articles, result := a.newEngine().Crawl(ctx, src)

	renderArticles(articles)
	renderResults([]domain.CrawlResult{*result})

	return nil
}

// crawlStored runs registered sources: all active ones, or a single
// source when an identifier is given.
func crawlStored(a *app, cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}

	r := a.newRunner(store, a.openTracker(ctx))

	if len(args) == 1 {
		src, getErr := store.GetSource(ctx, args[0])
		if getErr != nil {
			return getErr
		}

		result := r.RunSource(ctx, uuid.NewString(), src)
		renderResults([]domain.CrawlResult{*result})

		return nil
	}

	results, err := r.RunAll(ctx)
	if err != nil {
		return err
	}

	renderResults(results)

	return nil
}

// serveMetrics exposes the Prometheus endpoint for the lifetime of the
// command.
func serveMetrics(a *app, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", logger.String("error", err.Error()))
		}
	}()

	a.closers = append(a.closers, func() { _ = srv.Close() })
}

// renderResults prints one row per source run.
func renderResults(results []domain.CrawlResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Source", "Technique", "Found", "New", "Attempts", "Errors"})

	for i := range results {
		r := &results[i]

		technique := r.Technique.String()
		if technique == "" {
			technique = "-"
		}

		t.AppendRow(table.Row{r.SourceID, technique, r.Found, r.New, len(r.Attempts), len(r.Errors)})
	}

	t.Render()

	for i := range results {
		for _, e := range results[i].Errors {
			fmt.Printf("  %s: %s\n", results[i].SourceID, e)
		}
	}
}

// renderArticles prints harvested articles for ad-hoc crawls.
func renderArticles(articles []domain.CrawledArticle) {
	if len(articles) == 0 {
		fmt.Println("no articles harvested")

		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Title", "Published", "URL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: previewColumnWidth, WidthMaxEnforcer: text.WrapText},
	})

	for i := range articles {
		published := articles[i].PublishedAt
		if published == "" {
			published = "-"
		}

		t.AppendRow(table.Row{articles[i].Title, published, articles[i].URL})
	}

	t.Render()
}
