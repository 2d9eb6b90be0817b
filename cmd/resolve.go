package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/insight-crawler/internal/domain"
)

// newResolveCommand builds the resolve subcommand: run the detection
// pipeline against a URL and print the decision without persisting
// anything.
func newResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>",
		Short: "Decide the crawling technique for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			res := a.newResolver().Resolve(cmd.Context(), args[0])
			renderResolution(args[0], res)

			return nil
		},
	}
}

// renderResolution prints one resolution as a key/value table.
func renderResolution(url string, res *domain.StrategyResolution) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	t.AppendRow(table.Row{"URL", url})
	t.AppendRow(table.Row{"Technique", res.Technique})
	t.AppendRow(table.Row{"Method", res.Method})
	t.AppendRow(table.Row{"Confidence", fmt.Sprintf("%.2f", res.Confidence)})
	t.AppendRow(table.Row{"Fallbacks", joinTechniques(res.Fallbacks)})

	if res.CrawlURL != "" {
		t.AppendRow(table.Row{"Crawl URL", res.CrawlURL})
	}

	if res.FeedURL != "" {
		t.AppendRow(table.Row{"Feed", res.FeedURL})
	}

	if res.RequiresJS {
		t.AppendRow(table.Row{"Requires JS", "yes"})
	}

	if res.Selectors != nil {
		t.AppendRow(table.Row{"Item selector", res.Selectors.Item})

		if res.Selectors.Container != "" {
			t.AppendRow(table.Row{"Container", res.Selectors.Container})
		}
	}

	if res.API != nil {
		t.AppendRow(table.Row{"API endpoint", res.API.URL})
		t.AppendRow(table.Row{"API items path", res.API.ItemsPath})
	}

	t.Render()
}

func joinTechniques(chain []domain.Technique) string {
	if len(chain) == 0 {
		return "-"
	}

	parts := make([]string, len(chain))
	for i, tech := range chain {
		parts[i] = tech.String()
	}

	return strings.Join(parts, " > ")
}
