package cmd

import (
	"os"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/insight-crawler/internal/domain"
)

// newSourcesCommand groups source management subcommands.
func newSourcesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage registered sources",
	}

	cmd.AddCommand(newSourcesListCommand())
	cmd.AddCommand(newSourcesAddCommand())

	return cmd
}

func newSourcesListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			sources, err := store.ActiveSources(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "URL", "Technique", "Priority", "Last crawled"})

			for i := range sources {
				src := &sources[i]

				last := "-"
				if src.LastCrawledAt != nil {
					last = src.LastCrawledAt.Format("2006-01-02 15:04")
				}

				t.AppendRow(table.Row{src.ID, src.Name, src.URL, src.Technique, src.Priority, last})
			}

			t.Render()

			return nil
		},
	}
}

func newSourcesAddCommand() *cobra.Command {
	var (
		name     string
		category string
		priority int
	)

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a source; the technique is resolved on first crawl",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}

			src := &domain.Source{
				ID:        uuid.NewString(),
				Name:      name,
				URL:       args[0],
				Technique: domain.TechniqueAuto,
				Active:    true,
				Priority:  priority,
				Config:    domain.SourceConfig{Category: category},
			}

			if src.Name == "" {
				src.Name = args[0]
			}

			if err := store.SaveSource(cmd.Context(), src); err != nil {
				return err
			}

			cmd.Printf("registered %s as %s\n", args[0], src.ID)

			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&category, "category", "", "category attached to every article")
	cmd.Flags().IntVar(&priority, "priority", 0, "batch ordering priority, higher runs first")

	return cmd
}
