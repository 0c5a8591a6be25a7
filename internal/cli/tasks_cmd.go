package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dashpull/dashpull/internal/tasks"
)

// newTasksCmd creates the 'tasks' command.
func newTasksCmd() *cobra.Command {
	var (
		catalogPath string
		dumpYAML    bool
		detail      bool
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List catalog tasks",
		Long: `List the tasks of the active catalog.

The built-in catalog is used unless the config names one under [tasks] or
--catalog is given. --yaml prints the built-in catalog, a starting point for
a custom one.

Example:
  dashpull tasks --detail
  dashpull tasks --yaml > my-catalog.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if dumpYAML {
				_, err := out.Write(tasks.DefaultCatalogYAML())
				return err
			}

			path := catalogPath
			if path == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				path = cfg.Tasks.Catalog
			}
			catalog, err := tasks.LoadCatalog(path)
			if err != nil {
				return err
			}
			printCatalog(out, catalog, detail)
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML task catalog to list")
	cmd.Flags().BoolVar(&dumpYAML, "yaml", false, "Print the built-in catalog as YAML")
	cmd.Flags().BoolVar(&detail, "detail", false, "Show reports and metrics of each task")

	return cmd
}

func printCatalog(w io.Writer, catalog *tasks.Catalog, detail bool) {
	fmt.Fprintf(w, "%-4s %-10s %s\n", "ID", "KIND", "NAME")
	for _, t := range catalog.Tasks {
		fmt.Fprintf(w, "%-4s %-10s %s\n", t.ID, t.Kind, t.Name)
		if !detail {
			continue
		}
		switch t.Kind {
		case tasks.KindDownload:
			for _, r := range t.Reports {
				if r.Period == tasks.PeriodPreviousMonth {
					fmt.Fprintf(w, "       - %s (previous month)\n", r.Label)
				} else {
					fmt.Fprintf(w, "       - %s\n", r.Label)
				}
			}
		case tasks.KindScrape:
			for _, m := range t.Metrics {
				fmt.Fprintf(w, "       - %s <- %q\n", m.Label, m.Card)
			}
		case tasks.KindRowCount:
			fmt.Fprintf(w, "       - %s\n", t.Label)
		}
	}
}
