package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/events"
	"github.com/dashpull/dashpull/internal/progress"
	"github.com/dashpull/dashpull/internal/runner"
	"github.com/dashpull/dashpull/internal/tasks"
)

// newResolveCmd creates the 'resolve' command.
func newResolveCmd() *cobra.Command {
	var (
		labels      []string
		timeout     time.Duration
		downloadDir string
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Match downloads started by hand to labels",
		Long: `Wait for files appearing in the download directory and rename them after
the given labels, without driving a browser.

Start the exports yourself right after launching this command. Each completed
file is matched to a label in the order the labels are given.

Example:
  dashpull resolve --label "Fleet Report" --label "Billing Report" --timeout 10m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if downloadDir != "" {
				cfg.Download.Dir = downloadDir
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			eventBus := events.NewEventBus(constants.EventBusDefaultBuffer)
			defer eventBus.Close()

			r := runner.New(cfg, &tasks.Catalog{}, GetLogger(), eventBus)
			r.SetOutput(cmd.OutOrStdout())
			r.SetDisplay(progress.NewCLIDisplay(eventBus))

			report, err := r.Resolve(GetContext(), labels, timeout)
			if err != nil {
				return err
			}
			if report.Counts.Failures > 0 {
				return fmt.Errorf("%d of %d labels were not resolved", report.Counts.Failures, len(labels))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&labels, "label", "l", nil, "Label for one expected download (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", constants.SingleDownloadTimeout, "How long to wait for all files")
	cmd.Flags().StringVar(&downloadDir, "download-dir", "", "Directory to watch (overrides config)")
	_ = cmd.MarkFlagRequired("label")

	return cmd
}
