package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dashpull/dashpull/internal/config"
	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/events"
	"github.com/dashpull/dashpull/internal/http"
	"github.com/dashpull/dashpull/internal/logging"
	"github.com/dashpull/dashpull/internal/progress"
	"github.com/dashpull/dashpull/internal/publish"
	"github.com/dashpull/dashpull/internal/runner"
	"github.com/dashpull/dashpull/internal/tasks"
)

type runOptions struct {
	taskIDs     []string
	all         bool
	downloadDir string
	outputDir   string
	catalog     string
	noVPN       bool
	headless    bool
	noNotify    bool
	noPublish   bool
}

// newRunCmd creates the 'run' command.
func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run dashboard tasks",
		Long: `Sign in and execute catalog tasks in order.

Download tasks export one or more reports and rename each file after its
report label. Scrape tasks read metric cards; row-count tasks read the row
total of a question. A summary spreadsheet is written at the end.

Without --tasks or --all an interactive menu is shown.

Examples:
  dashpull run --all
  dashpull run --tasks 1,3 --headless
  dashpull run --tasks 2 --download-dir ./exports --no-vpn`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasks(cmd, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.taskIDs, "tasks", "t", nil, "Task ids to run, comma-separated")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Run every task without prompting")
	cmd.Flags().StringVar(&opts.downloadDir, "download-dir", "", "Browser download directory (overrides config)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Directory for finalized files (defaults to the download directory)")
	cmd.Flags().StringVar(&opts.catalog, "catalog", "", "YAML task catalog (overrides config)")
	cmd.Flags().BoolVar(&opts.noVPN, "no-vpn", false, "Do not toggle the VPN")
	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run the browser without a window")
	cmd.Flags().BoolVar(&opts.noNotify, "no-notify", false, "Disable desktop notifications")
	cmd.Flags().BoolVar(&opts.noPublish, "no-publish", false, "Skip publishing even when destinations are configured")
	cmd.MarkFlagsMutuallyExclusive("tasks", "all")

	return cmd
}

func runTasks(cmd *cobra.Command, opts *runOptions) error {
	logger := GetLogger()
	ctx := GetContext()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunOverrides(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	catalog, err := tasks.LoadCatalog(cfg.Tasks.Catalog)
	if err != nil {
		return err
	}

	ids := opts.taskIDs
	if len(ids) == 0 && !opts.all && isInteractive() {
		ids, err = promptTaskSelection(catalog)
		if err != nil {
			return err
		}
	}
	if _, err := catalog.Select(ids); err != nil {
		return err
	}

	if err := ensureCredentials(cfg); err != nil {
		return err
	}

	eventBus := events.NewEventBus(constants.EventBusDefaultBuffer)
	defer eventBus.Close()

	r := runner.New(cfg, catalog, logger, eventBus)
	r.SetDisplay(progress.NewCLIDisplay(eventBus))
	r.SetOutput(cmd.OutOrStdout())

	if !opts.noPublish {
		pub, err := buildPublisher(cfg, logger)
		if err != nil {
			return err
		}
		r.SetPublisher(pub)
	}

	report, err := r.Run(ctx, ids)
	if report != nil {
		logger.Info().
			Str("run_id", report.RunID).
			Int("downloads", report.Counts.Downloads).
			Int("metrics", report.Counts.Metrics).
			Int("failures", report.Counts.Failures).
			Dur("duration", report.Duration).
			Msg("Run finished")
	}
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return fmt.Errorf("run cancelled: %w", err)
		}
		return err
	}
	return nil
}

// applyRunOverrides layers command-line flags over the loaded configuration.
func applyRunOverrides(cmd *cobra.Command, cfg *config.Config, opts *runOptions) {
	if opts.downloadDir != "" {
		cfg.Download.Dir = opts.downloadDir
	}
	if opts.outputDir != "" {
		cfg.Download.OutputDir = opts.outputDir
	}
	if opts.catalog != "" {
		cfg.Tasks.Catalog = opts.catalog
	}
	if opts.noVPN {
		cfg.VPN.Enabled = false
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = opts.headless
	}
	if opts.noNotify {
		cfg.Notifications.Enabled = false
	}
}

// ensureCredentials prompts for whatever login detail is still missing.
func ensureCredentials(cfg *config.Config) error {
	if cfg.Session.Username != "" && cfg.Session.Password != "" {
		return nil
	}
	if !isInteractive() {
		return fmt.Errorf("%w: set %s and %s or run interactively",
			tasks.ErrMissingCredentials, config.EnvUsername, config.EnvPassword)
	}
	if cfg.Session.Username == "" {
		fmt.Print("Username: ")
		var u string
		if _, err := fmt.Scanln(&u); err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
		cfg.Session.Username = strings.TrimSpace(u)
	}
	if cfg.Session.Password == "" {
		p, err := promptSecret("Password")
		if err != nil {
			return err
		}
		cfg.Session.Password = p
	}
	return nil
}

// buildPublisher wires configured destinations through the proxy-aware client.
// It returns nil when nothing is configured.
func buildPublisher(cfg *config.Config, logger *logging.Logger) (*publish.Publisher, error) {
	if !publishConfigured(cfg.Publish) {
		return nil, nil
	}
	if http.NeedsProxyPassword(cfg.Proxy) && isInteractive() {
		p, err := promptSecret(fmt.Sprintf("Proxy password for %s", cfg.Proxy.User))
		if err != nil {
			return nil, err
		}
		cfg.Proxy.Password = p
	}

	client, err := http.NewClient(cfg.Proxy, publishWarmupURL(cfg.Publish), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	pub, err := publish.New(GetContext(), cfg.Publish, client, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure publishing: %w", err)
	}
	return pub, nil
}

func publishConfigured(p config.PublishConfig) bool {
	return p.S3Bucket != "" || p.AzureContainerURL != "" || p.WebhookURL != ""
}

// publishWarmupURL picks a destination reachable without credentials.
func publishWarmupURL(p config.PublishConfig) string {
	switch {
	case p.WebhookURL != "":
		return p.WebhookURL
	case p.AzureContainerURL != "":
		if i := strings.Index(p.AzureContainerURL, "?"); i >= 0 {
			return p.AzureContainerURL[:i]
		}
		return p.AzureContainerURL
	}
	return ""
}
