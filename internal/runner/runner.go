// Package runner drives a complete run: VPN, browser, login, tasks, summary,
// publishing and notification.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/dashpull/dashpull/internal/aggregate"
	"github.com/dashpull/dashpull/internal/browser"
	"github.com/dashpull/dashpull/internal/config"
	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/diskspace"
	"github.com/dashpull/dashpull/internal/events"
	"github.com/dashpull/dashpull/internal/logging"
	"github.com/dashpull/dashpull/internal/models"
	"github.com/dashpull/dashpull/internal/notify"
	"github.com/dashpull/dashpull/internal/progress"
	"github.com/dashpull/dashpull/internal/publish"
	"github.com/dashpull/dashpull/internal/reconcile"
	"github.com/dashpull/dashpull/internal/tasks"
	"github.com/dashpull/dashpull/internal/vpn"
)

// VPN is the tunnel a run is wrapped in.
type VPN interface {
	Connect(ctx context.Context, wait time.Duration) error
	Disconnect() error
}

// Launcher opens a browser session.
type Launcher func(ctx context.Context, cfg browser.Config, logger *logging.Logger) (browser.Session, error)

// DefaultLauncher launches Chrome through rod.
func DefaultLauncher(ctx context.Context, cfg browser.Config, logger *logging.Logger) (browser.Session, error) {
	return browser.Launch(ctx, cfg, logger)
}

// Report is the outcome of a run.
type Report struct {
	RunID       string
	Records     []models.Record
	Counts      aggregate.Counts
	SummaryPath string
	Published   publish.Result
	Duration    time.Duration
}

// ErrNoTasksSelected is returned when the selection is empty.
var ErrNoTasksSelected = errors.New("no tasks selected")

// Runner executes selected catalog tasks with the configured environment.
type Runner struct {
	cfg       *config.Config
	catalog   *tasks.Catalog
	logger    *logging.Logger
	eventBus  *events.EventBus
	vpn       VPN
	launch    Launcher
	notifier  *notify.Notifier
	publisher *publish.Publisher
	display   progress.Display
	out       io.Writer
	timeouts  *tasks.Timeouts
}

// New creates a runner with production collaborators derived from cfg.
func New(cfg *config.Config, catalog *tasks.Catalog, logger *logging.Logger, eventBus *events.EventBus) *Runner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Runner{
		cfg:      cfg,
		catalog:  catalog,
		logger:   logger,
		eventBus: eventBus,
		vpn:      vpn.NewClient(cfg.VPN.Executable, cfg.VPN.ShortcutID, cfg.VPN.Enabled, logger),
		launch:   DefaultLauncher,
		notifier: notify.NewNotifier(cfg.Notifications, logger),
		display:  progress.NoOpDisplay{},
		out:      os.Stdout,
	}
}

// SetVPN replaces the VPN client.
func (r *Runner) SetVPN(v VPN) { r.vpn = v }

// SetLauncher replaces the browser launcher.
func (r *Runner) SetLauncher(l Launcher) { r.launch = l }

// SetPublisher enables publishing through p.
func (r *Runner) SetPublisher(p *publish.Publisher) { r.publisher = p }

// SetNotifier replaces the notifier.
func (r *Runner) SetNotifier(n *notify.Notifier) { r.notifier = n }

// SetDisplay sets the progress display used while downloads are pending.
func (r *Runner) SetDisplay(d progress.Display) { r.display = d }

// SetOutput sets where the console summary is printed.
func (r *Runner) SetOutput(w io.Writer) { r.out = w }

// SetTimeouts overrides the executor waits.
func (r *Runner) SetTimeouts(t tasks.Timeouts) { r.timeouts = &t }

// executorTimeouts derives waits from the configuration.
func (r *Runner) executorTimeouts() tasks.Timeouts {
	if r.timeouts != nil {
		return *r.timeouts
	}
	t := tasks.DefaultTimeouts()
	if r.cfg.Download.SingleTimeout > 0 {
		t.Single = r.cfg.Download.SingleTimeout
	}
	if r.cfg.Download.BatchTimeout > 0 {
		t.Batch = r.cfg.Download.BatchTimeout
	}
	if r.cfg.Browser.ElementTimeout > 0 {
		t.ExportButton = r.cfg.Browser.ElementTimeout
		t.Metric = r.cfg.Browser.ElementTimeout
	}
	return t
}

func (r *Runner) loginTimeout() time.Duration {
	if r.cfg.Browser.ElementTimeout > 0 && r.cfg.Browser.ElementTimeout < constants.LoginTimeout {
		return r.cfg.Browser.ElementTimeout
	}
	return constants.LoginTimeout
}

// Run executes the tasks named by ids (all tasks when empty) in order. A task
// that fails is recorded and the run moves on. The returned error reports
// setup failures and cancellation; the report is non-nil whenever tasks ran.
func (r *Runner) Run(ctx context.Context, ids []string) (*Report, error) {
	selected, err := r.catalog.Select(ids)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return nil, ErrNoTasksSelected
	}

	start := time.Now()
	runID := uuid.NewString()
	log := r.logger.With().Str("run_id", runID).Logger()
	log.Info().Int("tasks", len(selected)).Msg("Run started")

	if err := r.vpn.Connect(ctx, r.cfg.VPN.ConnectWait); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Msg("VPN connect failed, continuing without it")
	}
	defer func() {
		if err := r.vpn.Disconnect(); err != nil {
			log.Warn().Err(err).Msg("VPN disconnect failed")
		}
	}()

	needsDownload := tasks.AnyDownloads(selected)
	var engine *reconcile.Engine
	if needsDownload {
		engine, err = r.prepareDownloads()
		if err != nil {
			return nil, err
		}
		if r.cfg.Download.Watch {
			w, err := reconcile.NewWatcher(r.cfg.Download.Dir, r.logger)
			if err != nil {
				log.Warn().Err(err).Msg("Directory watch unavailable, polling only")
			} else {
				defer w.Close()
				engine.SetWake(w.Wake())
			}
		}
	}

	bcfg := browser.Config{
		Bin:               r.cfg.Browser.Bin,
		Headless:          r.cfg.Browser.Headless,
		ViewportWidth:     r.cfg.Browser.Width,
		ViewportHeight:    r.cfg.Browser.Height,
		NavigationTimeout: r.cfg.Browser.NavigationTimeout,
	}
	if needsDownload {
		bcfg.DownloadDir = r.cfg.Download.Dir
	}
	session, err := r.launch(ctx, bcfg, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn().Err(err).Msg("Browser close failed")
		}
	}()

	if err := tasks.Login(ctx, session, r.catalog.Selectors, r.cfg.Session.LoginURL,
		r.cfg.Session.Username, r.cfg.Session.Password, r.loginTimeout()); err != nil {
		return nil, err
	}
	log.Info().Msg("Logged in")

	exec := tasks.NewExecutor(session, engine, r.catalog, r.logger, r.eventBus)
	exec.Timeouts = r.executorTimeouts()
	exec.Display = r.display

	collector := aggregate.NewCollector()
	runErr := r.runTasks(ctx, exec, selected, collector)

	report := r.finish(ctx, runID, start, collector)
	return report, runErr
}

// prepareDownloads creates the directories, checks free space and builds the engine.
func (r *Runner) prepareDownloads() (*reconcile.Engine, error) {
	dir := r.cfg.Download.Dir
	for _, d := range []string{dir, r.cfg.OutputDirectory()} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	if err := diskspace.EnsureFreeMB(dir, r.cfg.Download.MinFreeMB, constants.DiskSpaceBufferPercent); err != nil {
		return nil, err
	}
	return reconcile.NewEngine(r.cfg.ReconcileOptions(), r.logger, r.eventBus)
}

func (r *Runner) runTasks(ctx context.Context, exec *tasks.Executor, selected []*tasks.Task, collector *aggregate.Collector) error {
	for _, t := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(r.out, "\n--- Executing: %s ---\n", t.Name)

		records, err := exec.Execute(ctx, t)
		collector.Add(records...)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.Error().Err(err).Str("task", t.Name).Msg("Task failed")
		r.eventBus.Publish(&events.TaskFailedEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventTaskFailed, Time: time.Now()},
			Task:      t.Name,
			Error:     err,
		})
		if len(records) == 0 {
			collector.Add(taskFailure(t, err))
		}
	}
	return nil
}

// taskFailure is the summary row for a task that produced nothing.
func taskFailure(t *tasks.Task, err error) models.Record {
	if t.Downloads() {
		return models.FailedDownloadRecord(t.Name, t.Name, models.StatusFailed, err)
	}
	return models.MetricRecord(t.Name, models.Metric{Label: t.Name, Status: models.StatusFailed, Reason: err.Error()})
}

// finish writes and prints the summary, publishes and notifies.
func (r *Runner) finish(ctx context.Context, runID string, start time.Time, collector *aggregate.Collector) *Report {
	records := collector.Records()
	report := &Report{
		RunID:   runID,
		Records: records,
		Counts:  aggregate.CountRecords(records),
	}

	var files []string
	if len(records) > 0 {
		path := r.cfg.SummaryPath()
		if err := collector.WriteXLSX(path); err != nil {
			r.logger.Error().Err(err).Str("path", path).Msg("Failed to write summary")
		} else {
			report.SummaryPath = path
			fmt.Fprintf(r.out, "\nSummary saved to: %s\n", path)
			files = append(collector.Files(), path)
		}
	}
	collector.PrintSummary(r.out)

	if r.publisher.Enabled() && ctx.Err() == nil {
		pctx, cancel := context.WithTimeout(ctx, constants.PublishTimeout)
		summary := publish.NewRunSummary(runID, start, time.Now(), records)
		report.Published = r.publisher.Publish(pctx, files, summary)
		cancel()
	}

	if r.notifier != nil {
		r.notifier.RunComplete(report.Counts.Downloads, report.Counts.Metrics, report.Counts.Failures, firstFailure(records))
	}

	report.Duration = time.Since(start)
	r.eventBus.Publish(&events.RunCompleteEvent{
		BaseEvent: events.BaseEvent{EventType: events.EventRunComplete, Time: time.Now()},
		RunID:     runID,
		Downloads: report.Counts.Downloads,
		Metrics:   report.Counts.Metrics,
		Failures:  report.Counts.Failures,
		Duration:  report.Duration,
	})
	r.logger.Info().
		Str("run_id", runID).
		Int("downloads", report.Counts.Downloads).
		Int("metrics", report.Counts.Metrics).
		Int("failures", report.Counts.Failures).
		Dur("duration", report.Duration).
		Msg("Run complete")
	return report
}

func firstFailure(records []models.Record) string {
	for _, rec := range records {
		if rec.Failed() {
			if rec.Reason != "" {
				return rec.Name + ": " + rec.Reason
			}
			return rec.Name + ": " + string(rec.Status)
		}
	}
	return ""
}
