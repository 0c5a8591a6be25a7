package tasks

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dashpull/dashpull/internal/browser"
	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/events"
	"github.com/dashpull/dashpull/internal/logging"
	"github.com/dashpull/dashpull/internal/models"
	"github.com/dashpull/dashpull/internal/progress"
	"github.com/dashpull/dashpull/internal/reconcile"
	"github.com/dashpull/dashpull/internal/util/sanitize"
)

// Timeouts bounds every wait an executor performs.
type Timeouts struct {
	Single        time.Duration
	Batch         time.Duration
	ExportButton  time.Duration
	ExportOption  time.Duration
	Metric        time.Duration
	SiblingMetric time.Duration
}

// DefaultTimeouts returns the production waits.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Single:        constants.SingleDownloadTimeout,
		Batch:         constants.BatchDownloadTimeout,
		ExportButton:  constants.ExportButtonTimeout,
		ExportOption:  constants.ExportOptionTimeout,
		Metric:        constants.MetricTimeout,
		SiblingMetric: constants.SiblingMetricTimeout,
	}
}

// Executor runs catalog tasks against one browser session.
// Engine may be nil when no selected task downloads files.
type Executor struct {
	Session  browser.Session
	Engine   *reconcile.Engine
	Catalog  *Catalog
	Timeouts Timeouts
	Display  progress.Display
	logger   *logging.Logger
	eventBus *events.EventBus
	now      func() time.Time
}

// NewExecutor creates an executor with production timeouts.
func NewExecutor(session browser.Session, engine *reconcile.Engine, catalog *Catalog, logger *logging.Logger, eventBus *events.EventBus) *Executor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Executor{
		Session:  session,
		Engine:   engine,
		Catalog:  catalog,
		Timeouts: DefaultTimeouts(),
		Display:  progress.NoOpDisplay{},
		logger:   logger,
		eventBus: eventBus,
		now:      time.Now,
	}
}

// SetClock replaces the clock used for date ranges.
func (x *Executor) SetClock(now func() time.Time) {
	x.now = now
}

// ErrNoDownloadDirectory is returned when a download task runs without an engine.
var ErrNoDownloadDirectory = errors.New("download task requires a download directory")

// Execute runs t and returns its summary rows. Individual report and metric
// failures become failed rows; the error is reserved for failures that stop
// the task as a whole.
func (x *Executor) Execute(ctx context.Context, t *Task) ([]models.Record, error) {
	x.logger.Info().Str("task", t.Name).Str("kind", string(t.Kind)).Msg("Task started")
	switch t.Kind {
	case KindDownload:
		return x.runDownload(ctx, t)
	case KindScrape:
		return x.runScrape(ctx, t)
	case KindRowCount:
		return x.runRowCount(ctx, t)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, t.Kind)
	}
}

// Selector interprets a catalog locator, treating "/" and "(" prefixes as XPath.
func Selector(expr string) browser.Selector {
	if strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, "(") {
		return browser.XPath(expr)
	}
	return browser.CSS(expr)
}

// ReportURL is the page a report is exported from, with its date range applied.
func (x *Executor) ReportURL(r Report) string {
	target := x.Catalog.ResolveURL(r.URL)
	if r.Period == PeriodPreviousMonth {
		start, end := PreviousMonth(x.now())
		target = BuildTargetURL(target, FormatDate(start), FormatDate(end), r.StartParam, r.EndParam)
	}
	return target
}

// startReport opens the export menu of r and clicks the XLSX option under the engine.
func (x *Executor) startReport(ctx context.Context, r Report) (*reconcile.Intent, error) {
	target := x.ReportURL(r)
	x.logger.Info().Str("label", r.Label).Str("url", target).Msg("Opening report")

	if err := x.Session.Navigate(ctx, target); err != nil {
		return nil, err
	}
	if err := x.Session.Click(ctx, Selector(x.Catalog.Selectors.ExportIcon), x.Timeouts.ExportButton); err != nil {
		return nil, fmt.Errorf("open export menu: %w", err)
	}
	option := Selector(x.Catalog.Selectors.XLSXOption)
	if err := x.Session.WaitVisible(ctx, option, x.Timeouts.ExportOption); err != nil {
		return nil, fmt.Errorf("export menu: %w", err)
	}
	return x.Engine.Trigger(ctx, r.Label, func(ctx context.Context) error {
		return x.Session.Click(ctx, option, x.Timeouts.ExportOption)
	})
}

func (x *Executor) runDownload(ctx context.Context, t *Task) ([]models.Record, error) {
	if x.Engine == nil {
		return nil, ErrNoDownloadDirectory
	}

	records := make([]models.Record, 0, len(t.Reports))
	intents := make([]*reconcile.Intent, 0, len(t.Reports))
	for _, r := range t.Reports {
		in, err := x.startReport(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return records, ctx.Err()
			}
			x.logger.Error().Err(err).Str("task", t.Name).Str("label", r.Label).Msg("Export could not be started")
			records = append(records, models.FailedDownloadRecord(t.Name, r.Label, models.StatusFailed, err))
			continue
		}
		intents = append(intents, in)
	}
	if len(intents) == 0 {
		return records, fmt.Errorf("no export could be started for %s", t.Name)
	}

	labels := make([]string, len(intents))
	for i, in := range intents {
		labels[i] = in.Label
	}
	stop := x.display().Begin(labels)
	defer stop()

	if len(t.Reports) == 1 {
		in := intents[0]
		path, err := x.Engine.ResolveOne(ctx, in, x.Timeouts.Single)
		if err != nil {
			if ctx.Err() != nil {
				return records, err
			}
			return append(records, models.FailedDownloadRecord(t.Name, in.Label, models.StatusTimeout, err)), nil
		}
		return append(records, x.finalize(t, in.Label, path)), nil
	}

	timeout := t.BatchTimeout
	if timeout <= 0 {
		timeout = x.Timeouts.Batch
	}
	result, err := x.Engine.ResolveBatch(ctx, intents, timeout)
	if err != nil && ctx.Err() != nil {
		return records, err
	}
	for _, in := range intents {
		path, ok := result.Path(in.Label)
		if !ok {
			records = append(records, models.FailedDownloadRecord(t.Name, in.Label, models.StatusTimeout,
				&reconcile.DownloadTimeoutError{Label: in.Label, Timeout: timeout}))
			continue
		}
		records = append(records, x.finalize(t, in.Label, path))
	}
	return records, nil
}

// finalize names a resolved file after its label. A rename failure keeps the
// download under its browser name and is still a successful row.
func (x *Executor) finalize(t *Task, label, path string) models.Record {
	final, err := x.Engine.FinalizeName(path, label)
	rec := models.DownloadRecord(t.Name, label, final)
	if err != nil {
		rec.Reason = err.Error()
	}
	return rec
}

func (x *Executor) display() progress.Display {
	if x.Display == nil {
		return progress.NoOpDisplay{}
	}
	return x.Display
}

// ScalarCardSelector locates the value of the dashboard card titled title.
func (x *Executor) ScalarCardSelector(title string) browser.Selector {
	return Selector(strings.ReplaceAll(x.Catalog.Selectors.ScalarCard, "{title}", XPathLiteral(title)))
}

func (x *Executor) runScrape(ctx context.Context, t *Task) ([]models.Record, error) {
	target := x.Catalog.ResolveURL(t.URL)
	if t.DateFilter {
		target = DateFilterURL(target, x.now())
	}
	x.logger.Info().Str("task", t.Name).Str("url", target).Msg("Opening dashboard")
	if err := x.Session.Navigate(ctx, target); err != nil {
		return nil, err
	}

	records := make([]models.Record, 0, len(t.Metrics))
	for i, m := range t.Metrics {
		timeout := x.Timeouts.SiblingMetric
		if i == 0 {
			timeout = x.Timeouts.Metric
		}
		metric, err := x.readMetric(ctx, m.Label, x.ScalarCardSelector(m.Card), timeout, ParseScalar)
		if err != nil {
			return records, err
		}
		records = append(records, x.recordMetric(t, metric))
	}
	return records, nil
}

func (x *Executor) runRowCount(ctx context.Context, t *Task) ([]models.Record, error) {
	target := x.Catalog.ResolveURL(t.URL)
	if t.DateFilter {
		target = DateFilterURL(target, x.now())
	}
	x.logger.Info().Str("task", t.Name).Str("url", target).Msg("Opening question")
	if err := x.Session.Navigate(ctx, target); err != nil {
		return nil, err
	}
	metric, err := x.readMetric(ctx, t.Label, Selector(x.Catalog.Selectors.RowCount), x.Timeouts.Metric, ParseRowCount)
	if err != nil {
		return nil, err
	}
	return []models.Record{x.recordMetric(t, metric)}, nil
}

// readMetric reads and parses one value. Only cancellation is returned as an
// error; a missing element or unreadable text becomes a typed metric.
func (x *Executor) readMetric(ctx context.Context, label string, sel browser.Selector, timeout time.Duration, parse func(string) (int64, error)) (models.Metric, error) {
	text, err := x.Session.Text(ctx, sel, timeout)
	if err != nil {
		if ctx.Err() != nil {
			return models.Metric{}, ctx.Err()
		}
		return models.MetricNotFound(label, err.Error()), nil
	}
	v, err := parse(text)
	if err != nil {
		return models.MetricParseFailed(label, sanitize.SanitizeField(text), err), nil
	}
	return models.NewMetric(label, v), nil
}

func (x *Executor) recordMetric(t *Task, m models.Metric) models.Record {
	if m.OK() {
		x.logger.Info().Str("task", t.Name).Str("label", m.Label).Int64("value", m.Value).Msg("Metric scraped")
	} else {
		x.logger.Warn().Str("task", t.Name).Str("label", m.Label).Str("status", string(m.Status)).Str("reason", m.Reason).Msg("Metric unavailable")
	}
	if x.eventBus != nil {
		x.eventBus.Publish(&events.MetricEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventMetricScraped, Time: time.Now()},
			Task:      t.Name,
			Label:     m.Label,
			Value:     m.Value,
			Status:    string(m.Status),
			Reason:    m.Reason,
		})
	}
	return models.MetricRecord(t.Name, m)
}

// ParseScalar parses a card value such as "12,345".
func ParseScalar(text string) (int64, error) {
	s := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	if s == "" {
		return 0, errors.New("empty value")
	}
	return strconv.ParseInt(s, 10, 64)
}

var rowCountPattern = regexp.MustCompile(`Showing ([\d,]+) rows`)

// ParseRowCount extracts N from "Showing N rows".
func ParseRowCount(text string) (int64, error) {
	m := rowCountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, errors.New("no row count in text")
	}
	return ParseScalar(m[1])
}

// XPathLiteral quotes s for use inside an XPath expression.
func XPathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
