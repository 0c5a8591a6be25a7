package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dashpull/dashpull/internal/aggregate"
	"github.com/dashpull/dashpull/internal/models"
	"github.com/dashpull/dashpull/internal/reconcile"
)

// ErrNoLabels is returned when Resolve is called without labels.
var ErrNoLabels = errors.New("at least one label is required")

// Resolve reconciles downloads started by hand in the download directory.
// Every label gets an intent triggered now; files that complete within timeout
// are matched, finalized under their label and summarised.
func (r *Runner) Resolve(ctx context.Context, labels []string, timeout time.Duration) (*Report, error) {
	if len(labels) == 0 {
		return nil, ErrNoLabels
	}
	for _, d := range []string{r.cfg.Download.Dir, r.cfg.OutputDirectory()} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}

	engine, err := reconcile.NewEngine(r.cfg.ReconcileOptions(), r.logger, r.eventBus)
	if err != nil {
		return nil, err
	}
	if r.cfg.Download.Watch {
		if w, err := reconcile.NewWatcher(r.cfg.Download.Dir, r.logger); err == nil {
			defer w.Close()
			engine.SetWake(w.Wake())
		}
	}

	start := time.Now()
	intents := make([]*reconcile.Intent, len(labels))
	for i, label := range labels {
		intents[i] = &reconcile.Intent{Label: label, TriggerTime: start}
	}

	stop := r.display.Begin(labels)
	result, err := engine.ResolveBatch(ctx, intents, timeout)
	stop()
	if err != nil && ctx.Err() != nil {
		return nil, err
	}

	collector := aggregate.NewCollector()
	for _, label := range labels {
		path, ok := result.Path(label)
		if !ok {
			collector.Add(models.FailedDownloadRecord("resolve", label, models.StatusTimeout,
				&reconcile.DownloadTimeoutError{Label: label, Timeout: timeout}))
			continue
		}
		final, ferr := engine.FinalizeName(path, label)
		rec := models.DownloadRecord("resolve", label, final)
		if ferr != nil {
			rec.Reason = ferr.Error()
		}
		collector.Add(rec)
	}

	records := collector.Records()
	collector.PrintSummary(r.out)
	return &Report{
		Records:  records,
		Counts:   aggregate.CountRecords(records),
		Duration: time.Since(start),
	}, nil
}
