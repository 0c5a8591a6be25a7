package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dashpull/dashpull/internal/events"
)

// BatchResult maps the labels of a batch to their resolved paths.
// It is read-only once returned.
type BatchResult struct {
	labels []string
	paths  map[string]string
}

func newBatchResult(intents []*Intent) *BatchResult {
	r := &BatchResult{
		labels: make([]string, 0, len(intents)),
		paths:  make(map[string]string, len(intents)),
	}
	for _, in := range intents {
		r.labels = append(r.labels, in.Label)
	}
	return r
}

// Path returns the resolved path for label.
func (r *BatchResult) Path(label string) (string, bool) {
	p, ok := r.paths[label]
	return p, ok
}

// Resolved returns a copy of the label -> path mapping for resolved labels.
func (r *BatchResult) Resolved() map[string]string {
	out := make(map[string]string, len(r.paths))
	for k, v := range r.paths {
		out[k] = v
	}
	return out
}

// Unresolved returns the labels without a path, in batch order.
func (r *BatchResult) Unresolved() []string {
	var out []string
	for _, label := range r.labels {
		if _, ok := r.paths[label]; !ok {
			out = append(out, label)
		}
	}
	return out
}

// Labels returns every label of the batch in order.
func (r *BatchResult) Labels() []string {
	return append([]string(nil), r.labels...)
}

// ResolveBatch resolves several intents against the same directory within one
// shared timeout. Each poll first binds intents whose expected file is complete,
// then runs the fallback scan in trigger order, skipping files another pending
// intent expects. The wait ends early only when every intent is resolved and no
// temp artifact remains.
//
// On timeout the result still carries every resolved label and the error is a
// *BatchTimeoutError naming the others.
func (e *Engine) ResolveBatch(ctx context.Context, intents []*Intent, timeout time.Duration) (*BatchResult, error) {
	result := newBatchResult(intents)
	taken := make(map[string]struct{}) // names bound during this batch

	var pending []*Intent
	for _, in := range intents {
		if in.Resolved() {
			result.paths[in.Label] = in.ResolvedPath
			e.claim(in.ResolvedPath, in.Label)
			continue
		}
		e.reserve(in)
		pending = append(pending, in)
	}
	defer func() {
		for _, in := range pending {
			e.release(in)
		}
	}()

	// Earlier clicks get first pick of fallback candidates.
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].TriggerTime.Before(pending[j].TriggerTime)
	})

	e.logger.Info().Int("pending", len(pending)).Int("total", len(intents)).Dur("timeout", timeout).Msg("Waiting for batch downloads")

	deadline := time.Now().Add(timeout)
	for {
		l, err := scanDir(e.opts.Dir)
		if err != nil {
			return result, err
		}

		pending = e.batchPass(pending, l, result, taken)

		tempsRemain := l.hasSuffix(e.opts.TempSuffix)
		if len(pending) == 0 && !tempsRemain {
			return result, nil
		}

		if !time.Now().Before(deadline) {
			if len(pending) == 0 {
				e.logger.Warn().Msg("Batch resolved but temp files remain in the download directory")
				return result, nil
			}
			labels := make([]string, 0, len(pending))
			for _, in := range pending {
				labels = append(labels, in.Label)
				e.eventBus.PublishDownload(events.EventDownloadTimeout, in.Label, in.ExpectedFinalName, "", nil)
			}
			e.logger.Warn().Strs("labels", labels).Dur("timeout", timeout).Msg("Batch downloads timed out")
			return result, &BatchTimeoutError{Labels: labels, Timeout: timeout}
		}

		if err := e.wait(ctx, nextWait(e.opts.PollInterval, deadline)); err != nil {
			return result, fmt.Errorf("waiting for batch downloads: %w", err)
		}
	}
}

// batchPass runs one expected-name pass and one fallback pass over l and returns
// the intents still pending.
func (e *Engine) batchPass(pending []*Intent, l listing, result *BatchResult, taken map[string]struct{}) []*Intent {
	bindTo := func(in *Intent, name, via string) bool {
		if !e.bind(in, name, via) {
			return false
		}
		taken[name] = struct{}{}
		result.paths[in.Label] = in.ResolvedPath
		return true
	}

	remaining := pending[:0:0]
	for _, in := range pending {
		if _, dup := taken[in.ExpectedFinalName]; !dup && e.matchExpected(in, l) && bindTo(in, in.ExpectedFinalName, "expected") {
			continue
		}
		remaining = append(remaining, in)
	}

	skip := func(name string) bool {
		_, ok := taken[name]
		return ok
	}
	still := remaining[:0:0]
	for _, in := range remaining {
		if name, ok := e.matchFallback(in, l, skip); ok && bindTo(in, name, "fallback") {
			continue
		}
		still = append(still, in)
	}
	return still
}
