package reconcile

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dashpull/dashpull/internal/events"
)

// Trigger snapshots the download directory, runs click and watches for the
// download to start. The returned intent carries the expected final name when a
// temp artifact was seen, or the resolved path when the file completed during the
// start phase. Not seeing anything within StartTimeout is not an error; later
// resolution falls back to scanning by modification time.
func (e *Engine) Trigger(ctx context.Context, label string, click func(context.Context) error) (*Intent, error) {
	before, err := TakeSnapshot(e.opts.Dir)
	if err != nil {
		return nil, err
	}

	in := &Intent{Label: label, TriggerTime: time.Now()}
	if err := click(ctx); err != nil {
		return nil, fmt.Errorf("failed to trigger download %q: %w", label, err)
	}

	e.logger.Debug().Str("label", label).Int("existing_files", len(before)).Msg("Download triggered")
	e.eventBus.Publish(&events.DownloadEvent{
		BaseEvent:   events.BaseEvent{EventType: events.EventIntentTriggered, Time: time.Now()},
		Label:       label,
		TriggerTime: in.TriggerTime,
	})

	if err := e.watchStart(ctx, in, before); err != nil {
		return in, err
	}
	return in, nil
}

// watchStart polls for the first new artifact belonging to in.
func (e *Engine) watchStart(ctx context.Context, in *Intent, before Snapshot) error {
	deadline := time.Now().Add(e.opts.StartTimeout)

	for {
		l, err := scanDir(e.opts.Dir)
		if err != nil {
			return err
		}

		if name, ok := e.newestNew(in, l, before); ok {
			e.eventBus.PublishDownload(events.EventDownloadStarted, in.Label, name, "", nil)

			if strings.HasSuffix(name, e.opts.TempSuffix) {
				in.ExpectedFinalName = strings.TrimSuffix(name, e.opts.TempSuffix)
				e.reserve(in)
				e.logger.Debug().
					Str("label", in.Label).
					Str("expected", in.ExpectedFinalName).
					Msg("Download in progress")
				return nil
			}
			if e.bind(in, name, "start") {
				return nil
			}
		}

		if !time.Now().Before(deadline) {
			e.logger.Debug().Str("label", in.Label).Msg("No download artifact seen yet, relying on fallback scan")
			return nil
		}
		if err := e.wait(ctx, nextWait(e.opts.StartPollInterval, deadline)); err != nil {
			return fmt.Errorf("waiting for download %q to start: %w", in.Label, err)
		}
	}
}

// newestNew returns the most recently modified file that appeared after the
// snapshot and could belong to in: a temp artifact, or a completed file that no
// other download can account for.
func (e *Engine) newestNew(in *Intent, l listing, before Snapshot) (string, bool) {
	var (
		best     string
		bestTime time.Time
	)
	for _, ent := range l.entries {
		if before.Has(ent.name) || !e.startCandidate(in, ent, l, before) {
			continue
		}
		if best == "" || ent.modTime.After(bestTime) || (ent.modTime.Equal(bestTime) && ent.name > best) {
			best, bestTime = ent.name, ent.modTime
		}
	}
	return best, best != ""
}

func (e *Engine) startCandidate(in *Intent, ent entry, l listing, before Snapshot) bool {
	if strings.HasSuffix(ent.name, e.opts.TempSuffix) {
		return true
	}
	if !e.isArtifact(ent.name) {
		return false
	}
	// A completed file whose temp artifact predates the click belongs to an earlier download.
	if before.Has(ent.name + e.opts.TempSuffix) {
		return false
	}
	return e.fallbackCandidate(in, ent, l)
}

func (e *Engine) isArtifact(name string) bool {
	return strings.EqualFold(filepath.Ext(name), e.opts.Extension)
}

// fallbackCandidate applies the ownership rules shared by the start phase and the
// fallback scan: right extension, not claimed, not reserved by another intent, no
// temp marker, and modified inside the intent's time window.
func (e *Engine) fallbackCandidate(in *Intent, ent entry, l listing) bool {
	if !e.isArtifact(ent.name) {
		return false
	}
	if l.has(ent.name + e.opts.TempSuffix) {
		return false
	}
	if e.Claimed(e.path(ent.name)) || e.reservedByOther(ent.name, in) {
		return false
	}
	if ent.modTime.Before(in.TriggerTime.Add(-e.opts.Slack)) {
		return false
	}
	if e.opts.MaxFileAge > 0 && ent.modTime.After(in.TriggerTime.Add(e.opts.MaxFileAge)) {
		return false
	}
	return true
}

// matchExpected reports whether the expected final file of in is present and complete.
func (e *Engine) matchExpected(in *Intent, l listing) bool {
	name := in.ExpectedFinalName
	if name == "" || !l.has(name) || l.has(name+e.opts.TempSuffix) {
		return false
	}
	return !e.Claimed(e.path(name))
}

// matchFallback returns the earliest-modified eligible file for in.
// skip excludes names already taken in the current pass.
func (e *Engine) matchFallback(in *Intent, l listing, skip func(string) bool) (string, bool) {
	candidates := make([]entry, 0)
	for _, ent := range l.entries {
		if skip != nil && skip(ent.name) {
			continue
		}
		if e.fallbackCandidate(in, ent, l) {
			candidates = append(candidates, ent)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].name < candidates[j].name
		}
		return candidates[i].modTime.Before(candidates[j].modTime)
	})
	return candidates[0].name, true
}

// ResolveOne blocks until in is bound to a completed file, timeout elapses or ctx
// is cancelled. The expected final name is preferred; otherwise the earliest
// eligible file modified after the trigger is taken.
func (e *Engine) ResolveOne(ctx context.Context, in *Intent, timeout time.Duration) (string, error) {
	if in.Resolved() {
		return in.ResolvedPath, nil
	}
	e.reserve(in)
	defer e.release(in)

	deadline := time.Now().Add(timeout)
	for {
		l, err := scanDir(e.opts.Dir)
		if err != nil {
			return "", err
		}

		if e.matchExpected(in, l) && e.bind(in, in.ExpectedFinalName, "expected") {
			return in.ResolvedPath, nil
		}
		if name, ok := e.matchFallback(in, l, nil); ok && e.bind(in, name, "fallback") {
			return in.ResolvedPath, nil
		}

		if !time.Now().Before(deadline) {
			e.logger.Warn().Str("label", in.Label).Dur("timeout", timeout).Msg("Download timed out")
			e.eventBus.PublishDownload(events.EventDownloadTimeout, in.Label, in.ExpectedFinalName, "", nil)
			return "", &DownloadTimeoutError{Label: in.Label, Timeout: timeout}
		}
		if err := e.wait(ctx, nextWait(e.opts.PollInterval, deadline)); err != nil {
			return "", fmt.Errorf("waiting for download %q: %w", in.Label, err)
		}
	}
}
