// Package reconcile correlates browser-initiated downloads with the tasks that
// triggered them.
//
// The browser writes into a shared directory with no indication of which click
// produced which file. The engine watches that directory by polling, follows each
// download from its temporary artifact to the completed file, and guarantees that
// no completed file is handed to more than one caller.
package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dashpull/dashpull/internal/events"
	"github.com/dashpull/dashpull/internal/logging"
)

// Intent records a single triggered download while it is being reconciled.
type Intent struct {
	Label       string
	TriggerTime time.Time

	// ExpectedFinalName is the completed file name inferred from the temp artifact.
	ExpectedFinalName string

	// ResolvedPath is set once the file is complete and owned by this intent.
	ResolvedPath string
}

// Resolved reports whether the intent has been bound to a file.
func (i *Intent) Resolved() bool {
	return i.ResolvedPath != ""
}

// Engine reconciles downloads in one directory. It is safe for use by a single
// run.
//
// A claim means the file currently at that path has been handed out, either to
// a resolving intent or as a finalized name. When finalization moves a file away
// its old path is unclaimed so a later download may reuse the name.
type Engine struct {
	opts     Options
	logger   *logging.Logger
	eventBus *events.EventBus
	wake     <-chan struct{}

	mu       sync.Mutex
	claimed  map[string]string  // absolute path -> owning label
	reserved map[string]*Intent // expected file name -> pending intent
}

// NewEngine creates an engine for opts.Dir.
func NewEngine(opts Options, logger *logging.Logger, eventBus *events.EventBus) (*Engine, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("download directory is required")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{
		opts:     opts.withDefaults(),
		logger:   logger,
		eventBus: eventBus,
		claimed:  make(map[string]string),
		reserved: make(map[string]*Intent),
	}, nil
}

// Options returns the effective engine options.
func (e *Engine) Options() Options {
	return e.opts
}

// SetWake installs a channel that interrupts poll waits early, typically a
// Watcher's Wake channel. The fixed poll interval still applies.
func (e *Engine) SetWake(ch <-chan struct{}) {
	e.wake = ch
}

func (e *Engine) path(name string) string {
	return filepath.Join(e.opts.Dir, name)
}

// claim binds path to label. It fails if the path is already owned.
func (e *Engine) claim(path, label string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, taken := e.claimed[path]; taken {
		return false
	}
	e.claimed[path] = label
	return true
}

// unclaim drops path once no handed-out file lives there anymore.
func (e *Engine) unclaim(path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.claimed, filepath.Clean(path))
}

// Claimed reports whether path has been handed out or produced by finalization.
func (e *Engine) Claimed(path string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.claimed[filepath.Clean(path)]
	return ok
}

func (e *Engine) reserve(in *Intent) {
	if in.ExpectedFinalName == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.reserved[in.ExpectedFinalName]; !exists {
		e.reserved[in.ExpectedFinalName] = in
	}
}

func (e *Engine) release(in *Intent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reserved[in.ExpectedFinalName] == in {
		delete(e.reserved, in.ExpectedFinalName)
	}
}

// reservedByOther reports whether name is the expected name of a pending intent other than in.
func (e *Engine) reservedByOther(name string, in *Intent) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	owner, ok := e.reserved[name]
	return ok && owner != in
}

// bind marks the intent resolved to name, claiming the file.
func (e *Engine) bind(in *Intent, name, via string) bool {
	p := e.path(name)
	if !e.claim(p, in.Label) {
		return false
	}
	in.ResolvedPath = p
	e.release(in)

	e.logger.Info().
		Str("label", in.Label).
		Str("file", name).
		Str("via", via).
		Msg("Download resolved")
	e.eventBus.PublishDownload(events.EventDownloadResolved, in.Label, name, p, nil)
	return true
}

// wait sleeps for d or until the wake channel fires. It returns ctx.Err() on cancellation.
func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	case <-e.wake:
	}
	return nil
}

// nextWait returns how long to sleep before the next poll, never past deadline.
func nextWait(interval time.Duration, deadline time.Time) time.Duration {
	if remaining := time.Until(deadline); remaining < interval {
		return remaining
	}
	return interval
}
