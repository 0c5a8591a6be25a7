package reconcile

import (
	"fmt"

	"github.com/fsnotify/fsnotify"

	"github.com/dashpull/dashpull/internal/logging"
)

// Watcher turns filesystem notifications on the download directory into wake-ups
// for the engine's poll loops. Notifications only shorten a wait; every decision
// is still made from a fresh directory scan.
type Watcher struct {
	fsw    *fsnotify.Watcher
	wake   chan struct{}
	done   chan struct{}
	logger *logging.Logger
}

// NewWatcher starts watching dir.
func NewWatcher(dir string, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		fsw:    fsw,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go w.loop()
	return w, nil
}

// Wake returns the channel signalled after a file is created, renamed or removed.
func (w *Watcher) Wake() <-chan struct{} {
	return w.wake
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			// Writes to a growing temp file carry no new information.
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Debug().Err(err).Msg("Download directory watcher error")
		}
	}
}
