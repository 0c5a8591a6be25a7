package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/dashpull/dashpull/internal/events"
)

// labelState is what a batch line shows next to its label.
type labelState struct {
	status string
	file   string
}

// WaitUI shows one spinner line per label during a batch wait.
type WaitUI struct {
	progress *mpb.Progress
	mu       sync.Mutex
	bars     map[string]*mpb.Bar
	states   map[string]*labelState
	closed   bool
}

// NewWaitUI creates spinner lines for labels on w.
func NewWaitUI(w io.Writer, labels []string) *WaitUI {
	u := &WaitUI{
		progress: mpb.New(
			mpb.WithOutput(writerOrDiscard(w)),
			mpb.WithRefreshRate(150*time.Millisecond),
			mpb.WithWidth(60),
		),
		bars:   make(map[string]*mpb.Bar, len(labels)),
		states: make(map[string]*labelState, len(labels)),
	}

	for i, label := range labels {
		st := &labelState{status: "waiting"}
		u.states[label] = st
		name := fmt.Sprintf("[%d/%d] %s", i+1, len(labels), label)

		u.bars[label] = u.progress.New(0,
			mpb.SpinnerStyle(),
			mpb.PrependDecorators(
				decor.Name(name, decor.WCSyncSpaceR),
			),
			mpb.AppendDecorators(
				decor.Any(func(decor.Statistics) string {
					u.mu.Lock()
					defer u.mu.Unlock()
					if st.file != "" {
						return fmt.Sprintf("%s (%s)", st.status, st.file)
					}
					return st.status
				}, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Elapsed(decor.ET_STYLE_GO),
			),
		)
	}
	return u
}

// Follow applies reconciliation events to the lines until ch is closed.
func (u *WaitUI) Follow(ch <-chan events.Event) {
	for ev := range ch {
		dl, ok := ev.(*events.DownloadEvent)
		if !ok {
			continue
		}
		switch dl.Type() {
		case events.EventDownloadStarted:
			u.Update(dl.Label, "downloading", dl.Name)
		case events.EventDownloadResolved:
			u.Complete(dl.Label, dl.Name, nil)
		case events.EventDownloadTimeout:
			u.Complete(dl.Label, "", fmt.Errorf("timed out"))
		}
	}
}

// Update changes the status text for label.
func (u *WaitUI) Update(label, status, file string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if st, ok := u.states[label]; ok {
		st.status = status
		if file != "" {
			st.file = file
		}
	}
}

// Complete marks label finished. A failed label keeps its line on screen.
func (u *WaitUI) Complete(label, file string, err error) {
	u.mu.Lock()
	st, ok := u.states[label]
	bar := u.bars[label]
	if ok {
		if err != nil {
			st.status = "failed: " + err.Error()
		} else {
			st.status = "done"
			if file != "" {
				st.file = file
			}
		}
	}
	u.mu.Unlock()

	if bar == nil {
		return
	}
	if err != nil {
		bar.Abort(false)
		return
	}
	bar.SetTotal(-1, true)
}

// Close ends every remaining line and waits for the final render.
func (u *WaitUI) Close() {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return
	}
	u.closed = true
	bars := make([]*mpb.Bar, 0, len(u.bars))
	for _, b := range u.bars {
		bars = append(bars, b)
	}
	u.mu.Unlock()

	for _, b := range bars {
		if !b.Completed() && !b.Aborted() {
			b.Abort(false)
		}
	}
	u.progress.Wait()
}

// Status returns the current status text of label.
func (u *WaitUI) Status(label string) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if st, ok := u.states[label]; ok {
		return st.status
	}
	return ""
}
