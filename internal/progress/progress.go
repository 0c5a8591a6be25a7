// Package progress shows download waits on the terminal.
package progress

import (
	"io"
	"os"

	"golang.org/x/term"

	"github.com/dashpull/dashpull/internal/events"
)

// Display shows activity while the engine waits for downloads.
type Display interface {
	// Begin starts showing progress for labels. The returned stop function
	// removes the display and must be called exactly once.
	Begin(labels []string) (stop func())
}

// CLIDisplay renders a spinner for single waits and one line per label for batches.
// It follows reconciliation events from the bus to mark labels done.
type CLIDisplay struct {
	eventBus   *events.EventBus
	out        *os.File
	isTerminal bool
}

// NewCLIDisplay creates a terminal display writing to stderr.
func NewCLIDisplay(eventBus *events.EventBus) *CLIDisplay {
	isTerminal := term.IsTerminal(int(os.Stderr.Fd()))
	if isTerminal {
		enableANSI(os.Stderr)
	}
	return &CLIDisplay{
		eventBus:   eventBus,
		out:        os.Stderr,
		isTerminal: isTerminal,
	}
}

// IsTerminal returns true if output is to a terminal (progress bars are active)
func (d *CLIDisplay) IsTerminal() bool {
	return d.isTerminal
}

// Begin implements Display.
func (d *CLIDisplay) Begin(labels []string) func() {
	if !d.isTerminal || len(labels) == 0 {
		return func() {}
	}
	if len(labels) == 1 {
		s := StartSpinner(d.out, "Waiting for "+labels[0])
		return s.Stop
	}

	ui := NewWaitUI(d.out, labels)
	if d.eventBus == nil {
		return ui.Close
	}
	ch := d.eventBus.SubscribeAll()
	done := make(chan struct{})
	go func() {
		defer close(done)
		ui.Follow(ch)
	}()
	return func() {
		d.eventBus.UnsubscribeAll(ch)
		<-done
		ui.Close()
	}
}

// NoOpDisplay shows nothing (tests, non-interactive runs).
type NoOpDisplay struct{}

// Begin does nothing.
func (NoOpDisplay) Begin([]string) func() { return func() {} }

var _ Display = (*CLIDisplay)(nil)
var _ Display = NoOpDisplay{}

// writerOrDiscard guards against a nil writer.
func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
