package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dashpull/dashpull/internal/events"
)

func TestLogger_SetOutput(t *testing.T) {
	var buf bytes.Buffer
	l := NewDefaultCLILogger()
	l.SetOutput(&buf)

	l.Infof("resolved %s", "TV4.xlsx")

	if !strings.Contains(buf.String(), "resolved TV4.xlsx") {
		t.Errorf("expected message in output, got %q", buf.String())
	}
	if l.Output() != &buf {
		t.Error("expected Output to return the configured writer")
	}
}

func TestLogger_WarnfPublishesEvent(t *testing.T) {
	bus := events.NewEventBus(4)
	defer bus.Close()
	ch := bus.Subscribe(events.EventLog)

	l := NewLogger(bus)
	l.SetOutput(&bytes.Buffer{})
	l.Warnf("rename failed for %s", "Uber")

	select {
	case ev := <-ch:
		le := ev.(*events.LogEvent)
		if le.Level != events.WarnLevel {
			t.Errorf("expected WARN, got %s", le.Level)
		}
		if le.Message != "rename failed for Uber" {
			t.Errorf("unexpected message %q", le.Message)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for log event")
	}
}

func TestLogger_AttachFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")

	l := NewLogger(nil)
	l.SetOutput(&bytes.Buffer{})
	if err := l.AttachFile(path); err != nil {
		t.Fatalf("AttachFile failed: %v", err)
	}
	l.Info().Str("label", "Sunland").Msg("download resolved")
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file, got %v", err)
	}
	if !strings.Contains(string(data), `"label":"Sunland"`) {
		t.Errorf("expected JSON field in log file, got %q", string(data))
	}
}

func TestNewRotatingFile_EmptyPath(t *testing.T) {
	if _, err := NewRotatingFile(""); err == nil {
		t.Error("expected error for empty path")
	}
}
