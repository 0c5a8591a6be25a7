package notify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dashpull/dashpull/internal/config"
)

type recorder struct {
	titles   []string
	messages []string
	err      error
}

func (r *recorder) send(title, message string) error {
	r.titles = append(r.titles, title)
	r.messages = append(r.messages, message)
	return r.err
}

func newTestNotifier(cfg config.NotificationConfig) (*Notifier, *recorder, *recorder) {
	n := NewNotifier(cfg, nil)
	notify, alert := &recorder{}, &recorder{}
	n.SetSenders(notify.send, alert.send)
	return n, notify, alert
}

func TestRunComplete(t *testing.T) {
	n, notify, alert := newTestNotifier(config.NotificationConfig{Enabled: true, ShowRunComplete: true, ShowFailures: true})

	n.RunComplete(4, 3, 0, "")
	assert.Equal(t, []string{"4 files, 3 metrics, 0 failures"}, notify.messages)
	assert.Empty(t, alert.messages)

	n.RunComplete(1, 0, 2, "Sunland_Transactions: download timed out")
	assert.Len(t, notify.messages, 2)
	assert.Equal(t, []string{"2 item(s) failed:\nSunland_Transactions: download timed out"}, alert.messages)
}

func TestRunComplete_AlertFallsBackToNotify(t *testing.T) {
	n, notify, alert := newTestNotifier(config.NotificationConfig{Enabled: true, ShowFailures: true})
	alert.err = errors.New("no alert support")

	n.RunComplete(0, 0, 1, "")
	assert.Len(t, alert.messages, 1)
	assert.Equal(t, []string{"1 item(s) failed"}, notify.messages)
}

func TestRunComplete_Gated(t *testing.T) {
	n, notify, alert := newTestNotifier(config.NotificationConfig{Enabled: false, ShowRunComplete: true, ShowFailures: true})
	n.RunComplete(1, 1, 1, "x")
	assert.Empty(t, notify.messages)
	assert.Empty(t, alert.messages)

	n.SetEnabled(true)
	assert.True(t, n.IsEnabled())
	n.RunComplete(1, 1, 1, "x")
	assert.Len(t, notify.messages, 1)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10c", 10, "exactly10c"},
		{"this is a long string", 10, "this is..."},
		{"", 10, ""},
		{"abcd", 3, "..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, truncate(tt.input, tt.maxLen))
	}
}
