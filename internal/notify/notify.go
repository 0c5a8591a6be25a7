// Package notify shows desktop notifications when a run finishes.
// It uses github.com/gen2brain/beeep for cross-platform notification support.
package notify

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/dashpull/dashpull/internal/config"
	"github.com/dashpull/dashpull/internal/logging"
)

const appTitle = "dashpull"

// Sender delivers one notification.
type Sender func(title, message string) error

// Notifier handles desktop notifications.
type Notifier struct {
	logger          *logging.Logger
	enabled         bool
	showRunComplete bool
	showFailures    bool
	notify          Sender
	alert           Sender
	mu              sync.RWMutex
}

// NewNotifier creates a notifier from the [notifications] settings.
func NewNotifier(cfg config.NotificationConfig, logger *logging.Logger) *Notifier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Notifier{
		logger:          logger,
		enabled:         cfg.Enabled,
		showRunComplete: cfg.ShowRunComplete,
		showFailures:    cfg.ShowFailures,
		notify:          func(title, message string) error { return beeep.Notify(title, message, "") },
		alert:           func(title, message string) error { return beeep.Alert(title, message, "") },
	}
}

// SetSenders replaces the notification backends.
func (n *Notifier) SetSenders(notify, alert Sender) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notify = notify
	n.alert = alert
}

// SetEnabled enables or disables notifications.
func (n *Notifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// IsEnabled returns whether notifications are enabled.
func (n *Notifier) IsEnabled() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.enabled
}

// RunComplete reports the outcome of a run. Failures additionally raise an
// alert with the first failure reason when failure alerts are on.
func (n *Notifier) RunComplete(downloads, metrics, failures int, firstFailure string) {
	n.mu.RLock()
	enabled, showDone, showFail := n.enabled, n.showRunComplete, n.showFailures
	notify, alert := n.notify, n.alert
	n.mu.RUnlock()
	if !enabled {
		return
	}

	if showDone {
		msg := fmt.Sprintf("%d files, %d metrics, %d failures", downloads, metrics, failures)
		if err := notify(appTitle+": run complete", msg); err != nil {
			n.logger.Warn().Err(err).Msg("Failed to send run complete notification")
		}
	}

	if showFail && failures > 0 {
		msg := fmt.Sprintf("%d item(s) failed", failures)
		if firstFailure != "" {
			msg += ":\n" + truncate(firstFailure, 100)
		}
		if err := alert(appTitle+" alert", msg); err != nil {
			if err := notify(appTitle+" alert", msg); err != nil {
				n.logger.Error().Err(err).Msg("Failed to send failure notification")
			}
		}
	}
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
