// Package vpn toggles a VPN client profile around a run.
package vpn

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/dashpull/dashpull/internal/logging"
)

// Runner starts an external program. It must not wait for long-lived GUI clients to exit.
type Runner func(ctx context.Context, name string, args ...string) error

// Client connects and disconnects a VPN client shortcut,
// e.g. OpenVPN Connect's --connect-shortcut=<id>.
type Client struct {
	Executable string
	ShortcutID string
	Enabled    bool

	logger *logging.Logger
	run    Runner
}

// NewClient creates a VPN client. A disabled client does nothing.
func NewClient(executable, shortcutID string, enabled bool, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{
		Executable: executable,
		ShortcutID: shortcutID,
		Enabled:    enabled,
		logger:     logger,
		run:        startProcess,
	}
}

// startProcess launches the command without waiting for it.
// VPN GUI clients keep running after handling the shortcut.
func startProcess(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

func (c *Client) shortcut(action string) error {
	if c.Executable == "" || c.ShortcutID == "" {
		return fmt.Errorf("vpn executable and shortcut id are required")
	}
	arg := fmt.Sprintf("--%s-shortcut=%s", action, c.ShortcutID)
	c.logger.Info().Str("action", action).Str("shortcut", c.ShortcutID).Msg("VPN shortcut")
	if err := c.run(context.Background(), c.Executable, arg); err != nil {
		return fmt.Errorf("failed to %s vpn: %w", action, err)
	}
	return nil
}

// Connect asks the client to connect and then waits for the tunnel to come up.
func (c *Client) Connect(ctx context.Context, wait time.Duration) error {
	if !c.Enabled {
		return nil
	}
	if err := c.shortcut("connect"); err != nil {
		return err
	}
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Disconnect asks the client to disconnect. Failures are logged by the caller.
func (c *Client) Disconnect() error {
	if !c.Enabled {
		return nil
	}
	return c.shortcut("disconnect")
}
