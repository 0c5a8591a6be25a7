package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/logging"
)

// Config holds browser launch settings.
type Config struct {
	// Bin is the Chrome executable. Empty lets the launcher locate or download one.
	Bin               string
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration

	// DownloadDir receives every file the page downloads.
	DownloadDir string
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return constants.NavigationTimeout
	}
	return c.NavigationTimeout
}

// RodSession implements Session on a single Chrome tab.
type RodSession struct {
	cfg      Config
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	logger   *logging.Logger
}

// Launch starts Chrome and opens a tab. When cfg.DownloadDir is set, downloads
// are allowed and routed there.
func Launch(ctx context.Context, cfg Config, logger *logging.Logger) (*RodSession, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	var downloadDir string
	if cfg.DownloadDir != "" {
		dir, err := filepath.Abs(cfg.DownloadDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve download dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create download dir: %w", err)
		}
		downloadDir = dir
	}

	l := launcher.New().Context(ctx).Headless(cfg.Headless)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	s := &RodSession{cfg: cfg, launcher: l, browser: b, logger: logger}

	if downloadDir != "" {
		if err := (proto.BrowserSetDownloadBehavior{
			Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
			DownloadPath: downloadDir,
		}).Call(b); err != nil {
			s.Close()
			return nil, fmt.Errorf("set download behavior: %w", err)
		}
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	s.page = page

	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		if err := (proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.ViewportWidth,
			Height:            cfg.ViewportHeight,
			DeviceScaleFactor: 1.0,
		}).Call(page); err != nil {
			logger.Warn().Err(err).Msg("Failed to set viewport")
		}
	}

	logger.Info().
		Bool("headless", cfg.Headless).
		Str("download_dir", downloadDir).
		Msg("Browser started")
	return s, nil
}

// Navigate loads url and waits for the load event.
func (s *RodSession) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx).Timeout(s.cfg.navigationTimeout())
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait for %s to load: %w", url, err)
	}
	s.logger.Debug().Str("url", url).Msg("Page loaded")
	return nil
}

func (s *RodSession) find(ctx context.Context, sel Selector, timeout time.Duration) (*rod.Element, error) {
	p := s.page.Context(ctx).Timeout(timeout)

	var (
		el  *rod.Element
		err error
	)
	switch sel.Kind {
	case KindXPath:
		el, err = p.ElementX(sel.Expr)
	default:
		el, err = p.Element(sel.Expr)
	}
	if err != nil {
		return nil, classify(ctx, sel, timeout, err)
	}
	return el, nil
}

// Click waits for sel and clicks it.
func (s *RodSession) Click(ctx context.Context, sel Selector, timeout time.Duration) error {
	el, err := s.find(ctx, sel, timeout)
	if err != nil {
		return err
	}
	return classify(ctx, sel, timeout, el.Click(proto.InputMouseButtonLeft, 1))
}

// Input waits for sel and types text into it.
func (s *RodSession) Input(ctx context.Context, sel Selector, text string, timeout time.Duration) error {
	el, err := s.find(ctx, sel, timeout)
	if err != nil {
		return err
	}
	return classify(ctx, sel, timeout, el.Input(text))
}

// WaitVisible waits until sel exists and is visible.
func (s *RodSession) WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error {
	el, err := s.find(ctx, sel, timeout)
	if err != nil {
		return err
	}
	return classify(ctx, sel, timeout, el.WaitVisible())
}

// Text returns the visible text of sel.
func (s *RodSession) Text(ctx context.Context, sel Selector, timeout time.Duration) (string, error) {
	el, err := s.find(ctx, sel, timeout)
	if err != nil {
		return "", err
	}
	if err := el.WaitVisible(); err != nil {
		return "", classify(ctx, sel, timeout, err)
	}
	text, err := el.Text()
	if err != nil {
		return "", classify(ctx, sel, timeout, err)
	}
	return text, nil
}

// URL returns the current page URL.
func (s *RodSession) URL() (string, error) {
	info, err := s.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// WaitURLChange polls the page URL until it differs from from.
func (s *RodSession) WaitURLChange(ctx context.Context, from string, timeout time.Duration) error {
	return waitURLChange(ctx, s.URL, from, timeout, 200*time.Millisecond)
}

// Close shuts the browser down and removes its temporary profile.
func (s *RodSession) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	s.logger.Debug().Msg("Browser closed")
	return err
}

// waitURLChange polls current until it returns something other than from.
func waitURLChange(ctx context.Context, current func() (string, error), from string, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		u, err := current()
		if err == nil && u != from {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("page did not leave %s within %s", from, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ Session = (*RodSession)(nil)
