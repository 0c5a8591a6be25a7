package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dashpull/dashpull/internal/constants"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Download.PollInterval != constants.PollInterval {
		t.Errorf("Expected PollInterval=%v, got %v", constants.PollInterval, cfg.Download.PollInterval)
	}
	if cfg.Download.StartPollInterval != 500*time.Millisecond {
		t.Errorf("Expected StartPollInterval=500ms, got %v", cfg.Download.StartPollInterval)
	}
	if cfg.Download.BatchTimeout != 15*time.Minute {
		t.Errorf("Expected BatchTimeout=15m, got %v", cfg.Download.BatchTimeout)
	}
	if cfg.Download.MaxFileAge != 0 {
		t.Errorf("Expected MaxFileAge disabled, got %v", cfg.Download.MaxFileAge)
	}
	if cfg.VPN.Enabled {
		t.Error("Expected VPN disabled by default")
	}
	if !cfg.Notifications.Enabled {
		t.Error("Expected notifications enabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.conf"))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cfg.Session.LoginURL != defaultLoginURL {
		t.Errorf("Expected default login URL, got %s", cfg.Session.LoginURL)
	}
}

func TestConfigLoadSave(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")

	configPath := filepath.Join(t.TempDir(), "dashpull.conf")

	cfg := NewConfig()
	cfg.Session.Username = "analyst"
	cfg.Session.Password = "secret"
	cfg.Download.Dir = "/test/downloads"
	cfg.Download.OutputDir = "/test/reports"
	cfg.Download.PollInterval = 2 * time.Second
	cfg.Download.MaxFileAge = 10 * time.Minute
	cfg.Download.Watch = false
	cfg.VPN.Enabled = true
	cfg.VPN.Executable = "/usr/bin/vpn"
	cfg.VPN.ShortcutID = "1752582150336"
	cfg.Proxy.Mode = "basic"
	cfg.Proxy.Host = "proxy.local"
	cfg.Proxy.Port = 3128
	cfg.Publish.S3Bucket = "reports"
	cfg.Publish.S3Region = "us-east-1"
	cfg.Notifications.ShowFailures = false
	cfg.Tasks.Catalog = "/etc/dashpull/tasks.yaml"

	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(configPath)
		if err != nil {
			t.Fatalf("Failed to stat config: %v", err)
		}
		if perm := info.Mode().Perm(); perm != 0600 {
			t.Errorf("Expected 0600 permissions, got %o", perm)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	if strings.Contains(string(data), "secret") {
		t.Error("Password must not be written to the config file")
	}

	loaded, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Session.Username != "analyst" {
		t.Errorf("Username mismatch: got %s", loaded.Session.Username)
	}
	if loaded.Session.Password != "" {
		t.Errorf("Expected empty password after load, got %s", loaded.Session.Password)
	}
	if loaded.Download.Dir != "/test/downloads" {
		t.Errorf("Dir mismatch: got %s", loaded.Download.Dir)
	}
	if loaded.Download.PollInterval != 2*time.Second {
		t.Errorf("PollInterval mismatch: got %v", loaded.Download.PollInterval)
	}
	if loaded.Download.MaxFileAge != 10*time.Minute {
		t.Errorf("MaxFileAge mismatch: got %v", loaded.Download.MaxFileAge)
	}
	if loaded.Download.Watch {
		t.Error("Watch mismatch: expected false")
	}
	if !loaded.VPN.Enabled || loaded.VPN.ShortcutID != "1752582150336" {
		t.Errorf("VPN mismatch: %+v", loaded.VPN)
	}
	if loaded.Proxy.Port != 3128 || loaded.Proxy.Host != "proxy.local" {
		t.Errorf("Proxy mismatch: %+v", loaded.Proxy)
	}
	if loaded.Publish.S3Bucket != "reports" {
		t.Errorf("S3Bucket mismatch: got %s", loaded.Publish.S3Bucket)
	}
	if loaded.Notifications.ShowFailures {
		t.Error("ShowFailures mismatch: expected false")
	}
	if loaded.Tasks.Catalog != "/etc/dashpull/tasks.yaml" {
		t.Errorf("Catalog mismatch: got %s", loaded.Tasks.Catalog)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "dashpull.conf")
	cfg := NewConfig()
	cfg.Session.Username = "from-file"
	if err := SaveConfig(cfg, configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	t.Setenv(EnvUsername, "from-env")
	t.Setenv(EnvPassword, "pw")

	loaded, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Session.Username != "from-env" {
		t.Errorf("Expected env username, got %s", loaded.Session.Username)
	}
	if loaded.Session.Password != "pw" {
		t.Errorf("Expected env password, got %s", loaded.Session.Password)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "dashpull.conf")
	if err := os.WriteFile(configPath, []byte("[download\ndir = x\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(configPath); err == nil {
		t.Error("Expected error for malformed file")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid defaults", func(c *Config) {}, nil},
		{"missing dir", func(c *Config) { c.Download.Dir = "  " }, ErrMissingDownloadDir},
		{"bad login url", func(c *Config) { c.Session.LoginURL = "metabase/login" }, ErrInvalidLoginURL},
		{"zero poll", func(c *Config) { c.Download.PollInterval = 0 }, ErrInvalidPollInterval},
		{"zero batch timeout", func(c *Config) { c.Download.BatchTimeout = 0 }, ErrInvalidTimeout},
		{"negative slack", func(c *Config) { c.Download.Slack = -time.Second }, ErrNegativeSlack},
		{"vpn without shortcut", func(c *Config) { c.VPN.Enabled = true; c.VPN.Executable = "vpn" }, ErrMissingVPNShortcut},
		{"bad proxy mode", func(c *Config) { c.Proxy.Mode = "socks" }, ErrInvalidProxyMode},
		{"ntlm without host", func(c *Config) { c.Proxy.Mode = "ntlm" }, ErrMissingProxyHost},
		{"s3 without region", func(c *Config) { c.Publish.S3Bucket = "b" }, ErrIncompleteS3Settings},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err != tt.wantErr {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestReconcileOptions(t *testing.T) {
	cfg := NewConfig()
	cfg.Download.Dir = "/dl"
	cfg.Download.Slack = 2 * time.Second

	opts := cfg.ReconcileOptions()
	if opts.Dir != "/dl" || opts.OutputDir != "/dl" {
		t.Errorf("expected dir and output dir /dl, got %s and %s", opts.Dir, opts.OutputDir)
	}
	if opts.Extension != ".xlsx" || opts.TempSuffix != ".crdownload" {
		t.Errorf("unexpected artifact conventions %s %s", opts.Extension, opts.TempSuffix)
	}
	if opts.Slack != 2*time.Second {
		t.Errorf("expected slack 2s, got %v", opts.Slack)
	}

	cfg.Download.OutputDir = "/reports"
	if got := cfg.ReconcileOptions().OutputDir; got != "/reports" {
		t.Errorf("expected /reports, got %s", got)
	}
}

func TestSummaryPath(t *testing.T) {
	cfg := NewConfig()
	cfg.Download.Dir = filepath.Join("/data", "dl")

	if got := cfg.SummaryPath(); got != filepath.Join("/data", "dl", "automation_summary.xlsx") {
		t.Errorf("unexpected summary path %s", got)
	}

	abs := filepath.Join(t.TempDir(), "summary.xlsx")
	cfg.Tasks.SummaryFile = abs
	if got := cfg.SummaryPath(); got != abs {
		t.Errorf("expected absolute path to be kept, got %s", got)
	}
}

func TestMaskSecret(t *testing.T) {
	if MaskSecret("") != "" {
		t.Error("empty secret should stay empty")
	}
	if MaskSecret("hunter2") != "********" {
		t.Error("secret should be masked")
	}
}

func TestDefaultLogFile(t *testing.T) {
	path := DefaultLogFile()
	if filepath.Base(path) != "dashpull.log" {
		t.Errorf("Expected dashpull.log, got %s", path)
	}
	if filepath.Dir(path) != LogDirectory() {
		t.Errorf("Expected log file inside %s, got %s", LogDirectory(), path)
	}
}
