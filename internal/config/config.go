// Package config provides configuration management for dashpull.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/reconcile"
)

// Config represents the dashpull configuration file.
//
// Config file location:
//   - Windows: %USERPROFILE%\.config\dashpull\dashpull.conf
//   - Unix: ~/.config/dashpull/dashpull.conf
//
// INI format:
//
//	[session]
//	login_url = https://metabase.example.com/auth/login
//	username = analyst@example.com
//
//	[browser]
//	headless = false
//	navigation_timeout = 1m0s
//
//	[download]
//	dir = /home/me/Downloads/dashpull
//	poll_interval = 1s
//	batch_timeout = 15m0s
//
//	[vpn]
//	enabled = true
//	executable = C:\Program Files\OpenVPN Connect\OpenVPNConnect.exe
//	shortcut_id = 1752582150336
type Config struct {
	Session       SessionConfig
	Browser       BrowserConfig
	Download      DownloadConfig
	VPN           VPNConfig
	Proxy         ProxyConfig
	Publish       PublishConfig
	Notifications NotificationConfig
	Logging       LoggingConfig
	Tasks         TasksConfig
}

// SessionConfig holds the analytics login.
type SessionConfig struct {
	LoginURL string `ini:"login_url"`
	Username string `ini:"username"`

	// Password is never written by SaveConfig; supply it through
	// DASHPULL_PASSWORD or the interactive prompt.
	Password string `ini:"-"`
}

// BrowserConfig controls the automated Chrome instance.
type BrowserConfig struct {
	// Bin is the Chrome/Chromium executable. Empty lets the launcher find or fetch one.
	Bin               string        `ini:"bin"`
	Headless          bool          `ini:"headless"`
	Width             int           `ini:"width"`
	Height            int           `ini:"height"`
	NavigationTimeout time.Duration `ini:"navigation_timeout"`
	ElementTimeout    time.Duration `ini:"element_timeout"`
}

// DownloadConfig holds reconciliation parameters.
type DownloadConfig struct {
	// Dir is the browser's download directory. It must be dedicated to the run.
	Dir string `ini:"dir"`

	// OutputDir receives finalized files. Empty means Dir.
	OutputDir string `ini:"output_dir"`

	StartPollInterval time.Duration `ini:"start_poll_interval"`
	PollInterval      time.Duration `ini:"poll_interval"`
	StartTimeout      time.Duration `ini:"start_timeout"`
	SingleTimeout     time.Duration `ini:"single_timeout"`
	BatchTimeout      time.Duration `ini:"batch_timeout"`
	Slack             time.Duration `ini:"slack"`

	// MaxFileAge bounds fallback matches to files modified within this long after
	// the trigger. Zero disables the bound.
	MaxFileAge time.Duration `ini:"max_file_age"`

	// Watch enables filesystem notifications to wake poll loops early.
	Watch bool `ini:"watch"`

	MinFreeMB int64 `ini:"min_free_mb"`
}

// VPNConfig describes the VPN client shortcut toggled around a run.
type VPNConfig struct {
	Enabled     bool          `ini:"enabled"`
	Executable  string        `ini:"executable"`
	ShortcutID  string        `ini:"shortcut_id"`
	ConnectWait time.Duration `ini:"connect_wait"`
}

// ProxyConfig configures outbound HTTP used by publishers.
type ProxyConfig struct {
	// Mode: no-proxy, system, basic, ntlm
	Mode     string `ini:"mode"`
	Host     string `ini:"host"`
	Port     int    `ini:"port"`
	User     string `ini:"user"`
	Password string `ini:"-"`
	NoProxy  string `ini:"no_proxy"`
	Warmup   bool   `ini:"warmup"`
}

// PublishConfig configures optional delivery of a run's files.
type PublishConfig struct {
	S3Bucket    string `ini:"s3_bucket"`
	S3Region    string `ini:"s3_region"`
	S3Prefix    string `ini:"s3_prefix"`
	S3AccessKey string `ini:"s3_access_key"`
	S3SecretKey string `ini:"-"`

	// AzureContainerURL is a container URL carrying a SAS token.
	AzureContainerURL string `ini:"azure_container_url"`
	AzurePrefix       string `ini:"azure_prefix"`

	WebhookURL string `ini:"webhook_url"`
}

// NotificationConfig contains settings for desktop notifications.
type NotificationConfig struct {
	Enabled         bool `ini:"enabled"`
	ShowRunComplete bool `ini:"show_run_complete"`
	ShowFailures    bool `ini:"show_failures"`
}

// LoggingConfig controls the run log.
type LoggingConfig struct {
	// File is the rotating log file. Empty disables file logging.
	File  string `ini:"file"`
	Debug bool   `ini:"debug"`
}

// TasksConfig selects the task catalog and summary output.
type TasksConfig struct {
	// Catalog is a YAML task catalog. Empty uses the built-in catalog.
	Catalog string `ini:"catalog"`

	// SummaryFile is written into the output directory unless absolute.
	SummaryFile string `ini:"summary_file"`
}

// Environment overrides
const (
	EnvUsername      = "DASHPULL_USERNAME"
	EnvPassword      = "DASHPULL_PASSWORD"
	EnvProxyPassword = "DASHPULL_PROXY_PASSWORD"
	EnvS3SecretKey   = "DASHPULL_S3_SECRET_KEY"
)

const defaultLoginURL = "https://metabase.caradvise.com/auth/login"

// Config validation errors
var (
	ErrMissingDownloadDir   = errors.New("download dir is required")
	ErrInvalidLoginURL      = errors.New("session login_url must be an absolute http(s) URL")
	ErrInvalidPollInterval  = errors.New("download poll intervals must be positive")
	ErrInvalidTimeout       = errors.New("download timeouts must be positive")
	ErrNegativeSlack        = errors.New("download slack must not be negative")
	ErrMissingVPNShortcut   = errors.New("vpn executable and shortcut_id are required when vpn is enabled")
	ErrInvalidProxyMode     = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost     = errors.New("proxy host is required for basic and ntlm modes")
	ErrIncompleteS3Settings = errors.New("s3_region is required when s3_bucket is set")
)

// DefaultConfigPath returns the default path for dashpull.conf.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "dashpull", "dashpull.conf"), nil
}

// DefaultDownloadDir returns the platform-specific default download directory.
func DefaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		if runtime.GOOS == "windows" {
			return "C:\\Downloads\\dashpull"
		}
		return "/tmp/dashpull"
	}
	return filepath.Join(home, "Downloads", "dashpull")
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Session: SessionConfig{
			LoginURL: defaultLoginURL,
		},
		Browser: BrowserConfig{
			Headless:          false,
			Width:             1600,
			Height:            1000,
			NavigationTimeout: constants.NavigationTimeout,
			ElementTimeout:    constants.ExportButtonTimeout,
		},
		Download: DownloadConfig{
			Dir:               DefaultDownloadDir(),
			StartPollInterval: constants.StartPollInterval,
			PollInterval:      constants.PollInterval,
			StartTimeout:      constants.StartTimeout,
			SingleTimeout:     constants.SingleDownloadTimeout,
			BatchTimeout:      constants.BatchDownloadTimeout,
			Slack:             constants.MtimeSlack,
			Watch:             true,
			MinFreeMB:         constants.DefaultMinFreeMB,
		},
		VPN: VPNConfig{
			Enabled:     false,
			ConnectWait: constants.VPNConnectWait,
		},
		Proxy: ProxyConfig{
			Mode: "system",
		},
		Notifications: NotificationConfig{
			Enabled:         true,
			ShowRunComplete: true,
			ShowFailures:    true,
		},
		Tasks: TasksConfig{
			SummaryFile: constants.SummaryFileName,
		},
	}
}

// LoadConfig loads configuration from path (default path when empty).
// A missing file yields defaults. Environment overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			cfg.ApplyEnv()
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.ApplyEnv()
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(path), err)
	}

	s := iniFile.Section("session")
	cfg.Session.LoginURL = s.Key("login_url").MustString(cfg.Session.LoginURL)
	cfg.Session.Username = s.Key("username").String()

	b := iniFile.Section("browser")
	cfg.Browser.Bin = b.Key("bin").String()
	cfg.Browser.Headless = b.Key("headless").MustBool(cfg.Browser.Headless)
	cfg.Browser.Width = b.Key("width").MustInt(cfg.Browser.Width)
	cfg.Browser.Height = b.Key("height").MustInt(cfg.Browser.Height)
	cfg.Browser.NavigationTimeout = b.Key("navigation_timeout").MustDuration(cfg.Browser.NavigationTimeout)
	cfg.Browser.ElementTimeout = b.Key("element_timeout").MustDuration(cfg.Browser.ElementTimeout)

	d := iniFile.Section("download")
	cfg.Download.Dir = d.Key("dir").MustString(cfg.Download.Dir)
	cfg.Download.OutputDir = d.Key("output_dir").String()
	cfg.Download.StartPollInterval = d.Key("start_poll_interval").MustDuration(cfg.Download.StartPollInterval)
	cfg.Download.PollInterval = d.Key("poll_interval").MustDuration(cfg.Download.PollInterval)
	cfg.Download.StartTimeout = d.Key("start_timeout").MustDuration(cfg.Download.StartTimeout)
	cfg.Download.SingleTimeout = d.Key("single_timeout").MustDuration(cfg.Download.SingleTimeout)
	cfg.Download.BatchTimeout = d.Key("batch_timeout").MustDuration(cfg.Download.BatchTimeout)
	cfg.Download.Slack = d.Key("slack").MustDuration(cfg.Download.Slack)
	cfg.Download.MaxFileAge = d.Key("max_file_age").MustDuration(0)
	cfg.Download.Watch = d.Key("watch").MustBool(cfg.Download.Watch)
	cfg.Download.MinFreeMB = d.Key("min_free_mb").MustInt64(cfg.Download.MinFreeMB)

	v := iniFile.Section("vpn")
	cfg.VPN.Enabled = v.Key("enabled").MustBool(false)
	cfg.VPN.Executable = v.Key("executable").String()
	cfg.VPN.ShortcutID = v.Key("shortcut_id").String()
	cfg.VPN.ConnectWait = v.Key("connect_wait").MustDuration(cfg.VPN.ConnectWait)

	p := iniFile.Section("proxy")
	cfg.Proxy.Mode = p.Key("mode").MustString(cfg.Proxy.Mode)
	cfg.Proxy.Host = p.Key("host").String()
	cfg.Proxy.Port = p.Key("port").MustInt(0)
	cfg.Proxy.User = p.Key("user").String()
	cfg.Proxy.NoProxy = p.Key("no_proxy").String()
	cfg.Proxy.Warmup = p.Key("warmup").MustBool(false)

	pub := iniFile.Section("publish")
	cfg.Publish.S3Bucket = pub.Key("s3_bucket").String()
	cfg.Publish.S3Region = pub.Key("s3_region").String()
	cfg.Publish.S3Prefix = pub.Key("s3_prefix").String()
	cfg.Publish.S3AccessKey = pub.Key("s3_access_key").String()
	cfg.Publish.AzureContainerURL = pub.Key("azure_container_url").String()
	cfg.Publish.AzurePrefix = pub.Key("azure_prefix").String()
	cfg.Publish.WebhookURL = pub.Key("webhook_url").String()

	n := iniFile.Section("notifications")
	cfg.Notifications.Enabled = n.Key("enabled").MustBool(true)
	cfg.Notifications.ShowRunComplete = n.Key("show_run_complete").MustBool(true)
	cfg.Notifications.ShowFailures = n.Key("show_failures").MustBool(true)

	l := iniFile.Section("logging")
	cfg.Logging.File = l.Key("file").String()
	cfg.Logging.Debug = l.Key("debug").MustBool(false)

	t := iniFile.Section("tasks")
	cfg.Tasks.Catalog = t.Key("catalog").String()
	cfg.Tasks.SummaryFile = t.Key("summary_file").MustString(cfg.Tasks.SummaryFile)

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overlays credentials from the environment.
func (cfg *Config) ApplyEnv() {
	if v := os.Getenv(EnvUsername); v != "" {
		cfg.Session.Username = v
	}
	if v := os.Getenv(EnvPassword); v != "" {
		cfg.Session.Password = v
	}
	if v := os.Getenv(EnvProxyPassword); v != "" {
		cfg.Proxy.Password = v
	}
	if v := os.Getenv(EnvS3SecretKey); v != "" {
		cfg.Publish.S3SecretKey = v
	}
}

// SaveConfig writes cfg to path (default path when empty).
// Secrets are never written.
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		keys [][2]string
	}{
		{"session", [][2]string{
			{"login_url", cfg.Session.LoginURL},
			{"username", cfg.Session.Username},
		}},
		{"browser", [][2]string{
			{"bin", cfg.Browser.Bin},
			{"headless", fmt.Sprintf("%t", cfg.Browser.Headless)},
			{"width", fmt.Sprintf("%d", cfg.Browser.Width)},
			{"height", fmt.Sprintf("%d", cfg.Browser.Height)},
			{"navigation_timeout", cfg.Browser.NavigationTimeout.String()},
			{"element_timeout", cfg.Browser.ElementTimeout.String()},
		}},
		{"download", [][2]string{
			{"dir", cfg.Download.Dir},
			{"output_dir", cfg.Download.OutputDir},
			{"start_poll_interval", cfg.Download.StartPollInterval.String()},
			{"poll_interval", cfg.Download.PollInterval.String()},
			{"start_timeout", cfg.Download.StartTimeout.String()},
			{"single_timeout", cfg.Download.SingleTimeout.String()},
			{"batch_timeout", cfg.Download.BatchTimeout.String()},
			{"slack", cfg.Download.Slack.String()},
			{"max_file_age", cfg.Download.MaxFileAge.String()},
			{"watch", fmt.Sprintf("%t", cfg.Download.Watch)},
			{"min_free_mb", fmt.Sprintf("%d", cfg.Download.MinFreeMB)},
		}},
		{"vpn", [][2]string{
			{"enabled", fmt.Sprintf("%t", cfg.VPN.Enabled)},
			{"executable", cfg.VPN.Executable},
			{"shortcut_id", cfg.VPN.ShortcutID},
			{"connect_wait", cfg.VPN.ConnectWait.String()},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.Proxy.Mode},
			{"host", cfg.Proxy.Host},
			{"port", fmt.Sprintf("%d", cfg.Proxy.Port)},
			{"user", cfg.Proxy.User},
			{"no_proxy", cfg.Proxy.NoProxy},
			{"warmup", fmt.Sprintf("%t", cfg.Proxy.Warmup)},
		}},
		{"publish", [][2]string{
			{"s3_bucket", cfg.Publish.S3Bucket},
			{"s3_region", cfg.Publish.S3Region},
			{"s3_prefix", cfg.Publish.S3Prefix},
			{"s3_access_key", cfg.Publish.S3AccessKey},
			{"azure_container_url", cfg.Publish.AzureContainerURL},
			{"azure_prefix", cfg.Publish.AzurePrefix},
			{"webhook_url", cfg.Publish.WebhookURL},
		}},
		{"notifications", [][2]string{
			{"enabled", fmt.Sprintf("%t", cfg.Notifications.Enabled)},
			{"show_run_complete", fmt.Sprintf("%t", cfg.Notifications.ShowRunComplete)},
			{"show_failures", fmt.Sprintf("%t", cfg.Notifications.ShowFailures)},
		}},
		{"logging", [][2]string{
			{"file", cfg.Logging.File},
			{"debug", fmt.Sprintf("%t", cfg.Logging.Debug)},
		}},
		{"tasks", [][2]string{
			{"catalog", cfg.Tasks.Catalog},
			{"summary_file", cfg.Tasks.SummaryFile},
		}},
	}

	for _, sec := range sections {
		section, err := iniFile.NewSection(sec.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", sec.name, err)
		}
		for _, kv := range sec.keys {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the configuration for values a run cannot work with.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.Download.Dir) == "" {
		return ErrMissingDownloadDir
	}

	u, err := url.Parse(cfg.Session.LoginURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidLoginURL
	}

	if cfg.Download.StartPollInterval <= 0 || cfg.Download.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if cfg.Download.StartTimeout <= 0 || cfg.Download.SingleTimeout <= 0 || cfg.Download.BatchTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if cfg.Download.Slack < 0 || cfg.Download.MaxFileAge < 0 {
		return ErrNegativeSlack
	}

	if cfg.VPN.Enabled && (cfg.VPN.Executable == "" || cfg.VPN.ShortcutID == "") {
		return ErrMissingVPNShortcut
	}

	switch strings.ToLower(cfg.Proxy.Mode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if cfg.Proxy.Host == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxyMode
	}

	if cfg.Publish.S3Bucket != "" && cfg.Publish.S3Region == "" {
		return ErrIncompleteS3Settings
	}

	return nil
}

// OutputDirectory returns where finalized files go.
func (cfg *Config) OutputDirectory() string {
	if cfg.Download.OutputDir != "" {
		return cfg.Download.OutputDir
	}
	return cfg.Download.Dir
}

// SummaryPath returns the absolute path of the summary spreadsheet.
func (cfg *Config) SummaryPath() string {
	name := cfg.Tasks.SummaryFile
	if name == "" {
		name = constants.SummaryFileName
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(cfg.OutputDirectory(), name)
}

// ReconcileOptions builds engine options from the download section.
func (cfg *Config) ReconcileOptions() reconcile.Options {
	return reconcile.Options{
		Dir:               cfg.Download.Dir,
		OutputDir:         cfg.OutputDirectory(),
		Extension:         constants.ReportExtension,
		TempSuffix:        constants.ChromeTempSuffix,
		StartPollInterval: cfg.Download.StartPollInterval,
		PollInterval:      cfg.Download.PollInterval,
		StartTimeout:      cfg.Download.StartTimeout,
		Slack:             cfg.Download.Slack,
		MaxFileAge:        cfg.Download.MaxFileAge,
	}
}

// MaskSecret returns a display form of a secret: empty stays empty, otherwise asterisks.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}
