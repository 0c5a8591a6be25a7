package constants

import (
	"time"
)

// Download artifact conventions
const (
	// ReportExtension - extension of the exported report files (.xlsx)
	ReportExtension = ".xlsx"

	// ChromeTempSuffix - suffix Chrome appends to in-progress downloads.
	// The final name is the temp name with this suffix stripped.
	ChromeTempSuffix = ".crdownload"

	// FallbackFileStem - stem used when a label sanitizes to nothing
	FallbackFileStem = "download"

	// SummaryFileName - default name of the consolidated summary spreadsheet
	SummaryFileName = "automation_summary.xlsx"

	// SummarySheetName - sheet that holds the summary rows
	SummarySheetName = "Summary"
)

// Reconciliation polling
const (
	// StartPollInterval - how often the start phase looks for a new temp/final file (500ms)
	StartPollInterval = 500 * time.Millisecond

	// PollInterval - how often the completion phase rescans the directory (1s)
	PollInterval = 1 * time.Second

	// StartTimeout - how long to wait for the browser to create any file after the click
	StartTimeout = 15 * time.Second

	// SingleDownloadTimeout - completion budget for a single report (5 minutes)
	SingleDownloadTimeout = 5 * time.Minute

	// BatchDownloadTimeout - shared completion budget for a batch of reports (15 minutes)
	BatchDownloadTimeout = 15 * time.Minute

	// MtimeSlack - tolerance when comparing file mtime with the click timestamp.
	// The click time is taken in-process while the mtime is written by the
	// browser's I/O path; they can disagree by sub-second amounts.
	MtimeSlack = 1 * time.Second
)

// Browser timeouts
const (
	// NavigationTimeout - page navigation budget
	NavigationTimeout = 60 * time.Second

	// ExportButtonTimeout - wait for the export icon on a report page (60 seconds)
	ExportButtonTimeout = 60 * time.Second

	// ExportOptionTimeout - wait for the XLSX option once the export menu is open
	ExportOptionTimeout = 10 * time.Second

	// LoginTimeout - wait for the login form and for the post-login redirect
	LoginTimeout = 15 * time.Second

	// MetricTimeout - wait for the first dashboard card to render
	MetricTimeout = 45 * time.Second

	// SiblingMetricTimeout - later cards on the same dashboard are already rendered
	SiblingMetricTimeout = 5 * time.Second
)

// VPN
const (
	// VPNConnectWait - pause after asking the VPN client to connect
	VPNConnectWait = 10 * time.Second
)

// Disk space safety margin
const (
	// DiskSpaceBufferPercent - extra margin applied to the minimum free space check
	DiskSpaceBufferPercent = 0.15

	// DefaultMinFreeMB - minimum free space required in the download directory
	DefaultMinFreeMB = 100
)

// Event bus
const (
	// EventBusDefaultBuffer - default per-subscriber channel buffer
	EventBusDefaultBuffer = 1000

	// EventBusMaxBuffer - cap for requested buffer sizes
	EventBusMaxBuffer = 5000
)

// Publishing
const (
	// PublishConcurrency - maximum concurrent uploads when publishing results
	PublishConcurrency = 4

	// PublishTimeout - overall budget for publishing a run's files
	PublishTimeout = 10 * time.Minute
)

// Retry configuration
const (
	// MaxRetries - maximum number of retries for transient errors
	MaxRetries = 5

	// RetryInitialDelay - initial delay before first retry (200ms)
	RetryInitialDelay = 200 * time.Millisecond

	// RetryMaxDelay - maximum delay between retries (15s)
	RetryMaxDelay = 15 * time.Second
)

// HTTP Client Timeouts
const (
	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - timeout for TLS handshake (60 seconds)
	HTTPTLSHandshakeTimeout = 60 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPDialTimeout - timeout for establishing connection (30 seconds)
	HTTPDialTimeout = 30 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second
)
