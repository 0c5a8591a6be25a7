package reconcile

import (
	"time"

	"github.com/dashpull/dashpull/internal/constants"
)

// Options parameterises the engine. Zero values are replaced by the package defaults.
type Options struct {
	// Dir is the browser download directory. Required.
	Dir string

	// OutputDir receives finalized files. Empty means Dir.
	OutputDir string

	// Extension of completed artifacts, including the dot.
	Extension string

	// TempSuffix marks in-progress downloads.
	TempSuffix string

	StartPollInterval time.Duration
	PollInterval      time.Duration
	StartTimeout      time.Duration

	// Slack widens the ownership window below the trigger time.
	Slack time.Duration

	// MaxFileAge, when positive, rejects fallback candidates modified
	// more than this long after the trigger.
	MaxFileAge time.Duration
}

func (o Options) withDefaults() Options {
	if o.OutputDir == "" {
		o.OutputDir = o.Dir
	}
	if o.Extension == "" {
		o.Extension = constants.ReportExtension
	}
	if o.TempSuffix == "" {
		o.TempSuffix = constants.ChromeTempSuffix
	}
	if o.StartPollInterval <= 0 {
		o.StartPollInterval = constants.StartPollInterval
	}
	if o.PollInterval <= 0 {
		o.PollInterval = constants.PollInterval
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = constants.StartTimeout
	}
	if o.Slack < 0 {
		o.Slack = 0
	}
	return o
}
