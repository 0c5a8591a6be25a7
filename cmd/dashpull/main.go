// dashpull - dashboard report downloader and metric scraper
package main

import (
	"os"

	"github.com/dashpull/dashpull/internal/cli"
	"github.com/dashpull/dashpull/internal/version"
)

// Version information, set by ldflags during build.
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
