package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// LogDirectory returns where run logs go when [logging] file is not set
// explicitly: %LOCALAPPDATA%\dashpull\logs on Windows, a logs directory next to
// dashpull.conf elsewhere.
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		if dir, err := os.UserCacheDir(); err == nil {
			return filepath.Join(dir, "dashpull", "logs")
		}
	} else if p, err := DefaultConfigPath(); err == nil {
		return filepath.Join(filepath.Dir(p), "logs")
	}
	return filepath.Join(os.TempDir(), "dashpull-logs")
}

// DefaultLogFile returns the run log path inside LogDirectory.
func DefaultLogFile() string {
	return filepath.Join(LogDirectory(), "dashpull.log")
}
