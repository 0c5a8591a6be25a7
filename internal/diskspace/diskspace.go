// Package diskspace checks free space in the download directory before a run.
package diskspace

import (
	"errors"
	"fmt"
)

// InsufficientSpaceError indicates that there is not enough disk space available.
type InsufficientSpaceError struct {
	Path           string
	RequiredBytes  int64
	AvailableBytes int64
}

func (e *InsufficientSpaceError) Error() string {
	requiredMB := float64(e.RequiredBytes) / (1024 * 1024)
	availableMB := float64(e.AvailableBytes) / (1024 * 1024)
	return fmt.Sprintf("insufficient disk space in %s: need %.2f MB, have %.2f MB available",
		e.Path, requiredMB, availableMB)
}

// IsInsufficientSpaceError checks if err is or wraps an InsufficientSpaceError.
func IsInsufficientSpaceError(err error) bool {
	var target *InsufficientSpaceError
	return errors.As(err, &target)
}

// CheckAvailableSpace fails when dir has less than requiredBytes*safetyMargin free.
// A filesystem that cannot be queried passes the check.
func CheckAvailableSpace(dir string, requiredBytes int64, safetyMargin float64) error {
	available, err := availableBytes(dir)
	if err != nil {
		return nil
	}
	if safetyMargin < 1 {
		safetyMargin = 1
	}
	required := int64(float64(requiredBytes) * safetyMargin)
	if available < required {
		return &InsufficientSpaceError{Path: dir, RequiredBytes: required, AvailableBytes: available}
	}
	return nil
}

// EnsureFreeMB is the run preflight: dir needs minMB plus bufferPercent headroom.
// A non-positive minMB disables the check.
func EnsureFreeMB(dir string, minMB int64, bufferPercent float64) error {
	if minMB <= 0 {
		return nil
	}
	return CheckAvailableSpace(dir, minMB*1024*1024, 1+bufferPercent)
}

// GetAvailableSpace returns the free bytes for dir, or 0 if unknown.
func GetAvailableSpace(dir string) int64 {
	n, err := availableBytes(dir)
	if err != nil {
		return 0
	}
	return n
}
