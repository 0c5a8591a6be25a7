package reconcile

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDownloadTimeout matches both single and batch timeout errors via errors.Is.
var ErrDownloadTimeout = errors.New("download timed out")

// DownloadTimeoutError is returned when a single intent is not resolved in time.
type DownloadTimeoutError struct {
	Label   string
	Timeout time.Duration
}

func (e *DownloadTimeoutError) Error() string {
	return fmt.Sprintf("download %q did not complete within %s", e.Label, e.Timeout)
}

func (e *DownloadTimeoutError) Is(target error) bool {
	return target == ErrDownloadTimeout
}

// BatchTimeoutError lists the labels of a batch that were still unresolved at the deadline.
type BatchTimeoutError struct {
	Labels  []string
	Timeout time.Duration
}

func (e *BatchTimeoutError) Error() string {
	return fmt.Sprintf("%d download(s) did not complete within %s: %s",
		len(e.Labels), e.Timeout, strings.Join(e.Labels, ", "))
}

func (e *BatchTimeoutError) Is(target error) bool {
	return target == ErrDownloadTimeout
}

// RenameError reports that a resolved file could not be given its final name.
// The file is still usable at Path.
type RenameError struct {
	Label string
	Path  string
	Err   error
}

func (e *RenameError) Error() string {
	return fmt.Sprintf("failed to finalize %q (kept %s): %v", e.Label, e.Path, e.Err)
}

func (e *RenameError) Unwrap() error {
	return e.Err
}

// IsRenameError reports whether err is (or wraps) a RenameError.
func IsRenameError(err error) bool {
	var re *RenameError
	return errors.As(err, &re)
}
