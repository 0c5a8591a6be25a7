// Package models defines the result records produced by a dashpull run.
package models

import (
	"fmt"
	"time"
)

// RecordKind distinguishes downloaded files from scraped values
type RecordKind string

const (
	KindDownload RecordKind = "download"
	KindMetric   RecordKind = "metric"
)

// Status is the outcome of a single record
type Status string

const (
	StatusOK          Status = "ok"
	StatusFailed      Status = "failed"       // task or download error
	StatusTimeout     Status = "timeout"      // download never completed
	StatusNotFound    Status = "not_found"    // metric element absent
	StatusParseFailed Status = "parse_failed" // metric text was not a number
)

// Metric is the typed result of reading one dashboard value.
// A failed read carries its status and reason instead of a value.
type Metric struct {
	Label  string
	Value  int64
	Status Status
	Reason string
}

// OK reports whether the metric holds a value.
func (m Metric) OK() bool {
	return m.Status == StatusOK
}

// NewMetric returns a successful metric.
func NewMetric(label string, value int64) Metric {
	return Metric{Label: label, Value: value, Status: StatusOK}
}

// MetricNotFound returns a metric whose element could not be located.
func MetricNotFound(label string, reason string) Metric {
	return Metric{Label: label, Status: StatusNotFound, Reason: reason}
}

// MetricParseFailed returns a metric whose text could not be parsed.
func MetricParseFailed(label, text string, err error) Metric {
	return Metric{Label: label, Status: StatusParseFailed, Reason: fmt.Sprintf("cannot parse %q: %v", text, err)}
}

// Record is one row of the run summary.
type Record struct {
	Kind   RecordKind
	Task   string
	Name   string
	Value  int64  // metrics only
	Path   string // downloads only
	Status Status
	Reason string
	At     time.Time
}

// Failed reports whether the record represents a failure of any kind.
func (r Record) Failed() bool {
	return r.Status != StatusOK
}

// DownloadRecord builds a record for a finalized file.
func DownloadRecord(task, label, path string) Record {
	return Record{Kind: KindDownload, Task: task, Name: label, Path: path, Status: StatusOK, At: time.Now()}
}

// FailedDownloadRecord builds a record for a download that never produced a file.
func FailedDownloadRecord(task, label string, status Status, err error) Record {
	r := Record{Kind: KindDownload, Task: task, Name: label, Status: status, At: time.Now()}
	if err != nil {
		r.Reason = err.Error()
	}
	return r
}

// MetricRecord converts a metric into a summary row.
func MetricRecord(task string, m Metric) Record {
	return Record{
		Kind:   KindMetric,
		Task:   task,
		Name:   m.Label,
		Value:  m.Value,
		Status: m.Status,
		Reason: m.Reason,
		At:     time.Now(),
	}
}
