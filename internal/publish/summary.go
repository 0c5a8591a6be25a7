package publish

import (
	"time"

	"github.com/dashpull/dashpull/internal/models"
)

// RecordJSON is the wire form of a summary row.
type RecordJSON struct {
	Kind   string    `json:"kind"`
	Task   string    `json:"task"`
	Name   string    `json:"name"`
	Value  *int64    `json:"value,omitempty"`
	Path   string    `json:"path,omitempty"`
	Status string    `json:"status"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// RunSummary is posted to webhooks when a run ends.
type RunSummary struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Downloads  int          `json:"downloads"`
	Metrics    int          `json:"metrics"`
	Failures   int          `json:"failures"`
	Records    []RecordJSON `json:"records"`
	Uploads    []Upload     `json:"uploads,omitempty"`
}

// NewRunSummary converts records into a summary.
func NewRunSummary(runID string, started, finished time.Time, records []models.Record) RunSummary {
	s := RunSummary{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		Records:    make([]RecordJSON, 0, len(records)),
	}
	for _, r := range records {
		rj := RecordJSON{
			Kind:   string(r.Kind),
			Task:   r.Task,
			Name:   r.Name,
			Path:   r.Path,
			Status: string(r.Status),
			Reason: r.Reason,
			At:     r.At,
		}
		switch {
		case r.Failed():
			s.Failures++
		case r.Kind == models.KindDownload:
			s.Downloads++
		default:
			s.Metrics++
			v := r.Value
			rj.Value = &v
		}
		s.Records = append(s.Records, rj)
	}
	return s
}
