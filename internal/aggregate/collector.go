// Package aggregate collects run records and renders the run summary.
package aggregate

import (
	"sort"
	"sync"

	"github.com/dashpull/dashpull/internal/models"
)

// Collector accumulates records from every task of a run. Safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	records []models.Record
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends records in the order given.
func (c *Collector) Add(records ...models.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, records...)
}

// Records returns a copy of everything collected so far.
func (c *Collector) Records() []models.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Record(nil), c.records...)
}

// Len returns the number of records.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Counts summarises a record set.
type Counts struct {
	Downloads int
	Metrics   int
	Failures  int
}

// Counts tallies successful downloads, successful metrics and failures.
func (c *Collector) Counts() Counts {
	return CountRecords(c.Records())
}

// CountRecords tallies records.
func CountRecords(records []models.Record) Counts {
	var n Counts
	for _, r := range records {
		switch {
		case r.Failed():
			n.Failures++
		case r.Kind == models.KindDownload:
			n.Downloads++
		case r.Kind == models.KindMetric:
			n.Metrics++
		}
	}
	return n
}

// Files returns the paths of successful downloads, sorted.
func (c *Collector) Files() []string {
	var files []string
	for _, r := range c.Records() {
		if r.Kind == models.KindDownload && !r.Failed() && r.Path != "" {
			files = append(files, r.Path)
		}
	}
	sort.Strings(files)
	return files
}
