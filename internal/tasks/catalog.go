// Package tasks defines the report downloads and dashboard scrapes a run can perform.
package tasks

import (
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dashpull/dashpull/internal/reconcile"
	"github.com/dashpull/dashpull/internal/util/paths"
)

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Kind is what a task does with the page.
type Kind string

const (
	KindDownload Kind = "download" // export one or more reports as files
	KindScrape   Kind = "scrape"   // read scalar values from dashboard cards
	KindRowCount Kind = "rowcount" // read the "Showing N rows" footer of a question
)

// Period selects the date range appended to a report URL.
type Period string

const (
	PeriodNone          Period = "none"
	PeriodPreviousMonth Period = "previous_month"
)

// Default report date parameters
const (
	DefaultStartParam = "ApptStartDate"
	DefaultEndParam   = "ApptEndDate"
)

// Report is one exported question.
type Report struct {
	Label      string `yaml:"label"`
	URL        string `yaml:"url"`
	Period     Period `yaml:"period"`
	StartParam string `yaml:"start_param"`
	EndParam   string `yaml:"end_param"`
}

// MetricCard is one scalar card on a dashboard.
type MetricCard struct {
	Label string `yaml:"label"`
	Card  string `yaml:"card"`
}

// Task is a selectable unit of work.
type Task struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`

	// download
	Reports      []Report      `yaml:"reports,omitempty"`
	BatchTimeout time.Duration `yaml:"batch_timeout,omitempty"`

	// scrape and rowcount
	URL        string       `yaml:"url,omitempty"`
	DateFilter bool         `yaml:"date_filter,omitempty"`
	Metrics    []MetricCard `yaml:"metrics,omitempty"`
	Label      string       `yaml:"label,omitempty"`
}

// Downloads reports whether the task produces files.
func (t *Task) Downloads() bool {
	return t.Kind == KindDownload
}

// Selectors are the page locators used by the executors. XPath expressions
// start with "/" or "(", anything else is CSS.
type Selectors struct {
	ExportIcon    string `yaml:"export_icon"`
	XLSXOption    string `yaml:"xlsx_option"`
	ScalarCard    string `yaml:"scalar_card"` // {title} is replaced by the quoted card title
	RowCount      string `yaml:"row_count"`
	LoginUsername string `yaml:"login_username"`
	LoginPassword string `yaml:"login_password"`
	LoginSubmit   string `yaml:"login_submit"`
}

// Catalog is the full set of tasks.
type Catalog struct {
	BaseURL   string    `yaml:"base_url"`
	Selectors Selectors `yaml:"selectors"`
	Tasks     []*Task   `yaml:"tasks"`
}

// Catalog validation errors
var (
	ErrNoTasks         = errors.New("catalog has no tasks")
	ErrDuplicateTaskID = errors.New("duplicate task id")
	ErrUnknownKind     = errors.New("unknown task kind")
	ErrMissingURL      = errors.New("task url is required")
	ErrMissingLabel    = errors.New("label is required")
	ErrDuplicateLabel  = errors.New("labels map to the same file name")
	ErrUnknownTask     = errors.New("unknown task")
)

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// DefaultCatalogYAML returns the built-in catalog source.
func DefaultCatalogYAML() []byte {
	return append([]byte(nil), defaultCatalog...)
}

// LoadCatalog reads a catalog from path, or the built-in catalog when path is empty.
// Selectors missing from a user catalog are taken from the built-in one.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse task catalog: %w", err)
	}
	if err := c.applyDefaults(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) applyDefaults() error {
	if len(c.Selectors.ExportIcon) == 0 || len(c.Selectors.XLSXOption) == 0 ||
		len(c.Selectors.ScalarCard) == 0 || len(c.Selectors.RowCount) == 0 ||
		len(c.Selectors.LoginUsername) == 0 || len(c.Selectors.LoginPassword) == 0 ||
		len(c.Selectors.LoginSubmit) == 0 {
		var def Catalog
		if err := yaml.Unmarshal(defaultCatalog, &def); err != nil {
			return fmt.Errorf("failed to parse built-in catalog: %w", err)
		}
		fill := func(dst *string, src string) {
			if *dst == "" {
				*dst = src
			}
		}
		fill(&c.Selectors.ExportIcon, def.Selectors.ExportIcon)
		fill(&c.Selectors.XLSXOption, def.Selectors.XLSXOption)
		fill(&c.Selectors.ScalarCard, def.Selectors.ScalarCard)
		fill(&c.Selectors.RowCount, def.Selectors.RowCount)
		fill(&c.Selectors.LoginUsername, def.Selectors.LoginUsername)
		fill(&c.Selectors.LoginPassword, def.Selectors.LoginPassword)
		fill(&c.Selectors.LoginSubmit, def.Selectors.LoginSubmit)
	}

	for _, t := range c.Tasks {
		for i := range t.Reports {
			r := &t.Reports[i]
			if r.Period == "" {
				r.Period = PeriodNone
			}
			if r.StartParam == "" {
				r.StartParam = DefaultStartParam
			}
			if r.EndParam == "" {
				r.EndParam = DefaultEndParam
			}
		}
	}
	return nil
}

// Validate checks ids, kinds, URLs and labels.
func (c *Catalog) Validate() error {
	if len(c.Tasks) == 0 {
		return ErrNoTasks
	}

	seen := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task %q: id is required", t.Name)
		}
		if seen[t.ID] {
			return fmt.Errorf("%w: %s", ErrDuplicateTaskID, t.ID)
		}
		seen[t.ID] = true

		switch t.Kind {
		case KindDownload:
			if len(t.Reports) == 0 {
				return fmt.Errorf("task %s: download task needs at least one report", t.ID)
			}
			labels := make([]string, 0, len(t.Reports))
			for _, r := range t.Reports {
				if r.URL == "" {
					return fmt.Errorf("task %s: %w", t.ID, ErrMissingURL)
				}
				if strings.TrimSpace(r.Label) == "" {
					return fmt.Errorf("task %s: report %w", t.ID, ErrMissingLabel)
				}
				if r.Period != PeriodNone && r.Period != PeriodPreviousMonth {
					return fmt.Errorf("task %s: unknown period %q", t.ID, r.Period)
				}
				labels = append(labels, r.Label)
			}
			if dups := paths.DuplicateStems(labels, reconcile.FileStem); len(dups) > 0 {
				key := paths.SortedKeys(dups)[0]
				return fmt.Errorf("task %s: %w: %s", t.ID, ErrDuplicateLabel, strings.Join(dups[key], ", "))
			}
		case KindScrape:
			if t.URL == "" {
				return fmt.Errorf("task %s: %w", t.ID, ErrMissingURL)
			}
			if len(t.Metrics) == 0 {
				return fmt.Errorf("task %s: scrape task needs at least one metric", t.ID)
			}
			for _, m := range t.Metrics {
				if m.Label == "" || m.Card == "" {
					return fmt.Errorf("task %s: metric %w (label and card)", t.ID, ErrMissingLabel)
				}
			}
		case KindRowCount:
			if t.URL == "" {
				return fmt.Errorf("task %s: %w", t.ID, ErrMissingURL)
			}
			if t.Label == "" {
				return fmt.Errorf("task %s: row count %w", t.ID, ErrMissingLabel)
			}
		default:
			return fmt.Errorf("task %s: %w %q", t.ID, ErrUnknownKind, t.Kind)
		}
	}
	return nil
}

// Find returns the task with id.
func (c *Catalog) Find(id string) (*Task, bool) {
	for _, t := range c.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Select returns the tasks for ids in the given order, skipping repeats.
// An empty selection means every task.
func (c *Catalog) Select(ids []string) ([]*Task, error) {
	if len(ids) == 0 {
		return append([]*Task(nil), c.Tasks...), nil
	}
	picked := make([]*Task, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		t, ok := c.Find(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTask, id)
		}
		seen[id] = true
		picked = append(picked, t)
	}
	return picked, nil
}

// ResolveURL joins a catalog URL onto BaseURL unless it is already absolute.
func (c *Catalog) ResolveURL(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		return raw
	}
	if c.BaseURL == "" {
		return raw
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(raw, "/")
}

// AnyDownloads reports whether any of tasks produces files.
func AnyDownloads(tasks []*Task) bool {
	for _, t := range tasks {
		if t.Downloads() {
			return true
		}
	}
	return false
}
