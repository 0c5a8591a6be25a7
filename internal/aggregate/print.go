package aggregate

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/dashpull/dashpull/internal/models"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// PrintSummary writes the console report of a run.
func (c *Collector) PrintSummary(w io.Writer) {
	PrintSummary(w, c.Records())
}

// PrintSummary writes downloaded files, scraped values and failures as separate sections.
func PrintSummary(w io.Writer, records []models.Record) {
	var downloads, metrics, failures []models.Record
	for _, r := range records {
		switch {
		case r.Failed():
			failures = append(failures, r)
		case r.Kind == models.KindDownload:
			downloads = append(downloads, r)
		default:
			metrics = append(metrics, r)
		}
	}

	rule := strings.Repeat("=", 50)
	fmt.Fprintf(w, "\n%s\n%s\n%s\n", rule, bold("RESULTS"), rule)

	if len(records) == 0 {
		fmt.Fprintln(w, gray("No results."))
		return
	}

	if len(downloads) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Downloaded Files:"))
		for _, r := range downloads {
			fmt.Fprintf(w, "  %s %s: %s\n", green("✓"), r.Name, r.Path)
			if r.Reason != "" {
				fmt.Fprintf(w, "    %s\n", yellow(r.Reason))
			}
		}
	}

	if len(metrics) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Scraped Data:"))
		for _, r := range metrics {
			fmt.Fprintf(w, "  %s %s: %d\n", green("✓"), r.Name, r.Value)
		}
	}

	if len(failures) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold("Failures:"))
		for _, r := range failures {
			fmt.Fprintf(w, "  %s %s [%s]", red("✗"), r.Name, r.Status)
			if r.Reason != "" {
				fmt.Fprintf(w, ": %s", r.Reason)
			}
			fmt.Fprintln(w)
		}
	}

	n := CountRecords(records)
	fmt.Fprintf(w, "\n%d files, %d metrics, %d failures\n", n.Downloads, n.Metrics, n.Failures)
}
