package tasks

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// PreviousMonth returns the first and last day of the month before now.
func PreviousMonth(now time.Time) (start, end time.Time) {
	firstThis := FirstOfMonth(now)
	start = firstThis.AddDate(0, -1, 0)
	end = firstThis.AddDate(0, 0, -1)
	return start, end
}

// FirstOfMonth returns midnight on the first day of now's month.
func FirstOfMonth(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func separator(base string) string {
	if strings.Contains(base, "?") {
		return "&"
	}
	return "?"
}

// BuildTargetURL appends a start/end date range to base.
func BuildTargetURL(base, start, end, startParam, endParam string) string {
	return base + separator(base) + startParam + "=" + start + "&" + endParam + "=" + end
}

// DateFilterURL appends the dashboard filter "date_filter=~<first of month>" to base.
func DateFilterURL(base string, now time.Time) string {
	return base + separator(base) + "date_filter=~" + FormatDate(FirstOfMonth(now))
}
