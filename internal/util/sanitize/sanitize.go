// Package sanitize turns task labels and scraped text into safe values.
//
// Labels become file stems, so this package removes characters that are
// problematic on any of the supported filesystems:
//   - Path separators (/ and \) become "-"
//   - Spaces become "_"
//   - Reserved Windows characters (: * ? " < > |) become "-"
//   - Invisible Unicode characters (zero-width spaces, etc.) are dropped
package sanitize

import (
	"regexp"
	"strings"
)

// reservedRunes are rejected by Windows in file names
const reservedRunes = `:*?"<>|`

var (
	whitespaceRun = regexp.MustCompile(`[ \t]+`)
	underscoreRun = regexp.MustCompile(`_+`)
	labelReplacer = strings.NewReplacer(" ", "_", "/", "-", "\\", "-")
)

// SanitizeLabel converts a task label into a filesystem-safe file stem.
// Returns an empty string when nothing usable is left; callers pick a fallback.
func SanitizeLabel(label string) string {
	if label == "" {
		return label
	}

	label = removeInvisibleChars(label)
	label = strings.TrimSpace(label)
	label = whitespaceRun.ReplaceAllString(label, " ")
	label = labelReplacer.Replace(label)

	var b strings.Builder
	b.Grow(len(label))
	for _, r := range label {
		switch {
		case r < 0x20:
			continue
		case strings.ContainsRune(reservedRunes, r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}

	out := underscoreRun.ReplaceAllString(b.String(), "_")
	// Windows refuses names ending in a dot or space
	return strings.Trim(out, ". _-")
}

// removeInvisibleChars removes zero-width and other invisible Unicode characters
func removeInvisibleChars(s string) string {
	invisibleChars := []string{
		"\u200B", // Zero-width space
		"\u200C", // Zero-width non-joiner
		"\u200D", // Zero-width joiner
		"\uFEFF", // Zero-width no-break space (BOM)
		"\u00AD", // Soft hyphen
		"\u2060", // Word joiner
		"\u180E", // Mongolian vowel separator
	}

	for _, char := range invisibleChars {
		s = strings.ReplaceAll(s, char, "")
	}

	return s
}

// SanitizeField cleans a value scraped from the page or read from the task
// catalog: invisible characters are removed, inner whitespace is collapsed and
// the result is trimmed.
func SanitizeField(field string) string {
	if field == "" {
		return field
	}

	field = removeInvisibleChars(field)
	field = strings.ReplaceAll(field, "\u00A0", " ")
	field = whitespaceRun.ReplaceAllString(field, " ")

	return strings.TrimSpace(field)
}
