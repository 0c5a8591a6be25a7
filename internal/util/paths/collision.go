// Package paths provides utilities for naming finalized download files.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CandidatePath returns the n-th candidate name for a stem in dir.
// Candidate 0 is the plain name; later candidates insert "_n" before the extension:
//
//	Report.xlsx, Report_1.xlsx, Report_2.xlsx, ...
func CandidatePath(dir, stem, ext string, n int) string {
	if n <= 0 {
		return filepath.Join(dir, stem+ext)
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
}

// FirstFree walks the candidates for stem starting at index start and returns the
// first path for which taken reports false, along with its index.
// A nil taken func checks the filesystem.
func FirstFree(dir, stem, ext string, start int, taken func(string) bool) (string, int) {
	if taken == nil {
		taken = Exists
	}
	for n := start; ; n++ {
		candidate := CandidatePath(dir, stem, ext, n)
		if !taken(candidate) {
			return candidate, n
		}
	}
}

// Exists reports whether anything (file, directory, dangling link) occupies path.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// DuplicateStems groups labels that map to the same file stem.
// Only stems shared by two or more labels are returned, each with its labels in
// input order. Two labels sharing a stem would otherwise be told apart only by the
// numeric suffix the finalizer picks, which depends on completion order.
func DuplicateStems(labels []string, stem func(string) string) map[string][]string {
	groups := make(map[string][]string)
	for _, label := range labels {
		key := stem(label)
		groups[key] = append(groups[key], label)
	}

	for key, members := range groups {
		if len(members) <= 1 {
			delete(groups, key)
		}
	}
	return groups
}

// SortedKeys returns the keys of a DuplicateStems result in a stable order.
func SortedKeys(groups map[string][]string) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
