package reconcile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
)

// Snapshot is the set of file names present in the download directory at one instant.
type Snapshot map[string]struct{}

// Has reports whether name was present.
func (s Snapshot) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// entry is a regular file seen during a directory scan.
type entry struct {
	name    string
	modTime time.Time
}

// listing is one scan of the download directory.
type listing struct {
	entries []entry
	names   Snapshot
}

func (l listing) has(name string) bool {
	return l.names.Has(name)
}

func (l listing) modTime(name string) (time.Time, bool) {
	for _, e := range l.entries {
		if e.name == name {
			return e.modTime, true
		}
	}
	return time.Time{}, false
}

// hasSuffix reports whether any listed name ends with suffix.
func (l listing) hasSuffix(suffix string) bool {
	for _, e := range l.entries {
		if strings.HasSuffix(e.name, suffix) {
			return true
		}
	}
	return false
}

// scanDir lists the regular files in dir with their modification times.
// Files that vanish between the directory read and the stat are skipped;
// the browser renames temp files at any moment.
func scanDir(dir string) (listing, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return listing{}, fmt.Errorf("failed to scan download directory: %w", err)
	}

	l := listing{
		entries: make([]entry, 0, len(dirEntries)),
		names:   make(Snapshot, len(dirEntries)),
	}
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return listing{}, fmt.Errorf("failed to stat %s: %w", de.Name(), err)
		}
		l.entries = append(l.entries, entry{name: de.Name(), modTime: info.ModTime()})
		l.names[de.Name()] = struct{}{}
	}
	return l, nil
}

// TakeSnapshot returns the names of the regular files currently in dir.
func TakeSnapshot(dir string) (Snapshot, error) {
	l, err := scanDir(dir)
	if err != nil {
		return nil, err
	}
	return l.names, nil
}
