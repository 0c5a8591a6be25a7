package reconcile

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/events"
	"github.com/dashpull/dashpull/internal/util/paths"
	"github.com/dashpull/dashpull/internal/util/sanitize"
)

// FileStem returns the file stem used for label's finalized file.
func FileStem(label string) string {
	stem := sanitize.SanitizeLabel(label)
	if stem == "" {
		return constants.FallbackFileStem
	}
	return stem
}

// FinalizeName moves a resolved file to <OutputDir>/<stem><ext>, adding _1, _2, ...
// until the name is free. Existing files are never overwritten.
//
// When the move fails the original path is returned together with a *RenameError;
// the file remains usable where it is.
func (e *Engine) FinalizeName(path, label string) (string, error) {
	src := filepath.Clean(path)
	stem := FileStem(label)
	ext := filepath.Ext(src)
	if ext == "" {
		ext = e.opts.Extension
	}

	if err := os.MkdirAll(e.opts.OutputDir, 0755); err != nil {
		return src, e.renameFailed(label, src, fmt.Errorf("failed to create output directory: %w", err))
	}

	taken := func(p string) bool {
		return paths.Exists(p) || e.Claimed(p)
	}

	for n := 0; ; n++ {
		dst, idx := paths.FirstFree(e.opts.OutputDir, stem, ext, n, func(p string) bool {
			return p != src && taken(p)
		})
		n = idx
		if dst == src {
			e.claim(dst, label)
			return dst, nil
		}

		err := moveNoReplace(src, dst)
		if err == nil {
			e.claim(dst, label)
			e.unclaim(src)
			e.logger.Info().
				Str("label", label).
				Str("from", filepath.Base(src)).
				Str("to", dst).
				Msg("Download finalized")
			return dst, nil
		}
		if errors.Is(err, fs.ErrExist) {
			// Lost a race for dst; try the next suffix.
			continue
		}
		return src, e.renameFailed(label, src, err)
	}
}

func (e *Engine) renameFailed(label, src string, err error) error {
	re := &RenameError{Label: label, Path: src, Err: err}
	e.logger.Warn().Err(err).Str("label", label).Str("path", src).Msg("Could not finalize download, keeping original name")
	e.eventBus.PublishDownload(events.EventRenameFailed, label, filepath.Base(src), src, err)
	return re
}

// moveNoReplace moves src to dst, failing with fs.ErrExist if dst exists.
// A hard link reserves dst atomically; where links are unsupported the move
// falls back to rename and finally to copy and remove.
func moveNoReplace(src, dst string) error {
	linkErr := os.Link(src, dst)
	if linkErr == nil {
		if err := os.Remove(src); err != nil {
			os.Remove(dst)
			return fmt.Errorf("failed to remove %s after linking: %w", src, err)
		}
		return nil
	}
	if errors.Is(linkErr, fs.ErrExist) {
		return linkErr
	}
	if errors.Is(linkErr, fs.ErrNotExist) {
		return linkErr
	}

	if paths.Exists(dst) {
		return &fs.PathError{Op: "move", Path: dst, Err: fs.ErrExist}
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyAndRemove(src, dst)
}

func copyAndRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	in.Close()
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("copied to %s but failed to remove original: %w", dst, err)
	}
	return nil
}
