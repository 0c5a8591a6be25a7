package tasks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dashpull/dashpull/internal/browser"
)

// fakeSession is a scripted browser. Clicking the XLSX option writes the file
// registered for the current page into dir.
type fakeSession struct {
	mu        sync.Mutex
	dir       string
	current   string
	visited   []string
	downloads map[string]string // url prefix -> file name written on export
	texts     map[string]string // selector expression -> element text
	fail      map[string]error  // selector expression -> click error
	inputs    map[string]string
	navErr    error
	xlsxExpr  string
}

func newFakeSession(dir, xlsxExpr string) *fakeSession {
	return &fakeSession{
		dir:       dir,
		downloads: map[string]string{},
		texts:     map[string]string{},
		fail:      map[string]error{},
		inputs:    map[string]string{},
		xlsxExpr:  xlsxExpr,
	}
}

func (f *fakeSession) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.navErr != nil {
		return f.navErr
	}
	f.current = url
	f.visited = append(f.visited, url)
	return nil
}

func (f *fakeSession) Click(ctx context.Context, sel browser.Selector, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[sel.Expr]; err != nil {
		return err
	}
	if sel.Expr == f.xlsxExpr {
		best := ""
		for prefix := range f.downloads {
			if strings.HasPrefix(f.current, prefix) && len(prefix) > len(best) {
				best = prefix
			}
		}
		if best != "" {
			name := f.downloads[best]
			return os.WriteFile(filepath.Join(f.dir, name), []byte(name), 0644)
		}
	}
	if sel.Expr == "button[type='submit']" {
		f.current = "https://example.test/"
	}
	return nil
}

func (f *fakeSession) Input(ctx context.Context, sel browser.Selector, text string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs[sel.Expr] = text
	return nil
}

func (f *fakeSession) WaitVisible(ctx context.Context, sel browser.Selector, timeout time.Duration) error {
	return nil
}

func (f *fakeSession) Text(ctx context.Context, sel browser.Selector, timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.texts[sel.Expr]
	if !ok {
		return "", &browser.ElementNotFoundError{Selector: sel, Timeout: timeout}
	}
	return text, nil
}

func (f *fakeSession) URL() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, nil
}

func (f *fakeSession) WaitURLChange(ctx context.Context, from string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == from {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeSession) Close() error { return nil }

func (f *fakeSession) Visited() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.visited...)
}

var _ browser.Session = (*fakeSession)(nil)
