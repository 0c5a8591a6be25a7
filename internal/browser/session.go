// Package browser drives the analytics web application through a real Chrome.
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SelectorKind tells how a selector expression is evaluated.
type SelectorKind int

const (
	KindCSS SelectorKind = iota
	KindXPath
)

// Selector locates an element on the page.
type Selector struct {
	Kind SelectorKind
	Expr string
}

// CSS returns a CSS selector.
func CSS(expr string) Selector { return Selector{Kind: KindCSS, Expr: expr} }

// XPath returns an XPath selector.
func XPath(expr string) Selector { return Selector{Kind: KindXPath, Expr: expr} }

func (s Selector) String() string {
	if s.Kind == KindXPath {
		return "xpath:" + s.Expr
	}
	return "css:" + s.Expr
}

// Session is the browser capability handed to every component that needs the page.
// Waits are bounded by the per-call timeout and by ctx.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, sel Selector, timeout time.Duration) error
	Input(ctx context.Context, sel Selector, text string, timeout time.Duration) error
	WaitVisible(ctx context.Context, sel Selector, timeout time.Duration) error
	Text(ctx context.Context, sel Selector, timeout time.Duration) (string, error)
	URL() (string, error)
	WaitURLChange(ctx context.Context, from string, timeout time.Duration) error
	Close() error
}

// ErrElementNotFound is matched by errors.Is when a selector did not resolve in time.
var ErrElementNotFound = errors.New("element not found")

// ElementNotFoundError names the selector that timed out.
type ElementNotFoundError struct {
	Selector Selector
	Timeout  time.Duration
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element %s not found within %s", e.Selector, e.Timeout)
}

func (e *ElementNotFoundError) Is(target error) bool {
	return target == ErrElementNotFound
}

// IsElementNotFound reports whether err means a selector timed out.
func IsElementNotFound(err error) bool {
	return errors.Is(err, ErrElementNotFound)
}

// classify turns a per-call deadline into ElementNotFoundError.
// Cancellation of the caller's context is passed through unchanged.
func classify(ctx context.Context, sel Selector, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ElementNotFoundError{Selector: sel, Timeout: timeout}
	}
	return fmt.Errorf("%s: %w", sel, err)
}
