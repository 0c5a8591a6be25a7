package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dashpull/dashpull/internal/browser"
)

// ErrMissingCredentials is returned when no username or password is configured.
var ErrMissingCredentials = errors.New("username and password are required")

// Login signs in through the login form and waits for the redirect away from it.
func Login(ctx context.Context, s browser.Session, sel Selectors, loginURL, username, password string, timeout time.Duration) error {
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	if err := s.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("login page: %w", err)
	}
	if err := s.Input(ctx, Selector(sel.LoginUsername), username, timeout); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	if err := s.Input(ctx, Selector(sel.LoginPassword), password, timeout); err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	from, err := s.URL()
	if err != nil {
		return fmt.Errorf("login page: %w", err)
	}
	if err := s.Click(ctx, Selector(sel.LoginSubmit), timeout); err != nil {
		return fmt.Errorf("login submit: %w", err)
	}
	if err := s.WaitURLChange(ctx, from, timeout); err != nil {
		return fmt.Errorf("login did not complete: %w", err)
	}
	return nil
}
