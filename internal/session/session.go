// Package session owns the authenticated eCalc browsing context: the member
// login, the "already logged in" dialog flag and the recovery state machine
// run before every critical page action.
package session

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/browser"
	"github.com/CodedDrexler/eCalc-Auto/internal/config"
)

// ErrLoginFailed is returned by Login when the member area could not be
// confirmed after submitting the form.
var ErrLoginFailed = errors.New("login failed")

const (
	logoutSelector    = "a"
	logoutText        = "Logout"
	cookieClose       = ".cookieinfo-close"
	usernameInput     = "input[name='username']"
	passwordInput     = "input[name='password']"
	rememberInput     = "input[name='remember']"
	loginButton       = "button"
	loginButtonText   = "Login"
	submitInput       = "input[type='submit']"
	loggedOutMarker   = "loggedout"
	loginPollInterval = 250 * time.Millisecond
)

// alertPhrases identify the login confirmation dialog, in English and German.
var alertPhrases = []string{"logged in", "angemeldet"}

// Session is the single browsing context shared by the harvester and the
// orchestrator. It is not safe for concurrent use except for the dialog
// callback, which only sets the alert flag.
type Session struct {
	page   browser.Page
	cfg    config.ECalcConfig
	logger *zap.Logger
	settle time.Duration

	creds         config.Credentials
	authenticated bool
	currentURL    string
	loginAlert    atomic.Bool
}

// Option configures a Session.
type Option func(*Session)

// WithSettle sets the pause after navigations.
func WithSettle(d time.Duration) Option {
	return func(s *Session) { s.settle = d }
}

// WithCredentials stores the account used when the session must log in again.
func WithCredentials(c config.Credentials) Option {
	return func(s *Session) { s.creds = c }
}

// New wraps page and installs the dialog listener. Call it before the first
// navigation so an early login alert is not missed.
func New(page browser.Page, cfg config.ECalcConfig, logger *zap.Logger, opts ...Option) *Session {
	s := &Session{
		page:   page,
		cfg:    cfg,
		logger: logger.Named("session"),
		settle: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	page.OnDialog(s.handleDialog)
	return s
}

// Page returns the underlying browsing context.
func (s *Session) Page() browser.Page { return s.page }

// Config returns the eCalc locations the session was created with.
func (s *Session) Config() config.ECalcConfig { return s.cfg }

// Authenticated reports the last known login state.
func (s *Session) Authenticated() bool { return s.authenticated }

// CurrentURL is the URL observed by the last state probe.
func (s *Session) CurrentURL() string { return s.currentURL }

// LoginAlertSeen reports whether a login confirmation dialog is pending.
func (s *Session) LoginAlertSeen() bool { return s.loginAlert.Load() }

// ConsumeLoginAlert returns and clears the pending login alert flag.
func (s *Session) ConsumeLoginAlert() bool { return s.loginAlert.Swap(false) }

func (s *Session) handleDialog(message string) {
	msg := strings.ToLower(message)
	s.logger.Info("Dialog opened.", zap.String("message", message))
	for _, phrase := range alertPhrases {
		if strings.Contains(msg, phrase) {
			s.loginAlert.Store(true)
			return
		}
	}
}

// Login authenticates with email and password. A session restored from the
// browser profile, or confirmed by the login alert, returns true without
// submitting the form. A false result carries the reason wrapped in
// ErrLoginFailed.
func (s *Session) Login(ctx context.Context, email, password string) (bool, error) {
	s.creds = config.Credentials{Email: email, Password: password}
	s.loginAlert.Store(false)

	s.logger.Info("Checking for an active session.")
	if err := s.page.Navigate(ctx, s.cfg.CalcURL()); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.logger.Debug("Session check navigation failed.", zap.Error(err))
	} else if err := browser.Sleep(ctx, s.settle); err != nil {
		return false, err
	}
	if s.hasLogout(ctx) {
		s.logger.Info("Session resumed from cookies.")
		return s.succeed(ctx), nil
	}
	if s.loginAlert.Load() {
		s.logger.Info("Login alert seen during session check.")
		return s.succeed(ctx), nil
	}

	s.logger.Info("Opening login page.")
	if err := s.page.Navigate(ctx, s.cfg.LoginURL()); err != nil {
		return false, fmt.Errorf("%w: opening login page: %w", ErrLoginFailed, err)
	}
	if err := browser.Sleep(ctx, s.settle); err != nil {
		return false, err
	}
	if u, err := s.page.URL(ctx); err == nil && !strings.Contains(u, s.loginPage()) {
		s.logger.Info("Already logged in, login page redirected.", zap.String("url", u))
		return s.succeed(ctx), nil
	}

	s.logger.Info("Submitting credentials.", zap.String("email", email))
	if err := s.submit(ctx, email, password); err != nil {
		return false, fmt.Errorf("%w: %w", ErrLoginFailed, err)
	}

	err := browser.Poll(ctx, s.cfg.LoginTimeout, loginPollInterval, func(ctx context.Context) (bool, error) {
		if s.hasLogout(ctx) {
			return true, nil
		}
		u, err := s.page.URL(ctx)
		return err == nil && strings.Contains(u, s.calcPage()), err
	})
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		s.authenticated = false
		s.logger.Warn("Login might have failed, no logout link found.")
		return false, fmt.Errorf("%w: no logout link after submit: %w", ErrLoginFailed, err)
	}
	s.logger.Info("Login successful.")
	return s.succeed(ctx), nil
}

func (s *Session) submit(ctx context.Context, email, password string) error {
	p := s.page
	if ok, _ := p.Exists(ctx, cookieClose); ok {
		if err := p.Click(ctx, cookieClose); err != nil {
			s.logger.Debug("Cookie overlay did not close.", zap.Error(err))
		}
		if err := browser.Sleep(ctx, s.settle/2); err != nil {
			return err
		}
	}
	if err := p.Fill(ctx, usernameInput, email); err != nil {
		return fmt.Errorf("filling username: %w", err)
	}
	if err := p.Fill(ctx, passwordInput, password); err != nil {
		return fmt.Errorf("filling password: %w", err)
	}
	if ok, _ := p.Exists(ctx, rememberInput); ok {
		_ = p.Click(ctx, rememberInput)
	}

	if ok, _ := p.HasText(ctx, loginButton, loginButtonText); ok {
		return p.ClickText(ctx, loginButton, loginButtonText)
	}
	if ok, _ := p.Exists(ctx, submitInput); ok {
		return p.Click(ctx, submitInput)
	}
	return p.Press(ctx, browser.KeyEnter)
}

func (s *Session) succeed(ctx context.Context) bool {
	s.authenticated = true
	if u, err := s.page.URL(ctx); err == nil {
		s.currentURL = u
	}
	return true
}

func (s *Session) hasLogout(ctx context.Context) bool {
	ok, err := s.page.HasText(ctx, logoutSelector, logoutText)
	return err == nil && ok
}

func (s *Session) loginPage() string { return path.Base(s.cfg.LoginPath) }
func (s *Session) calcPage() string  { return path.Base(s.cfg.CalcPath) }
