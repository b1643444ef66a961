package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/browser"
)

// State is the authentication state inferred from one look at the page.
type State int

const (
	// StateAuthenticated means a logout link is visible.
	StateAuthenticated State = iota
	// StateLoginPage means the login form or login URL is showing.
	StateLoginPage
	// StateAmbiguous means neither a logout link nor a login form is visible,
	// typically the members' landing page.
	StateAmbiguous
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateLoginPage:
		return "login_page"
	case StateAmbiguous:
		return "ambiguous"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Probe is the set of weak signals the state is derived from.
type Probe struct {
	URL       string
	LoggedIn  bool
	LoginForm bool
}

// Classify maps a probe to a state. loginPage is the file name of the login
// form, e.g. "login.php".
func Classify(p Probe, loginPage string) State {
	onLoginURL := strings.Contains(p.URL, loginPage) || strings.Contains(p.URL, loggedOutMarker)
	switch {
	case p.LoggedIn && !onLoginURL:
		return StateAuthenticated
	case onLoginURL || p.LoginForm:
		return StateLoginPage
	default:
		return StateAmbiguous
	}
}

// RedirectTarget extracts the absolute URL appended to the login page, as in
// ".../login.php?https://www.ecalc.ch/setupfinder.php".
func RedirectTarget(u, loginPage string) (string, bool) {
	marker := loginPage + "?"
	i := strings.Index(u, marker)
	if i < 0 {
		return "", false
	}
	target := u[i+len(marker):]
	if !strings.HasPrefix(target, "http") {
		return "", false
	}
	return target, true
}

func (s *Session) probe(ctx context.Context) (Probe, error) {
	u, err := s.page.URL(ctx)
	if err != nil {
		return Probe{}, err
	}
	form, _ := s.page.Exists(ctx, usernameInput)
	return Probe{URL: u, LoggedIn: s.hasLogout(ctx), LoginForm: form}, nil
}

// EnsureValid checks the session before a critical action and recovers it
// when possible. It is idempotent and fails open: when the state cannot be
// resolved it returns true and lets the next page action surface the real
// problem. It returns false only when a re-login fails or ctx is done.
func (s *Session) EnsureValid(ctx context.Context) bool {
	p, err := s.probe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.logger.Debug("Session probe failed, assuming valid.", zap.Error(err))
		return true
	}
	s.currentURL = p.URL

	if target, ok := RedirectTarget(p.URL, s.loginPage()); ok && (p.LoggedIn || s.loginAlert.Load()) {
		s.ConsumeLoginAlert()
		s.logger.Info("Logged in, following login redirect.", zap.String("target", target))
		if err := s.page.Navigate(ctx, target); err != nil {
			s.logger.Warn("Redirect navigation failed.", zap.Error(err))
		} else {
			_ = browser.Sleep(ctx, s.settle)
		}
		s.authenticated = true
		return ctx.Err() == nil
	}

	state := Classify(p, s.loginPage())
	s.logger.Debug("Session state.", zap.Stringer("state", state), zap.String("url", p.URL))
	switch state {
	case StateAuthenticated:
		s.authenticated = true
		return true
	case StateLoginPage:
		s.logger.Info("Login page detected, logging in again.")
		ok, err := s.Login(ctx, s.creds.Email, s.creds.Password)
		if err != nil {
			s.logger.Error("Re-login failed.", zap.Error(err))
		}
		return ok
	default:
		return s.resolveAmbiguous(ctx, p.URL)
	}
}

func (s *Session) resolveAmbiguous(ctx context.Context, current string) bool {
	if s.ConsumeLoginAlert() {
		s.logger.Info("Login alert seen recently, assuming valid session.")
		s.authenticated = true
		if !strings.Contains(current, s.calcPage()) {
			if err := s.page.Navigate(ctx, s.cfg.CalcURL()); err != nil {
				s.logger.Warn("Navigation to calculator failed.", zap.Error(err))
			}
		}
		return ctx.Err() == nil
	}

	s.logger.Info("Ambiguous session state, looking for the member landing page.")
	link := fmt.Sprintf("a[href*='%s']", s.calcPage())
	if ok, _ := s.page.Exists(ctx, link); ok {
		if err := s.page.Navigate(ctx, s.cfg.CalcURL()); err == nil {
			s.authenticated = true
			return true
		}
	}

	if err := browser.Sleep(ctx, s.cfg.AmbiguousWait); err != nil {
		return false
	}
	if s.hasLogout(ctx) {
		s.authenticated = true
		return true
	}

	s.logger.Info("Reloading to check session.")
	if err := s.page.Reload(ctx); err != nil {
		s.logger.Debug("Reload failed.", zap.Error(err))
	}
	if err := browser.Sleep(ctx, s.cfg.AmbiguousWait); err != nil {
		return false
	}
	if s.hasLogout(ctx) {
		s.authenticated = true
		return true
	}

	s.logger.Warn("Session state unresolved, continuing.", zap.String("url", current))
	return true
}
