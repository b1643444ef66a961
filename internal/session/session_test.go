package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/CodedDrexler/eCalc-Auto/internal/browser"
	"github.com/CodedDrexler/eCalc-Auto/internal/browser/browsertest"
	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/session"
)

const (
	calcURL    = "https://www.ecalc.ch/motorcalc.php"
	loginURL   = "https://www.ecalc.ch/calcmember/login.php"
	membersURL = "https://www.ecalc.ch/calcmember/members.php"
)

func testConfig() config.ECalcConfig {
	return config.ECalcConfig{
		BaseURL:      "https://www.ecalc.ch",
		CalcPath:     "motorcalc.php",
		LoginPath:    "calcmember/login.php",
		SearchPath:   "setupfinder.php",
		LoginTimeout: 30 * time.Millisecond,
	}
}

func newSession(t *testing.T, page *browsertest.Page) *session.Session {
	t.Helper()
	return session.New(page, testConfig(), zaptest.NewLogger(t),
		session.WithSettle(0),
		session.WithCredentials(config.Credentials{Email: "pilot@example.com", Password: "secret"}))
}

func loginForm(p *browsertest.Page) {
	p.Set("input[name='username']", browsertest.Element{})
	p.Set("input[name='password']", browsertest.Element{})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("ResumesFromCookies", func(t *testing.T) {
		page := browsertest.New()
		page.OnNavigate = func(p *browsertest.Page, url string) {
			if url == calcURL {
				p.Set("a", browsertest.Element{Text: "Logout"})
			}
		}
		s := newSession(t, page)

		ok, err := s.Login(ctx, "pilot@example.com", "secret")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, s.Authenticated())
		assert.False(t, page.Called("navigate "+loginURL))
	})

	t.Run("AlertDuringCheck", func(t *testing.T) {
		page := browsertest.New()
		page.OnNavigate = func(p *browsertest.Page, url string) {
			if url == calcURL {
				p.Dialog("You are already logged in!")
			}
		}
		s := newSession(t, page)

		ok, err := s.Login(ctx, "pilot@example.com", "secret")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, page.Called("navigate "+loginURL))
	})

	t.Run("SubmitsCredentials", func(t *testing.T) {
		page := browsertest.New()
		page.OnNavigate = func(p *browsertest.Page, url string) {
			if url == loginURL {
				loginForm(p)
				p.Set(".cookieinfo-close", browsertest.Element{})
				p.Set("button", browsertest.Element{Text: "Login"})
			}
		}
		page.OnClick["button"] = func(p *browsertest.Page) {
			p.SetURL(calcURL)
			p.Set("a", browsertest.Element{Text: "Logout"})
		}
		s := newSession(t, page)

		ok, err := s.Login(ctx, "pilot@example.com", "secret")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, page.Called("click .cookieinfo-close"))
		assert.True(t, page.Called("fill input[name='username']=pilot@example.com"))
		assert.True(t, page.Called("fill input[name='password']=secret"))
		assert.Equal(t, calcURL, s.CurrentURL())
	})

	t.Run("FallsBackToEnter", func(t *testing.T) {
		page := browsertest.New()
		page.OnNavigate = func(p *browsertest.Page, url string) {
			if url == loginURL {
				loginForm(p)
			}
		}
		page.OnPress = func(p *browsertest.Page, _ browser.Key) {
			p.SetURL(calcURL)
		}
		s := newSession(t, page)

		ok, err := s.Login(ctx, "pilot@example.com", "secret")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, page.Called("press Enter"))
	})

	t.Run("RedirectedAwayFromLoginPage", func(t *testing.T) {
		page := browsertest.New()
		page.OnNavigate = func(p *browsertest.Page, url string) {
			if url == loginURL {
				p.SetURL(membersURL)
			}
		}
		s := newSession(t, page)

		ok, err := s.Login(ctx, "pilot@example.com", "secret")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.False(t, page.Called("fill input[name='username']=pilot@example.com"))
	})

	t.Run("WrongPassword", func(t *testing.T) {
		page := browsertest.New()
		page.OnNavigate = func(p *browsertest.Page, url string) {
			if url == loginURL {
				loginForm(p)
				p.Set("input[type='submit']", browsertest.Element{})
			}
		}
		s := newSession(t, page)

		ok, err := s.Login(ctx, "pilot@example.com", "wrong")
		assert.False(t, ok)
		assert.ErrorIs(t, err, session.ErrLoginFailed)
		assert.False(t, s.Authenticated())
		assert.True(t, page.Called("click input[type='submit']"))
	})
}

func TestDialogSetsOneShotFlag(t *testing.T) {
	page := browsertest.New()
	s := newSession(t, page)

	page.Dialog("Please confirm the cookie policy")
	assert.False(t, s.LoginAlertSeen())

	page.Dialog("Sie sind bereits ANGEMELDET")
	assert.True(t, s.LoginAlertSeen())
	assert.True(t, s.ConsumeLoginAlert())
	assert.False(t, s.ConsumeLoginAlert())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		probe session.Probe
		want  session.State
	}{
		{"LogoutVisible", session.Probe{URL: calcURL, LoggedIn: true}, session.StateAuthenticated},
		{"LoginURL", session.Probe{URL: loginURL}, session.StateLoginPage},
		{"LoggedOutURL", session.Probe{URL: "https://www.ecalc.ch/index.php?loggedout"}, session.StateLoginPage},
		{"LoginFormOnly", session.Probe{URL: calcURL, LoginForm: true}, session.StateLoginPage},
		{"LogoutWithEmbeddedForm", session.Probe{URL: calcURL, LoggedIn: true, LoginForm: true}, session.StateAuthenticated},
		{"LandingPage", session.Probe{URL: membersURL}, session.StateAmbiguous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, session.Classify(tt.probe, "login.php"))
		})
	}
}

func TestRedirectTarget(t *testing.T) {
	target, ok := session.RedirectTarget(loginURL+"?https://www.ecalc.ch/setupfinder.php", "login.php")
	require.True(t, ok)
	assert.Equal(t, "https://www.ecalc.ch/setupfinder.php", target)

	_, ok = session.RedirectTarget(loginURL+"?lang=de", "login.php")
	assert.False(t, ok)
	_, ok = session.RedirectTarget(calcURL, "login.php")
	assert.False(t, ok)
}

func TestEnsureValid(t *testing.T) {
	ctx := context.Background()

	t.Run("Authenticated", func(t *testing.T) {
		page := browsertest.New()
		page.SetURL(calcURL)
		page.Set("a", browsertest.Element{Text: "Logout"})
		s := newSession(t, page)

		assert.True(t, s.EnsureValid(ctx))
		assert.True(t, s.Authenticated())
		assert.Empty(t, filterPrefix(page.Calls(), "navigate"))
	})

	t.Run("LoginPageLogsInAgain", func(t *testing.T) {
		page := browsertest.New()
		page.SetURL(loginURL)
		page.OnNavigate = func(p *browsertest.Page, url string) {
			if url == calcURL {
				p.Set("a", browsertest.Element{Text: "Logout"})
			}
		}
		s := newSession(t, page)

		assert.True(t, s.EnsureValid(ctx))
		assert.True(t, page.Called("navigate "+calcURL))
	})

	t.Run("FollowsRedirectWhenAlertSeen", func(t *testing.T) {
		page := browsertest.New()
		page.SetURL(loginURL + "?https://www.ecalc.ch/setupfinder.php")
		s := newSession(t, page)
		page.Dialog("already logged in")

		assert.True(t, s.EnsureValid(ctx))
		assert.True(t, page.Called("navigate https://www.ecalc.ch/setupfinder.php"))
		assert.False(t, s.LoginAlertSeen(), "alert is consumed")
	})

	t.Run("AmbiguousTrustsAlert", func(t *testing.T) {
		page := browsertest.New()
		page.SetURL(membersURL)
		s := newSession(t, page)
		page.Dialog("You are logged in")

		assert.True(t, s.EnsureValid(ctx))
		assert.True(t, page.Called("navigate "+calcURL))
		assert.False(t, page.Called("reload"))
	})

	t.Run("AmbiguousFollowsToolLink", func(t *testing.T) {
		page := browsertest.New()
		page.SetURL(membersURL)
		page.Set("a[href*='motorcalc.php']", browsertest.Element{})
		s := newSession(t, page)

		assert.True(t, s.EnsureValid(ctx))
		assert.True(t, page.Called("navigate "+calcURL))
		assert.True(t, s.Authenticated())
	})

	t.Run("AmbiguousReloadRecovers", func(t *testing.T) {
		page := browsertest.New()
		page.SetURL(membersURL)
		page.OnReload = func(p *browsertest.Page) {
			p.Set("a", browsertest.Element{Text: "Logout"})
		}
		s := newSession(t, page)

		assert.True(t, s.EnsureValid(ctx))
		assert.Equal(t, 1, page.Count("reload"))
		assert.True(t, s.Authenticated())
	})

	t.Run("AmbiguousFailsOpen", func(t *testing.T) {
		page := browsertest.New()
		page.SetURL(membersURL)
		s := newSession(t, page)

		assert.True(t, s.EnsureValid(ctx))
		assert.Equal(t, 1, page.Count("reload"))
		assert.False(t, s.Authenticated())
	})

	t.Run("CancelledContext", func(t *testing.T) {
		page := browsertest.New()
		page.SetURL(membersURL)
		s := newSession(t, page)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		assert.False(t, s.EnsureValid(cctx))
	})
}

func filterPrefix(calls []string, prefix string) []string {
	var out []string
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
