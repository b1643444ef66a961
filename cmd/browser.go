package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/browser"
	"github.com/CodedDrexler/eCalc-Auto/internal/config"
	"github.com/CodedDrexler/eCalc-Auto/internal/session"
)

// tab is a page the command owns and must close.
type tab interface {
	browser.Page
	Close() error
}

// browserLauncher starts the browser; tests swap in a fake page.
type browserLauncher func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (tab, error)

func launchChrome(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (tab, error) {
	t, err := browser.Launch(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// openSession loads the credentials, starts the browser and logs in. The
// returned cleanup closes the browser.
func openSession(ctx context.Context, cfg *config.Config, logger *zap.Logger, launch browserLauncher) (*session.Session, func(), error) {
	creds, err := cfg.LoadCredentials()
	if err != nil {
		if errors.Is(err, config.ErrNoCredentials) {
			return nil, nil, fmt.Errorf("%w: set ECALC_EMAIL and ECALC_PASSWORD or create credentials.json in %s", err, cfg.Report.OutputDir)
		}
		return nil, nil, err
	}

	t, err := launch(ctx, cfg.Browser, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start browser: %w", err)
	}
	cleanup := func() {
		if err := t.Close(); err != nil {
			logger.Warn("Failed to close browser cleanly.", zap.Error(err))
		}
	}

	sess := session.New(t, cfg.ECalc, logger,
		session.WithSettle(cfg.Browser.Settle),
		session.WithCredentials(creds),
	)
	ok, err := sess.Login(ctx, creds.Email, creds.Password)
	if !ok {
		cleanup()
		if err == nil {
			err = session.ErrLoginFailed
		}
		return nil, nil, err
	}
	return sess, cleanup, nil
}

func snapshotter(cfg *config.Config) browser.Snapshotter {
	return browser.Snapshotter{Dir: cfg.Report.DebugDir}
}
