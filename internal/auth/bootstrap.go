// internal/auth/bootstrap.go

// Package auth brings a browser session to a verified logged-in state. It
// restores persisted cookies when they exist, judges login state purely by
// URL inspection, and falls back to driving the provider's interactive
// sign-in form.
package auth

import (
	"context"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/idxwake/idxwake/internal/config"
	"github.com/idxwake/idxwake/internal/cookiejar"
)

// SessionDriver is the slice of browser session behavior the bootstrapper
// consumes. *browser.Session satisfies it; tests substitute fakes.
type SessionDriver interface {
	Navigate(ctx context.Context, url string) error
	SettleLoad(ctx context.Context)
	URL() string
	Page() playwright.Page
	Cookies(ctx context.Context) ([]playwright.Cookie, error)
	AddCookies(ctx context.Context, cookies []playwright.OptionalCookie) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration, attempts int) error
}

// Bootstrapper drives a session from cold start to verified login.
type Bootstrapper struct {
	cfg    *config.Config
	jar    *cookiejar.Jar
	logger *zap.Logger

	// login performs the interactive credential submission. Tests swap it
	// out so the surrounding flow runs without a browser.
	login func(ctx context.Context, drv SessionDriver, cred config.Credential) error
}

// NewBootstrapper builds a bootstrapper around the given cookie jar.
func NewBootstrapper(cfg *config.Config, jar *cookiejar.Jar, logger *zap.Logger) *Bootstrapper {
	b := &Bootstrapper{
		cfg:    cfg,
		jar:    jar,
		logger: logger.Named("auth"),
	}
	b.login = b.interactiveLogin
	return b
}

// IsAuthenticated reports whether the URL belongs to the application host and
// is not a sign-in redirect. This predicate is the sole source of truth for
// login state; it is applied identically after the cookie restore, after the
// interactive login, and at final verification.
func (b *Bootstrapper) IsAuthenticated(url string) bool {
	return strings.Contains(url, b.cfg.Auth.HostMarker) &&
		!strings.Contains(url, b.cfg.Auth.SigninMarker)
}

// EnsureSession takes the session from cold start to the application page and
// reports whether the final verification found it authenticated. Soft
// failures along the way are logged and the flow continues; only context
// cancellation or a missing credential aborts it.
func (b *Bootstrapper) EnsureSession(ctx context.Context, drv SessionDriver) (bool, error) {
	restored := b.restoreCookies(ctx, drv)

	appURL := b.cfg.Auth.AppURL
	if err := drv.Navigate(ctx, appURL); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		b.logger.Warn("Initial navigation did not complete.", zap.Error(err))
	}

	loginRequired := true
	if restored {
		if b.IsAuthenticated(drv.URL()) {
			b.logger.Info("Authenticated via persisted cookies.")
			loginRequired = false
		} else {
			b.logger.Info("Persisted cookies did not produce a session, falling back to interactive login.")
		}
	}

	if loginRequired {
		cred, err := b.cfg.Auth.Credential()
		if err != nil {
			return false, err
		}

		if err := b.login(ctx, drv, cred); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			b.logger.Warn("Interactive login reported a failure, verifying anyway.", zap.Error(err))
		}

		// Land back on the application before judging the outcome.
		if err := drv.Navigate(ctx, appURL); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			b.logger.Warn("Post-login navigation did not complete.", zap.Error(err))
		}

		if b.IsAuthenticated(drv.URL()) {
			b.logger.Info("Interactive login succeeded.")
			b.PersistCookies(ctx, drv)
		} else {
			b.logger.Warn("Login may not have succeeded.", zap.String("url", drv.URL()))
		}
	}

	// Both paths converge on the target page for the final verification.
	if err := drv.Navigate(ctx, appURL); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		b.logger.Warn("Final navigation did not complete.", zap.Error(err))
	}

	currentURL := drv.URL()
	if !b.IsAuthenticated(currentURL) {
		b.logger.Warn("Current URL does not match the authenticated application.", zap.String("url", currentURL))
		return false, nil
	}

	b.logger.Info("Session verified.", zap.String("url", currentURL))
	b.PersistCookies(ctx, drv)
	return true, nil
}

// restoreCookies loads the jar and seeds the browser context. Any failure
// leaves the session cold so the interactive flow takes over.
func (b *Bootstrapper) restoreCookies(ctx context.Context, drv SessionDriver) bool {
	records, err := b.jar.Load()
	if err != nil {
		b.logger.Info("No usable cookie jar, continuing without persisted state.", zap.Error(err))
		return false
	}

	cookies := make([]playwright.OptionalCookie, 0, len(records))
	for _, r := range records {
		cookies = append(cookies, r.Optional())
	}
	if err := drv.AddCookies(ctx, cookies); err != nil {
		b.logger.Warn("Failed to seed persisted cookies.", zap.Error(err))
		return false
	}

	b.logger.Info("Restored persisted cookies.", zap.Int("cookies", len(records)))
	return true
}

// PersistCookies snapshots the context cookies into the jar. Failure is
// logged, never fatal.
func (b *Bootstrapper) PersistCookies(ctx context.Context, drv SessionDriver) {
	cookies, err := drv.Cookies(ctx)
	if err != nil {
		b.logger.Warn("Could not read session cookies.", zap.Error(err))
		return
	}
	if err := b.jar.Save(cookiejar.FromBrowser(cookies)); err != nil {
		b.logger.Warn("Could not persist session cookies.", zap.Error(err))
	}
}
