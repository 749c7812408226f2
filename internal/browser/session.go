// internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/idxwake/idxwake/internal/automation"
	"github.com/idxwake/idxwake/internal/config"
)

// Session is one isolated browser context holding a single page. Every page
// interaction the tool performs flows through a session.
type Session struct {
	id      string
	logger  *zap.Logger
	cfg     *config.Config
	context playwright.BrowserContext
	page    playwright.Page

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

// newSession creates the browser context and opens its page. A context that
// fails to produce a page is closed before the error returns.
func newSession(browser playwright.Browser, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()

	contextOptions := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  cfg.Browser.Viewport.Width,
			Height: cfg.Browser.Viewport.Height,
		},
	}
	if cfg.Browser.UserAgent != "" {
		contextOptions.UserAgent = playwright.String(cfg.Browser.UserAgent)
	}

	browserContext, err := browser.NewContext(contextOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := browserContext.NewPage()
	if err != nil {
		browserContext.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	return &Session{
		id:      sessionID,
		logger:  logger.With(zap.String("session_id", sessionID)),
		cfg:     cfg,
		context: browserContext,
		page:    page,
	}, nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Page exposes the underlying page for components that drive locators.
func (s *Session) Page() playwright.Page {
	return s.page
}

// URL returns the page's current address.
func (s *Session) URL() string {
	return s.page.URL()
}

// Navigate loads the given URL, bounded by the configured navigation timeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return automation.NavigationFailed(fmt.Sprintf("goto %s", url), err)
	}

	s.logger.Info("Navigating.", zap.String("url", url))
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		Timeout: playwright.Float(float64(s.cfg.Network.NavigationTimeout.Milliseconds())),
	})
	if err != nil {
		return automation.NavigationFailed(fmt.Sprintf("goto %s", url), err)
	}
	return nil
}

// SettleLoad waits for the DOM to become ready and the network to quiet down.
// Heavy workspaces keep connections open past any reasonable timeout, so both
// waits are best effort and expiry is only logged.
func (s *Session) SettleLoad(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	timeout := playwright.Float(float64(s.cfg.Network.LoadStateTimeout.Milliseconds()))

	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: timeout,
	}); err != nil {
		s.logger.Debug("DOM ready wait expired.", zap.Error(err))
	}
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: timeout,
	}); err != nil {
		s.logger.Debug("Network idle wait expired.", zap.Error(err))
	}
}

// WaitVisible waits for a selector to become visible, retrying soft failures
// up to attempts times.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return automation.LookupFailed(fmt.Sprintf("wait for %s", selector), err)
		}

		err := s.page.Locator(selector).WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Debug("Selector not visible yet.", zap.String("selector", selector), zap.Int("attempt", attempt), zap.Error(err))
	}
	return automation.LookupFailed(fmt.Sprintf("wait for %s", selector), lastErr)
}

// Cookies returns every cookie held by the browser context.
func (s *Session) Cookies(ctx context.Context) ([]playwright.Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, automation.IOFailed("read context cookies", err)
	}
	cookies, err := s.context.Cookies()
	if err != nil {
		return nil, automation.IOFailed("read context cookies", err)
	}
	return cookies, nil
}

// AddCookies seeds the browser context with previously captured cookies.
func (s *Session) AddCookies(ctx context.Context, cookies []playwright.OptionalCookie) error {
	if err := ctx.Err(); err != nil {
		return automation.IOFailed("add context cookies", err)
	}
	if err := s.context.AddCookies(cookies); err != nil {
		return automation.IOFailed("add context cookies", err)
	}
	return nil
}

// Close tears down the page and its context. The context close runs even if
// the page close fails; the first failure wins.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	var closeErr error
	if err := s.page.Close(); err != nil {
		s.logger.Warn("Failed to close page.", zap.Error(err))
		closeErr = fmt.Errorf("failed to close page: %w", err)
	}
	if err := s.context.Close(); err != nil {
		s.logger.Warn("Failed to close context.", zap.Error(err))
		if closeErr == nil {
			closeErr = fmt.Errorf("failed to close context: %w", err)
		}
	}

	if s.onClose != nil {
		s.onClose()
	}
	return closeErr
}
