// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/idxwake/idxwake/internal/config"
)

// Manager owns the Playwright driver and the single launched browser
// instance. Construction is cheap; the driver starts when the first session
// is requested.
type Manager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  *zap.Logger
	cfg     *config.Config

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup // Tracks open sessions so shutdown can wait for them.

	initOnce sync.Once
	initErr  error
}

// NewManager creates a browser manager with initialization deferred.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
	m.logger.Debug("Browser manager created (initialization deferred).")
	return m
}

// initialize installs the engine if allowed, starts the driver and launches
// the browser. Only the first call does work; later calls observe its result.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Initializing Playwright and launching browser...", zap.String("engine", m.cfg.Browser.Engine))

		if m.cfg.Browser.AutoInstall {
			if err := m.ensureInstallation(ctx); err != nil {
				m.initErr = err
				return
			}
		}

		pw, err := playwright.Run()
		if err != nil {
			m.initErr = fmt.Errorf("failed to start playwright driver: %w", err)
			return
		}
		m.pw = pw

		browser, err := m.engine(pw).Launch(m.launchOptions())
		if err != nil {
			pw.Stop()
			m.initErr = fmt.Errorf("failed to launch %s: %w", m.cfg.Browser.Engine, err)
			return
		}
		m.browser = browser

		m.logger.Info("Browser manager initialized.", zap.String("browser_version", browser.Version()))
	})
	return m.initErr
}

// ensureInstallation downloads the configured engine if it is missing. The
// install call blocks without context support, so it runs in a goroutine and
// the select enforces the configured timeout.
func (m *Manager) ensureInstallation(ctx context.Context) error {
	m.logger.Info("Verifying Playwright browser installation...", zap.String("engine", m.cfg.Browser.Engine))
	installCtx, cancel := context.WithTimeout(ctx, m.cfg.Browser.InstallTimeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		options := &playwright.RunOptions{
			Browsers: []string{m.cfg.Browser.Engine},
		}
		if err := playwright.Install(options); err != nil {
			errChan <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		errChan <- nil
	}()

	select {
	case err := <-errChan:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for playwright installation: %w", installCtx.Err())
	}
}

// engine maps the configured engine name onto the driver's browser type. The
// name was validated at config load, so anything unexpected falls back to
// firefox rather than failing here.
func (m *Manager) engine(pw *playwright.Playwright) playwright.BrowserType {
	switch m.cfg.Browser.Engine {
	case "chromium":
		return pw.Chromium
	case "webkit":
		return pw.WebKit
	default:
		return pw.Firefox
	}
}

func (m *Manager) launchOptions() playwright.BrowserTypeLaunchOptions {
	options := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.cfg.Browser.Headless),
		Args:     m.cfg.Browser.Args,
		Timeout:  playwright.Float(float64(m.cfg.Browser.LaunchTimeout.Milliseconds())),
	}
	if m.cfg.Browser.SlowMo > 0 {
		options.SlowMo = playwright.Float(m.cfg.Browser.SlowMo)
	}

	// Chromium needs extra flags to stay stable in containers. The other
	// engines reject unknown switches, so the merge is engine gated.
	if m.cfg.Browser.Engine == "chromium" {
		defaultArgs := []string{
			"--disable-gpu",
			"--no-sandbox",
			"--disable-dev-shm-usage",
		}
		options.Args = append(defaultArgs, options.Args...)
	}
	return options
}

// NewSession creates an isolated browser context holding a single page.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	session, err := newSession(m.browser, m.cfg, m.logger)
	if err != nil {
		return nil, err
	}

	m.wg.Add(1)
	session.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, session.ID())
		m.wg.Done()
		m.logger.Debug("Session removed from manager.", zap.String("session_id", session.ID()))
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Info("New session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Shutdown closes every open session, then the browser and the driver. The
// context bounds how long the session drain may take; the browser and driver
// are closed regardless.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down browser manager.")

	if m.pw == nil {
		m.logger.Debug("Manager never initialized, nothing to shut down.")
		return nil
	}

	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	for _, s := range open {
		go func(s *Session) {
			if err := s.Close(); err != nil {
				m.logger.Warn("Error closing session during shutdown.", zap.String("session_id", s.ID()), zap.Error(err))
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("All sessions closed.")
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for sessions to close, continuing shutdown.", zap.Error(ctx.Err()))
	}

	var shutdownErr error
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Error("Failed to close browser instance.", zap.Error(err))
			shutdownErr = fmt.Errorf("failed to close browser: %w", err)
		}
	}
	if err := m.pw.Stop(); err != nil {
		m.logger.Error("Failed to stop Playwright driver.", zap.Error(err))
		if shutdownErr == nil {
			shutdownErr = fmt.Errorf("failed to stop playwright driver: %w", err)
		}
	}

	m.logger.Info("Browser manager shutdown complete.")
	return shutdownErr
}
