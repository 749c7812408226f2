// internal/readiness/poller.go

// Package readiness polls the workspace UI until its preview surface reports
// that the server is starting. Two markers gate readiness, each latching
// independently: a "Web" control inside the first workspace iframe, and a
// "Starting server" heading buried in a nested preview frame chain.
package readiness

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Probe checks one readiness marker. A nil error means the marker was found
// and any required interaction succeeded.
type Probe interface {
	Name() string
	Check(ctx context.Context) error
}

// Reloader is the page control surface the poller drives between probes.
// *browser.Session satisfies it.
type Reloader interface {
	Navigate(ctx context.Context, url string) error
	SettleLoad(ctx context.Context)
}

// Poller runs the reload-and-probe loop against a live page.
type Poller struct {
	drv      Reloader
	web      Probe
	server   Probe
	interval time.Duration
	logger   *zap.Logger
}

// NewPoller assembles a poller from explicit probes. The interval is the
// minimum spacing between loop iterations; zero disables pacing.
func NewPoller(drv Reloader, web, server Probe, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		drv:      drv,
		web:      web,
		server:   server,
		interval: interval,
		logger:   logger.Named("readiness"),
	}
}

// Poll reloads the workspace and probes for both markers until both are found
// or either budget runs out. The deadline is computed once from the wall
// clock; the reload counter and the deadline are independent exits. A marker,
// once found, is never probed again within the same call.
func (p *Poller) Poll(ctx context.Context, url string, maxReloads int, budget time.Duration) bool {
	deadline := time.Now().Add(budget)
	limiter := rate.NewLimiter(rate.Every(p.interval), 1)

	webFound := false
	serverFound := false
	reloads := 0

	for {
		if !time.Now().Before(deadline) {
			p.logger.Warn("Readiness time budget exhausted.", zap.Duration("budget", budget), zap.Int("reloads", reloads))
			break
		}
		if reloads >= maxReloads {
			p.logger.Warn("Reload attempts exhausted.", zap.Int("max_reloads", maxReloads))
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			p.logger.Warn("Readiness poll interrupted.", zap.Error(err))
			break
		}

		if !(webFound && serverFound) {
			p.logger.Info("Reloading workspace.", zap.Int("attempt", reloads+1), zap.Int("max_reloads", maxReloads))
			p.reload(ctx, url)
			reloads++
		}

		if !webFound {
			if err := p.web.Check(ctx); err != nil {
				p.logger.Info("Marker not ready.", zap.String("marker", p.web.Name()), zap.Error(err))
			} else {
				webFound = true
				p.logger.Info("Marker found.", zap.String("marker", p.web.Name()))
			}
		}

		// The heading only renders in response to the web control click, so
		// its probe is gated on the first marker.
		if webFound && !serverFound {
			if err := p.server.Check(ctx); err != nil {
				p.logger.Info("Marker not ready.", zap.String("marker", p.server.Name()), zap.Error(err))
			} else {
				serverFound = true
				p.logger.Info("Marker found.", zap.String("marker", p.server.Name()))
			}
		}

		if webFound && serverFound {
			p.logger.Info("Workspace is ready.", zap.Int("reloads", reloads))
			break
		}
		if ctx.Err() != nil {
			break
		}

		p.logger.Info("Readiness cycle complete.",
			zap.Int("reloads", reloads),
			zap.Bool("web_found", webFound),
			zap.Bool("server_found", serverFound),
			zap.Duration("remaining", time.Until(deadline).Round(time.Second)))
	}

	return webFound && serverFound
}

// reload navigates back to the workspace and lets the load settle. A failed
// navigation is logged and skips the settle; the iteration then probes the
// page as it stands.
func (p *Poller) reload(ctx context.Context, url string) {
	if err := p.drv.Navigate(ctx, url); err != nil {
		p.logger.Warn("Workspace reload did not complete.", zap.Error(err))
		return
	}
	p.drv.SettleLoad(ctx)
}
