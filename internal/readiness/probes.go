// internal/readiness/probes.go
package readiness

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/idxwake/idxwake/internal/automation"
	"github.com/idxwake/idxwake/internal/config"
)

// markerClickTimeout bounds the click on a located marker so a wedged panel
// cannot eat the whole poll budget.
const markerClickTimeout = 10 * time.Second

// NewWorkspacePoller wires the production probes against a live page.
func NewWorkspacePoller(drv Reloader, page playwright.Page, cfg config.ReadinessConfig, logger *zap.Logger) *Poller {
	return NewPoller(
		drv,
		NewWebButtonProbe(page, cfg, logger),
		NewServerHeadingProbe(page, cfg, logger),
		cfg.PollInterval,
		logger,
	)
}

// WebButtonProbe locates the "Web" control inside the first workspace iframe
// and clicks it.
type WebButtonProbe struct {
	page   playwright.Page
	cfg    config.ReadinessConfig
	logger *zap.Logger
}

// NewWebButtonProbe builds the first-marker probe.
func NewWebButtonProbe(page playwright.Page, cfg config.ReadinessConfig, logger *zap.Logger) *WebButtonProbe {
	return &WebButtonProbe{page: page, cfg: cfg, logger: logger.Named("web_probe")}
}

func (p *WebButtonProbe) Name() string { return "web control" }

// Check resolves the control by exact text inside the container's first
// iframe. The settle delay runs between locating and clicking; the workspace
// needs it to finish wiring the panel before the click lands anywhere useful.
// A locator that resolves to zero elements is a miss, not a click target.
func (p *WebButtonProbe) Check(ctx context.Context) error {
	frame := p.page.FrameLocator(p.cfg.FrameContainer + " iframe").First()
	button := frame.GetByText(p.cfg.WebButtonText, playwright.FrameLocatorGetByTextOptions{
		Exact: playwright.Bool(true),
	})

	count, err := button.Count()
	if err != nil {
		return automation.LookupFailed("count web controls in first workspace frame", err)
	}
	if count == 0 {
		return automation.LookupFailed("web control not present in first workspace frame", nil)
	}

	if !automation.Wait(ctx, p.cfg.WebButtonSettle) {
		return automation.LookupFailed("settle before web control click", ctx.Err())
	}

	if err := button.First().Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(float64(markerClickTimeout.Milliseconds())),
	}); err != nil {
		return automation.ClickFailed("click web control", err)
	}

	p.logger.Debug("Web control clicked.")
	return nil
}

// headingStrategy is one way of locating the target heading. Strategies run
// in order; the first nil error wins.
type headingStrategy struct {
	name  string
	check func(ctx context.Context) error
}

// ServerHeadingProbe looks for the "Starting server" heading through the
// documented nested preview chain first, then by scanning every frame
// attached to the page.
type ServerHeadingProbe struct {
	page       playwright.Page
	cfg        config.ReadinessConfig
	logger     *zap.Logger
	strategies []headingStrategy
}

// NewServerHeadingProbe builds the second-marker probe with its strategy
// order fixed: the specific chain before the broad scan.
func NewServerHeadingProbe(page playwright.Page, cfg config.ReadinessConfig, logger *zap.Logger) *ServerHeadingProbe {
	p := &ServerHeadingProbe{page: page, cfg: cfg, logger: logger.Named("server_probe")}
	p.strategies = []headingStrategy{
		{name: "nested preview chain", check: p.nestedChain},
		{name: "all attached frames", check: p.scanFrames},
	}
	return p
}

func (p *ServerHeadingProbe) Name() string { return "server heading" }

// Check waits out the post-click delay, then tries each strategy in order.
func (p *ServerHeadingProbe) Check(ctx context.Context) error {
	// The heading renders in reaction to the web control click; the preview
	// surface needs a moment before any lookup can land.
	if !automation.Wait(ctx, p.cfg.ServerCheckDelay) {
		return automation.LookupFailed("settle before server heading probe", ctx.Err())
	}

	lastErr := error(automation.LookupFailed("no heading strategy succeeded", nil))
	for _, strategy := range p.strategies {
		err := strategy.check(ctx)
		if err == nil {
			p.logger.Debug("Server heading located.", zap.String("strategy", strategy.name))
			return nil
		}
		lastErr = err
		p.logger.Debug("Heading strategy missed.", zap.String("strategy", strategy.name), zap.Error(err))
	}
	return lastErr
}

// nestedChain walks the documented frame path: the container's first iframe,
// the named inner frame, the titled web frame, then the preview frame.
func (p *ServerHeadingProbe) nestedChain(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return automation.LookupFailed("resolve nested preview chain", err)
	}

	chain := p.page.FrameLocator(p.cfg.FrameContainer+" iframe").First().
		FrameLocator(fmt.Sprintf(`iframe[name=%q]`, p.cfg.PreviewFrameName)).
		FrameLocator(fmt.Sprintf(`iframe[title=%q]`, p.cfg.PreviewFrameTitle)).
		FrameLocator(p.cfg.PreviewFrameSelector)

	heading := chain.GetByRole(*playwright.AriaRoleHeading, playwright.FrameLocatorGetByRoleOptions{
		Name: p.cfg.ServerHeading,
	})

	count, err := heading.Count()
	if err != nil {
		return automation.LookupFailed("resolve nested preview chain", err)
	}
	if count == 0 {
		return automation.LookupFailed("heading not present in nested preview chain", nil)
	}
	return nil
}

// scanFrames searches every frame currently attached to the page. This is
// the fallback for when the workspace rearranges its frame tree.
func (p *ServerHeadingProbe) scanFrames(ctx context.Context) error {
	for _, frame := range p.page.Frames() {
		if err := ctx.Err(); err != nil {
			return automation.LookupFailed("scan attached frames", err)
		}

		heading := frame.GetByRole(*playwright.AriaRoleHeading, playwright.FrameGetByRoleOptions{
			Name: p.cfg.ServerHeading,
		})
		count, err := heading.Count()
		if err != nil || count == 0 {
			continue
		}
		return nil
	}
	return automation.LookupFailed("heading not present in any attached frame", nil)
}
