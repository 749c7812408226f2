// internal/auth/login.go
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/idxwake/idxwake/internal/automation"
	"github.com/idxwake/idxwake/internal/config"
)

// Selectors for the provider's sign-in flow. The jsname button is the stable
// fallback for the localized "Next" label.
const (
	accountChooserText = "Choose an account"
	accountEntryCSS    = ".OVnw0d"
	identifierLabel    = "Email or phone"
	identifierCSS      = `input[type="email"]`
	passwordLabel      = "Enter your password"
	passwordCSS        = `input[type="password"]`
	nextButtonName     = "Next"
	nextButtonCSS      = `button[jsname="LgbsSe"]`
)

// interactiveLogin drives the provider's sign-in flow: account chooser or
// identifier entry, then the password form. Every step short of the password
// entry is best effort; the caller re-verifies the outcome by URL.
func (b *Bootstrapper) interactiveLogin(ctx context.Context, drv SessionDriver, cred config.Credential) error {
	b.logger.Info("Starting interactive login.")
	page := drv.Page()

	// Land on the sign-in flow if the first navigation did not redirect
	// there already.
	if !strings.Contains(drv.URL(), b.cfg.Auth.SigninMarker) {
		if err := drv.Navigate(ctx, b.cfg.Auth.AppURL); err != nil {
			b.logger.Warn("Navigation towards sign-in did not complete.", zap.Error(err))
		}
		drv.SettleLoad(ctx)
	}

	if b.chooserPresent(page) {
		b.pickAccount(page, cred.Identifier)
	} else {
		b.submitIdentifier(page, cred.Identifier)
	}

	// One retry: the sign-in page sometimes swaps the password form in a
	// beat after the identifier submit lands.
	if err := drv.WaitVisible(ctx, passwordCSS, b.cfg.Auth.PasswordWait, 2); err != nil {
		b.logger.Warn("Password field did not appear in time, trying anyway.", zap.Error(err))
	}

	if err := b.submitSecret(page, cred.Secret); err != nil {
		return err
	}

	// Give the provider time to process the submission before the caller
	// navigates back to the application.
	automation.Wait(ctx, b.cfg.Network.PostSubmitWait)
	return nil
}

// chooserPresent reports whether the account chooser page is showing. The
// chooser renders late, so the DOM gets a bounded chance to become ready
// before the probe.
func (b *Bootstrapper) chooserPresent(page playwright.Page) bool {
	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(float64(b.cfg.Auth.ChooserWait.Milliseconds())),
	}); err != nil {
		b.logger.Debug("DOM ready wait before chooser probe expired.", zap.Error(err))
	}

	count, err := page.GetByText(accountChooserText, playwright.PageGetByTextOptions{
		Exact: playwright.Bool(true),
	}).Count()
	if err != nil {
		b.logger.Debug("Account chooser probe failed.", zap.Error(err))
		return false
	}
	return count > 0
}

// pickAccount clicks the chooser entry for the identifier, falling back to a
// structural match and finally the first listed account. A chooser page with
// no clickable entry is tolerated; the password step may still appear.
func (b *Bootstrapper) pickAccount(page playwright.Page, identifier string) {
	b.logger.Info("Account chooser detected, selecting account.")

	candidates := []struct {
		name    string
		locator playwright.Locator
	}{
		{"identifier text", page.GetByText(identifier)},
		{"identifier container", page.Locator(fmt.Sprintf(`div:has-text(%q)`, identifier))},
		{"first listed account", page.Locator(accountEntryCSS)},
	}

	for _, candidate := range candidates {
		count, err := candidate.locator.Count()
		if err != nil || count == 0 {
			continue
		}
		if err := candidate.locator.First().Click(); err != nil {
			b.logger.Debug("Chooser entry click failed.", zap.String("candidate", candidate.name), zap.Error(err))
			continue
		}

		b.logger.Info("Account selected.", zap.String("candidate", candidate.name))
		if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: playwright.Float(float64(b.cfg.Auth.ChooserWait.Milliseconds())),
		}); err != nil {
			b.logger.Debug("Post-selection settle expired.", zap.Error(err))
		}
		return
	}

	b.logger.Warn("No account entry could be clicked, continuing to the password step.")
}

// submitIdentifier fills the email field and advances, preferring the
// accessible locator with a CSS fallback.
func (b *Bootstrapper) submitIdentifier(page playwright.Page, identifier string) {
	b.logger.Info("Submitting account identifier.")

	if err := page.GetByLabel(identifierLabel).Fill(identifier); err != nil {
		b.logger.Debug("Labelled identifier field rejected input.", zap.Error(err))
		if err := page.Locator(identifierCSS).Fill(identifier); err != nil {
			b.logger.Warn("Could not fill the identifier field.", zap.Error(err))
		}
	}

	b.clickNext(page, "identifier")
}

// submitSecret fills the password field and submits. Unlike the earlier
// steps, failing to enter the secret is fatal for the attempt.
func (b *Bootstrapper) submitSecret(page playwright.Page, secret string) error {
	b.logger.Info("Submitting password.")

	if err := page.GetByLabel(passwordLabel).Fill(secret); err != nil {
		b.logger.Debug("Labelled password field rejected input.", zap.Error(err))
		if err := page.Locator(passwordCSS).Fill(secret); err != nil {
			return automation.ClickFailed("fill password field", err)
		}
	}

	b.clickNext(page, "password")
	return nil
}

// clickNext presses the forward button, trying the accessible name first and
// the structural fallback second.
func (b *Bootstrapper) clickNext(page playwright.Page, step string) {
	err := page.GetByRole(*playwright.AriaRoleButton, playwright.PageGetByRoleOptions{
		Name: nextButtonName,
	}).Click()
	if err == nil {
		return
	}
	b.logger.Debug("Accessible next button click failed.", zap.String("step", step), zap.Error(err))

	if err := page.Locator(nextButtonCSS).Click(); err != nil {
		b.logger.Warn("Could not advance the login form.", zap.String("step", step), zap.Error(err))
	}
}
