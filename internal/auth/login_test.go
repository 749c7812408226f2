// internal/auth/login_test.go
package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/playwright-community/playwright-go"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idxwake/idxwake/internal/automation"
	"github.com/idxwake/idxwake/internal/config"
)

// The alias keeps the embedded field name from colliding with the
// interface's Locator method.
type locatorIface = playwright.Locator

// scriptedLocator covers the calls the login flow makes on located elements.
// Everything else is promoted from the nil embedded interface and would
// panic if reached.
type scriptedLocator struct {
	locatorIface
	count    int
	countErr error
	fillErr  error
	clickErr error

	filled []string
	clicks int
}

func (l *scriptedLocator) Count() (int, error) { return l.count, l.countErr }

func (l *scriptedLocator) First() playwright.Locator { return l }

func (l *scriptedLocator) Click(options ...playwright.LocatorClickOptions) error {
	l.clicks++
	return l.clickErr
}

func (l *scriptedLocator) Fill(value string, options ...playwright.LocatorFillOptions) error {
	if l.fillErr != nil {
		return l.fillErr
	}
	l.filled = append(l.filled, value)
	return nil
}

// loginPage hands out scripted locators keyed by how the flow asks for them.
// Lookups with no script resolve to an inert zero-match locator.
type loginPage struct {
	playwright.Page

	byText     map[string]*scriptedLocator
	byLabel    map[string]*scriptedLocator
	bySelector map[string]*scriptedLocator
	roleButton *scriptedLocator

	loadStateCalls int
}

func (p *loginPage) WaitForLoadState(options ...playwright.PageWaitForLoadStateOptions) error {
	p.loadStateCalls++
	return nil
}

func (p *loginPage) GetByText(text interface{}, options ...playwright.PageGetByTextOptions) playwright.Locator {
	return p.scripted(p.byText, text.(string))
}

func (p *loginPage) GetByLabel(text interface{}, options ...playwright.PageGetByLabelOptions) playwright.Locator {
	return p.scripted(p.byLabel, text.(string))
}

func (p *loginPage) GetByRole(role playwright.AriaRole, options ...playwright.PageGetByRoleOptions) playwright.Locator {
	if p.roleButton == nil {
		p.roleButton = &scriptedLocator{}
	}
	return p.roleButton
}

func (p *loginPage) Locator(selector string, options ...playwright.PageLocatorOptions) playwright.Locator {
	return p.scripted(p.bySelector, selector)
}

func (p *loginPage) scripted(m map[string]*scriptedLocator, key string) playwright.Locator {
	if l, ok := m[key]; ok {
		return l
	}
	return &scriptedLocator{}
}

var (
	_ playwright.Locator = (*scriptedLocator)(nil)
	_ playwright.Page    = (*loginPage)(nil)
)

func TestChooserPresent(t *testing.T) {
	b, _ := newTestBootstrapper(t, afero.NewMemMapFs())

	t.Run("should detect the chooser heading", func(t *testing.T) {
		page := &loginPage{byText: map[string]*scriptedLocator{
			accountChooserText: {count: 1},
		}}
		assert.True(t, b.chooserPresent(page))
		assert.Positive(t, page.loadStateCalls, "the DOM gets a bounded chance to render first")
	})

	t.Run("should report absence on zero matches", func(t *testing.T) {
		assert.False(t, b.chooserPresent(&loginPage{}))
	})

	t.Run("should report absence when the probe errors", func(t *testing.T) {
		page := &loginPage{byText: map[string]*scriptedLocator{
			accountChooserText: {countErr: errors.New("page closed")},
		}}
		assert.False(t, b.chooserPresent(page))
	})
}

func TestPickAccount(t *testing.T) {
	const identifier = "user@example.com"

	b, _ := newTestBootstrapper(t, afero.NewMemMapFs())

	t.Run("should click the entry matching the identifier", func(t *testing.T) {
		entry := &scriptedLocator{count: 1}
		page := &loginPage{byText: map[string]*scriptedLocator{identifier: entry}}

		b.pickAccount(page, identifier)

		assert.Equal(t, 1, entry.clicks)
		assert.Positive(t, page.loadStateCalls, "picking an account settles the page")
	})

	t.Run("should fall back to the first listed account", func(t *testing.T) {
		listed := &scriptedLocator{count: 2}
		page := &loginPage{bySelector: map[string]*scriptedLocator{
			accountEntryCSS: listed,
		}}

		b.pickAccount(page, identifier)

		assert.Equal(t, 1, listed.clicks)
	})

	t.Run("should try the next candidate when a click fails", func(t *testing.T) {
		matching := &scriptedLocator{count: 1, clickErr: errors.New("intercepted")}
		listed := &scriptedLocator{count: 1}
		page := &loginPage{
			byText:     map[string]*scriptedLocator{identifier: matching},
			bySelector: map[string]*scriptedLocator{accountEntryCSS: listed},
		}

		b.pickAccount(page, identifier)

		assert.Equal(t, 1, matching.clicks)
		assert.Equal(t, 1, listed.clicks, "the structural fallback should take over")
	})

	t.Run("should tolerate a chooser with no clickable entries", func(t *testing.T) {
		structural := &scriptedLocator{}
		page := &loginPage{bySelector: map[string]*scriptedLocator{
			fmt.Sprintf(`div:has-text(%q)`, identifier): structural,
		}}

		b.pickAccount(page, identifier)

		assert.Zero(t, structural.clicks, "zero-match candidates are skipped, not clicked")
	})
}

func TestSubmitSecret(t *testing.T) {
	b, _ := newTestBootstrapper(t, afero.NewMemMapFs())

	t.Run("should prefer the labelled field", func(t *testing.T) {
		labelled := &scriptedLocator{}
		page := &loginPage{byLabel: map[string]*scriptedLocator{passwordLabel: labelled}}

		require.NoError(t, b.submitSecret(page, "secret123"))
		assert.Equal(t, []string{"secret123"}, labelled.filled)
		assert.Equal(t, 1, page.roleButton.clicks, "the form should advance after the fill")
	})

	t.Run("should fall back to the css selector", func(t *testing.T) {
		structural := &scriptedLocator{}
		page := &loginPage{
			byLabel:    map[string]*scriptedLocator{passwordLabel: {fillErr: errors.New("not visible")}},
			bySelector: map[string]*scriptedLocator{passwordCSS: structural},
		}

		require.NoError(t, b.submitSecret(page, "secret123"))
		assert.Equal(t, []string{"secret123"}, structural.filled)
	})

	t.Run("should fail the attempt when no field accepts the secret", func(t *testing.T) {
		page := &loginPage{
			byLabel:    map[string]*scriptedLocator{passwordLabel: {fillErr: errors.New("not visible")}},
			bySelector: map[string]*scriptedLocator{passwordCSS: {fillErr: errors.New("not visible")}},
		}

		err := b.submitSecret(page, "secret123")
		require.Error(t, err)
		assert.Equal(t, automation.StageClick, automation.StageOf(err))
	})
}

func TestInteractiveLogin(t *testing.T) {
	cred := config.Credential{Identifier: "user@example.com", Secret: "secret123"}

	newLoginBootstrapper := func(t *testing.T) *Bootstrapper {
		t.Helper()
		b, _ := newTestBootstrapper(t, afero.NewMemMapFs())
		b.cfg.Network.PostSubmitWait = 0
		return b
	}

	t.Run("should walk the identifier path when no chooser shows", func(t *testing.T) {
		b := newLoginBootstrapper(t)

		identifierField := &scriptedLocator{}
		passwordField := &scriptedLocator{}
		page := &loginPage{byLabel: map[string]*scriptedLocator{
			identifierLabel: identifierField,
			passwordLabel:   passwordField,
		}}
		drv := &fakeDriver{page: page, landings: []string{signinURL}}

		require.NoError(t, b.interactiveLogin(context.Background(), drv, cred))

		assert.Equal(t, []string{cred.Identifier}, identifierField.filled)
		assert.Equal(t, []string{cred.Secret}, passwordField.filled)
		assert.Equal(t, 2, page.roleButton.clicks, "identifier and password steps both advance")
	})

	t.Run("should pick from the chooser when it is showing", func(t *testing.T) {
		b := newLoginBootstrapper(t)

		entry := &scriptedLocator{count: 1}
		passwordField := &scriptedLocator{}
		page := &loginPage{
			byText: map[string]*scriptedLocator{
				accountChooserText: {count: 1},
				cred.Identifier:    entry,
			},
			byLabel: map[string]*scriptedLocator{passwordLabel: passwordField},
		}
		drv := &fakeDriver{page: page, landings: []string{signinURL}}

		require.NoError(t, b.interactiveLogin(context.Background(), drv, cred))

		assert.Equal(t, 1, entry.clicks)
		assert.Equal(t, []string{cred.Secret}, passwordField.filled)
	})
}
