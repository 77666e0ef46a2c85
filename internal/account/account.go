// Package account handles storefront authentication: sign-in with
// human-paced typing, CAPTCHA hand-off to the operator, sign-out, and
// account-level purchase-limit detection.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/mkuran/shopbot/internal/diagnostics"
	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/humanize"
	"github.com/mkuran/shopbot/internal/models"
	"github.com/mkuran/shopbot/internal/product"
	"github.com/mkuran/shopbot/internal/resolver"
)

const (
	// settleWindow bounds the post-submit wait. Held at a full minute so
	// an operator can clear a CAPTCHA or interstitial in headful mode;
	// the loop exits early only on success or an explicit rejection.
	settleWindow = 60 * time.Second
	settlePoll   = time.Second
)

var signInLinkStrategies = []resolver.Strategy{
	resolver.S("signin-role", driver.Role("link", "Sign In")),
	resolver.S("login-role", driver.Role("link", "Log In")),
	resolver.S("account-css", driver.CSS("[aria-label*='account' i], .account-icon, a[href*='/account/login'], a[href*='/login']")),
}

var usernameStrategies = []resolver.Strategy{
	resolver.S("email-type", driver.CSS("input[type='email']")),
	resolver.S("username-name", driver.CSS("input[name='email'], input[name='username'], input[name='customer[email]']")),
	resolver.S("username-id", driver.CSS("#email, #username, #CustomerEmail")),
}

var passwordStrategies = []resolver.Strategy{
	resolver.S("password-type", driver.CSS("input[type='password']")),
	resolver.S("password-name", driver.CSS("input[name='password'], input[name='customer[password]']")),
}

var submitStrategies = []resolver.Strategy{
	resolver.S("signin-button", driver.Role("button", "Sign In")),
	resolver.S("login-button", driver.Role("button", "Log In")),
	resolver.S("submit-css", driver.CSS("button[type='submit'], input[type='submit']")),
}

var signedInStrategies = []resolver.Strategy{
	resolver.S("account-menu", driver.CSS(".account-menu, [data-testid='account-menu'], a[href*='/account/logout']")),
	resolver.S("signout-role", driver.Role("link", "Sign Out")),
	resolver.S("logout-role", driver.Role("link", "Log Out")),
}

var signedOutStrategies = []resolver.Strategy{
	resolver.S("signin-link", driver.Role("link", "Sign In")),
	resolver.S("login-href", driver.CSS("a[href*='/login'], a[href*='/account/login']")),
}

var signInErrorStrategies = []resolver.Strategy{
	resolver.S("form-error", driver.CSS(".form-error, .errors, .login-error, [data-testid='login-error']")),
	resolver.S("alert", driver.CSS("[role='alert']")),
}

var captchaStrategies = []resolver.Strategy{
	resolver.S("recaptcha", driver.CSS("iframe[src*='recaptcha'], .g-recaptcha")),
	resolver.S("hcaptcha", driver.CSS("iframe[src*='hcaptcha'], .h-captcha")),
	resolver.S("challenge", driver.CSS("[data-testid='captcha'], .captcha-container")),
}

var signOutStrategies = []resolver.Strategy{
	resolver.S("signout-role", driver.Role("link", "Sign Out")),
	resolver.S("logout-role", driver.Role("link", "Log Out")),
	resolver.S("logout-css", driver.CSS("a[href*='/logout'], [data-testid='sign-out']")),
}

var accountMenuStrategies = []resolver.Strategy{
	resolver.S("menu-css", driver.CSS(".account-menu-toggle, [aria-label*='account' i], .account-icon")),
}

type Manager struct {
	page          driver.Page
	rec           *diagnostics.Recorder
	logger        *slog.Logger
	typer         *humanize.Typer
	rand          *rand.Rand
	baseURL       string
	actionTimeout time.Duration

	// sleep and now are swapped in tests to keep the settle loops fast.
	sleep func(time.Duration)
	now   func() time.Time
}

func NewManager(page driver.Page, rec *diagnostics.Recorder, baseURL string, actionTimeout time.Duration) *Manager {
	return &Manager{
		page:          page,
		rec:           rec,
		logger:        slog.Default().With("component", "account"),
		typer:         humanize.NewTyper(),
		rand:          rand.New(rand.NewSource(time.Now().UnixNano())),
		baseURL:       baseURL,
		actionTimeout: actionTimeout,
		sleep:         time.Sleep,
		now:           time.Now,
	}
}

// IsSignedIn inspects the current page for authentication state. The
// URL is authoritative when it names an auth surface; DOM markers are
// consulted only when the URL says nothing.
func (m *Manager) IsSignedIn() bool {
	url := strings.ToLower(m.page.URL())
	switch {
	case strings.Contains(url, "/login") || strings.Contains(url, "/signin") ||
		strings.Contains(url, "/sign-in") || strings.Contains(url, "/logout"):
		return false
	case strings.Contains(url, "/account"):
		return true
	}
	if el, _ := resolver.First(m.page, signedInStrategies); el != nil {
		return true
	}
	if el, _ := resolver.First(m.page, signedOutStrategies); el != nil {
		return false
	}
	// no signal either way; assume signed out so the flow goes through
	// the explicit sign-in path, which re-checks
	return false
}

// SignIn authenticates the given account. Any session already live is
// signed out first so the credentials entered are the ones the run
// records. Typing is human-paced; a CAPTCHA pauses the flow for the
// operator. The password never reaches the logs.
func (m *Manager) SignIn(ctx context.Context, acct models.Account) error {
	m.logger.Info("signing in", "account", acct.MaskedUsername())

	if m.IsSignedIn() {
		if err := m.freshStart(ctx); err != nil {
			return err
		}
	}
	if err := m.openSignInForm(ctx); err != nil {
		return err
	}
	if m.IsSignedIn() {
		// the login page bounced straight back to the account surface:
		// a stale session is still live
		if err := m.freshStart(ctx); err != nil {
			return err
		}
		if err := m.openSignInForm(ctx); err != nil {
			return err
		}
	}

	user, _ := resolver.First(m.page, usernameStrategies)
	pass, _ := resolver.First(m.page, passwordStrategies)
	if user == nil || pass == nil {
		m.rec.Screenshot("signin_form_missing")
		return fmt.Errorf("sign-in form not found")
	}

	if err := m.typer.Type(user, acct.Username); err != nil {
		return fmt.Errorf("type username: %w", err)
	}
	if err := m.typer.Type(pass, acct.Password); err != nil {
		return fmt.Errorf("type password: %w", err)
	}
	humanize.Idle(m.page, m.rand)

	if _, err := resolver.ClickWithFallback(ctx, m.page, "submit sign-in", submitStrategies, m.actionTimeout); err != nil {
		m.rec.Screenshot("signin_submit_failed")
		return err
	}

	return m.settle(ctx, acct)
}

func (m *Manager) openSignInForm(ctx context.Context) error {
	if el, _ := resolver.FirstClickable(m.page, signInLinkStrategies); el != nil {
		if err := el.Click(); err == nil {
			m.page.WaitQuiet(m.actionTimeout)
			if m.hasSignInForm() {
				return nil
			}
		}
	}
	url := strings.TrimRight(m.baseURL, "/") + "/account/login"
	if err := m.page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("open sign-in form: %w", err)
	}
	m.page.WaitQuiet(m.actionTimeout)
	return nil
}

func (m *Manager) hasSignInForm() bool {
	el, _ := resolver.First(m.page, usernameStrategies)
	return el != nil
}

// settle waits for the post-submit page to resolve: signed in,
// rejected, or timed out. The full window is always granted so an
// operator can clear a CAPTCHA or any other interstitial the page
// throws up; detecting a known challenge only adds diagnostics.
func (m *Manager) settle(ctx context.Context, acct models.Account) error {
	deadline := m.now().Add(settleWindow)
	captchaSeen := false
	for m.now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.IsSignedIn() {
			m.logger.Info("signed in", "account", acct.MaskedUsername())
			return nil
		}
		if msg, found := m.signInError(); found {
			m.rec.Screenshot("signin_rejected")
			return fmt.Errorf("sign-in rejected: %s", msg)
		}
		if !captchaSeen && m.hasCaptcha() {
			captchaSeen = true
			m.logger.Warn("captcha challenge; waiting for operator", "account", acct.MaskedUsername(), "window", settleWindow)
			m.rec.Screenshot("captcha_challenge")
			m.rec.Event("captcha", map[string]any{"account": acct.MaskedUsername()})
		}
		m.sleep(settlePoll)
	}
	m.rec.Screenshot("signin_timeout")
	if captchaSeen {
		return fmt.Errorf("captcha unsolved after %s", settleWindow)
	}
	return fmt.Errorf("sign-in did not settle within %s", settleWindow)
}

func (m *Manager) signInError() (string, bool) {
	for _, strategy := range signInErrorStrategies {
		elements, err := m.page.Query(strategy.Query)
		if err != nil {
			continue
		}
		for _, el := range elements {
			if !el.Visible() {
				continue
			}
			if text, err := el.Text(); err == nil {
				if text = strings.TrimSpace(text); text != "" {
					return text, true
				}
			}
		}
	}
	return "", false
}

func (m *Manager) hasCaptcha() bool {
	el, _ := resolver.First(m.page, captchaStrategies)
	return el != nil
}

// freshStart clears a session left over from a previous account so the
// credentials entered next are the ones this run records.
func (m *Manager) freshStart(ctx context.Context) error {
	m.logger.Info("existing session detected; signing out first")
	if err := m.SignOut(ctx); err != nil {
		return fmt.Errorf("stale session sign-out: %w", err)
	}
	if err := m.page.Navigate(ctx, m.baseURL); err != nil {
		return fmt.Errorf("return to homepage: %w", err)
	}
	m.page.WaitQuiet(m.actionTimeout)
	return nil
}

// SignOut ends the session, preferring the account menu and falling
// back to the logout URL. Always attempted between accounts.
func (m *Manager) SignOut(ctx context.Context) error {
	if el, _ := resolver.FirstClickable(m.page, accountMenuStrategies); el != nil {
		el.Click()
	}
	if el, _ := resolver.FirstClickable(m.page, signOutStrategies); el != nil {
		if err := el.Click(); err == nil {
			m.page.WaitQuiet(m.actionTimeout)
			if !m.IsSignedIn() {
				return nil
			}
		}
	}
	url := strings.TrimRight(m.baseURL, "/") + "/account/logout"
	if err := m.page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	m.page.WaitQuiet(m.actionTimeout)
	if m.IsSignedIn() {
		m.rec.Screenshot("signout_failed")
		return fmt.Errorf("still signed in after logout")
	}
	return nil
}

// HasReachedPurchaseLimit reports whether the current page shows
// account-level purchase-limit wording.
func (m *Manager) HasReachedPurchaseLimit() (string, bool) {
	return product.ScanLimitMessage(m.page)
}
