// Package nav drives the browser to the storefront's main surfaces:
// homepage, catalog page and search. Everything except the initial
// navigation is best-effort; a missing affordance degrades to false
// instead of failing the run.
package nav

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/resolver"
)

type Controller struct {
	page          driver.Page
	baseURL       string
	navTimeout    time.Duration
	actionTimeout time.Duration
	logger        *slog.Logger

	// consentHandled is reset on every fresh navigation; the consent
	// dialog can reappear per page load.
	consentHandled bool
}

func New(page driver.Page, baseURL string, navTimeout, actionTimeout time.Duration) *Controller {
	return &Controller{
		page:          page,
		baseURL:       baseURL,
		navTimeout:    navTimeout,
		actionTimeout: actionTimeout,
		logger:        slog.Default().With("component", "nav"),
	}
}

var consentAcceptStrategies = []resolver.Strategy{
	resolver.S("accept-role", driver.Role("button", "Accept")),
	resolver.S("accept-all-role", driver.Role("button", "Accept All")),
	resolver.S("onetrust", driver.CSS("#onetrust-accept-btn-handler")),
	resolver.S("accept-css", driver.CSS(".cookie-accept, .consent-accept, [data-testid='cookie-accept'], button[id*='accept']")),
	resolver.S("accept-text", driver.Text("Accept Cookies")),
}

var consentDeclineStrategies = []resolver.Strategy{
	resolver.S("decline-role", driver.Role("button", "Decline")),
	resolver.S("reject-role", driver.Role("button", "Reject All")),
	resolver.S("decline-css", driver.CSS(".cookie-decline, .consent-decline, button[id*='reject']")),
}

var searchTriggerStrategies = []resolver.Strategy{
	resolver.S("search-role", driver.Role("button", "Search")),
	resolver.S("search-aria", driver.CSS("[aria-label*='search' i]")),
	resolver.S("search-css", driver.CSS(".search-toggle, .search-icon, [data-testid='search']")),
}

var searchInputStrategies = []resolver.Strategy{
	resolver.S("searchbox-role", driver.Query{Kind: driver.KindRole, Role: "searchbox"}),
	resolver.S("search-type", driver.CSS("input[type='search']")),
	resolver.S("search-name", driver.CSS("input[name='q'], input[name='query'], input[name='search']")),
	resolver.S("search-class", driver.CSS(".search-input, .search-field input")),
}

var searchSubmitStrategies = []resolver.Strategy{
	resolver.S("submit-role", driver.Role("button", "Search")),
	resolver.S("submit-css", driver.CSS("button[type='submit'], .search-submit")),
}

var shopLinkStrategies = []resolver.Strategy{
	resolver.S("shop-all-role", driver.Role("link", "Shop All")),
	resolver.S("shop-role", driver.Role("link", "Shop")),
	resolver.S("collections-css", driver.CSS("a[href*='/collections/all'], a[href*='/shop'], a[href*='/products']")),
	resolver.S("browse-text", driver.Text("Browse all")),
}

// GoToHomepage navigates to the storefront root and settles the page.
// A failure here is fatal to the run and propagates.
func (c *Controller) GoToHomepage(ctx context.Context) error {
	c.logger.Info("navigating to homepage", "url", c.baseURL)
	if err := c.page.Navigate(ctx, c.baseURL); err != nil {
		return fmt.Errorf("homepage navigation failed: %w", err)
	}
	c.consentHandled = false
	c.page.WaitQuiet(c.navTimeout)
	c.DismissConsent()
	return nil
}

// Navigate goes to an arbitrary storefront URL and resets the consent
// flag for the fresh page.
func (c *Controller) Navigate(ctx context.Context, url string) error {
	if err := c.page.Navigate(ctx, url); err != nil {
		return err
	}
	c.consentHandled = false
	c.page.WaitQuiet(c.navTimeout)
	c.DismissConsent()
	return nil
}

// DismissConsent clicks a consent dialog away, accept-preferred with a
// decline fallback. Idempotent per page load.
func (c *Controller) DismissConsent() bool {
	if c.consentHandled {
		return true
	}
	if el, name := resolver.FirstClickable(c.page, consentAcceptStrategies); el != nil {
		if err := el.Click(); err == nil {
			c.logger.Debug("consent accepted", "strategy", name)
			c.consentHandled = true
			return true
		}
	}
	if el, name := resolver.FirstClickable(c.page, consentDeclineStrategies); el != nil {
		if err := el.Click(); err == nil {
			c.logger.Debug("consent declined", "strategy", name)
			c.consentHandled = true
			return true
		}
	}
	// no dialog present counts as handled
	c.consentHandled = true
	return false
}

// ForceDismissConsent re-checks for a consent dialog even when one was
// already handled on this page; overlays can be raised by drawers and
// dynamic sections without a navigation.
func (c *Controller) ForceDismissConsent() bool {
	c.consentHandled = false
	return c.DismissConsent()
}

// SearchForProduct opens the search affordance if needed, fills the
// query and submits it. Best-effort boolean.
func (c *Controller) SearchForProduct(ctx context.Context, query string) bool {
	c.DismissConsent()

	input, _ := resolver.First(c.page, searchInputStrategies)
	if input == nil {
		if el, name := resolver.FirstClickable(c.page, searchTriggerStrategies); el != nil {
			if err := el.Click(); err != nil {
				c.logger.Debug("search trigger click failed", "strategy", name, "error", err)
			}
		}
		input, _ = resolver.First(c.page, searchInputStrategies)
	}
	if input == nil {
		c.logger.Warn("no search input found", "query", query)
		return false
	}

	if err := input.Fill(query); err != nil {
		c.logger.Warn("failed to fill search input", "error", err)
		return false
	}

	if err := input.Press("Enter"); err != nil {
		if _, err := resolver.ClickWithFallback(ctx, c.page, "search submit", searchSubmitStrategies, c.actionTimeout); err != nil {
			c.logger.Warn("search submit failed", "error", err)
			return false
		}
	}

	c.page.WaitQuiet(c.navTimeout)
	c.logger.Info("search submitted", "query", query)
	return true
}

// GoToShop clicks through to the browse-all catalog page.
func (c *Controller) GoToShop(ctx context.Context) bool {
	c.DismissConsent()
	if _, err := resolver.ClickWithFallback(ctx, c.page, "shop link", shopLinkStrategies, c.actionTimeout); err != nil {
		c.logger.Debug("no shop link found", "error", err)
		return false
	}
	c.page.WaitQuiet(c.navTimeout)
	return true
}
