// Package cart manages the storefront cart surface: opening it,
// checking and clearing its contents, and handing off to checkout.
package cart

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mkuran/shopbot/internal/diagnostics"
	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/nav"
	"github.com/mkuran/shopbot/internal/resolver"
)

// maxClearIterations bounds cart clearing; a remove control that never
// takes effect must not spin forever.
const maxClearIterations = 10

var openCartStrategies = []resolver.Strategy{
	resolver.S("cart-role", driver.Role("link", "Cart")),
	resolver.S("cart-button-role", driver.Role("button", "Cart")),
	resolver.S("cart-aria", driver.CSS("[aria-label*='cart' i]")),
	resolver.S("cart-css", driver.CSS(".cart-icon, .cart-link, [data-testid='cart'], a[href*='/cart']")),
}

var emptyCartStrategies = []resolver.Strategy{
	resolver.S("empty-css", driver.CSS(".cart-empty, .empty-cart, [data-testid='empty-cart']")),
	resolver.S("empty-text", driver.Text("Your cart is empty")),
}

var cartItemStrategies = []resolver.Strategy{
	resolver.S("item-css", driver.CSS(".cart-item, .line-item, [data-testid='cart-item']")),
	resolver.S("item-row", driver.CSS(".cart__row, tr.cart-row")),
}

var removeItemStrategies = []resolver.Strategy{
	resolver.S("remove-role", driver.Role("button", "Remove")),
	resolver.S("remove-css", driver.CSS(".cart-item .remove, .line-item__remove, [data-testid='remove-item']")),
	resolver.S("remove-link", driver.CSS("a[href*='quantity=0'], a[aria-label*='remove' i]")),
}

var checkoutStrategies = []resolver.Strategy{
	resolver.S("checkout-role", driver.Role("button", "Checkout")),
	resolver.S("checkout-name", driver.CSS("button[name='checkout'], input[name='checkout']")),
	resolver.S("checkout-css", driver.CSS(".checkout-button, [data-testid='checkout'], a[href*='/checkout']")),
	resolver.S("checkout-text", driver.Text("Proceed to checkout")),
}

type Manager struct {
	page          driver.Page
	rec           *diagnostics.Recorder
	nav           *nav.Controller
	logger        *slog.Logger
	baseURL       string
	actionTimeout time.Duration
}

func NewManager(page driver.Page, rec *diagnostics.Recorder, navc *nav.Controller, baseURL string, actionTimeout time.Duration) *Manager {
	return &Manager{
		page:          page,
		rec:           rec,
		nav:           navc,
		logger:        slog.Default().With("component", "cart"),
		baseURL:       baseURL,
		actionTimeout: actionTimeout,
	}
}

// Open brings up the cart surface, preferring the header affordance
// and falling back to direct navigation. A consent overlay raised
// since the last navigation would shadow the affordance, so it is
// dismissed first.
func (m *Manager) Open(ctx context.Context) error {
	m.nav.ForceDismissConsent()
	if el, name := resolver.FirstClickable(m.page, openCartStrategies); el != nil {
		if err := el.Click(); err == nil {
			m.logger.Debug("cart opened", "strategy", name)
			m.page.WaitQuiet(m.actionTimeout)
			return nil
		}
	}
	url := strings.TrimRight(m.baseURL, "/") + "/cart"
	if err := m.page.Navigate(ctx, url); err != nil {
		return fmt.Errorf("open cart: %w", err)
	}
	m.page.WaitQuiet(m.actionTimeout)
	return nil
}

// IsEmpty reports whether the open cart holds no items. Visible line
// items always win, even against an explicit empty-state message;
// empty requires that message AND no items. With no signal either way
// the cart is treated as NOT empty, since acting on a populated cart
// as if it were empty is the worse mistake.
func (m *Manager) IsEmpty() bool {
	if m.countItems() > 0 {
		return false
	}
	if el, _ := resolver.First(m.page, emptyCartStrategies); el != nil {
		return true
	}
	m.logger.Warn("cart state ambiguous; assuming not empty")
	return false
}

func (m *Manager) countItems() int {
	for _, strategy := range cartItemStrategies {
		elements, err := m.page.Query(strategy.Query)
		if err != nil {
			continue
		}
		n := 0
		for _, el := range elements {
			if el.Visible() {
				n++
			}
		}
		if n > 0 {
			return n
		}
	}
	return 0
}

// Clear removes every line item from the open cart, one remove click
// per pass, bounded. Returns an error if items remain at the bound.
func (m *Manager) Clear(ctx context.Context) error {
	for i := 0; i < maxClearIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		el, name := resolver.FirstClickable(m.page, removeItemStrategies)
		if el == nil {
			if m.countItems() == 0 {
				return nil
			}
			m.rec.Screenshot("cart_clear_stuck")
			return fmt.Errorf("cart has items but no remove control")
		}
		if err := el.Click(); err != nil {
			return fmt.Errorf("remove item (%s): %w", name, err)
		}
		m.page.WaitQuiet(m.actionTimeout)
	}
	if m.countItems() > 0 {
		m.rec.Screenshot("cart_clear_stuck")
		return fmt.Errorf("cart not empty after %d removals", maxClearIterations)
	}
	return nil
}

// ProceedToCheckout clicks through from the cart to the checkout flow,
// clearing any consent overlay that could shadow the button.
func (m *Manager) ProceedToCheckout(ctx context.Context) error {
	m.nav.ForceDismissConsent()
	name, err := resolver.ClickWithFallback(ctx, m.page, "proceed to checkout", checkoutStrategies, m.actionTimeout)
	if err != nil {
		m.rec.Screenshot("checkout_entry_failed")
		return err
	}
	m.logger.Info("entering checkout", "strategy", name)
	m.page.WaitQuiet(m.actionTimeout)
	return nil
}
