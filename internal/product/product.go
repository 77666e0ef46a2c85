// Package product finds a configured item across the storefront's
// browse surfaces, adds it to the cart and classifies what happened.
// Discovery walks category, homepage, catalog and search strategies in
// order, stopping at the first listing match.
package product

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mkuran/shopbot/internal/diagnostics"
	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/models"
	"github.com/mkuran/shopbot/internal/nav"
	"github.com/mkuran/shopbot/internal/resolver"
	"github.com/mkuran/shopbot/internal/retry"
	"github.com/mkuran/shopbot/internal/textmatch"
)

// ErrNotFound marks a full discovery pass that matched nothing. It is
// retryable; listings repopulate.
var ErrNotFound = errors.New("product not found in any listing")

type Finder struct {
	page          driver.Page
	nav           *nav.Controller
	rec           *diagnostics.Recorder
	logger        *slog.Logger
	threshold     float64
	maxRetries    int
	actionTimeout time.Duration
}

func NewFinder(page driver.Page, navc *nav.Controller, rec *diagnostics.Recorder, threshold float64, maxRetries int, actionTimeout time.Duration) *Finder {
	if threshold <= 0 {
		threshold = textmatch.DefaultThreshold
	}
	return &Finder{
		page:          page,
		nav:           navc,
		rec:           rec,
		logger:        slog.Default().With("component", "product"),
		threshold:     threshold,
		maxRetries:    maxRetries,
		actionTimeout: actionTimeout,
	}
}

// categoryKeywords maps name fragments to the category link a
// storefront nav menu usually carries for them.
var categoryKeywords = map[string]string{
	"valorant":  "Valorant",
	"league":    "League of Legends",
	"legends":   "League of Legends",
	"tft":       "TFT",
	"arcane":    "Arcane",
	"wild rift": "Wild Rift",
}

var categoryMenuStrategies = []resolver.Strategy{
	resolver.S("menu-role", driver.Role("button", "Shop")),
	resolver.S("menu-nav", driver.CSS("nav .menu-toggle, nav [aria-haspopup='true'], .nav-categories")),
}

var soldOutStrategies = []resolver.Strategy{
	resolver.S("sold-out-css", driver.CSS(".sold-out, .out-of-stock, [data-testid='sold-out']")),
	resolver.S("sold-out-badge", driver.CSS(".badge--sold-out, .product-badge.soldout")),
}

var addToCartStrategies = []resolver.Strategy{
	resolver.S("add-role", driver.Role("button", "Add to Cart")),
	resolver.S("add-css", driver.CSS(".add-to-cart, [data-testid='add-to-cart'], button[name='add']")),
	resolver.S("add-text", driver.Text("Add to cart")),
	// lower-priority equivalents; some items only offer these
	resolver.S("buy-now-role", driver.Role("button", "Buy Now")),
	resolver.S("preorder-role", driver.Role("button", "Pre-Order")),
	resolver.S("preorder-css", driver.CSS(".buy-now, .preorder, [data-testid='buy-now']")),
}

var quantityInputStrategies = []resolver.Strategy{
	resolver.S("qty-role", driver.Query{Kind: driver.KindRole, Role: "spinbutton"}),
	resolver.S("qty-css", driver.CSS("input[name='quantity'], input[type='number'], .quantity-input input")),
}

var quantityIncreaseStrategies = []resolver.Strategy{
	resolver.S("inc-role", driver.Role("button", "Increase quantity")),
	resolver.S("inc-css", driver.CSS(".quantity-increase, .qty-plus, button[aria-label*='crease' i]")),
}

var addConfirmStrategies = []resolver.Strategy{
	resolver.S("drawer-css", driver.CSS(".cart-drawer.is-open, .mini-cart.open, [data-testid='cart-drawer']")),
	resolver.S("toast-css", driver.CSS(".added-to-cart, .cart-notification, .toast--success")),
	resolver.S("toast-text", driver.Text("Added to cart")),
}

// soldOutLabelPattern also flags a generic add button whose own label
// says the item is gone.
var soldOutLabels = []string{"sold out", "out of stock", "unavailable", "notify me"}

// Purchase runs the full discover-and-insert state machine for one
// request, retried end to end. Terminal outcomes (sold out, limit) are
// returned as values and never retried; only generic failures and
// not-found passes go back through the retry loop.
func (f *Finder) Purchase(ctx context.Context, req models.ProductRequest) Outcome {
	if len(req.Names) == 0 {
		return Outcome{Kind: OutcomeError, Message: "no names configured"}
	}
	label := "find " + req.Names[0]

	var outcome Outcome
	err := retry.Do(ctx, f.maxRetries, label, f.rec.Screenshot, func(ctx context.Context) error {
		got, err := f.attempt(ctx, req)
		if err != nil {
			return err
		}
		outcome = got
		return nil
	})
	if err == nil {
		return outcome
	}

	f.rec.Failure(label, err)
	if errors.Is(err, ErrNotFound) {
		return Outcome{Kind: OutcomeNotFound, Message: fmt.Sprintf("no listing matched %v", req.Names)}
	}
	return Outcome{Kind: OutcomeError, Message: err.Error()}
}

func (f *Finder) attempt(ctx context.Context, req models.ProductRequest) (Outcome, error) {
	if err := f.discover(ctx, req); err != nil {
		return Outcome{}, err
	}
	return f.insert(ctx, req)
}

// discover tries each browse strategy in order and stops at the first
// that lands on a matching item's detail page.
func (f *Finder) discover(ctx context.Context, req models.ProductRequest) error {
	if f.tryCategory(ctx, req) {
		return nil
	}
	if f.tryHomepage(ctx, req) {
		return nil
	}
	if f.tryShop(ctx, req) {
		return nil
	}
	if f.trySearch(ctx, req) {
		return nil
	}
	return ErrNotFound
}

func (f *Finder) tryCategory(ctx context.Context, req models.ProductRequest) bool {
	category := inferCategory(req.Names[0])
	if category == "" {
		return false
	}
	if err := f.nav.GoToHomepage(ctx); err != nil {
		return false
	}
	if el, _ := resolver.FirstClickable(f.page, categoryMenuStrategies); el != nil {
		el.Click()
	}
	link, _ := resolver.FirstClickable(f.page, []resolver.Strategy{
		resolver.S("category-link", driver.Role("link", category)),
		resolver.S("category-text", driver.Text(category)),
	})
	if link == nil {
		f.logger.Debug("category link not found", "category", category)
		return false
	}
	if err := link.Click(); err != nil {
		return false
	}
	f.page.WaitQuiet(f.actionTimeout)
	return f.scanAndOpen(ctx, req)
}

func (f *Finder) tryHomepage(ctx context.Context, req models.ProductRequest) bool {
	if err := f.nav.GoToHomepage(ctx); err != nil {
		return false
	}
	f.loadAllProducts(ctx)
	return f.scanAndOpen(ctx, req)
}

func (f *Finder) tryShop(ctx context.Context, req models.ProductRequest) bool {
	if !f.nav.GoToShop(ctx) {
		return false
	}
	f.loadAllProducts(ctx)
	return f.scanAndOpen(ctx, req)
}

func (f *Finder) trySearch(ctx context.Context, req models.ProductRequest) bool {
	for _, name := range req.Names {
		if err := ctx.Err(); err != nil {
			return false
		}
		if !f.nav.SearchForProduct(ctx, name) {
			continue
		}
		if f.scanAndOpen(ctx, req) {
			return true
		}
	}
	return false
}

// scanAndOpen scans the current listing and clicks through to the
// matched item's detail page.
func (f *Finder) scanAndOpen(ctx context.Context, req models.ProductRequest) bool {
	card, title, ok := f.scanListing(req.Names)
	if !ok {
		return false
	}
	if err := card.Click(); err != nil {
		f.logger.Warn("failed to open matched item", "title", title, "error", err)
		return false
	}
	f.page.WaitQuiet(f.actionTimeout)
	return true
}

// insert runs on the item detail page: stock check, quantity, add
// click, limit scan, confirmation signal.
func (f *Finder) insert(ctx context.Context, req models.ProductRequest) (Outcome, error) {
	if f.isSoldOut() {
		f.rec.Screenshot("sold_out")
		return Outcome{Kind: OutcomeOutOfStock, Message: "item is sold out"}, nil
	}

	if req.Quantity > 1 {
		f.setQuantity(req.Quantity)
	}

	if _, err := resolver.ClickWithFallback(ctx, f.page, "add to cart", addToCartStrategies, f.actionTimeout); err != nil {
		return Outcome{}, fmt.Errorf("add-to-cart click failed: %w", err)
	}
	f.page.WaitQuiet(f.actionTimeout)

	if msg, found := ScanLimitMessage(f.page); found {
		f.rec.Screenshot("limit_reached")
		return Outcome{Kind: OutcomeLimitReached, Message: msg}, nil
	}

	// Absence of a confirmation signal does not demote the outcome;
	// plenty of storefronts add silently. Known false-positive risk.
	if el, _ := resolver.First(f.page, addConfirmStrategies); el == nil {
		f.logger.Warn("no add-to-cart confirmation signal observed; assuming success")
	}
	return Outcome{Kind: OutcomeSuccess}, nil
}

// isSoldOut checks dedicated sold-out markers and the add button's own
// label.
func (f *Finder) isSoldOut() bool {
	if el, _ := resolver.First(f.page, soldOutStrategies); el != nil {
		return true
	}
	if el, _ := resolver.First(f.page, addToCartStrategies); el != nil {
		if text, err := el.Text(); err == nil {
			lower := strings.ToLower(text)
			for _, label := range soldOutLabels {
				if strings.Contains(lower, label) {
					return true
				}
			}
		}
	}
	return false
}

// setQuantity prefers the direct numeric input and falls back to
// clicking the increase control. Best-effort; a wrong quantity still
// beats no item.
func (f *Finder) setQuantity(quantity int) {
	if input, _ := resolver.First(f.page, quantityInputStrategies); input != nil {
		if err := input.Fill(strconv.Itoa(quantity)); err == nil {
			return
		}
	}
	inc, _ := resolver.FirstClickable(f.page, quantityIncreaseStrategies)
	if inc == nil {
		f.logger.Warn("no quantity control found", "requested", quantity)
		return
	}
	for i := 1; i < quantity; i++ {
		if err := inc.Click(); err != nil {
			f.logger.Debug("quantity increase click failed", "error", err)
			return
		}
	}
}

func inferCategory(name string) string {
	lower := strings.ToLower(name)
	for keyword, category := range categoryKeywords {
		if strings.Contains(lower, keyword) {
			return category
		}
	}
	return ""
}
