// Package checkout walks the storefront checkout flow: contact and
// shipping details, optional discount code, payment entry and the
// final order placement behind the FULL_SEND gate. Everything short of
// the order click is rehearsal; the gate is the only thing standing
// between a filled form and a real charge.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mkuran/shopbot/internal/config"
	"github.com/mkuran/shopbot/internal/diagnostics"
	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/humanize"
	"github.com/mkuran/shopbot/internal/resolver"
)

const (
	// confirmationWindow bounds the wait for an order-confirmation
	// signal after a live order click.
	confirmationWindow = 30 * time.Second
	confirmationPoll   = time.Second
)

// Result reports how far the checkout flow got.
type Result struct {
	Completed bool   // an order was actually placed
	Rehearsed bool   // flow walked to the order button without clicking
	OrderID   string // confirmation reference when one is shown
}

type fieldSpec struct {
	label      string
	value      string
	strategies []resolver.Strategy
}

var continueStrategies = []resolver.Strategy{
	resolver.S("continue-role", driver.Role("button", "Continue")),
	resolver.S("continue-shipping", driver.Role("button", "Continue to shipping")),
	resolver.S("continue-payment", driver.Role("button", "Continue to payment")),
	resolver.S("continue-css", driver.CSS("button[type='submit'], .step__footer button, [data-testid='continue']")),
}

var discountToggleStrategies = []resolver.Strategy{
	resolver.S("discount-toggle", driver.CSS(".discount-toggle, [data-testid='discount-toggle']")),
	resolver.S("discount-text", driver.Text("Discount code")),
}

var discountInputStrategies = []resolver.Strategy{
	resolver.S("discount-name", driver.CSS("input[name='discount'], input[name='checkout[reduction_code]']")),
	resolver.S("discount-css", driver.CSS(".discount-input input, [data-testid='discount-input']")),
}

var discountApplyStrategies = []resolver.Strategy{
	resolver.S("apply-role", driver.Role("button", "Apply")),
	resolver.S("apply-css", driver.CSS(".discount-apply, [data-testid='discount-apply']")),
}

var placeOrderStrategies = []resolver.Strategy{
	resolver.S("pay-now-role", driver.Role("button", "Pay Now")),
	resolver.S("place-order-role", driver.Role("button", "Place Order")),
	resolver.S("complete-role", driver.Role("button", "Complete Order")),
	resolver.S("pay-css", driver.CSS("#checkout-pay-button, button[name='pay'], .place-order-button")),
}

var confirmationStrategies = []resolver.Strategy{
	resolver.S("confirm-css", driver.CSS(".order-confirmation, .os-order-number, [data-testid='order-confirmation']")),
	resolver.S("thank-you", driver.Text("Thank you for your order")),
}

var paymentFrameCardStrategies = []resolver.Strategy{
	resolver.S("card-frame-name", driver.CSS("input[name='number'], input[name='cardnumber']")),
	resolver.S("card-frame-css", driver.CSS("input[autocomplete='cc-number'], #card-number")),
}

type Flow struct {
	page          driver.Page
	rec           *diagnostics.Recorder
	logger        *slog.Logger
	typer         *humanize.Typer
	cfg           *config.Config
	actionTimeout time.Duration

	sleep func(time.Duration)
	now   func() time.Time
}

func NewFlow(page driver.Page, rec *diagnostics.Recorder, cfg *config.Config) *Flow {
	return &Flow{
		page:          page,
		rec:           rec,
		logger:        slog.Default().With("component", "checkout"),
		typer:         humanize.NewTyper(),
		cfg:           cfg,
		actionTimeout: cfg.ActionTimeout,
		sleep:         time.Sleep,
		now:           time.Now,
	}
}

// Run executes the checkout pipeline on the already-open checkout
// page. With FULL_SEND off the flow stops at the review screenshot and
// the order button is never touched.
func (f *Flow) Run(ctx context.Context) (Result, error) {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"contact", f.fillContact},
		{"shipping", f.fillShipping},
		{"discount", f.applyDiscount},
		{"payment", f.fillPayment},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		// every stage is best-effort; a field that won't fill may
		// already hold a saved value, and the storefront validates the
		// form again at order time anyway
		if err := step.fn(ctx); err != nil {
			f.logger.Warn("checkout step failed; continuing", "step", step.name, "error", err)
			f.rec.Screenshot("checkout_" + step.name + "_failed")
			f.rec.Failure("checkout_"+step.name, err)
			continue
		}
		f.rec.Screenshot("checkout_" + step.name)
	}

	f.rec.Screenshot("order_review")

	if !f.cfg.FullSend {
		f.logger.Warn("FULL_SEND disabled; stopping before order placement")
		f.rec.Event("checkout_rehearsed", nil)
		return Result{Rehearsed: true}, nil
	}
	return f.placeOrder(ctx)
}

var contactFieldStrategies = map[string][]resolver.Strategy{
	"email": {
		resolver.S("email-type", driver.CSS("input[type='email']")),
		resolver.S("email-name", driver.CSS("input[name='email'], input[name='checkout[email]']")),
	},
	"phone": {
		resolver.S("phone-type", driver.CSS("input[type='tel']")),
		resolver.S("phone-name", driver.CSS("input[name='phone']")),
	},
}

func (f *Flow) fillContact(ctx context.Context) error {
	fields := []fieldSpec{
		{"email", f.cfg.Contact.Email, contactFieldStrategies["email"]},
		{"phone", f.cfg.Contact.Phone, contactFieldStrategies["phone"]},
	}
	if err := f.fillFields(f.page, fields); err != nil {
		return err
	}
	return f.advance(ctx)
}

func (f *Flow) fillShipping(ctx context.Context) error {
	s := f.cfg.Shipping
	fields := []fieldSpec{
		{"first name", s.FirstName, css("input[name='firstName'], input[name='checkout[shipping_address][first_name]'], #first-name")},
		{"last name", s.LastName, css("input[name='lastName'], input[name='checkout[shipping_address][last_name]'], #last-name")},
		{"address", s.Address1, css("input[name='address1'], input[name='checkout[shipping_address][address1]'], #address1")},
		{"address 2", s.Address2, css("input[name='address2'], #address2")},
		{"city", s.City, css("input[name='city'], #city")},
		{"state", s.State, css("select[name='province'], input[name='state'], #state")},
		{"zip", s.Zip, css("input[name='zip'], input[name='postalCode'], #zip")},
		{"country", s.Country, css("select[name='country'], input[name='country'], #country")},
	}
	if err := f.fillFields(f.page, fields); err != nil {
		return err
	}
	return f.advance(ctx)
}

// applyDiscount is best-effort; a missing or rejected code must not
// sink the run.
func (f *Flow) applyDiscount(context.Context) error {
	code := f.cfg.DiscountCode
	if code == "" {
		return nil
	}
	if el, _ := resolver.FirstClickable(f.page, discountToggleStrategies); el != nil {
		el.Click()
		f.page.WaitQuiet(f.actionTimeout)
	}
	input, _ := resolver.First(f.page, discountInputStrategies)
	if input == nil {
		f.logger.Warn("discount field not found; skipping", "code", code)
		return nil
	}
	if err := input.Fill(code); err != nil {
		f.logger.Warn("discount fill failed", "error", err)
		return nil
	}
	if el, _ := resolver.FirstClickable(f.page, discountApplyStrategies); el != nil {
		el.Click()
		f.page.WaitQuiet(f.actionTimeout)
	}
	f.logger.Info("discount code submitted", "code", code)
	return nil
}

// fillPayment enters card details, preferring the payment iframe when
// the storefront hosts the card fields there.
func (f *Flow) fillPayment(ctx context.Context) error {
	p := f.cfg.Payment
	if p.CardNumber == "" {
		f.logger.Info("no card configured; leaving payment to stored methods")
		return nil
	}

	scope := f.paymentScope()
	fields := []fieldSpec{
		{"card number", p.CardNumber, css("input[name='number'], input[name='cardnumber'], input[autocomplete='cc-number'], #card-number")},
		{"name on card", p.CardName, css("input[name='name'], input[autocomplete='cc-name'], #card-name")},
	}
	if err := f.fillFields(scope, fields); err != nil {
		return err
	}
	if err := f.fillExpiry(scope, p.Expiry); err != nil {
		return err
	}
	return f.fillFields(scope, []fieldSpec{
		{"security code", p.CVV, css("input[name='verification_value'], input[name='cvc'], input[autocomplete='cc-csc'], #card-cvv")},
	})
}

// paymentScope returns the iframe hosting the card inputs, or the page
// itself when the inputs are inline.
func (f *Flow) paymentScope() driver.Scope {
	for _, frame := range f.page.Frames("card") {
		if el, _ := resolver.First(frame, paymentFrameCardStrategies); el != nil {
			f.logger.Debug("card fields found in payment frame")
			return frame
		}
	}
	return f.page
}

// fillExpiry tries the combined MM/YY field first, then split
// month/year inputs.
func (f *Flow) fillExpiry(scope driver.Scope, expiry string) error {
	if expiry == "" {
		return nil
	}
	combined := css("input[name='expiry'], input[autocomplete='cc-exp'], #card-expiry")
	if el := firstVisible(scope, combined); el != nil {
		return f.fillField(el, "expiry", expiry)
	}

	month, year, ok := strings.Cut(expiry, "/")
	if !ok {
		return fmt.Errorf("expiry %q not in MM/YY form", expiry)
	}
	fields := []fieldSpec{
		{"expiry month", month, css("input[name='expiryMonth'], select[name='month'], #card-expiry-month")},
		{"expiry year", year, css("input[name='expiryYear'], select[name='year'], #card-expiry-year")},
	}
	return f.fillFields(scope, fields)
}

// fillFields fills each provided field. An empty configured value or a
// field already holding one is skipped rather than overwritten.
func (f *Flow) fillFields(scope driver.Scope, fields []fieldSpec) error {
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		el := firstVisible(scope, field.strategies)
		if el == nil {
			f.logger.Debug("field not present; skipping", "field", field.label)
			continue
		}
		if current, err := el.InputValue(); err == nil && strings.TrimSpace(current) != "" {
			f.logger.Debug("field already filled; keeping", "field", field.label)
			continue
		}
		if err := f.fillField(el, field.label, field.value); err != nil {
			return err
		}
	}
	return nil
}

func (f *Flow) fillField(el driver.Element, label, value string) error {
	if err := f.typer.Type(el, value); err != nil {
		return fmt.Errorf("fill %s: %w", label, err)
	}
	return nil
}

// advance clicks the step's continue control when one is present;
// single-page checkouts have none.
func (f *Flow) advance(ctx context.Context) error {
	if el, _ := resolver.FirstClickable(f.page, continueStrategies); el != nil {
		if err := el.Click(); err != nil {
			return fmt.Errorf("continue: %w", err)
		}
		f.page.WaitQuiet(f.actionTimeout)
	}
	return nil
}

// placeOrder clicks the live order button and waits for confirmation.
// Reached only with FULL_SEND set.
func (f *Flow) placeOrder(ctx context.Context) (Result, error) {
	f.logger.Warn("FULL_SEND enabled; placing live order")
	name, err := resolver.ClickWithFallback(ctx, f.page, "place order", placeOrderStrategies, f.actionTimeout)
	if err != nil {
		f.rec.Screenshot("order_click_failed")
		return Result{}, err
	}
	f.logger.Info("order submitted", "strategy", name)
	f.rec.Event("order_placed", nil)

	deadline := f.now().Add(confirmationWindow)
	for f.now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if el, _ := resolver.First(f.page, confirmationStrategies); el != nil {
			ref := ""
			if text, err := el.Text(); err == nil {
				ref = strings.TrimSpace(text)
			}
			f.rec.Screenshot("order_confirmed")
			return Result{Completed: true, OrderID: ref}, nil
		}
		f.sleep(confirmationPoll)
	}
	// payment may still be settling; report completed-unconfirmed
	// rather than inventing a failure
	f.rec.Screenshot("order_unconfirmed")
	f.logger.Warn("no confirmation signal within window; order state unknown")
	return Result{Completed: true}, nil
}

func css(selector string) []resolver.Strategy {
	return []resolver.Strategy{resolver.S("css", driver.CSS(selector))}
}

func firstVisible(scope driver.Scope, strategies []resolver.Strategy) driver.Element {
	el, _ := resolver.First(scope, strategies)
	return el
}
