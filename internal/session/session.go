// Package session is the top-level state machine: it iterates the
// configured accounts (or runs a single anonymous pass), drives the
// account/product/cart/checkout components in strict sequence against
// the one shared browser page, and records exactly one result per
// account.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mkuran/shopbot/internal/account"
	"github.com/mkuran/shopbot/internal/cart"
	"github.com/mkuran/shopbot/internal/checkout"
	"github.com/mkuran/shopbot/internal/config"
	"github.com/mkuran/shopbot/internal/diagnostics"
	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/models"
	"github.com/mkuran/shopbot/internal/nav"
	"github.com/mkuran/shopbot/internal/product"
	"github.com/mkuran/shopbot/internal/ratelimit"
)

// Driver is the browser-session handle the orchestrator owns. A dead
// driver is replaced at most once per run via the factory.
type Driver interface {
	NewPage() (driver.Page, error)
	Alive() bool
	Close() error
}

type components struct {
	nav      *nav.Controller
	finder   *product.Finder
	cart     *cart.Manager
	accounts *account.Manager
	checkout *checkout.Flow
}

type Orchestrator struct {
	cfg       *config.Config
	rec       *diagnostics.Recorder
	logger    *slog.Logger
	pacer     *ratelimit.Pacer
	drv       Driver
	newDriver func() (Driver, error)
	page      driver.Page
	comps     components

	reinitDone bool

	mu   sync.Mutex
	snap models.RunSnapshot
}

// New wires an orchestrator around an already-started driver. The
// factory is used once if the driver dies mid-run.
func New(cfg *config.Config, rec *diagnostics.Recorder, drv Driver, newDriver func() (Driver, error)) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:       cfg,
		rec:       rec,
		logger:    slog.Default().With("component", "session"),
		pacer:     ratelimit.New(cfg.MinStepDelay, cfg.MaxStepDelay),
		drv:       drv,
		newDriver: newDriver,
		snap: models.RunSnapshot{
			RunID:     rec.RunID(),
			StartedAt: time.Now(),
		},
	}
	if err := o.openPage(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) openPage() error {
	page, err := o.drv.NewPage()
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	o.page = page
	o.rec.SetPage(page)

	navc := nav.New(page, o.cfg.ShopURL, o.cfg.NavTimeout, o.cfg.ActionTimeout)
	o.comps = components{
		nav:      navc,
		finder:   product.NewFinder(page, navc, o.rec, o.cfg.MatchThreshold, o.cfg.MaxRetries, o.cfg.ActionTimeout),
		cart:     cart.NewManager(page, o.rec, navc, o.cfg.ShopURL, o.cfg.ActionTimeout),
		accounts: account.NewManager(page, o.rec, o.cfg.ShopURL, o.cfg.ActionTimeout),
		checkout: checkout.NewFlow(page, o.rec, o.cfg),
	}
	return nil
}

// Snapshot returns the current run state for the status endpoint.
func (o *Orchestrator) Snapshot() models.RunSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := o.snap
	snap.Outcomes = append([]models.ProductOutcomeRecord(nil), o.snap.Outcomes...)
	snap.Results = append([]models.AccountResult(nil), o.snap.Results...)
	return snap
}

// Run executes the whole session and returns the per-account results.
// One failing account never aborts the run; only a dead driver that
// cannot be reinitialized does.
func (o *Orchestrator) Run(ctx context.Context) ([]models.AccountResult, error) {
	defer o.finish()
	o.rec.Event("run_started", map[string]any{"accounts": len(o.cfg.Accounts)})

	if o.cfg.DryRun {
		return nil, o.dryRun(ctx)
	}

	if len(o.cfg.Accounts) == 0 {
		o.logger.Info("no accounts configured; single anonymous pass")
		if err := o.ensureAlive(ctx); err != nil {
			return nil, err
		}
		o.rec.SetAccountContext(0)
		o.runPass(ctx)
		return o.results(), nil
	}

	for i, acct := range o.cfg.Accounts {
		if err := ctx.Err(); err != nil {
			return o.results(), err
		}
		if err := o.ensureAlive(ctx); err != nil {
			return o.results(), err
		}
		o.setAccount(i)
		o.pacer.Wait(ctx)

		result := o.runAccount(ctx, i, acct)
		o.appendResult(result)
		o.rec.Event("account_finished", map[string]any{
			"index":  i,
			"status": string(result.Status),
		})
	}
	return o.results(), nil
}

// dryRun navigates to the storefront and stops: no clicks, no fills.
func (o *Orchestrator) dryRun(ctx context.Context) error {
	o.logger.Info("dry run; navigation only")
	if err := o.comps.nav.GoToHomepage(ctx); err != nil {
		return err
	}
	o.rec.Screenshot("dry_run")
	return nil
}

// runAccount is the per-account sequence. Sign-out is attempted even
// when earlier steps failed.
func (o *Orchestrator) runAccount(ctx context.Context, index int, acct models.Account) models.AccountResult {
	logger := o.logger.With("account", acct.MaskedUsername())
	result := models.AccountResult{
		Index:          index,
		MaskedUsername: acct.MaskedUsername(),
		Timestamp:      time.Now(),
	}

	defer func() {
		if err := o.comps.accounts.SignOut(ctx); err != nil {
			logger.Warn("sign-out failed", "error", err)
		}
	}()

	if err := o.comps.nav.GoToHomepage(ctx); err != nil {
		result.Status = models.StatusError
		result.Message = err.Error()
		o.rec.Failure("navigate", err)
		return result
	}

	// SignIn handles any session left over from the previous account;
	// skipping it on a signed-in page would run this account's
	// purchases under someone else's session.
	if err := o.comps.accounts.SignIn(ctx, acct); err != nil {
		logger.Warn("sign-in failed", "error", err)
		o.rec.Failure("sign_in", err)
		result.Status = models.StatusError
		result.Message = fmt.Sprintf("sign-in: %v", err)
		return result
	}

	if err := o.prepareCart(ctx); err != nil {
		logger.Warn("cart preparation failed", "error", err)
		o.rec.Failure("clear_cart", err)
	}

	outcomes := o.runProducts(ctx, index)
	result.Status, result.Message = deriveStatus(outcomes)

	if anySuccess(outcomes) {
		o.checkoutPhase(ctx, &result)
	}
	return result
}

// runPass is the anonymous single-session flow: products, cart, a
// final screenshot, checkout only when enabled. No sign-in surface is
// ever touched.
func (o *Orchestrator) runPass(ctx context.Context) {
	outcomes := o.runProducts(ctx, 0)
	result := models.AccountResult{
		Index:          0,
		MaskedUsername: "(anonymous)",
		Timestamp:      time.Now(),
	}
	result.Status, result.Message = deriveStatus(outcomes)

	if anySuccess(outcomes) {
		if err := o.comps.cart.Open(ctx); err != nil {
			o.rec.Failure("open_cart", err)
		} else {
			o.rec.Screenshot("cart_final")
			if o.cfg.CheckoutEnabled {
				o.checkoutPhase(ctx, &result)
			}
		}
	}
	o.appendResult(result)
}

func (o *Orchestrator) prepareCart(ctx context.Context) error {
	if err := o.comps.cart.Open(ctx); err != nil {
		return err
	}
	if !o.comps.cart.IsEmpty() {
		if err := o.comps.cart.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runProducts(ctx context.Context, accountIndex int) []product.Outcome {
	outcomes := make([]product.Outcome, 0, len(o.cfg.Products))
	for _, req := range o.cfg.Products {
		if ctx.Err() != nil {
			break
		}
		o.pacer.Wait(ctx)
		outcome := o.comps.finder.Purchase(ctx, req)
		outcomes = append(outcomes, outcome)
		o.recordOutcome(accountIndex, req, outcome)
		o.logger.Info("product outcome",
			"product", req.Names[0],
			"outcome", string(outcome.Kind),
			"message", outcome.Message)
	}
	return outcomes
}

// checkoutPhase hands the populated cart to the checkout flow. Only
// reachable when at least one insertion succeeded; real placement
// stays behind FULL_SEND inside the flow itself.
func (o *Orchestrator) checkoutPhase(ctx context.Context, result *models.AccountResult) {
	if !o.cfg.CheckoutEnabled {
		o.logger.Info("checkout disabled; leaving cart populated")
		return
	}
	if err := o.comps.cart.Open(ctx); err != nil {
		o.rec.Failure("open_cart", err)
		return
	}
	if o.comps.cart.IsEmpty() {
		o.logger.Warn("cart empty at checkout time")
		o.rec.Screenshot("cart_empty_at_checkout")
		return
	}
	if err := o.comps.cart.ProceedToCheckout(ctx); err != nil {
		o.rec.Failure("proceed_to_checkout", err)
		return
	}
	res, err := o.comps.checkout.Run(ctx)
	if err != nil {
		o.rec.Failure("checkout", err)
		result.Message = joinMessages(result.Message, fmt.Sprintf("checkout: %v", err))
		return
	}
	switch {
	case res.Completed:
		result.Message = joinMessages(result.Message, "order placed "+res.OrderID)
	case res.Rehearsed:
		result.Message = joinMessages(result.Message, "checkout rehearsed, no order placed")
	}
}

// ensureAlive probes the driver and replaces it at most once per run.
// A second death, or a failed replacement, is run-fatal.
func (o *Orchestrator) ensureAlive(ctx context.Context) error {
	if o.drv.Alive() && o.page.Alive() {
		return nil
	}
	if o.reinitDone {
		return fmt.Errorf("browser session dead again after reinitialization")
	}
	o.reinitDone = true
	o.logger.Warn("browser session dead; reinitializing")
	o.drv.Close()

	drv, err := o.newDriver()
	if err != nil {
		return fmt.Errorf("reinitialize browser: %w", err)
	}
	if !drv.Alive() {
		return fmt.Errorf("reinitialized browser is not alive")
	}
	o.drv = drv
	return o.openPage()
}

func (o *Orchestrator) setAccount(index int) {
	o.rec.SetAccountContext(index)
	o.mu.Lock()
	o.snap.CurrentAccount = index
	o.mu.Unlock()
}

func (o *Orchestrator) recordOutcome(accountIndex int, req models.ProductRequest, outcome product.Outcome) {
	o.mu.Lock()
	o.snap.Outcomes = append(o.snap.Outcomes, models.ProductOutcomeRecord{
		AccountIndex: accountIndex,
		Product:      req.Names[0],
		Outcome:      string(outcome.Kind),
		Message:      outcome.Message,
		Timestamp:    time.Now(),
	})
	o.mu.Unlock()
}

func (o *Orchestrator) appendResult(result models.AccountResult) {
	o.mu.Lock()
	o.snap.Results = append(o.snap.Results, result)
	o.mu.Unlock()
}

func (o *Orchestrator) results() []models.AccountResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.AccountResult(nil), o.snap.Results...)
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.snap.Done = true
	results := append([]models.AccountResult(nil), o.snap.Results...)
	o.mu.Unlock()
	o.rec.WriteReport(results)
	o.rec.Event("run_finished", map[string]any{"results": len(results)})
}

// deriveStatus collapses per-product outcomes into the account status.
// Any success wins; a limit outranks sold-out because it says something
// about the account, not the shelf.
func deriveStatus(outcomes []product.Outcome) (models.AccountStatus, string) {
	if len(outcomes) == 0 {
		return models.StatusError, "no products attempted"
	}
	var sawLimit, sawStock, success bool
	var limitMsg, stockMsg, errMsg string
	for _, out := range outcomes {
		switch out.Kind {
		case product.OutcomeSuccess:
			success = true
		case product.OutcomeLimitReached:
			sawLimit = true
			limitMsg = out.Message
		case product.OutcomeOutOfStock:
			sawStock = true
			stockMsg = out.Message
		default:
			errMsg = out.Message
		}
	}
	switch {
	case success:
		return models.StatusSuccess, ""
	case sawLimit:
		return models.StatusLimitReached, limitMsg
	case sawStock:
		return models.StatusOutOfStock, stockMsg
	default:
		return models.StatusError, errMsg
	}
}

func anySuccess(outcomes []product.Outcome) bool {
	for _, out := range outcomes {
		if out.Kind == product.OutcomeSuccess {
			return true
		}
	}
	return false
}

func joinMessages(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
