package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkuran/shopbot/internal/config"
	"github.com/mkuran/shopbot/internal/diagnostics"
	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/driver/drivertest"
	"github.com/mkuran/shopbot/internal/models"
	"github.com/mkuran/shopbot/internal/product"
)

type fakeDriver struct {
	page  *drivertest.Page
	alive bool
}

func (d *fakeDriver) NewPage() (driver.Page, error) { return d.page, nil }
func (d *fakeDriver) Alive() bool                   { return d.alive }
func (d *fakeDriver) Close() error                  { return nil }

// redirectElement flips the page URL when clicked.
type redirectElement struct {
	*drivertest.Element
	page *drivertest.Page
	to   string
}

func (e *redirectElement) Click() error {
	if err := e.Element.Click(); err != nil {
		return err
	}
	e.page.SetURL(e.to)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		ShopURL:        "https://shop.example.com",
		NavTimeout:     time.Second,
		ActionTimeout:  50 * time.Millisecond,
		MaxRetries:     1,
		MatchThreshold: 0.5,
		Products: []models.ProductRequest{
			{Names: []string{"Wingman Keychain", "WNGMN Keychain"}, Quantity: 1},
		},
		OutputDir: "runs",
	}
}

func newOrchestrator(t *testing.T, page *drivertest.Page, cfg *config.Config) *Orchestrator {
	t.Helper()
	rec, err := diagnostics.NewRecorder(t.TempDir())
	require.NoError(t, err)
	drv := &fakeDriver{page: page, alive: true}
	o, err := New(cfg, rec, drv, func() (Driver, error) { return drv, nil })
	require.NoError(t, err)
	return o
}

func listingWithItem(page *drivertest.Page, title string) *drivertest.Element {
	card := drivertest.VisibleElement(title)
	card.HTMLVal = `<h3 class="card-title">` + title + `</h3>`
	page.On(driver.CSS("[data-testid='product-card']"), card)
	return card
}

func TestAnonymousPassStopsAtCart(t *testing.T) {
	page := drivertest.New()
	listingWithItem(page, "Wingman Keychain")
	addBtn := drivertest.VisibleElement("Add to Cart")
	page.On(driver.Role("button", "Add to Cart"), addBtn)
	cartLink := drivertest.VisibleElement("Cart")
	page.On(driver.Role("link", "Cart"), cartLink)

	o := newOrchestrator(t, page, testConfig())
	results, err := o.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusSuccess, results[0].Status)
	assert.Equal(t, 1, addBtn.Clicks)
	assert.Equal(t, 1, cartLink.Clicks, "the populated cart is opened for the final screenshot")

	finalShot := false
	for _, shot := range page.Screenshots {
		if strings.Contains(shot, "cart_final") {
			finalShot = true
		}
	}
	assert.True(t, finalShot)

	assert.Zero(t, page.QueryCount(func(q driver.Query) bool {
		return q.Selector == "input[type='password']"
	}), "an anonymous pass must never touch the sign-in form")
	assert.Zero(t, page.QueryCount(func(q driver.Query) bool {
		return q.Kind == driver.KindRole && q.Name == "Checkout"
	}), "checkout is never entered when disabled")
	for _, url := range page.Navigated {
		assert.NotContains(t, url, "login")
	}
}

func signInSurface(page *drivertest.Page) {
	page.On(driver.CSS("input[type='email']"), drivertest.VisibleElement(""))
	page.On(driver.CSS("input[type='password']"), drivertest.VisibleElement(""))
	page.On(driver.Role("button", "Sign In"), &redirectElement{
		Element: drivertest.VisibleElement("Sign In"),
		page:    page,
		to:      "https://shop.example.com/account",
	})
}

func TestLimitReachedRecordedAndNextAccountProcessed(t *testing.T) {
	page := drivertest.New()
	signInSurface(page)
	listingWithItem(page, "Wingman Keychain")
	page.On(driver.Role("button", "Add to Cart"), drivertest.VisibleElement("Add to Cart"))
	page.On(driver.CSS(".purchase-limit, .limit-message, [data-testid='limit-message']"),
		drivertest.VisibleElement("Purchase limit reached"))

	cfg := testConfig()
	cfg.Accounts = []models.Account{
		{Username: "a@x.io", Password: "p1"},
		{Username: "b@x.io", Password: "p2"},
	}

	o := newOrchestrator(t, page, cfg)
	results, err := o.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 2, "one failing account never stops the loop")
	assert.Equal(t, models.StatusLimitReached, results[0].Status)
	assert.Equal(t, models.StatusLimitReached, results[1].Status)
	assert.NotEqual(t, models.StatusError, results[0].Status)

	signOuts := 0
	for _, url := range page.Navigated {
		if strings.Contains(url, "logout") {
			signOuts++
		}
	}
	assert.Equal(t, 2, signOuts, "sign-out is attempted for every account")
}

func TestSignInFailureMarksAccountError(t *testing.T) {
	page := drivertest.New()
	// no sign-in form anywhere
	cfg := testConfig()
	cfg.Accounts = []models.Account{{Username: "a@x.io", Password: "p1"}}

	o := newOrchestrator(t, page, cfg)
	results, err := o.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusError, results[0].Status)
	assert.Contains(t, results[0].Message, "sign-in")
}

func TestStaleSessionNeverSkipsSignIn(t *testing.T) {
	page := drivertest.New()
	signInSurface(page)
	listingWithItem(page, "Wingman Keychain")
	page.On(driver.Role("button", "Add to Cart"), drivertest.VisibleElement("Add to Cart"))
	// a leftover session: the signed-in marker is visible from the start
	page.On(driver.CSS(".account-menu, [data-testid='account-menu'], a[href*='/account/logout']"),
		drivertest.VisibleElement("menu"))

	cfg := testConfig()
	cfg.Accounts = []models.Account{{Username: "b@x.io", Password: "p2"}}

	o := newOrchestrator(t, page, cfg)
	results, err := o.Run(context.Background())

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Positive(t, page.QueryCount(func(q driver.Query) bool {
		return q.Selector == "input[type='password']"
	}), "credentials must be entered even when a session already looks live")

	logouts := 0
	for _, url := range page.Navigated {
		if strings.Contains(url, "logout") {
			logouts++
		}
	}
	assert.GreaterOrEqual(t, logouts, 2, "the stale session is signed out before sign-in, and again afterwards")
}

func TestDeadDriverReinitializedOnce(t *testing.T) {
	page := drivertest.New()
	listingWithItem(page, "Wingman Keychain")
	page.On(driver.Role("button", "Add to Cart"), drivertest.VisibleElement("Add to Cart"))

	rec, err := diagnostics.NewRecorder(t.TempDir())
	require.NoError(t, err)
	dead := &fakeDriver{page: page, alive: false}
	fresh := &fakeDriver{page: page, alive: true}
	rebuilds := 0

	o, err := New(testConfig(), rec, dead, func() (Driver, error) {
		rebuilds++
		return fresh, nil
	})
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rebuilds)
}

func TestDeadDriverTwiceIsFatal(t *testing.T) {
	page := drivertest.New()
	rec, err := diagnostics.NewRecorder(t.TempDir())
	require.NoError(t, err)
	dead := &fakeDriver{page: page, alive: false}

	o, err := New(testConfig(), rec, dead, func() (Driver, error) {
		return &fakeDriver{page: page, alive: false}, nil
	})
	require.NoError(t, err)

	_, err = o.Run(context.Background())
	require.Error(t, err)
}

func TestDryRunNavigatesOnly(t *testing.T) {
	page := drivertest.New()
	listingWithItem(page, "Wingman Keychain")
	add := drivertest.VisibleElement("Add to Cart")
	page.On(driver.Role("button", "Add to Cart"), add)

	cfg := testConfig()
	cfg.DryRun = true

	o := newOrchestrator(t, page, cfg)
	results, err := o.Run(context.Background())

	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, add.Clicks)
	assert.Equal(t, []string{"https://shop.example.com"}, page.Navigated)
}

func TestSnapshotTracksOutcomes(t *testing.T) {
	page := drivertest.New()
	listingWithItem(page, "Wingman Keychain")
	page.On(driver.Role("button", "Add to Cart"), drivertest.VisibleElement("Add to Cart"))

	o := newOrchestrator(t, page, testConfig())
	_, err := o.Run(context.Background())
	require.NoError(t, err)

	snap := o.Snapshot()
	assert.True(t, snap.Done)
	require.Len(t, snap.Outcomes, 1)
	assert.Equal(t, "Wingman Keychain", snap.Outcomes[0].Product)
	assert.Equal(t, "success", snap.Outcomes[0].Outcome)
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []string
		want     models.AccountStatus
	}{
		{"success wins", []string{"limit_reached", "success"}, models.StatusSuccess},
		{"limit over stock", []string{"out_of_stock", "limit_reached"}, models.StatusLimitReached},
		{"stock over error", []string{"error", "out_of_stock"}, models.StatusOutOfStock},
		{"all failed", []string{"error", "not_found"}, models.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var outs []product.Outcome
			for _, kind := range tt.outcomes {
				outs = append(outs, product.Outcome{Kind: product.OutcomeKind(kind)})
			}
			got, _ := deriveStatus(outs)
			assert.Equal(t, tt.want, got)
		})
	}
}
