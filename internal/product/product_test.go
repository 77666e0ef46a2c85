package product

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkuran/shopbot/internal/diagnostics"
	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/driver/drivertest"
	"github.com/mkuran/shopbot/internal/models"
	"github.com/mkuran/shopbot/internal/nav"
)

func newTestFinder(t *testing.T, page *drivertest.Page, maxRetries int) *Finder {
	t.Helper()
	rec, err := diagnostics.NewRecorder(t.TempDir())
	require.NoError(t, err)
	rec.SetPage(page)
	navc := nav.New(page, "https://shop.example.com", time.Second, 50*time.Millisecond)
	return NewFinder(page, navc, rec, 0.5, maxRetries, 50*time.Millisecond)
}

func cardWithTitle(title string) *drivertest.Element {
	el := drivertest.VisibleElement(title)
	el.HTMLVal = `<h3 class="card-title">` + title + `</h3>`
	return el
}

func cardQuery() driver.Query {
	return driver.CSS("[data-testid='product-card']")
}

func TestPurchaseAddsMatchingProduct(t *testing.T) {
	page := drivertest.New()
	card := cardWithTitle("Wingman Keychain")
	page.On(cardQuery(), card)
	addBtn := drivertest.VisibleElement("Add to Cart")
	page.On(driver.Role("button", "Add to Cart"), addBtn)

	f := newTestFinder(t, page, 1)
	outcome := f.Purchase(context.Background(), models.ProductRequest{
		Names:    []string{"Tactical Wingman", "Wingman Keychain"},
		Quantity: 1,
	})

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 1, card.Clicks, "matched card should be opened exactly once")
	assert.Equal(t, 1, addBtn.Clicks)
	assert.Contains(t, page.Navigated, "https://shop.example.com")
}

func TestPurchaseSetsQuantityViaInput(t *testing.T) {
	page := drivertest.New()
	page.On(cardQuery(), cardWithTitle("Wingman Keychain"))
	page.On(driver.Role("button", "Add to Cart"), drivertest.VisibleElement("Add to Cart"))
	qty := drivertest.VisibleElement("")
	page.On(driver.CSS("input[name='quantity'], input[type='number'], .quantity-input input"), qty)

	f := newTestFinder(t, page, 1)
	outcome := f.Purchase(context.Background(), models.ProductRequest{
		Names:    []string{"Wingman Keychain"},
		Quantity: 3,
	})

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, []string{"3"}, qty.Filled)
}

func TestPurchaseSoldOutIsTerminal(t *testing.T) {
	page := drivertest.New()
	page.On(cardQuery(), cardWithTitle("Wingman Keychain"))
	page.On(driver.CSS(".sold-out, .out-of-stock, [data-testid='sold-out']"), drivertest.VisibleElement("Sold Out"))
	addBtn := drivertest.VisibleElement("Add to Cart")
	page.On(driver.Role("button", "Add to Cart"), addBtn)

	f := newTestFinder(t, page, 3)
	outcome := f.Purchase(context.Background(), models.ProductRequest{
		Names:    []string{"Wingman Keychain"},
		Quantity: 1,
	})

	assert.Equal(t, OutcomeOutOfStock, outcome.Kind)
	assert.True(t, outcome.Terminal())
	assert.Zero(t, addBtn.Clicks, "sold-out item must never be added")
}

func TestSoldOutFromAddButtonLabel(t *testing.T) {
	page := drivertest.New()
	page.On(driver.Role("button", "Add to Cart"), drivertest.VisibleElement("Notify Me When Available"))

	f := newTestFinder(t, page, 1)
	assert.True(t, f.isSoldOut())
}

func TestPurchaseLimitReached(t *testing.T) {
	page := drivertest.New()
	page.On(cardQuery(), cardWithTitle("Wingman Keychain"))
	page.On(driver.Role("button", "Add to Cart"), drivertest.VisibleElement("Add to Cart"))
	page.On(driver.CSS(".purchase-limit, .limit-message, [data-testid='limit-message']"),
		drivertest.VisibleElement("Purchase limit reached for this item"))

	f := newTestFinder(t, page, 3)
	outcome := f.Purchase(context.Background(), models.ProductRequest{
		Names:    []string{"Wingman Keychain"},
		Quantity: 1,
	})

	assert.Equal(t, OutcomeLimitReached, outcome.Kind)
	assert.True(t, outcome.Terminal())
	assert.Contains(t, outcome.Message, "limit")
}

func TestPurchaseNotFoundAfterRetries(t *testing.T) {
	page := drivertest.New()

	f := newTestFinder(t, page, 2)
	outcome := f.Purchase(context.Background(), models.ProductRequest{
		Names:    []string{"Tactical Wingman"},
		Quantity: 1,
	})

	assert.Equal(t, OutcomeNotFound, outcome.Kind)

	attempts := 0
	for _, shot := range page.Screenshots {
		if strings.Contains(shot, "_attempt_") {
			attempts++
		}
	}
	assert.Equal(t, 2, attempts, "every failed attempt should leave a screenshot")
}

func TestScanListingRanksCandidatesOnMiss(t *testing.T) {
	page := drivertest.New()
	page.On(cardQuery(),
		cardWithTitle("Tibbers Plush"),
		cardWithTitle("Penta Pin Set"),
	)

	f := newTestFinder(t, page, 1)
	_, _, ok := f.scanListing([]string{"Wingman Keychain"})

	assert.False(t, ok)
	found := false
	for _, shot := range page.Screenshots {
		if strings.Contains(shot, "listing_no_match") {
			found = true
		}
	}
	assert.True(t, found, "a miss over a populated listing should be screenshotted")
}

func TestScanListingExtractsTitleFromHTML(t *testing.T) {
	page := drivertest.New()
	card := drivertest.VisibleElement("ignored fallback text")
	card.HTMLVal = `<a href="/product/1"><span class="product-title">Wingman Keychain</span><span class="price">$25</span></a>`
	page.On(cardQuery(), card)

	f := newTestFinder(t, page, 1)
	got, title, ok := f.scanListing([]string{"Wingman Keychain"})

	require.True(t, ok)
	assert.Equal(t, "Wingman Keychain", title)
	assert.Same(t, card, got.(*drivertest.Element))
}

func TestLoadAllProductsStopsWhenStable(t *testing.T) {
	page := drivertest.New()
	page.On(cardQuery(), cardWithTitle("A"), cardWithTitle("B"))

	f := newTestFinder(t, page, 1)
	f.loadAllProducts(context.Background())

	// no load-more control, so each pass scrolls once; stable count
	// means a single iteration
	assert.Len(t, page.Evaled, 1)
}

func TestLoadAllProductsBoundsIterations(t *testing.T) {
	page := drivertest.New()
	n := 0
	page.Handler = func(q driver.Query) []driver.Element {
		if q.Selector != cardQuery().Selector {
			return nil
		}
		n++
		els := make([]driver.Element, n)
		for i := range els {
			els[i] = drivertest.VisibleElement("card")
		}
		return els
	}

	f := newTestFinder(t, page, 1)
	f.loadAllProducts(context.Background())

	assert.LessOrEqual(t, len(page.Evaled), maxListingIterations,
		"a listing that never stabilizes must not loop forever")
}

func TestMatchesLimitPattern(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"You have reached the purchase limit", true},
		{"Maximum 2 per customer", true},
		{"You have already purchased this item", true},
		{"One per customer only", true},
		{"Free shipping on orders over $50", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesLimitPattern(tt.text), tt.text)
	}
}

func TestInferCategory(t *testing.T) {
	assert.Equal(t, "Valorant", inferCategory("Valorant Champions Jacket"))
	assert.Equal(t, "League of Legends", inferCategory("league hoodie"))
	assert.Equal(t, "", inferCategory("Plain Keychain"))
}
