package nav

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/driver/drivertest"
)

func newController(page driver.Page) *Controller {
	return New(page, "https://shop.example.com", time.Second, 300*time.Millisecond)
}

func TestGoToHomepageNavigatesAndDismissesConsent(t *testing.T) {
	page := drivertest.New()
	accept := drivertest.VisibleElement("Accept")
	page.On(driver.Role("button", "Accept"), accept)

	c := newController(page)
	require.NoError(t, c.GoToHomepage(context.Background()))

	require.Len(t, page.Navigated, 1)
	assert.Equal(t, "https://shop.example.com", page.Navigated[0])
	assert.Equal(t, 1, accept.Clicks)
}

func TestGoToHomepagePropagatesNavigationFailure(t *testing.T) {
	page := drivertest.New()
	page.NavErr = context.DeadlineExceeded

	c := newController(page)
	assert.Error(t, c.GoToHomepage(context.Background()))
}

func TestDismissConsentIdempotentPerPage(t *testing.T) {
	page := drivertest.New()
	accept := drivertest.VisibleElement("Accept")
	page.On(driver.Role("button", "Accept"), accept)

	c := newController(page)
	c.DismissConsent()
	c.DismissConsent()
	assert.Equal(t, 1, accept.Clicks)

	// a fresh navigation resets the handled flag
	require.NoError(t, c.Navigate(context.Background(), "https://shop.example.com/shop"))
	assert.Equal(t, 2, accept.Clicks)
}

func TestDismissConsentFallsBackToDecline(t *testing.T) {
	page := drivertest.New()
	decline := drivertest.VisibleElement("Decline")
	page.On(driver.Role("button", "Decline"), decline)

	c := newController(page)
	assert.True(t, c.DismissConsent())
	assert.Equal(t, 1, decline.Clicks)
}

func TestSearchForProductFillsAndSubmits(t *testing.T) {
	page := drivertest.New()
	input := drivertest.VisibleElement("")
	page.On(driver.CSS("input[type='search']"), input)

	c := newController(page)
	assert.True(t, c.SearchForProduct(context.Background(), "Wingman Keychain"))

	require.Len(t, input.Filled, 1)
	assert.Equal(t, "Wingman Keychain", input.Filled[0])
	require.Len(t, input.Pressed, 1)
	assert.Equal(t, "Enter", input.Pressed[0])
}

func TestSearchForProductOpensTriggerFirst(t *testing.T) {
	page := drivertest.New()
	trigger := drivertest.VisibleElement("search")
	page.On(driver.CSS(".search-toggle, .search-icon, [data-testid='search']"), trigger)

	// the input only appears once the trigger has been clicked
	input := drivertest.VisibleElement("")
	c := newController(page)
	page.Handler = func(q driver.Query) []driver.Element {
		if q.Kind == driver.KindRole && q.Role == "searchbox" && trigger.Clicks > 0 {
			return []driver.Element{input}
		}
		return nil
	}

	assert.True(t, c.SearchForProduct(context.Background(), "mug"))
	assert.Equal(t, 1, trigger.Clicks)
	assert.Equal(t, []string{"mug"}, input.Filled)
}

func TestSearchForProductMissingInputDegrades(t *testing.T) {
	page := drivertest.New()
	c := newController(page)
	assert.False(t, c.SearchForProduct(context.Background(), "mug"))
}

func TestGoToShop(t *testing.T) {
	page := drivertest.New()
	link := drivertest.VisibleElement("Shop All")
	page.On(driver.Role("link", "Shop All"), link)

	c := newController(page)
	assert.True(t, c.GoToShop(context.Background()))
	assert.Equal(t, 1, link.Clicks)
}

func TestGoToShopMissingLinkDegrades(t *testing.T) {
	page := drivertest.New()
	c := newController(page)
	assert.False(t, c.GoToShop(context.Background()))
}
