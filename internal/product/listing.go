package product

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/resolver"
	"github.com/mkuran/shopbot/internal/textmatch"
)

// maxListingIterations bounds listing exhaustion so infinite-scroll
// pages that never stabilize cannot stall the run.
const maxListingIterations = 10

var itemCardStrategies = []resolver.Strategy{
	resolver.S("card-testid", driver.CSS("[data-testid='product-card']")),
	resolver.S("card-css", driver.CSS(".product-card, .product-item, .grid-product, li.product")),
	resolver.S("card-generic", driver.CSS("[class*='product'][class*='card'], .collection-grid a[href*='/product']")),
}

var loadMoreStrategies = []resolver.Strategy{
	resolver.S("load-more-role", driver.Role("button", "Load More")),
	resolver.S("show-more-role", driver.Role("button", "Show More")),
	resolver.S("load-more-css", driver.CSS(".load-more, .show-more, button[class*='load-more']")),
}

// titleSelectors are tried in order against a card's inner HTML before
// falling back to the first line of the card's text.
var titleSelectors = []string{
	".product-title",
	".card-title",
	"[class*='title']",
	"h2",
	"h3",
	"a[href*='/product']",
}

const scrollBottomScript = `() => window.scrollTo(0, document.body.scrollHeight)`

// loadAllProducts exhausts a listing: click a load-more affordance (or
// scroll) until the visible item count stops changing or the iteration
// bound is hit.
func (f *Finder) loadAllProducts(ctx context.Context) {
	prev := f.countItems()
	for i := 0; i < maxListingIterations; i++ {
		if err := ctx.Err(); err != nil {
			return
		}
		if el, _ := resolver.FirstClickable(f.page, loadMoreStrategies); el != nil {
			if err := el.Click(); err != nil {
				f.logger.Debug("load-more click failed", "error", err)
			}
		} else {
			f.page.Eval(scrollBottomScript)
		}
		f.page.WaitQuiet(f.actionTimeout)

		count := f.countItems()
		if count == prev {
			return
		}
		prev = count
	}
	f.logger.Debug("listing never stabilized", "iterations", maxListingIterations, "items", prev)
}

func (f *Finder) countItems() int {
	for _, strategy := range itemCardStrategies {
		elements, err := f.page.Query(strategy.Query)
		if err != nil {
			continue
		}
		if len(elements) > 0 {
			return len(elements)
		}
	}
	return 0
}

// scanListing enumerates visible item cards and returns the first one
// whose extracted title matches a target name. On no match, the top
// candidates by best score are logged and screenshotted; tuning the
// threshold and selectors depends on them.
func (f *Finder) scanListing(targets []string) (driver.Element, string, bool) {
	var cards []driver.Element
	for _, strategy := range itemCardStrategies {
		elements, err := f.page.Query(strategy.Query)
		if err != nil {
			continue
		}
		for _, el := range elements {
			if el.Visible() {
				cards = append(cards, el)
			}
		}
		if len(cards) > 0 {
			break
		}
	}
	if len(cards) == 0 {
		return nil, "", false
	}

	var labels []string
	for _, card := range cards {
		title := extractTitle(card)
		if title == "" {
			continue
		}
		labels = append(labels, title)
		if res := textmatch.Match(title, targets, f.threshold); res.Matched {
			f.logger.Info("listing match", "title", title, "target", res.MatchedName, "score", res.Score)
			return card, title, true
		}
	}

	top := textmatch.Rank(labels, targets, 5)
	for _, c := range top {
		f.logger.Info("no match; candidate", "label", c.Label, "score", c.Score, "closest_target", c.MatchedAgainst)
	}
	f.rec.Screenshot("listing_no_match")
	return nil, "", false
}

// extractTitle pulls a display title from a listing card: ordered
// selectors against the card's inner HTML first, then the first line of
// its visible text.
func extractTitle(card driver.Element) string {
	if html, err := card.HTML(); err == nil && html != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + html + "</div>")); err == nil {
			for _, sel := range titleSelectors {
				if title := strings.TrimSpace(doc.Find(sel).First().Text()); title != "" {
					return firstLine(title)
				}
			}
		}
	}
	text, err := card.Text()
	if err != nil {
		return ""
	}
	return firstLine(text)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
