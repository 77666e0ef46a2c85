package product

import (
	"regexp"
	"strings"

	"github.com/mkuran/shopbot/internal/driver"
	"github.com/mkuran/shopbot/internal/resolver"
)

// OutcomeKind classifies one end-to-end product attempt.
type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeOutOfStock   OutcomeKind = "out_of_stock"
	OutcomeLimitReached OutcomeKind = "limit_reached"
	OutcomeNotFound     OutcomeKind = "not_found"
	OutcomeError        OutcomeKind = "error"
)

// Outcome is the terminal classification of one product-insertion
// attempt. Exactly one is produced per (account, product) pair per run.
type Outcome struct {
	Kind    OutcomeKind
	Message string
}

// Terminal reports whether retrying could possibly change the outcome.
// Sold-out and limit states never benefit from a retry.
func (o Outcome) Terminal() bool {
	return o.Kind == OutcomeOutOfStock || o.Kind == OutcomeLimitReached
}

// limitPatterns is the purchase-limit text family checked after an
// add-to-cart click and for account-level limit detection.
var limitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)purchase limit`),
	regexp.MustCompile(`(?i)\blimit\b`),
	regexp.MustCompile(`(?i)\bmaximum\b`),
	regexp.MustCompile(`(?i)already purchased`),
	regexp.MustCompile(`(?i)one per customer`),
	regexp.MustCompile(`(?i)per household`),
}

// limitMessageStrategies covers dedicated limit-message locations first
// and generic alert/error containers second.
var limitMessageStrategies = []resolver.Strategy{
	resolver.S("limit-css", driver.CSS(".purchase-limit, .limit-message, [data-testid='limit-message']")),
	resolver.S("alert-role", driver.CSS("[role='alert']")),
	resolver.S("alert-css", driver.CSS(".alert, .error, .notice, .message--error, .cart-error")),
}

// MatchesLimitPattern reports whether text carries purchase-limit
// wording.
func MatchesLimitPattern(text string) bool {
	for _, p := range limitPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ScanLimitMessage looks for purchase-limit wording in the known
// message locations of the given scope. Shared by cart insertion and
// the account-level limit check.
func ScanLimitMessage(scope driver.Scope) (string, bool) {
	for _, strategy := range limitMessageStrategies {
		elements, err := scope.Query(strategy.Query)
		if err != nil {
			continue
		}
		for _, el := range elements {
			if !el.Visible() {
				continue
			}
			text, err := el.Text()
			if err != nil {
				continue
			}
			text = strings.TrimSpace(text)
			if text != "" && MatchesLimitPattern(text) {
				return text, true
			}
		}
	}
	return "", false
}
