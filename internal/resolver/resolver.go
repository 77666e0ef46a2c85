// Package resolver implements the ordered-fallback element lookup every
// other component drives the page through. A strategy list encodes a
// priority: semantic role/name queries first, then CSS class
// heuristics, then last-resort text scans. Appending a new fallback is
// a data change, not a control-flow change.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkuran/shopbot/internal/driver"
)

// Strategy is one candidate query in an ordered fallback list.
type Strategy struct {
	Name  string
	Query driver.Query
}

// S is shorthand for building a named strategy.
func S(name string, q driver.Query) Strategy {
	return Strategy{Name: name, Query: q}
}

// pollInterval is the pause between full strategy-list passes in
// ClickWithFallback.
const pollInterval = 250 * time.Millisecond

// First iterates the strategies in order and returns the first visible
// match plus the strategy name that produced it. No strategy is retried
// within a single call; exhaustion returns nil, not an error.
func First(scope driver.Scope, strategies []Strategy) (driver.Element, string) {
	return first(scope, strategies, false)
}

// FirstClickable is First restricted to elements that are also enabled.
func FirstClickable(scope driver.Scope, strategies []Strategy) (driver.Element, string) {
	return first(scope, strategies, true)
}

func first(scope driver.Scope, strategies []Strategy, needEnabled bool) (driver.Element, string) {
	for _, strategy := range strategies {
		elements, err := scope.Query(strategy.Query)
		if err != nil {
			slog.Debug("strategy query failed", "component", "resolver", "strategy", strategy.Name, "error", err)
			continue
		}
		for _, el := range elements {
			if !el.Visible() {
				continue
			}
			if needEnabled && !el.Enabled() {
				continue
			}
			return el, strategy.Name
		}
	}
	return nil, ""
}

// ClickWithFallback polls the full strategy list until one strategy
// yields a clickable element, then clicks it. Unlike First, exhausting
// a single pass is not terminal: the list is re-polled until the
// timeout elapses. The returned name identifies the winning strategy.
func ClickWithFallback(ctx context.Context, scope driver.Scope, label string, strategies []Strategy, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		el, name := FirstClickable(scope, strategies)
		if el != nil {
			if err := el.Click(); err != nil {
				slog.Debug("click failed, re-polling", "component", "resolver", "label", label, "strategy", name, "error", err)
			} else {
				return name, nil
			}
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("%s: no strategy matched within %s", label, timeout)
		}

		timer := time.NewTimer(pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}
