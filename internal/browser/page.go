package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/mkuran/shopbot/internal/driver"
)

// pwPage adapts a playwright page to driver.Page.
type pwPage struct {
	page          playwright.Page
	navTimeout    time.Duration
	actionTimeout time.Duration
}

func (p *pwPage) Navigate(ctx context.Context, url string) error {
	timeout := p.navTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *pwPage) URL() string { return p.page.URL() }

func (p *pwPage) Query(q driver.Query) ([]driver.Element, error) {
	root := p.page.Locator("html")
	if q.Scope != "" {
		root = p.page.Locator(q.Scope)
	}
	return queryWithin(root, q, p.actionTimeout)
}

func (p *pwPage) WaitQuiet(timeout time.Duration) error {
	// a page that never settles is handled by the timeout; that is not
	// an error for callers
	p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	return nil
}

func (p *pwPage) Screenshot(path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return err
}

func (p *pwPage) Eval(script string) (any, error) {
	return p.page.Evaluate(script)
}

func (p *pwPage) PressKey(key string) error {
	return p.page.Keyboard().Press(key)
}

func (p *pwPage) Content() (string, error) {
	return p.page.Content()
}

func (p *pwPage) Frames(match string) []driver.Scope {
	var scopes []driver.Scope
	main := p.page.MainFrame()
	for _, frame := range p.page.Frames() {
		if frame == main {
			continue
		}
		if strings.Contains(strings.ToLower(frame.URL()), match) ||
			strings.Contains(strings.ToLower(frame.Name()), match) {
			scopes = append(scopes, &pwFrame{frame: frame, actionTimeout: p.actionTimeout})
		}
	}
	return scopes
}

func (p *pwPage) Alive() bool {
	_, err := p.page.Title()
	return err == nil
}

// pwFrame adapts an embedded frame to driver.Scope.
type pwFrame struct {
	frame         playwright.Frame
	actionTimeout time.Duration
}

func (f *pwFrame) Query(q driver.Query) ([]driver.Element, error) {
	root := f.frame.Locator("html")
	if q.Scope != "" {
		root = f.frame.Locator(q.Scope)
	}
	return queryWithin(root, q, f.actionTimeout)
}

// queryWithin resolves one query descriptor against a root locator.
func queryWithin(root playwright.Locator, q driver.Query, actionTimeout time.Duration) ([]driver.Element, error) {
	var loc playwright.Locator
	switch q.Kind {
	case driver.KindRole:
		opts := playwright.LocatorGetByRoleOptions{}
		if q.Name != "" {
			opts.Name = q.Name
		}
		loc = root.GetByRole(playwright.AriaRole(q.Role), opts)
	case driver.KindText:
		loc = root.GetByText(q.Text, playwright.LocatorGetByTextOptions{
			Exact: playwright.Bool(q.Exact),
		})
	case driver.KindCSS:
		loc = root.Locator(q.Selector)
	default:
		return nil, fmt.Errorf("unknown query kind %q", q.Kind)
	}

	all, err := loc.All()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Kind, err)
	}
	elements := make([]driver.Element, 0, len(all))
	for _, l := range all {
		elements = append(elements, &pwElement{loc: l, timeout: actionTimeout})
	}
	return elements, nil
}

// pwElement adapts a resolved locator to driver.Element.
type pwElement struct {
	loc     playwright.Locator
	timeout time.Duration
}

func (e *pwElement) ms() *float64 {
	return playwright.Float(float64(e.timeout.Milliseconds()))
}

func (e *pwElement) Visible() bool {
	visible, err := e.loc.IsVisible()
	return err == nil && visible
}

func (e *pwElement) Enabled() bool {
	enabled, err := e.loc.IsEnabled()
	return err == nil && enabled
}

func (e *pwElement) Click() error {
	return e.loc.Click(playwright.LocatorClickOptions{Timeout: e.ms()})
}

func (e *pwElement) Fill(value string) error {
	return e.loc.Fill(value, playwright.LocatorFillOptions{Timeout: e.ms()})
}

func (e *pwElement) Press(key string) error {
	return e.loc.Press(key, playwright.LocatorPressOptions{Timeout: e.ms()})
}

func (e *pwElement) Text() (string, error) {
	return e.loc.TextContent(playwright.LocatorTextContentOptions{Timeout: e.ms()})
}

func (e *pwElement) HTML() (string, error) {
	return e.loc.InnerHTML(playwright.LocatorInnerHTMLOptions{Timeout: e.ms()})
}

func (e *pwElement) Attribute(name string) (string, error) {
	return e.loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: e.ms()})
}

func (e *pwElement) InputValue() (string, error) {
	return e.loc.InputValue(playwright.LocatorInputValueOptions{Timeout: e.ms()})
}
