// Package drivertest provides scriptable in-memory fakes of the driver
// interfaces for component tests.
package drivertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkuran/shopbot/internal/driver"
)

// Element is a canned driver.Element.
type Element struct {
	Vis     bool
	En      bool
	TextVal string
	HTMLVal string
	Value   string
	Attrs   map[string]string

	ClickErr error
	FillErr  error

	mu      sync.Mutex
	Clicks  int
	Filled  []string
	Pressed []string
}

// Visible implements driver.Element.
func (e *Element) Visible() bool { return e.Vis }

// Enabled implements driver.Element.
func (e *Element) Enabled() bool { return e.En }

func (e *Element) Click() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.Clicks++
	return nil
}

func (e *Element) Fill(value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FillErr != nil {
		return e.FillErr
	}
	e.Filled = append(e.Filled, value)
	e.Value = value
	return nil
}

func (e *Element) Press(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Pressed = append(e.Pressed, key)
	return nil
}

func (e *Element) Text() (string, error) { return e.TextVal, nil }

func (e *Element) HTML() (string, error) { return e.HTMLVal, nil }

func (e *Element) Attribute(name string) (string, error) {
	if e.Attrs == nil {
		return "", nil
	}
	return e.Attrs[name], nil
}

func (e *Element) InputValue() (string, error) { return e.Value, nil }

// VisibleElement returns a visible, enabled element with the given text.
func VisibleElement(text string) *Element {
	return &Element{Vis: true, En: true, TextVal: text}
}

// Key collapses a query to the string the fake indexes results by.
func Key(q driver.Query) string {
	switch q.Kind {
	case driver.KindRole:
		return fmt.Sprintf("role:%s:%s:%s", q.Role, q.Name, q.Scope)
	case driver.KindText:
		return fmt.Sprintf("text:%s:%v:%s", q.Text, q.Exact, q.Scope)
	default:
		return fmt.Sprintf("css:%s:%s", q.Selector, q.Scope)
	}
}

// Page is a scriptable driver.Page. Register canned results with On,
// or set Handler for dynamic behavior; every query is recorded.
type Page struct {
	mu sync.Mutex

	CurrentURL  string
	ContentHTML string
	AliveVal    bool
	NavErr      error

	Handler func(q driver.Query) []driver.Element
	results map[string][]driver.Element

	Queries     []driver.Query
	Navigated   []string
	Screenshots []string
	Evaled      []string
	KeysPressed []string

	EvalFn      func(script string) (any, error)
	FrameScopes []driver.Scope
}

// New returns an empty live page.
func New() *Page {
	return &Page{AliveVal: true, results: map[string][]driver.Element{}}
}

// On registers canned results for one query.
func (p *Page) On(q driver.Query, els ...driver.Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[Key(q)] = els
}

// QueryCount reports how many recorded queries satisfy pred.
func (p *Page) QueryCount(pred func(q driver.Query) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, q := range p.Queries {
		if pred(q) {
			n++
		}
	}
	return n
}

func (p *Page) Query(q driver.Query) ([]driver.Element, error) {
	p.mu.Lock()
	p.Queries = append(p.Queries, q)
	handler := p.Handler
	els := p.results[Key(q)]
	p.mu.Unlock()
	if handler != nil {
		if got := handler(q); got != nil {
			return got, nil
		}
	}
	return els, nil
}

func (p *Page) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.NavErr != nil {
		return p.NavErr
	}
	p.Navigated = append(p.Navigated, url)
	p.CurrentURL = url
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL
}

// SetURL changes the reported URL without a navigation record.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentURL = url
}

func (p *Page) WaitQuiet(time.Duration) error { return nil }

func (p *Page) Screenshot(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Screenshots = append(p.Screenshots, path)
	return nil
}

func (p *Page) Eval(script string) (any, error) {
	p.mu.Lock()
	p.Evaled = append(p.Evaled, script)
	fn := p.EvalFn
	p.mu.Unlock()
	if fn != nil {
		return fn(script)
	}
	return nil, nil
}

func (p *Page) PressKey(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.KeysPressed = append(p.KeysPressed, key)
	return nil
}

func (p *Page) Content() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ContentHTML, nil
}

func (p *Page) Frames(string) []driver.Scope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.FrameScopes
}

func (p *Page) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AliveVal
}
