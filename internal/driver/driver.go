// Package driver defines the capability surface the bot needs from a
// controlled browser page. Components depend on these interfaces only;
// the playwright-backed implementation lives in internal/browser.
package driver

import (
	"context"
	"time"
)

// QueryKind selects how a Query locates elements.
type QueryKind string

const (
	// KindRole queries by accessible role and name.
	KindRole QueryKind = "role"
	// KindCSS queries by CSS selector.
	KindCSS QueryKind = "css"
	// KindText queries by visible text content.
	KindText QueryKind = "text"
)

// Query is one declarative element lookup. Exactly the fields for its
// Kind are read; Scope optionally restricts the search to a container
// matched by CSS.
type Query struct {
	Kind     QueryKind
	Role     string // role queries: aria role, e.g. "button"
	Name     string // role queries: accessible name, optional
	Selector string // css queries
	Text     string // text queries
	Exact    bool   // text queries: exact match instead of substring
	Scope    string // optional container selector
}

// Role builds an accessible role+name query.
func Role(role, name string) Query {
	return Query{Kind: KindRole, Role: role, Name: name}
}

// CSS builds a selector query.
func CSS(selector string) Query {
	return Query{Kind: KindCSS, Selector: selector}
}

// Text builds a substring text query.
func Text(text string) Query {
	return Query{Kind: KindText, Text: text}
}

// Element is a live handle to one matched DOM node.
type Element interface {
	// Visible and Enabled report false on any evaluation error; a
	// handle that cannot be probed is treated as not interactable.
	Visible() bool
	Enabled() bool
	Click() error
	Fill(value string) error
	// Press sends a single key (or named key such as "Enter").
	Press(key string) error
	Text() (string, error)
	HTML() (string, error)
	Attribute(name string) (string, error)
	InputValue() (string, error)
}

// Scope is anything elements can be queried within: a page or an
// embedded frame.
type Scope interface {
	Query(q Query) ([]Element, error)
}

// Page is the full capability set of the driven browser tab.
type Page interface {
	Scope

	Navigate(ctx context.Context, url string) error
	URL() string
	// WaitQuiet blocks until network idle or the timeout elapses; a
	// timeout is not an error.
	WaitQuiet(timeout time.Duration) error
	Screenshot(path string) error
	Eval(script string) (any, error)
	PressKey(key string) error
	Content() (string, error)
	// Frames returns embedded frames whose URL or name contains match.
	Frames(match string) []Scope
	// Alive reports whether the underlying session still answers.
	Alive() bool
}
