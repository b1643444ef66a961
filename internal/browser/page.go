// Package browser wraps a single Chrome tab, driven through chromedp, behind
// the small Page interface the session, harvest and calc packages use. DOM
// reads return plain strings or typed values parsed from outerHTML, so the
// callers never handle CDP types.
package browser

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a selector matches no element.
	ErrNotFound = errors.New("element not found")
	// ErrWaitTimeout is returned by Poll when the condition never held.
	ErrWaitTimeout = errors.New("timed out waiting for condition")
	// ErrOptionNotFound is returned when a select has no matching option.
	ErrOptionNotFound = errors.New("option not found")
)

// Key is a named keyboard key.
type Key string

const (
	KeyEnter    Key = "Enter"
	KeyTab      Key = "Tab"
	KeyPageDown Key = "PageDown"
	KeyEnd      Key = "End"
	KeyEscape   Key = "Escape"
)

// Option is one <option> of a <select>.
type Option struct {
	Value    string
	Label    string
	Disabled bool
	Selected bool
}

// DialogHandler receives the message of every JavaScript dialog. Handlers run
// on the event goroutine and must not block.
type DialogHandler func(message string)

// Page is one browsing context. Selectors are CSS selectors evaluated with
// document.querySelector. Implementations are not safe for concurrent use
// beyond the dialog callback.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	// Content returns the serialized document.
	Content(ctx context.Context) (string, error)

	Exists(ctx context.Context, selector string) (bool, error)
	Visible(ctx context.Context, selector string) (bool, error)
	Enabled(ctx context.Context, selector string) (bool, error)
	// HasText reports whether any element matching selector contains text.
	HasText(ctx context.Context, selector, text string) (bool, error)

	Click(ctx context.Context, selector string) error
	// ClickText clicks the first element matching selector whose text contains text.
	ClickText(ctx context.Context, selector, text string) error
	Focus(ctx context.Context, selector string) error
	// Fill replaces the value of an input by typing into it.
	Fill(ctx context.Context, selector, value string) error
	// SetValue assigns the value directly and dispatches input and change events.
	SetValue(ctx context.Context, selector, value string) error
	Press(ctx context.Context, key Key) error
	// ScrollBy scrolls the element matching selector by pages times its
	// client height, or the window when nothing matches.
	ScrollBy(ctx context.Context, selector string, pages float64) error

	Value(ctx context.Context, selector string) (string, error)
	Text(ctx context.Context, selector string) (string, error)
	OuterHTML(ctx context.Context, selector string) (string, error)
	Options(ctx context.Context, selector string) ([]Option, error)
	// SelectValue selects the option with the given value and fires change.
	SelectValue(ctx context.Context, selector, value string) error

	// Call invokes a global page function by name, for example "calculate".
	Call(ctx context.Context, function string) error

	OnDialog(h DialogHandler)
}
