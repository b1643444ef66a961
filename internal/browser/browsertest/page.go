// Package browsertest provides an in-memory browser.Page whose DOM is a map
// of selector to element, with hooks to script how the fake site reacts to
// navigation, clicks, key presses and page function calls.
package browsertest

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/CodedDrexler/eCalc-Auto/internal/browser"
)

// Element is the state of one selector.
type Element struct {
	Value    string
	Text     string
	HTML     string
	Hidden   bool
	Disabled bool
	Options  []browser.Option
}

// Page is a scriptable browser.Page. Hooks run without the page lock held
// and may call any exported method.
type Page struct {
	mu       sync.Mutex
	url      string
	html     string
	elements map[string]*Element
	calls    []string
	dialogs  []browser.DialogHandler

	OnNavigate func(p *Page, url string)
	OnReload   func(p *Page)
	OnPress    func(p *Page, key browser.Key)
	OnScroll   func(p *Page, selector string, pages float64)
	OnClick    map[string]func(p *Page)
	OnChange   map[string]func(p *Page, value string)
	OnCall     map[string]func(p *Page)
	// OnText runs before every Text read, letting outputs change between polls.
	OnText func(p *Page, selector string)
	// Fail forces an error for a call, keyed like the call log ("click #id").
	Fail map[string]error
}

var _ browser.Page = (*Page)(nil)

// New returns an empty page at about:blank.
func New() *Page {
	return &Page{
		url:      "about:blank",
		elements: map[string]*Element{},
		OnClick:  map[string]func(*Page){},
		OnChange: map[string]func(*Page, string){},
		OnCall:   map[string]func(*Page){},
		Fail:     map[string]error{},
	}
}

// Set installs or replaces the element for selector.
func (p *Page) Set(selector string, el Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := el
	p.elements[selector] = &e
}

// Remove deletes the element for selector.
func (p *Page) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
}

// Get returns a copy of the element for selector.
func (p *Page) Get(selector string) (Element, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[selector]
	if !ok {
		return Element{}, false
	}
	return *e, true
}

// Update mutates the element for selector in place, creating it if needed.
func (p *Page) Update(selector string, fn func(*Element)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[selector]
	if !ok {
		e = &Element{}
		p.elements[selector] = e
	}
	fn(e)
}

// SetURL changes the current URL without running OnNavigate.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = u
}

// SetHTML sets what Content returns.
func (p *Page) SetHTML(html string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.html = html
}

// Dialog delivers a JavaScript dialog to the registered handlers.
func (p *Page) Dialog(message string) {
	p.mu.Lock()
	handlers := slices.Clone(p.dialogs)
	p.calls = append(p.calls, "dialog "+message)
	p.mu.Unlock()
	for _, h := range handlers {
		h(message)
	}
}

// Calls returns the call log.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// Called reports whether entry appears in the call log.
func (p *Page) Called(entry string) bool {
	return slices.Contains(p.Calls(), entry)
}

// Count returns how many times entry appears in the call log.
func (p *Page) Count(entry string) int {
	n := 0
	for _, c := range p.Calls() {
		if c == entry {
			n++
		}
	}
	return n
}

func (p *Page) record(ctx context.Context, entry string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, entry)
	if err, ok := p.Fail[entry]; ok {
		return err
	}
	return nil
}

func (p *Page) element(selector string) (*Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.elements[selector]
	if !ok {
		return nil, fmt.Errorf("%s: %w", selector, browser.ErrNotFound)
	}
	return e, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.record(ctx, "navigate "+url); err != nil {
		return err
	}
	p.SetURL(url)
	if p.OnNavigate != nil {
		p.OnNavigate(p, url)
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	if err := p.record(ctx, "reload"); err != nil {
		return err
	}
	if p.OnReload != nil {
		p.OnReload(p)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Content(ctx context.Context) (string, error) {
	if err := p.record(ctx, "content"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *Page) Exists(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := p.element(selector)
	return err == nil, nil
}

func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e, err := p.element(selector)
	if err != nil {
		return false, nil
	}
	return !e.Hidden, nil
}

func (p *Page) Enabled(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e, err := p.element(selector)
	if err != nil {
		return false, nil
	}
	return !e.Disabled, nil
}

func (p *Page) HasText(ctx context.Context, selector, text string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e, err := p.element(selector)
	if err != nil {
		return false, nil
	}
	return strings.Contains(e.Text, text), nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.record(ctx, "click "+selector); err != nil {
		return err
	}
	if _, err := p.element(selector); err != nil {
		return err
	}
	if h := p.OnClick[selector]; h != nil {
		h(p)
	}
	return nil
}

func (p *Page) ClickText(ctx context.Context, selector, text string) error {
	if ok, _ := p.HasText(ctx, selector, text); !ok {
		return fmt.Errorf("%s containing %q: %w", selector, text, browser.ErrNotFound)
	}
	return p.Click(ctx, selector)
}

func (p *Page) Focus(ctx context.Context, selector string) error {
	if err := p.record(ctx, "focus "+selector); err != nil {
		return err
	}
	_, err := p.element(selector)
	return err
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	return p.change(ctx, "fill", selector, value)
}

func (p *Page) SetValue(ctx context.Context, selector, value string) error {
	return p.change(ctx, "set", selector, value)
}

func (p *Page) change(ctx context.Context, verb, selector, value string) error {
	if err := p.record(ctx, verb+" "+selector+"="+value); err != nil {
		return err
	}
	e, err := p.element(selector)
	if err != nil {
		return err
	}
	p.mu.Lock()
	e.Value = value
	p.mu.Unlock()
	if h := p.OnChange[selector]; h != nil {
		h(p, value)
	}
	return nil
}

func (p *Page) Press(ctx context.Context, key browser.Key) error {
	if err := p.record(ctx, "press "+string(key)); err != nil {
		return err
	}
	if p.OnPress != nil {
		p.OnPress(p, key)
	}
	return nil
}

func (p *Page) ScrollBy(ctx context.Context, selector string, pages float64) error {
	if err := p.record(ctx, "scroll "+selector); err != nil {
		return err
	}
	if p.OnScroll != nil {
		p.OnScroll(p, selector, pages)
	}
	return nil
}

func (p *Page) Value(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e, err := p.element(selector)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return e.Value, nil
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.OnText != nil {
		p.OnText(p, selector)
	}
	e, err := p.element(selector)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(e.Text), nil
}

func (p *Page) OuterHTML(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e, err := p.element(selector)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return e.HTML, nil
}

func (p *Page) Options(ctx context.Context, selector string) ([]browser.Option, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := p.element(selector)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(e.Options), nil
}

func (p *Page) SelectValue(ctx context.Context, selector, value string) error {
	if err := p.record(ctx, "select "+selector+"="+value); err != nil {
		return err
	}
	e, err := p.element(selector)
	if err != nil {
		return err
	}
	p.mu.Lock()
	found := false
	for i := range e.Options {
		e.Options[i].Selected = e.Options[i].Value == value
		if e.Options[i].Selected {
			found = true
			e.Value = value
			e.Text = e.Options[i].Label
		}
	}
	p.mu.Unlock()
	if !found {
		return fmt.Errorf("%s value %q: %w", selector, value, browser.ErrOptionNotFound)
	}
	if h := p.OnChange[selector]; h != nil {
		h(p, value)
	}
	return nil
}

func (p *Page) Call(ctx context.Context, function string) error {
	if err := p.record(ctx, "call "+function); err != nil {
		return err
	}
	h := p.OnCall[function]
	if h == nil {
		return fmt.Errorf("page function %s: %w", function, browser.ErrNotFound)
	}
	h(p)
	return nil
}

func (p *Page) OnDialog(h browser.DialogHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialogs = append(p.dialogs, h)
}
