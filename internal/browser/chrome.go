package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/CodedDrexler/eCalc-Auto/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Tab is a Page backed by one chromedp target.
type Tab struct {
	id     string
	cfg    config.BrowserConfig
	logger *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu       sync.RWMutex
	handlers []DialogHandler
}

var _ Page = (*Tab)(nil)

// allocatorOptions builds the Chrome flags from the config.
func allocatorOptions(cfg config.BrowserConfig) ([]chromedp.ExecAllocatorOption, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.ProfileDir != "" {
		dir, err := homedir.Expand(cfg.ProfileDir)
		if err != nil {
			return nil, fmt.Errorf("expanding profile dir: %w", err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating profile dir: %w", err)
		}
		opts = append(opts, chromedp.UserDataDir(dir))
	}
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts, nil
}

// Launch starts Chrome with a persistent profile and returns its first tab.
// The dialog listener is installed before any navigation so that alerts
// raised by the first page load are seen.
func Launch(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Tab, error) {
	opts, err := allocatorOptions(cfg)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	log := logger.Named("browser").With(zap.String("tab_id", id))

	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), opts...)
	sugar := log.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	t := &Tab{
		id:          id,
		cfg:         cfg,
		logger:      log,
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
	}
	chromedp.ListenTarget(tabCtx, t.handleEvent)

	// The first Run must use the tab context itself; it owns the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		t.Close()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}
	log.Info("Browser started", zap.Bool("headless", cfg.Headless), zap.String("profile", cfg.ProfileDir))
	return t, nil
}

// Close shuts the tab and the browser process down.
func (t *Tab) Close() error {
	closeCtx, cancel := context.WithTimeout(Detach(t.ctx), 10*time.Second)
	defer cancel()
	err := chromedp.Cancel(closeCtx)
	t.cancel()
	t.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("closing browser: %w", err)
	}
	return nil
}

// OnDialog registers h for every JavaScript dialog.
func (t *Tab) OnDialog(h DialogHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, h)
}

func (t *Tab) handleEvent(ev interface{}) {
	e, ok := ev.(*page.EventJavascriptDialogOpening)
	if !ok {
		return
	}
	t.mu.RLock()
	handlers := append([]DialogHandler(nil), t.handlers...)
	t.mu.RUnlock()
	for _, h := range handlers {
		h(e.Message)
	}

	// CDP calls cannot be made from the listener goroutine.
	go func(message string) {
		ctx, cancel := context.WithTimeout(t.ctx, 5*time.Second)
		defer cancel()
		if err := chromedp.Run(ctx, page.HandleJavaScriptDialog(true)); err != nil {
			t.logger.Debug("Accepting dialog failed, dismissing.", zap.Error(err))
			if err := chromedp.Run(ctx, page.HandleJavaScriptDialog(false)); err != nil {
				t.logger.Warn("Could not close dialog.", zap.String("message", message), zap.Error(err))
			}
		}
	}(e.Message)
}

// run executes actions with the tab's CDP values and the caller's
// cancellation. Callers without a deadline get the configured action timeout.
func (t *Tab) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := CombineContext(t.ctx, ctx)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok && t.cfg.ActionTimeout > 0 {
		var cancelTimeout context.CancelFunc
		opCtx, cancelTimeout = context.WithTimeout(opCtx, t.cfg.ActionTimeout)
		defer cancelTimeout()
	}
	if err := chromedp.Run(opCtx, actions...); err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("browser action timed out: %w", err)
		}
		return err
	}
	return nil
}

func (t *Tab) eval(ctx context.Context, script string, out any) error {
	return t.run(ctx, chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true).WithSilent(true)
	}))
}

// lookupResult is returned by scripts that read one element.
type lookupResult struct {
	Found bool   `json:"found"`
	Value string `json:"value"`
}

func (t *Tab) lookup(ctx context.Context, selector, expr string) (string, error) {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return {found: false, value: ""};
		return {found: true, value: String(%s ?? "")};
	})()`, jsonEncode(selector), expr)
	var res lookupResult
	if err := t.eval(ctx, script, &res); err != nil {
		return "", fmt.Errorf("reading %s: %w", selector, err)
	}
	if !res.Found {
		return "", fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return res.Value, nil
}

func (t *Tab) check(ctx context.Context, script string) (bool, error) {
	var ok bool
	if err := t.eval(ctx, script, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// Navigate loads url and waits for the configured settle period.
func (t *Tab) Navigate(ctx context.Context, url string) error {
	timeout := t.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	t.logger.Debug("Navigating.", zap.String("url", url))
	if err := t.run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return Sleep(ctx, t.cfg.Settle)
}

func (t *Tab) Reload(ctx context.Context) error {
	if err := t.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reloading: %w", err)
	}
	return Sleep(ctx, t.cfg.Settle)
}

func (t *Tab) URL(ctx context.Context) (string, error) {
	var u string
	if err := t.run(ctx, chromedp.Location(&u)); err != nil {
		return "", err
	}
	return u, nil
}

func (t *Tab) Content(ctx context.Context) (string, error) {
	var html string
	if err := t.eval(ctx, `document.documentElement.outerHTML`, &html); err != nil {
		return "", err
	}
	return html, nil
}

func (t *Tab) Exists(ctx context.Context, selector string) (bool, error) {
	return t.check(ctx, fmt.Sprintf(`document.querySelector(%s) !== null`, jsonEncode(selector)))
}

func (t *Tab) Visible(ctx context.Context, selector string) (bool, error) {
	return t.check(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		const r = el.getBoundingClientRect();
		const s = window.getComputedStyle(el);
		return r.width > 0 && r.height > 0 && s.display !== 'none' && s.visibility !== 'hidden';
	})()`, jsonEncode(selector)))
}

func (t *Tab) Enabled(ctx context.Context, selector string) (bool, error) {
	return t.check(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return !!el && !el.disabled && !el.readOnly;
	})()`, jsonEncode(selector)))
}

func (t *Tab) HasText(ctx context.Context, selector, text string) (bool, error) {
	return t.check(ctx, fmt.Sprintf(`Array.from(document.querySelectorAll(%s))
		.some(el => (el.innerText || el.textContent || '').includes(%s))`, jsonEncode(selector), jsonEncode(text)))
}

func (t *Tab) Click(ctx context.Context, selector string) error {
	ok, err := t.Exists(ctx, selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return t.run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (t *Tab) ClickText(ctx context.Context, selector, text string) error {
	ok, err := t.check(ctx, fmt.Sprintf(`(() => {
		const el = Array.from(document.querySelectorAll(%s))
			.find(e => (e.innerText || e.textContent || '').includes(%s));
		if (!el) return false;
		el.scrollIntoView({block: 'center'});
		el.click();
		return true;
	})()`, jsonEncode(selector), jsonEncode(text)))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s containing %q: %w", selector, text, ErrNotFound)
	}
	return nil
}

func (t *Tab) Focus(ctx context.Context, selector string) error {
	return t.run(ctx, chromedp.Focus(selector, chromedp.ByQuery))
}

// Fill clears the field through JS, then types value so the page's key
// listeners fire.
func (t *Tab) Fill(ctx context.Context, selector, value string) error {
	ok, err := t.check(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.focus();
		el.value = '';
		el.dispatchEvent(new Event('input', {bubbles: true}));
		return true;
	})()`, jsonEncode(selector)))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return t.run(ctx, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (t *Tab) SetValue(ctx context.Context, selector, value string) error {
	ok, err := t.check(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return false;
		el.value = %s;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return true;
	})()`, jsonEncode(selector), jsonEncode(value)))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	}
	return nil
}

var keyCodes = map[Key]string{
	KeyEnter:    kb.Enter,
	KeyTab:      kb.Tab,
	KeyPageDown: kb.PageDown,
	KeyEnd:      kb.End,
	KeyEscape:   kb.Escape,
}

func (t *Tab) Press(ctx context.Context, key Key) error {
	code, ok := keyCodes[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}
	return t.run(ctx, chromedp.KeyEvent(code))
}

func (t *Tab) ScrollBy(ctx context.Context, selector string, pages float64) error {
	return t.eval(ctx, fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (el) { el.scrollTop += el.clientHeight * %g; return; }
		window.scrollBy(0, window.innerHeight * %g);
	})()`, jsonEncode(selector), pages, pages), nil)
}

func (t *Tab) Value(ctx context.Context, selector string) (string, error) {
	return t.lookup(ctx, selector, "el.value")
}

func (t *Tab) Text(ctx context.Context, selector string) (string, error) {
	v, err := t.lookup(ctx, selector, "el.innerText")
	return strings.TrimSpace(v), err
}

func (t *Tab) OuterHTML(ctx context.Context, selector string) (string, error) {
	return t.lookup(ctx, selector, "el.outerHTML")
}

func (t *Tab) Options(ctx context.Context, selector string) ([]Option, error) {
	html, err := t.OuterHTML(ctx, selector)
	if err != nil {
		return nil, err
	}
	return ParseOptions(html)
}

func (t *Tab) SelectValue(ctx context.Context, selector, value string) error {
	var res lookupResult
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return {found: false, value: ""};
		const opt = Array.from(el.options || []).find(o => o.value === %s);
		if (!opt) return {found: true, value: "missing"};
		el.value = opt.value;
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		return {found: true, value: "ok"};
	})()`, jsonEncode(selector), jsonEncode(value))
	if err := t.eval(ctx, script, &res); err != nil {
		return fmt.Errorf("selecting %q in %s: %w", value, selector, err)
	}
	switch {
	case !res.Found:
		return fmt.Errorf("%s: %w", selector, ErrNotFound)
	case res.Value != "ok":
		return fmt.Errorf("%s value %q: %w", selector, value, ErrOptionNotFound)
	}
	return nil
}

func (t *Tab) Call(ctx context.Context, function string) error {
	ok, err := t.check(ctx, fmt.Sprintf(`(() => {
		const fn = window[%s];
		if (typeof fn !== 'function') return false;
		fn();
		return true;
	})()`, jsonEncode(function)))
	if err != nil {
		return fmt.Errorf("calling %s(): %w", function, err)
	}
	if !ok {
		return fmt.Errorf("page function %s: %w", function, ErrNotFound)
	}
	return nil
}

// jsonEncode quotes s for safe interpolation into a script.
func jsonEncode(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
