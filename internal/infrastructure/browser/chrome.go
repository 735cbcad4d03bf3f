package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"NewsPoster/internal/domain"
	"NewsPoster/internal/ports"
)

const xpathPrefix = "xpath="

// Options configures the Chrome session.
type Options struct {
	Headless  bool
	UserAgent string
	// LoginMarkers are URL fragments that mean the platform bounced the session
	// back to its login flow.
	LoginMarkers []string
	// ElementTimeout bounds clicks and fills that carry no timeout of their own.
	ElementTimeout time.Duration
}

// DefaultLoginMarkers match the X login and logout flows.
var DefaultLoginMarkers = []string{"/i/flow/login", "/login", "/logout"}

// ChromeDriver implements ports.BrowserDriver on a single chromedp tab.
// The browser is started on the first Perform call.
type ChromeDriver struct {
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCancel   context.CancelFunc
	tab         context.Context
}

var _ ports.BrowserDriver = (*ChromeDriver)(nil)

// NewChromeDriver prepares a driver; no browser process is launched yet.
func NewChromeDriver(opts Options, logger *slog.Logger) *ChromeDriver {
	if len(opts.LoginMarkers) == 0 {
		opts.LoginMarkers = DefaultLoginMarkers
	}
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeDriver{opts: opts, logger: logger}
}

func (d *ChromeDriver) start() context.Context {
	if d.tab != nil {
		return d.tab
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1280, 900),
	)
	if d.opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(d.opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		d.logger.Debug(fmt.Sprintf(format, args...))
	}))

	d.allocCancel = allocCancel
	d.tabCancel = tabCancel
	d.tab = tab
	d.logger.Info("browser session started", "headless", d.opts.Headless)
	return tab
}

// Perform runs actions in order. A step failure aborts the sequence unless the
// step is optional and merely timed out.
func (d *ChromeDriver) Perform(ctx context.Context, actions []ports.Action) (ports.ActionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	runCtx, cancel := context.WithCancel(d.start())
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	for i, action := range actions {
		if err := d.do(runCtx, action); err != nil {
			if ctx.Err() != nil {
				return ports.ActionResult{}, fmt.Errorf("perform step %d: %w", i, ctx.Err())
			}
			if action.Optional && errors.Is(err, context.DeadlineExceeded) && runCtx.Err() == nil {
				d.logger.Debug("optional step skipped", "kind", action.Kind, "selector", action.Selector)
				continue
			}
			if current, locErr := d.location(runCtx); locErr == nil && d.isLoginPage(current) && !navigatesToLogin(actions, d.opts.LoginMarkers) {
				return ports.ActionResult{CurrentURL: current}, fmt.Errorf("%w: redirected to %s", domain.ErrSessionExpired, current)
			}
			return ports.ActionResult{}, fmt.Errorf("%w: step %d %s %s: %w", domain.ErrAutomation, i, action.Kind, action.Selector, err)
		}
	}

	current, err := d.location(runCtx)
	if err != nil {
		return ports.ActionResult{}, fmt.Errorf("%w: read location: %w", domain.ErrAutomation, err)
	}
	if d.isLoginPage(current) && !navigatesToLogin(actions, d.opts.LoginMarkers) {
		return ports.ActionResult{CurrentURL: current}, fmt.Errorf("%w: redirected to %s", domain.ErrSessionExpired, current)
	}
	return ports.ActionResult{CurrentURL: current}, nil
}

func (d *ChromeDriver) do(ctx context.Context, action ports.Action) error {
	switch action.Kind {
	case ports.ActionNavigate:
		return chromedp.Run(ctx, chromedp.Navigate(action.Value))
	case ports.ActionWaitVisible:
		selector, by := query(action.Selector)
		return d.bounded(ctx, action.Timeout, chromedp.WaitVisible(selector, by))
	case ports.ActionClick:
		selector, by := query(action.Selector)
		return d.bounded(ctx, action.Timeout, chromedp.Click(selector, by, chromedp.NodeVisible))
	case ports.ActionFill:
		selector, by := query(action.Selector)
		return d.bounded(ctx, action.Timeout,
			chromedp.Focus(selector, by),
			chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
			chromedp.KeyEvent(kb.Backspace),
			chromedp.SendKeys(selector, action.Value, by),
		)
	case ports.ActionShortcut:
		key, modifiers, err := parseShortcut(action.Value)
		if err != nil {
			return err
		}
		return chromedp.Run(ctx, chromedp.KeyEvent(key, chromedp.KeyModifiers(modifiers...)))
	case ports.ActionPause:
		if action.Timeout <= 0 {
			return nil
		}
		return chromedp.Run(ctx, chromedp.Sleep(action.Timeout))
	default:
		return fmt.Errorf("unsupported action %q", action.Kind)
	}
}

func (d *ChromeDriver) bounded(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = d.opts.ElementTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(stepCtx, actions...)
}

func (d *ChromeDriver) location(ctx context.Context) (string, error) {
	var current string
	if err := d.bounded(ctx, d.opts.ElementTimeout, chromedp.Location(&current)); err != nil {
		return "", err
	}
	return current, nil
}

func (d *ChromeDriver) isLoginPage(current string) bool {
	return containsMarker(current, d.opts.LoginMarkers)
}

// Close shuts the tab and the browser process.
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tabCancel != nil {
		d.tabCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.tab, d.tabCancel, d.allocCancel = nil, nil, nil
	return nil
}

// query maps "xpath=" selectors to a search query and everything else to CSS.
func query(selector string) (string, chromedp.QueryOption) {
	if rest, ok := strings.CutPrefix(selector, xpathPrefix); ok {
		return rest, chromedp.BySearch
	}
	return selector, chromedp.ByQuery
}

var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"return":    kb.Enter,
	"tab":       kb.Tab,
	"escape":    kb.Escape,
	"esc":       kb.Escape,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"space":     " ",
}

var modifierKeys = map[string]input.Modifier{
	"control": input.ModifierCtrl,
	"ctrl":    input.ModifierCtrl,
	"shift":   input.ModifierShift,
	"alt":     input.ModifierAlt,
	"meta":    input.ModifierMeta,
	"cmd":     input.ModifierMeta,
}

// parseShortcut turns "Control+Enter" into a key and its modifiers.
func parseShortcut(value string) (string, []input.Modifier, error) {
	parts := strings.Split(value, "+")
	if len(parts) == 0 || strings.TrimSpace(parts[len(parts)-1]) == "" {
		return "", nil, fmt.Errorf("invalid shortcut %q", value)
	}

	var modifiers []input.Modifier
	for _, part := range parts[:len(parts)-1] {
		modifier, ok := modifierKeys[strings.ToLower(strings.TrimSpace(part))]
		if !ok {
			return "", nil, fmt.Errorf("invalid shortcut %q: unknown modifier %q", value, part)
		}
		modifiers = append(modifiers, modifier)
	}

	last := strings.TrimSpace(parts[len(parts)-1])
	if key, ok := namedKeys[strings.ToLower(last)]; ok {
		return key, modifiers, nil
	}
	if len([]rune(last)) == 1 {
		return strings.ToLower(last), modifiers, nil
	}
	return "", nil, fmt.Errorf("invalid shortcut %q: unknown key %q", value, last)
}

func containsMarker(current string, markers []string) bool {
	for _, marker := range markers {
		if marker != "" && strings.Contains(current, marker) {
			return true
		}
	}
	return false
}

// navigatesToLogin reports whether the sequence itself opens the login flow.
func navigatesToLogin(actions []ports.Action, markers []string) bool {
	for _, action := range actions {
		if action.Kind == ports.ActionNavigate && containsMarker(action.Value, markers) {
			return true
		}
	}
	return false
}
