// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/puppetry-cli/internal/config"
)

const closeGracePeriod = 10 * time.Second

// EvalError reports a JavaScript exception thrown during Evaluate, as
// opposed to a transport or timeout failure.
type EvalError struct {
	Text string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("script threw: %s", e.Text)
}

// Session is one isolated tab. Every operation respects both the session
// lifecycle context and the caller's context.
type Session struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	harvester *Harvester

	mu       sync.Mutex
	emulated *Device // currently applied emulation, nil when none

	onClose   func()
	closeOnce sync.Once
}

// newSession wires the tab context. bootstrap must be called next.
func newSession(allocatorCtx context.Context, cfg *config.Config, logger *zap.Logger) *Session {
	id := uuid.New().String()
	tabCtx, cancel := chromedp.NewContext(allocatorCtx)

	s := &Session{
		id:     id,
		cfg:    cfg,
		logger: logger.With(zap.String("session_id", id[:8])),
		ctx:    tabCtx,
		cancel: cancel,
	}
	s.harvester = NewHarvester(tabCtx, s.logger, cfg.Network.CaptureBodies)
	return s
}

// bootstrap creates the actual tab and applies configured defaults.
func (s *Session) bootstrap(ctx context.Context) error {
	// An empty Run forces target allocation so failures surface here rather
	// than on the first command.
	if err := s.Run(ctx, chromedp.ActionFunc(func(context.Context) error { return nil })); err != nil {
		return fmt.Errorf("failed to open tab: %w", err)
	}

	if s.cfg.Browser.DisableCache {
		if err := s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCacheDisabled(true).Do(ctx)
		})); err != nil {
			return fmt.Errorf("failed to disable cache: %w", err)
		}
	}

	if dev := deviceFromConfig(s.cfg.Emulation); dev != nil {
		if err := s.EmulateDevice(ctx, *dev); err != nil {
			return fmt.Errorf("failed to apply configured emulation: %w", err)
		}
	}

	if err := s.harvester.Start(); err != nil {
		return fmt.Errorf("failed to start harvester: %w", err)
	}

	s.logger.Debug("Session bootstrapped.")
	return nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Context exposes the session lifecycle context.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Run executes chromedp actions under the combination of the session
// context (carrying the CDP target) and the caller's context.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL, waits for the body to be ready, and settles for the
// configured post-load wait.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if s.cfg.Network.PostLoadWait > 0 {
		actions = append(actions, chromedp.Sleep(s.cfg.Network.PostLoadWait))
	}
	return s.RunTimed(ctx, fmt.Sprintf("navigate to %s", url), s.cfg.Network.NavigationTimeout, actions...)
}

// Reload reloads the current page.
func (s *Session) Reload(ctx context.Context) error {
	return s.RunTimed(ctx, "reload", s.cfg.Network.NavigationTimeout,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery))
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	err := s.RunTimed(ctx, "get location", s.cfg.Network.ActionTimeout, chromedp.Location(&url))
	return url, err
}

// Title returns the current page title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.RunTimed(ctx, "get title", s.cfg.Network.ActionTimeout, chromedp.Title(&title))
	return title, err
}

// HTML returns the full outer HTML of the current document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	err := s.RunTimed(ctx, "get html", s.cfg.Network.ActionTimeout,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Text returns the visible text of the first node matching the selector.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := s.RunTimed(ctx, fmt.Sprintf("get text of %q", selector), s.cfg.Network.ActionTimeout,
		chromedp.Text(selector, &text, chromedp.ByQuery, chromedp.NodeVisible))
	return text, err
}

// Evaluate runs a JavaScript expression with promises awaited and the value
// returned by value, unmarshalling the result into res (pass nil to discard).
// A script exception is reported as *EvalError.
func (s *Session) Evaluate(ctx context.Context, expression string, res interface{}) error {
	var raw json.RawMessage
	err := s.RunTimed(ctx, "evaluate script", s.cfg.Network.ActionTimeout,
		chromedp.Evaluate(expression, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true)
		}))
	if err != nil {
		var exc *runtime.ExceptionDetails
		if errors.As(err, &exc) {
			return &EvalError{Text: exc.Error()}
		}
		return err
	}

	if res == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, res); err != nil {
		return fmt.Errorf("failed to unmarshal script result into %T: %w", res, err)
	}
	return nil
}

// Click dispatches a click on the first node matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.RunTimed(ctx, fmt.Sprintf("click %q", selector), s.cfg.Network.ActionTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Focus focuses the first node matching the selector.
func (s *Session) Focus(ctx context.Context, selector string) error {
	return s.RunTimed(ctx, fmt.Sprintf("focus %q", selector), s.cfg.Network.ActionTimeout,
		chromedp.Focus(selector, chromedp.ByQuery))
}

// Type sends the text to the node matching the selector as key events.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	return s.RunTimed(ctx, fmt.Sprintf("type into %q", selector), s.cfg.Network.ActionTimeout,
		chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// Modifier is a bitmask of held modifier keys for Press.
type Modifier int64

const (
	ModAlt Modifier = 1 << iota
	ModCtrl
	ModMeta
	ModShift
)

// Press dispatches a key-down/key-up pair for a single key with optional
// modifiers, targeting whatever currently has focus.
func (s *Session) Press(ctx context.Context, key string, mods Modifier) error {
	var cdpMods input.Modifier
	if mods&ModAlt != 0 {
		cdpMods |= input.ModifierAlt
	}
	if mods&ModCtrl != 0 {
		cdpMods |= input.ModifierCtrl
	}
	if mods&ModMeta != 0 {
		cdpMods |= input.ModifierMeta
	}
	if mods&ModShift != 0 {
		cdpMods |= input.ModifierShift
	}

	down := input.DispatchKeyEvent(input.KeyDown).WithModifiers(cdpMods).WithKey(key)
	up := input.DispatchKeyEvent(input.KeyUp).WithModifiers(cdpMods).WithKey(key)

	return s.RunTimed(ctx, fmt.Sprintf("press %q", key), s.cfg.Network.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			if err := down.Do(ctx); err != nil {
				return err
			}
			return up.Do(ctx)
		}))
}

// Submit submits the form owning the node matched by the selector.
func (s *Session) Submit(ctx context.Context, selector string) error {
	return s.RunTimed(ctx, fmt.Sprintf("submit %q", selector), s.cfg.Network.ActionTimeout,
		chromedp.Submit(selector, chromedp.ByQuery))
}

// Scroll scrolls the window by the given deltas using a JS fallback, which
// behaves identically on emulated mobile viewports.
func (s *Session) Scroll(ctx context.Context, dx, dy int) error {
	return s.Evaluate(ctx, fmt.Sprintf("window.scrollBy(%d, %d)", dx, dy), nil)
}

// InjectOnNewDocument registers a script evaluated in every new document
// before any page script runs.
func (s *Session) InjectOnNewDocument(ctx context.Context, script string) error {
	return s.RunTimed(ctx, "inject script", s.cfg.Network.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
}

// SetUserAgent overrides the user agent for subsequent requests.
func (s *Session) SetUserAgent(ctx context.Context, ua string) error {
	return s.RunTimed(ctx, "set user agent", s.cfg.Network.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulationSetUserAgent(ctx, ua)
		}))
}

// SetExtraHeaders attaches additional HTTP headers to every request.
func (s *Session) SetExtraHeaders(ctx context.Context, headers map[string]string) error {
	cdpHeaders := make(network.Headers, len(headers))
	for k, v := range headers {
		cdpHeaders[k] = v
	}
	return s.RunTimed(ctx, "set extra headers", s.cfg.Network.ActionTimeout,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetExtraHTTPHeaders(cdpHeaders).Do(ctx)
		}))
}

// CollectArtifacts gathers the final page state plus everything the
// harvester recorded.
func (s *Session) CollectArtifacts(ctx context.Context) (*Artifacts, error) {
	a := &Artifacts{}

	var err error
	if a.FinalURL, err = s.Location(ctx); err != nil {
		return nil, err
	}
	if a.Title, err = s.Title(ctx); err != nil {
		s.logger.Warn("Could not retrieve page title.", zap.Error(err))
	}
	if a.HTML, err = s.HTML(ctx); err != nil {
		s.logger.Warn("Could not retrieve final DOM.", zap.Error(err))
	}
	if a.Cookies, err = s.Cookies(ctx); err != nil {
		s.logger.Warn("Could not retrieve cookies.", zap.Error(err))
	}

	a.ConsoleLogs = s.harvester.ConsoleLogs()
	a.Requests = s.harvester.Requests()
	return a, nil
}

// Close terminates the tab. Idempotent; never blocks past the grace period.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing session.")

		if s.harvester != nil {
			s.harvester.Stop()
		}

		s.cancel()

		waitCtx, cancelWait := context.WithTimeout(ctx, closeGracePeriod)
		defer cancelWait()

		select {
		case <-s.ctx.Done():
		case <-waitCtx.Done():
			s.logger.Warn("Deadline exceeded waiting for tab to close.", zap.Error(waitCtx.Err()))
		}

		if s.onClose != nil {
			s.onClose()
		}
	})
	return nil
}
