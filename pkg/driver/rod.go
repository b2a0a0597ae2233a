package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultFrameCacheSize = 32

// Rod implements Driver on top of a go-rod Chromium session.
type Rod struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launch   *launcher.Launcher
	page     *rod.Page
	frames   *lru.Cache[string, *rod.Page]
	active   FrameContext
	logger   *slog.Logger
	headless bool

	alertMu sync.Mutex
	alert   *proto.PageJavascriptDialogOpening
}

// RodOption configures a Rod driver.
type RodOption func(*Rod)

// WithHeadless sets headless mode (default true).
func WithHeadless(h bool) RodOption {
	return func(r *Rod) { r.headless = h }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) RodOption {
	return func(r *Rod) { r.logger = l }
}

// NewRod creates a Rod driver with options. Call Start before use.
func NewRod(opts ...RodOption) *Rod {
	frames, _ := lru.New[string, *rod.Page](defaultFrameCacheSize)
	r := &Rod{
		frames:   frames,
		logger:   slog.Default(),
		headless: true,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Start launches Chromium and opens the session's single page.
func (r *Rod) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return errors.New("driver already running")
	}

	l := launcher.New().
		Headless(r.headless).
		Set("disable-gpu").
		Set("no-first-run").
		Set("no-default-browser-check")

	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch Chromium: %w", err)
	}
	r.launch = l
	r.logger.Info("Chromium launched", "cdp", controlURL, "headless", r.headless)

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("connect to Chromium: %w", err)
	}
	r.browser = b

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		r.browser = nil
		return fmt.Errorf("open page: %w", err)
	}
	r.page = page

	// Capture JS dialogs so an unexpected alert never wedges the CDP
	// session; AcceptAlert consumes the captured event.
	go page.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		r.alertMu.Lock()
		r.alert = e
		r.alertMu.Unlock()
		r.logger.Warn("javascript dialog opened", "type", string(e.Type), "message", e.Message)
	})()

	return nil
}

// Close shuts the browser down.
func (r *Rod) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	r.page = nil
	r.frames.Purge()
	if r.launch != nil {
		r.launch.Cleanup()
	}
	return err
}

// FindMatches queries frame for loc. A miss is (nil, nil).
func (r *Rod) FindMatches(ctx context.Context, loc Locator, frame FrameContext) ([]Element, error) {
	p, err := r.resolveFrame(ctx, frame)
	if err != nil {
		return nil, err
	}

	els, err := elementsOnPage(p.Context(ctx), loc)
	if err != nil {
		// Drop the possibly-stale frame handle so a retry re-resolves.
		r.frames.Remove(frame.Key())
		return nil, r.classify("find "+loc.String(), err)
	}

	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el, drv: r}
	}
	return out, nil
}

// SwitchFrame selects frame as the session's active frame.
func (r *Rod) SwitchFrame(ctx context.Context, frame FrameContext) error {
	if _, err := r.resolveFrame(ctx, frame); err != nil {
		return err
	}
	r.mu.Lock()
	r.active = frame
	r.mu.Unlock()
	return nil
}

// ActiveFrame returns the session's currently selected frame.
func (r *Rod) ActiveFrame() FrameContext {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Navigate loads url in the session page and waits for load.
func (r *Rod) Navigate(ctx context.Context, url string) error {
	p, err := r.mainPage()
	if err != nil {
		return err
	}
	r.invalidateFrames()
	if err := p.Context(ctx).Navigate(url); err != nil {
		return r.classify("navigate", err)
	}
	if err := p.Context(ctx).WaitLoad(); err != nil {
		return r.classify("wait load", err)
	}
	return nil
}

// CurrentURL returns the top-level document URL.
func (r *Rod) CurrentURL(ctx context.Context) (string, error) {
	p, err := r.mainPage()
	if err != nil {
		return "", err
	}
	info, err := p.Context(ctx).Info()
	if err != nil {
		return "", r.classify("page info", err)
	}
	return info.URL, nil
}

// Refresh reloads the top-level document.
func (r *Rod) Refresh(ctx context.Context) error {
	p, err := r.mainPage()
	if err != nil {
		return err
	}
	r.invalidateFrames()
	if err := p.Context(ctx).Reload(); err != nil {
		return r.classify("reload", err)
	}
	if err := p.Context(ctx).WaitLoad(); err != nil {
		return r.classify("wait load", err)
	}
	return nil
}

// AcceptAlert accepts the pending JS dialog, if any.
func (r *Rod) AcceptAlert(ctx context.Context) (string, bool, error) {
	r.alertMu.Lock()
	pending := r.alert
	r.alert = nil
	r.alertMu.Unlock()

	if pending == nil {
		return "", false, nil
	}
	p, err := r.mainPage()
	if err != nil {
		return "", false, err
	}
	err = proto.PageHandleJavaScriptDialog{Accept: true}.Call(p.Context(ctx))
	if err != nil {
		return "", false, r.classify("accept alert", err)
	}
	return pending.Message, true, nil
}

// Screenshot captures the top-level page as PNG bytes.
func (r *Rod) Screenshot(ctx context.Context) ([]byte, error) {
	p, err := r.mainPage()
	if err != nil {
		return nil, err
	}
	buf, err := p.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, r.classify("screenshot", err)
	}
	return buf, nil
}

func (r *Rod) mainPage() (*rod.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.page == nil {
		return nil, Fatal("session", errors.New("driver not started"))
	}
	return r.page, nil
}

func (r *Rod) invalidateFrames() {
	r.frames.Purge()
}

// resolveFrame walks the hop path from the top-level document down to
// the frame's page handle. Resolutions are cached; a cache hit that has
// gone stale surfaces as a transient error on the next query and the
// entry is dropped there.
func (r *Rod) resolveFrame(ctx context.Context, fc FrameContext) (*rod.Page, error) {
	if fc.IsTop() {
		return r.mainPage()
	}
	if p, ok := r.frames.Get(fc.Key()); ok {
		return p, nil
	}

	parent, err := r.resolveFrame(ctx, fc.Parent())
	if err != nil {
		return nil, err
	}

	path := fc.Path()
	ref := path[len(path)-1]
	el, err := r.frameElement(ctx, parent, ref)
	if err != nil {
		return nil, err
	}

	frame, err := el.Frame()
	if err != nil {
		return nil, r.classify("enter frame "+ref.String(), err)
	}

	r.frames.Add(fc.Key(), frame)
	return frame, nil
}

func (r *Rod) frameElement(ctx context.Context, p *rod.Page, ref FrameRef) (*rod.Element, error) {
	if !ref.Owner.IsZero() {
		els, err := elementsOnPage(p.Context(ctx), ref.Owner)
		if err != nil {
			return nil, r.classify("find frame owner", err)
		}
		if len(els) == 0 {
			return nil, Transient("find frame owner", fmt.Errorf("no frame element matches %s", ref.Owner))
		}
		return els[0], nil
	}

	els, err := p.Context(ctx).Elements("iframe, frame")
	if err != nil {
		return nil, r.classify("list frames", err)
	}

	if ref.Name != "" {
		for _, el := range els {
			for _, attr := range []string{"name", "id"} {
				v, err := el.Attribute(attr)
				if err == nil && v != nil && *v == ref.Name {
					return el, nil
				}
			}
		}
		return nil, Transient("frame by name", fmt.Errorf("no frame named %q", ref.Name))
	}

	if ref.Index < 0 || ref.Index >= len(els) {
		return nil, Transient("frame by index", fmt.Errorf("frame index %d out of range (%d frames)", ref.Index, len(els)))
	}
	return els[ref.Index], nil
}

func elementsOnPage(p *rod.Page, loc Locator) (rod.Elements, error) {
	if loc.Strategy == StrategyXPath {
		return p.ElementsX(loc.Expr)
	}
	return p.Elements(loc.Expr)
}

// classify folds a raw rod/cdp error into the binary taxonomy. Known
// session-loss signatures are fatal; everything else that bubbles out
// of the protocol is treated as recoverable.
func (r *Rod) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal(op, err)
	}

	msg := err.Error()
	for _, sig := range fatalSignatures {
		if strings.Contains(msg, sig) {
			return Fatal(op, err)
		}
	}

	return Transient(op, err)
}

// fatalSignatures are substrings of errors that indicate the session
// itself is gone, where retrying the query cannot help.
var fatalSignatures = []string{
	"use of closed network connection",
	"websocket: close",
	"cdp connection closed",
	"browser has been closed",
	"Session closed",
	"Target closed",
	"target closed",
}

// rodElement adapts *rod.Element to the Element interface.
type rodElement struct {
	el  *rod.Element
	drv *Rod
}

func (e *rodElement) Click(ctx context.Context) error {
	err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
	return e.drv.classify("click", err)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	s, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", e.drv.classify("text", err)
	}
	return s, nil
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", e.drv.classify("attribute "+name, err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *rodElement) Displayed(ctx context.Context) (bool, error) {
	v, err := e.el.Context(ctx).Visible()
	if err != nil {
		return false, e.drv.classify("visible", err)
	}
	return v, nil
}

func (e *rodElement) Enabled(ctx context.Context) (bool, error) {
	prop, err := e.el.Context(ctx).Property("disabled")
	if err != nil {
		return false, e.drv.classify("enabled", err)
	}
	return !prop.Bool(), nil
}

func (e *rodElement) ScrollIntoView(ctx context.Context) error {
	return e.drv.classify("scroll into view", e.el.Context(ctx).ScrollIntoView())
}

func (e *rodElement) FindMatches(ctx context.Context, loc Locator) ([]Element, error) {
	var (
		els rod.Elements
		err error
	)
	if loc.Strategy == StrategyXPath {
		els, err = e.el.Context(ctx).ElementsX(loc.Expr)
	} else {
		els, err = e.el.Context(ctx).Elements(loc.Expr)
	}
	if err != nil {
		return nil, e.drv.classify("find "+loc.String(), err)
	}
	out := make([]Element, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el, drv: e.drv}
	}
	return out, nil
}

// WaitStable gives the page a moment to settle after navigation-heavy
// actions. Best effort; errors are classified but typically ignored by
// callers.
func (r *Rod) WaitStable(ctx context.Context, d time.Duration) error {
	p, err := r.mainPage()
	if err != nil {
		return err
	}
	return r.classify("wait stable", p.Context(ctx).WaitStable(d))
}
