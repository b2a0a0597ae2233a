package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/holdfast/pkg/driver"
)

// testSettings is a fast timing profile for unit tests.
func testSettings() Settings {
	return Settings{
		DefaultTimeout:      300 * time.Millisecond,
		OpenTimeout:         200 * time.Millisecond,
		ShortTimeout:        60 * time.Millisecond,
		CloseDialogTimeout:  150 * time.Millisecond,
		PollInterval:        5 * time.Millisecond,
		MaxRecoveryAttempts: 3,
		MaxScanDepth:        8,
		RecoverySleep:       time.Millisecond,
		LinkClickDelay:      0,
	}
}

// fakeElement is a scriptable DOM element.
type fakeElement struct {
	text    string
	attrs   map[string]string
	visible bool
	enabled bool

	clicks     int
	onClick    func(e *fakeElement) error
	clickFails int // transient failures before a click succeeds

	visibleErr error

	children map[string][]*fakeElement // descendant queries, by locator string
}

func newFakeElement() *fakeElement {
	return &fakeElement{visible: true, enabled: true, attrs: map[string]string{}}
}

func (e *fakeElement) Click(ctx context.Context) error {
	if e.clickFails > 0 {
		e.clickFails--
		return driver.Transient("click", errors.New("stale element reference"))
	}
	e.clicks++
	if e.onClick != nil {
		return e.onClick(e)
	}
	return nil
}

func (e *fakeElement) Text(ctx context.Context) (string, error) { return e.text, nil }

func (e *fakeElement) Attribute(ctx context.Context, name string) (string, error) {
	return e.attrs[name], nil
}

func (e *fakeElement) Displayed(ctx context.Context) (bool, error) {
	if e.visibleErr != nil {
		return false, e.visibleErr
	}
	return e.visible, nil
}

func (e *fakeElement) Enabled(ctx context.Context) (bool, error) { return e.enabled, nil }

func (e *fakeElement) ScrollIntoView(ctx context.Context) error { return nil }

func (e *fakeElement) FindMatches(ctx context.Context, loc driver.Locator) ([]driver.Element, error) {
	els := e.children[loc.String()]
	out := make([]driver.Element, len(els))
	for i, c := range els {
		out[i] = c
	}
	return out, nil
}

func (e *fakeElement) addChild(loc driver.Locator, children ...*fakeElement) {
	if e.children == nil {
		e.children = map[string][]*fakeElement{}
	}
	e.children[loc.String()] = append(e.children[loc.String()], children...)
}

// fakeDriver is a scripted in-memory Driver. Documents are keyed by
// frame key, then by locator string.
type fakeDriver struct {
	docs map[string]map[string][]*fakeElement

	// transientBefore injects N transient failures for a (frame,
	// locator) query before it succeeds.
	transientBefore map[string]int
	fatalErr        error

	active    driver.FrameContext
	switches  []string
	badFrames map[string]bool

	refreshes int
	onRefresh func()

	alertText string
	hasAlert  bool

	screenshot []byte
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		docs:            map[string]map[string][]*fakeElement{},
		transientBefore: map[string]int{},
		badFrames:       map[string]bool{},
	}
}

func queryKey(loc driver.Locator, frame driver.FrameContext) string {
	return frame.Key() + "|" + loc.String()
}

// place puts elements into a frame's document under loc.
func (d *fakeDriver) place(frame driver.FrameContext, loc driver.Locator, els ...*fakeElement) {
	doc := d.docs[frame.Key()]
	if doc == nil {
		doc = map[string][]*fakeElement{}
		d.docs[frame.Key()] = doc
	}
	doc[loc.String()] = els
}

func (d *fakeDriver) remove(frame driver.FrameContext, loc driver.Locator, el *fakeElement) {
	doc := d.docs[frame.Key()]
	els := doc[loc.String()]
	out := els[:0]
	for _, e := range els {
		if e != el {
			out = append(out, e)
		}
	}
	doc[loc.String()] = out
}

func (d *fakeDriver) FindMatches(ctx context.Context, loc driver.Locator, frame driver.FrameContext) ([]driver.Element, error) {
	if d.fatalErr != nil {
		return nil, driver.Fatal("find", d.fatalErr)
	}
	key := queryKey(loc, frame)
	if n := d.transientBefore[key]; n > 0 {
		d.transientBefore[key] = n - 1
		return nil, driver.Transient("find", fmt.Errorf("stale reference (%d left)", n-1))
	}
	els := d.docs[frame.Key()][loc.String()]
	out := make([]driver.Element, len(els))
	for i, e := range els {
		out[i] = e
	}
	return out, nil
}

func (d *fakeDriver) SwitchFrame(ctx context.Context, frame driver.FrameContext) error {
	if d.badFrames[frame.Key()] {
		return driver.Transient("switch frame", errors.New("frame detached"))
	}
	d.active = frame
	d.switches = append(d.switches, frame.Key())
	return nil
}

func (d *fakeDriver) ActiveFrame() driver.FrameContext { return d.active }

func (d *fakeDriver) Navigate(ctx context.Context, url string) error { return nil }

func (d *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	return "http://fake.test/", nil
}

func (d *fakeDriver) Refresh(ctx context.Context) error {
	d.refreshes++
	if d.onRefresh != nil {
		d.onRefresh()
	}
	return nil
}

func (d *fakeDriver) AcceptAlert(ctx context.Context) (string, bool, error) {
	if !d.hasAlert {
		return "", false, nil
	}
	d.hasAlert = false
	return d.alertText, true, nil
}

func (d *fakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	if d.screenshot == nil {
		return nil, driver.Fatal("screenshot", errors.New("no screenshot scripted"))
	}
	return d.screenshot, nil
}

func (d *fakeDriver) Close() error { return nil }

func newTestSession(d *fakeDriver, opts ...SessionOption) *Session {
	return NewSession(d, testSettings(), opts...)
}
