package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nextlevelbuilder/holdfast/pkg/driver"
	"github.com/nextlevelbuilder/holdfast/pkg/wait"
)

var triggerLoc = driver.CSS("#open-dialog")

// dialogFixture wires a trigger at top level whose click runs onClick.
func dialogFixture(onClick func(e *fakeElement) error) (*fakeDriver, *fakeElement) {
	d := newFakeDriver()
	trigger := newFakeElement()
	trigger.onClick = onClick
	d.place(driver.TopLevel(), triggerLoc, trigger)
	return d, trigger
}

func findTrigger(t *testing.T, s *Session) *ElementHandle {
	t.Helper()
	h, err := s.FindOne(context.Background(), triggerLoc, FindOptions{Fail: true})
	if err != nil {
		t.Fatalf("find trigger: %v", err)
	}
	return h
}

func TestOpenDialogHappyPath(t *testing.T) {
	opts := DefaultDialogOptions()
	root := newFakeElement()
	root.attrs["id"] = "confirm-box"

	var d *fakeDriver
	d, trigger := dialogFixture(func(*fakeElement) error {
		d.place(driver.TopLevel(), opts.Root, root)
		return nil
	})
	s := newTestSession(d)

	dw, err := s.OpenDialog(context.Background(), findTrigger(t, s), opts)
	if err != nil {
		t.Fatalf("OpenDialog: %v", err)
	}
	if dw.State() != DialogOpen {
		t.Errorf("state = %s, want open", dw.State())
	}
	if dw.rootKey != "id:confirm-box" {
		t.Errorf("rootKey = %q, want id:confirm-box", dw.rootKey)
	}
	if trigger.clicks != 1 {
		t.Errorf("trigger clicks = %d, want 1", trigger.clicks)
	}
	if s.OpenDialogWindow() != dw {
		t.Error("session does not track the dialog as canonical")
	}
}

func TestOpenDialogIgnoresPreexistingRoot(t *testing.T) {
	opts := DefaultDialogOptions()
	stale := newFakeElement()
	stale.attrs["id"] = "old-banner"
	fresh := newFakeElement()
	fresh.attrs["id"] = "confirm-box"

	var d *fakeDriver
	d, _ = dialogFixture(func(*fakeElement) error {
		d.place(driver.TopLevel(), opts.Root, stale, fresh)
		return nil
	})
	d.place(driver.TopLevel(), opts.Root, stale)
	s := newTestSession(d)

	dw, err := s.OpenDialog(context.Background(), findTrigger(t, s), opts)
	if err != nil {
		t.Fatalf("OpenDialog: %v", err)
	}
	if dw.rootKey != "id:confirm-box" {
		t.Errorf("rootKey = %q, want the fresh root, not the banner", dw.rootKey)
	}
}

func TestOpenDialogDuplicatesKeepMostRecent(t *testing.T) {
	opts := DefaultDialogOptions()
	first := newFakeElement()
	first.attrs["id"] = "dup-1"
	second := newFakeElement()
	second.attrs["id"] = "dup-2"

	var d *fakeDriver
	cancel := newFakeElement()
	cancel.onClick = func(*fakeElement) error {
		d.remove(driver.TopLevel(), opts.Root, first)
		return nil
	}
	first.addChild(opts.Cancel, cancel)

	d, _ = dialogFixture(func(*fakeElement) error {
		d.place(driver.TopLevel(), opts.Root, first, second)
		return nil
	})
	s := newTestSession(d)

	dw, err := s.OpenDialog(context.Background(), findTrigger(t, s), opts)
	if err != nil {
		t.Fatalf("OpenDialog: %v", err)
	}
	if dw.rootKey != "id:dup-2" {
		t.Errorf("rootKey = %q, want the most recent duplicate", dw.rootKey)
	}
	if dw.State() != DialogOpen {
		t.Errorf("state = %s, want open", dw.State())
	}
	if cancel.clicks != 1 {
		t.Errorf("earlier duplicate cancel clicks = %d, want 1", cancel.clicks)
	}
}

func TestOpenDialogReclicksThenTimesOut(t *testing.T) {
	opts := DefaultDialogOptions()
	d, trigger := dialogFixture(nil) // no root ever appears
	s := newTestSession(d)

	_, err := s.OpenDialog(context.Background(), findTrigger(t, s), opts)
	var te *wait.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	// The reported budget is the time actually spent: one short probe
	// window per attempt at minimum.
	minSpent := time.Duration(1+testSettings().MaxRecoveryAttempts) * testSettings().ShortTimeout
	if te.Timeout < minSpent {
		t.Errorf("reported budget %s, want at least %s", te.Timeout, minSpent)
	}
	want := 1 + testSettings().MaxRecoveryAttempts
	if trigger.clicks != want {
		t.Errorf("trigger clicks = %d, want %d (initial plus re-clicks)", trigger.clicks, want)
	}
	if s.OpenDialogWindow() != nil {
		t.Error("failed open left a tracked dialog behind")
	}
}

func TestOpenDialogReclickRecovers(t *testing.T) {
	opts := DefaultDialogOptions()
	root := newFakeElement()
	root.attrs["id"] = "slow-box"

	// The first click is swallowed; the second spawns the root.
	var d *fakeDriver
	d, trigger := dialogFixture(func(e *fakeElement) error {
		if e.clicks >= 2 {
			d.place(driver.TopLevel(), opts.Root, root)
		}
		return nil
	})
	s := newTestSession(d)

	dw, err := s.OpenDialog(context.Background(), findTrigger(t, s), opts)
	if err != nil {
		t.Fatalf("OpenDialog: %v", err)
	}
	if dw.State() != DialogOpen {
		t.Errorf("state = %s, want open", dw.State())
	}
	if trigger.clicks != 2 {
		t.Errorf("trigger clicks = %d, want 2", trigger.clicks)
	}
}

func TestOpenDialogConfirmHook(t *testing.T) {
	opts := DefaultDialogOptions()
	root := newFakeElement()
	root.attrs["id"] = "box"

	var d *fakeDriver
	hooked := false
	opts.ConfirmHook = func(ctx context.Context, s *Session) error {
		hooked = true
		return nil
	}
	d, _ = dialogFixture(func(*fakeElement) error {
		d.place(driver.TopLevel(), opts.Root, root)
		return nil
	})
	s := newTestSession(d)

	if _, err := s.OpenDialog(context.Background(), findTrigger(t, s), opts); err != nil {
		t.Fatalf("OpenDialog: %v", err)
	}
	if !hooked {
		t.Error("confirm hook did not run")
	}
}

// openForClose opens a dialog whose close controls are wired to remove
// the root after removeAfter clicks.
func openForClose(t *testing.T, removeAfter int, retry bool) (*Session, *DialogWindow, *fakeElement) {
	t.Helper()
	opts := DefaultDialogOptions()
	opts.RetryCloseClick = retry
	root := newFakeElement()
	root.attrs["id"] = "box"

	var d *fakeDriver
	closeBtn := newFakeElement()
	closeBtn.onClick = func(e *fakeElement) error {
		if e.clicks >= removeAfter {
			d.remove(driver.TopLevel(), opts.Root, root)
		}
		return nil
	}
	root.addChild(opts.Cancel, closeBtn)
	root.addChild(opts.Validate, closeBtn)

	d, _ = dialogFixture(func(*fakeElement) error {
		d.place(driver.TopLevel(), opts.Root, root)
		return nil
	})
	s := newTestSession(d)
	dw, err := s.OpenDialog(context.Background(), findTrigger(t, s), opts)
	if err != nil {
		t.Fatalf("OpenDialog: %v", err)
	}
	return s, dw, closeBtn
}

func TestCloseByValidate(t *testing.T) {
	s, dw, btn := openForClose(t, 1, true)

	if err := dw.Close(context.Background(), true); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if dw.State() != DialogClosed {
		t.Errorf("state = %s, want closed", dw.State())
	}
	if btn.clicks != 1 {
		t.Errorf("close clicks = %d, want 1", btn.clicks)
	}
	if s.OpenDialogWindow() != nil {
		t.Error("closed dialog still tracked as canonical")
	}
	if !s.CurrentFrame().IsTop() {
		t.Errorf("current frame = %s, want default content", s.CurrentFrame())
	}
}

func TestCloseRetriesClickOnce(t *testing.T) {
	// The dialog ignores the first click; the retry lands.
	_, dw, btn := openForClose(t, 2, true)

	if err := dw.Close(context.Background(), false); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if dw.State() != DialogClosed {
		t.Errorf("state = %s, want closed", dw.State())
	}
	if btn.clicks != 2 {
		t.Errorf("close clicks = %d, want 2", btn.clicks)
	}
}

func TestCloseWithoutRetryTimesOut(t *testing.T) {
	_, dw, btn := openForClose(t, 2, false)

	err := dw.Close(context.Background(), false)
	var te *wait.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if btn.clicks != 1 {
		t.Errorf("close clicks = %d, want 1 (retry disabled)", btn.clicks)
	}
	if dw.State() != DialogOpen {
		t.Errorf("state = %s, want open after failed close", dw.State())
	}
}

func TestCloseRestoresPreOpenFrame(t *testing.T) {
	opts := DefaultDialogOptions()
	root := newFakeElement()
	root.attrs["id"] = "box"

	var d *fakeDriver
	closeBtn := newFakeElement()
	closeBtn.onClick = func(*fakeElement) error {
		d.remove(driver.TopLevel(), opts.Root, root)
		return nil
	}
	root.addChild(opts.Cancel, closeBtn)

	d, _ = dialogFixture(func(*fakeElement) error {
		d.place(driver.TopLevel(), opts.Root, root)
		return nil
	})
	inner := driver.TopLevel().ChildByIndex(0)
	d.place(driver.TopLevel(), frameElements, newFakeElement())
	s := newTestSession(d)

	// The caller was working inside a frame before the dialog.
	if err := s.switchFrame(context.Background(), inner); err != nil {
		t.Fatalf("switch frame: %v", err)
	}
	trigger, err := s.FindOne(context.Background(), triggerLoc, FindOptions{
		Frame: func() *driver.FrameContext { f := driver.TopLevel(); return &f }(),
		Fail:  true,
	})
	if err != nil {
		t.Fatalf("find trigger: %v", err)
	}

	dw, err := s.OpenDialog(context.Background(), trigger, opts)
	if err != nil {
		t.Fatalf("OpenDialog: %v", err)
	}
	if err := dw.Close(context.Background(), false); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !s.CurrentFrame().Equal(inner) {
		t.Errorf("current frame = %s, want the pre-open frame %s", s.CurrentFrame(), inner)
	}
}

func TestCloseOnNonOpenDialog(t *testing.T) {
	_, dw, _ := openForClose(t, 1, true)
	if err := dw.Close(context.Background(), false); err != nil {
		t.Fatalf("first Close: %v", err)
	}

	err := dw.Close(context.Background(), false)
	var se *StructuralError
	if !errors.As(err, &se) {
		t.Fatalf("expected StructuralError, got %v", err)
	}
}

func TestCancelAllClosesTrackedDialog(t *testing.T) {
	s, dw, _ := openForClose(t, 1, true)

	s.CancelAll(context.Background(), DefaultDialogOptions())
	if dw.State() != DialogClosed {
		t.Errorf("state = %s, want closed after sweep", dw.State())
	}
	if s.OpenDialogWindow() != nil {
		t.Error("sweep left a tracked dialog")
	}
}

func TestCancelAllSweep(t *testing.T) {
	opts := DefaultDialogOptions()
	d := newFakeDriver()
	top := driver.TopLevel()

	var roots []*fakeElement
	var cancels []*fakeElement
	for i := 0; i < 2; i++ {
		root := newFakeElement()
		cancel := newFakeElement()
		r := root
		cancel.onClick = func(*fakeElement) error {
			d.remove(top, opts.Root, r)
			return nil
		}
		root.addChild(opts.Cancel, cancel)
		roots = append(roots, root)
		cancels = append(cancels, cancel)
	}
	d.place(top, opts.Root, roots...)
	s := newTestSession(d)

	s.CancelAll(context.Background(), opts)
	for i, c := range cancels {
		if c.clicks != 1 {
			t.Errorf("cancel %d clicks = %d, want 1", i, c.clicks)
		}
	}
	if s.OpenDialogWindow() != nil {
		t.Error("sweep left a tracked dialog")
	}
}
