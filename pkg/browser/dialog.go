package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/holdfast/pkg/driver"
	"github.com/nextlevelbuilder/holdfast/pkg/wait"
)

// DialogState is the lifecycle position of a DialogWindow.
type DialogState int

const (
	DialogClosed DialogState = iota
	DialogOpening
	DialogOpen
	DialogClosing
)

func (s DialogState) String() string {
	switch s {
	case DialogOpening:
		return "opening"
	case DialogOpen:
		return "open"
	case DialogClosing:
		return "closing"
	default:
		return "closed"
	}
}

// DialogOptions configure how dialogs are recognized and closed.
type DialogOptions struct {
	Root     driver.Locator // dialog-root locator
	Cancel   driver.Locator // cancel control within a root
	Validate driver.Locator // validate/confirm control within a root

	// ConfirmHook runs right after the trigger click, for products
	// that interpose their own confirmation popup.
	ConfirmHook func(ctx context.Context, s *Session) error

	// RetryCloseClick re-issues the close click exactly once when the
	// dialog ignores the first one before the timeout propagates.
	RetryCloseClick bool
}

// DefaultDialogOptions recognize the common dialog markup and retry
// the close click once.
func DefaultDialogOptions() DialogOptions {
	return DialogOptions{
		Root:            driver.CSS("dialog[open], [role=\"dialog\"], .modal"),
		Cancel:          driver.CSS("[data-dismiss], .cancel, .close"),
		Validate:        driver.CSS("[type=\"submit\"], .confirm, .ok"),
		RetryCloseClick: true,
	}
}

func (o DialogOptions) normalized() DialogOptions {
	def := DefaultDialogOptions()
	if o.Root.IsZero() {
		o.Root = def.Root
	}
	if o.Cancel.IsZero() {
		o.Cancel = def.Cancel
	}
	if o.Validate.IsZero() {
		o.Validate = def.Validate
	}
	return o
}

// DialogWindow is a tracked transient overlay. At most one is
// canonically Open per session; when several appear at once, all but
// the most recently created are force-closed.
type DialogWindow struct {
	ID      string
	session *Session
	opts    DialogOptions

	Root    *ElementHandle // dialog root
	Trigger *ElementHandle // element whose click opened it

	rootKey    string
	openedFrom driver.FrameContext // frame selected before Open
	state      DialogState
}

// State returns the dialog's lifecycle position.
func (d *DialogWindow) State() DialogState { return d.state }

// OpenDialog clicks trigger and tracks the dialog it opens: it records
// which dialog roots were already visible, aligns the frame with the
// trigger, waits for the trigger to be enabled, scrolls it into view
// if needed, clicks, and polls for a root that was not there before.
// No new root after the re-click budget is a TimeoutError.
func (s *Session) OpenDialog(ctx context.Context, trigger *ElementHandle, opts DialogOptions) (*DialogWindow, error) {
	start := time.Now()
	d, err := s.openDialog(ctx, trigger, opts.normalized())
	s.observe("dialog.open", start, err, nil)
	return d, err
}

func (s *Session) openDialog(ctx context.Context, trigger *ElementHandle, opts DialogOptions) (*DialogWindow, error) {
	d := &DialogWindow{
		ID:         uuid.New().String(),
		session:    s,
		opts:       opts,
		Trigger:    trigger,
		openedFrom: s.current,
		state:      DialogOpening,
	}

	preexisting, err := s.visibleRootKeys(ctx, opts.Root)
	if err != nil {
		return nil, err
	}

	if err := s.switchFrame(ctx, trigger.Frame()); err != nil {
		return nil, err
	}

	if err := s.waitTriggerReady(ctx, trigger); err != nil {
		return nil, err
	}

	if err := s.clickTrigger(ctx, trigger, opts); err != nil {
		return nil, err
	}

	root, key, err := s.awaitNewRoot(ctx, trigger, opts, preexisting)
	if err != nil {
		s.artifacts.captureFailure(ctx, s.drv, "dialog-open")
		return nil, err
	}

	d.Root = root
	d.rootKey = key
	d.state = DialogOpen
	s.open = d
	s.logger.Debug("dialog open", "dialog", d.ID, "root", key)
	return d, nil
}

func (s *Session) waitTriggerReady(ctx context.Context, trigger *ElementHandle) error {
	_, err := wait.Until(ctx, func() (bool, error) {
		return trigger.Enabled(ctx)
	}, wait.Options{
		Timeout:       s.cfg.OpenTimeout,
		Interval:      s.cfg.PollInterval,
		FailOnTimeout: true,
		What:          "trigger enabled " + trigger.Locator().String(),
	})
	if err != nil {
		return err
	}

	displayed, err := trigger.Displayed(ctx)
	if err != nil {
		return err
	}
	if !displayed {
		if err := trigger.ScrollIntoView(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) clickTrigger(ctx context.Context, trigger *ElementHandle, opts DialogOptions) error {
	if err := trigger.Click(ctx); err != nil {
		return err
	}
	s.sleep(ctx, s.cfg.LinkClickDelay)
	if opts.ConfirmHook != nil {
		if err := opts.ConfirmHook(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

// awaitNewRoot polls for dialog roots absent from the pre-open set,
// re-clicking the trigger between attempts. Several new roots at once
// keep the most recently created — DOM order is a heuristic tie-break,
// not a guarantee — and the rest are force-closed.
func (s *Session) awaitNewRoot(ctx context.Context, trigger *ElementHandle, opts DialogOptions, preexisting map[string]bool) (*ElementHandle, string, error) {
	start := time.Now()
	for attempt := 0; attempt <= s.cfg.MaxRecoveryAttempts; attempt++ {
		if attempt > 0 {
			s.logger.Debug("no dialog appeared, re-clicking trigger", "attempt", attempt)
			if err := trigger.Click(ctx); err != nil {
				return nil, "", err
			}
			s.sleep(ctx, s.cfg.RecoverySleep)
		}

		fresh, err := s.newRoots(ctx, opts.Root, preexisting, s.cfg.ShortTimeout)
		if err != nil {
			return nil, "", err
		}
		if len(fresh) == 0 {
			continue
		}

		keep := fresh[len(fresh)-1]
		for _, extra := range fresh[:len(fresh)-1] {
			s.logger.Warn("duplicate dialog force-closed", "root", extra.key)
			s.closeRootBestEffort(ctx, extra.handle, opts)
		}
		return keep.handle, keep.key, nil
	}

	// Report the budget actually spent: every attempt waited out the
	// short probe window, plus re-click sleeps.
	return nil, "", &wait.TimeoutError{
		What:    "failing to open the dialog",
		Timeout: time.Since(start),
	}
}

type keyedRoot struct {
	handle *ElementHandle
	key    string
}

// newRoots returns currently visible dialog roots whose identity was
// not in the pre-open set, oldest first.
func (s *Session) newRoots(ctx context.Context, rootLoc driver.Locator, preexisting map[string]bool, timeout time.Duration) ([]keyedRoot, error) {
	var fresh []keyedRoot
	_, err := wait.Until(ctx, func() (bool, error) {
		handles, err := s.Find(ctx, rootLoc, FindOptions{
			DisplayedOnly: true,
			Timeout:       s.cfg.PollInterval, // single pass per poll
		})
		if err != nil {
			return false, err
		}
		fresh = fresh[:0]
		for _, h := range handles {
			key := s.rootKey(ctx, h)
			if !preexisting[key] {
				fresh = append(fresh, keyedRoot{handle: h, key: key})
			}
		}
		return len(fresh) > 0, nil
	}, wait.Options{
		Timeout:  timeout,
		Interval: s.cfg.PollInterval,
		What:     "new dialog root " + rootLoc.String(),
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// visibleRootKeys snapshots the identities of dialog roots already on
// screen, so pre-existing overlays are never mistaken for the one the
// trigger opens.
func (s *Session) visibleRootKeys(ctx context.Context, rootLoc driver.Locator) (map[string]bool, error) {
	handles, err := s.Find(ctx, rootLoc, FindOptions{
		DisplayedOnly: true,
		Timeout:       s.cfg.PollInterval,
	})
	if err != nil {
		return nil, err
	}
	keys := make(map[string]bool, len(handles))
	for _, h := range handles {
		keys[s.rootKey(ctx, h)] = true
	}
	return keys, nil
}

// rootKey derives a stable-enough identity for a dialog root: its id,
// falling back to aria-label, falling back to DOM ordinal.
func (s *Session) rootKey(ctx context.Context, h *ElementHandle) string {
	if id, err := h.Attribute(ctx, "id"); err == nil && id != "" {
		return "id:" + id
	}
	if label, err := h.Attribute(ctx, "aria-label"); err == nil && label != "" {
		return "label:" + label
	}
	return fmt.Sprintf("ordinal:%d", h.Ordinal())
}

// closeRootBestEffort clicks the cancel control inside root, ignoring
// every failure.
func (s *Session) closeRootBestEffort(ctx context.Context, root *ElementHandle, opts DialogOptions) {
	cancel, err := s.FindOne(ctx, opts.Cancel, FindOptions{
		Parent:        root,
		DisplayedOnly: true,
		Timeout:       s.cfg.ShortTimeout,
	})
	if err != nil || cancel == nil {
		s.logger.Debug("no cancel control found on dialog root", "error", err)
		return
	}
	if err := cancel.Click(ctx); err != nil {
		s.logger.Debug("best-effort dialog close failed", "error", err)
	}
}

// Close dismisses the dialog: validate=true clicks the validate
// control, otherwise cancel, then waits for the root to disappear
// within the close budget. The click is retried exactly once when
// RetryCloseClick is set and the dialog ignored the first one. On
// success the frame selected before Open is restored, or default
// content when that frame is no longer available.
func (d *DialogWindow) Close(ctx context.Context, validate bool) error {
	start := time.Now()
	err := d.close(ctx, validate)
	d.session.observe("dialog.close", start, err, map[string]string{"validate": fmt.Sprint(validate)})
	return err
}

func (d *DialogWindow) close(ctx context.Context, validate bool) error {
	if d.state != DialogOpen {
		return structuralf("close on dialog in state %s", d.state)
	}
	s := d.session
	d.state = DialogClosing

	control := d.opts.Cancel
	if validate {
		control = d.opts.Validate
	}

	if err := d.clickClose(ctx, control); err != nil {
		d.state = DialogOpen
		return err
	}

	gone, err := d.waitGone(ctx)
	if err != nil {
		d.state = DialogOpen
		return err
	}
	if !gone && d.opts.RetryCloseClick {
		s.logger.Warn("dialog ignored close click, retrying once", "dialog", d.ID)
		if err := d.clickClose(ctx, control); err != nil {
			d.state = DialogOpen
			return err
		}
		gone, err = d.waitGone(ctx)
		if err != nil {
			d.state = DialogOpen
			return err
		}
	}
	if !gone {
		d.state = DialogOpen
		s.artifacts.captureFailure(ctx, s.drv, "dialog-close")
		return &wait.TimeoutError{
			What:    "dialog root to disappear",
			Timeout: s.cfg.CloseDialogTimeout,
		}
	}

	d.state = DialogClosed
	if s.open == d {
		s.open = nil
	}
	d.Root.Release()

	// Restore where the caller was before Open; fall back to default
	// content when that frame went away with the dialog.
	if err := s.switchFrame(ctx, d.openedFrom); err != nil {
		s.logger.Warn("pre-open frame no longer selectable, selecting default content",
			"frame", d.openedFrom.Key(), "error", err)
		if err := s.switchFrame(ctx, driver.TopLevel()); err != nil {
			return err
		}
	}
	return nil
}

func (d *DialogWindow) clickClose(ctx context.Context, control driver.Locator) error {
	s := d.session
	btn, err := s.FindOne(ctx, control, FindOptions{
		Parent:        d.Root,
		DisplayedOnly: true,
		Fail:          true,
		Timeout:       s.cfg.ShortTimeout,
	})
	if err != nil {
		return err
	}
	return btn.Click(ctx)
}

// waitGone waits out the close budget for the root to vanish. A false
// return without error means the budget expired with the dialog still
// on screen.
func (d *DialogWindow) waitGone(ctx context.Context) (bool, error) {
	s := d.session
	return wait.Until(ctx, func() (bool, error) {
		keys, err := s.visibleRootKeys(ctx, d.opts.Root)
		if err != nil {
			return false, err
		}
		return !keys[d.rootKey], nil
	}, wait.Options{
		Timeout:  s.cfg.CloseDialogTimeout,
		Interval: s.cfg.PollInterval,
		What:     "dialog root to disappear",
	})
}

// CancelAll is a best-effort sweep over every visible dialog root:
// each one's cancel control is clicked and individual failures are
// ignored.
func (s *Session) CancelAll(ctx context.Context, opts DialogOptions) {
	opts = opts.normalized()
	handles, err := s.Find(ctx, opts.Root, FindOptions{
		DisplayedOnly: true,
		Timeout:       s.cfg.ShortTimeout,
	})
	if err != nil {
		s.logger.Debug("cancel-all sweep found nothing", "error", err)
		return
	}
	for _, h := range handles {
		s.closeRootBestEffort(ctx, h, opts)
	}
	if s.open != nil {
		s.open.state = DialogClosed
		s.open = nil
	}
}

// OpenDialogWindow returns the session's canonical Open dialog, nil
// when none is tracked.
func (s *Session) OpenDialogWindow() *DialogWindow { return s.open }
