package browser

import (
	"context"
	"errors"

	"github.com/nextlevelbuilder/holdfast/pkg/driver"
)

// ErrReleased is returned by operations on a handle after Release.
var ErrReleased = errors.New("browser: element handle released")

// ElementHandle is a resilient reference to one found element: the
// locator and frame that produced it, the cached native reference, and
// the ordinal among its sibling matches. When the cached reference goes
// stale the handle re-resolves itself transparently; from the caller's
// perspective identity never changes.
type ElementHandle struct {
	session *Session
	locator driver.Locator
	frame   driver.FrameContext
	el      driver.Element
	ordinal int
	stale   bool
	done    bool
}

// Locator returns the locator that produced this handle.
func (h *ElementHandle) Locator() driver.Locator { return h.locator }

// Frame returns the frame context the handle was found in.
func (h *ElementHandle) Frame() driver.FrameContext { return h.frame }

// Ordinal returns the handle's position among its sibling matches.
func (h *ElementHandle) Ordinal() int { return h.ordinal }

// Release discards the handle. Further operations fail with ErrReleased.
func (h *ElementHandle) Release() {
	h.el = nil
	h.done = true
}

// Click clicks the element, re-resolving on staleness.
func (h *ElementHandle) Click(ctx context.Context) error {
	return h.withRecovery(ctx, "click", func(el driver.Element) error {
		return el.Click(ctx)
	})
}

// Text returns the element's rendered text.
func (h *ElementHandle) Text(ctx context.Context) (string, error) {
	var out string
	err := h.withRecovery(ctx, "text", func(el driver.Element) error {
		v, err := el.Text(ctx)
		out = v
		return err
	})
	return out, err
}

// Attribute returns the named attribute, empty when absent.
func (h *ElementHandle) Attribute(ctx context.Context, name string) (string, error) {
	var out string
	err := h.withRecovery(ctx, "attribute", func(el driver.Element) error {
		v, err := el.Attribute(ctx, name)
		out = v
		return err
	})
	return out, err
}

// Displayed reports driver-level visibility.
func (h *ElementHandle) Displayed(ctx context.Context) (bool, error) {
	var out bool
	err := h.withRecovery(ctx, "displayed", func(el driver.Element) error {
		v, err := el.Displayed(ctx)
		out = v
		return err
	})
	return out, err
}

// Enabled reports whether the element accepts interaction.
func (h *ElementHandle) Enabled(ctx context.Context) (bool, error) {
	var out bool
	err := h.withRecovery(ctx, "enabled", func(el driver.Element) error {
		v, err := el.Enabled(ctx)
		out = v
		return err
	})
	return out, err
}

// ScrollIntoView scrolls the element into the viewport.
func (h *ElementHandle) ScrollIntoView(ctx context.Context) error {
	return h.withRecovery(ctx, "scroll into view", func(el driver.Element) error {
		return el.ScrollIntoView(ctx)
	})
}

// withRecovery runs op against the cached native reference, retrying
// after a re-resolve when the driver reports a transient fault. The
// retry budget is the session's recovery cap; past it the original
// error is re-raised unchanged.
func (h *ElementHandle) withRecovery(ctx context.Context, name string, op func(driver.Element) error) error {
	if h.done {
		return ErrReleased
	}

	var firstErr error
	for attempt := 0; attempt <= h.session.cfg.MaxRecoveryAttempts; attempt++ {
		if h.stale || h.el == nil {
			if err := h.resolve(ctx); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				if !driver.IsTransient(err) {
					return err
				}
				h.session.sleep(ctx, h.session.cfg.RecoverySleep)
				continue
			}
		}

		err := op(h.el)
		if err == nil {
			return nil
		}
		if !driver.IsTransient(err) {
			return err
		}
		if firstErr == nil {
			firstErr = err
		}
		h.session.logger.Debug("transient fault, re-resolving element",
			"op", name, "locator", h.locator.String(), "attempt", attempt+1)
		h.stale = true
		h.session.sleep(ctx, h.session.cfg.RecoverySleep)
	}
	return firstErr
}

// resolve re-queries the locator in the handle's frame and re-caches
// the ordinal-th match.
func (h *ElementHandle) resolve(ctx context.Context) error {
	els, err := h.session.drv.FindMatches(ctx, h.locator, h.frame)
	if err != nil {
		return err
	}
	if h.ordinal >= len(els) {
		return driver.Transient("re-resolve",
			errors.New("element no longer present at ordinal "+h.locator.String()))
	}
	h.el = els[h.ordinal]
	h.stale = false
	return nil
}
