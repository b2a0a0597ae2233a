package browser

import (
	"context"
	"errors"
	"time"

	"github.com/nextlevelbuilder/holdfast/pkg/driver"
	"github.com/nextlevelbuilder/holdfast/pkg/wait"
)

// FindOptions control one resilient lookup.
type FindOptions struct {
	// Parent scopes the query to descendants of an existing handle.
	Parent *ElementHandle

	// Frame overrides the session's current frame for this lookup.
	Frame *driver.FrameContext

	// DisplayedOnly drops matches the driver reports as not visible.
	// An element that errors during the visibility check is treated as
	// not displayed, never as a lookup failure.
	DisplayedOnly bool

	// ExpectSingle raises MultipleFoundError on more than one visible
	// match. Without it, ambiguity is tolerated with a warning and the
	// first match wins.
	ExpectSingle bool

	// SearchFrames allows falling back to the frame scanner when the
	// direct lookup in the target frame finds nothing.
	SearchFrames bool

	// Fail selects TimeoutError on nothing-found; unset returns an
	// empty result silently.
	Fail bool

	// Timeout bounds the whole find; the session default when zero.
	Timeout time.Duration
}

// Find locates all matches for loc, surviving transient driver faults
// and, when allowed, frames the target moved into. The whole lookup is
// delegated to the wait engine: it polls until matches appear or the
// caller's budget runs out.
func (s *Session) Find(ctx context.Context, loc driver.Locator, opts FindOptions) ([]*ElementHandle, error) {
	start := time.Now()
	handles, err := s.find(ctx, loc, opts)
	s.observe("find", start, err, map[string]string{
		"locator": loc.String(),
		"frame":   s.current.Key(),
	})
	return handles, err
}

// FindOne is Find for callers that want one element. With ExpectSingle
// unset, surplus matches are tolerated: the first is returned and a
// warning logged.
func (s *Session) FindOne(ctx context.Context, loc driver.Locator, opts FindOptions) (*ElementHandle, error) {
	handles, err := s.Find(ctx, loc, opts)
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, nil
	}
	if len(handles) > 1 {
		s.logger.Warn("multiple matches, using the first",
			"locator", loc.String(), "count", len(handles))
	}
	return handles[0], nil
}

// match pairs a native element with its ordinal among the raw query
// results, so a handle re-resolves to the same sibling even when the
// visibility filter dropped earlier ones.
type match struct {
	el      driver.Element
	ordinal int
}

func asMatches(els []driver.Element) []match {
	out := make([]match, len(els))
	for i, el := range els {
		out[i] = match{el: el, ordinal: i}
	}
	return out
}

type findResult struct {
	matches []match
	frame   driver.FrameContext
}

func (s *Session) find(ctx context.Context, loc driver.Locator, opts FindOptions) ([]*ElementHandle, error) {
	frame := s.current
	if opts.Frame != nil {
		frame = *opts.Frame
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}

	res, found, err := wait.For(ctx, func() (findResult, bool, error) {
		return s.findAttempt(ctx, loc, frame, opts)
	}, wait.Options{
		Timeout:       timeout,
		Interval:      s.cfg.PollInterval,
		FailOnTimeout: opts.Fail,
		What:          loc.String(),
	})
	if err != nil {
		var te *wait.TimeoutError
		if errors.As(err, &te) {
			s.artifacts.captureFailure(ctx, s.drv, "find-timeout")
		}
		return nil, err
	}
	if !found {
		return nil, nil
	}

	handles := make([]*ElementHandle, len(res.matches))
	for i, m := range res.matches {
		handles[i] = &ElementHandle{
			session: s,
			locator: loc,
			frame:   res.frame,
			el:      m.el,
			ordinal: m.ordinal,
		}
	}
	return handles, nil
}

// findAttempt is one poll of the lookup: alert guard, recovery-wrapped
// query, fail-safe visibility filter, optional frame scan, uniqueness
// check. A returned error aborts the enclosing wait.
func (s *Session) findAttempt(ctx context.Context, loc driver.Locator, frame driver.FrameContext, opts FindOptions) (findResult, bool, error) {
	var zero findResult

	s.guardAlert(ctx)

	els, err := s.queryWithRecovery(ctx, loc, opts.Parent, frame)
	if err != nil {
		return zero, false, err
	}
	matches := asMatches(els)

	foundIn := frame
	if opts.DisplayedOnly {
		matches = s.filterDisplayed(ctx, matches)
	}

	if len(matches) == 0 && opts.SearchFrames && opts.Parent == nil {
		matches, foundIn, err = s.scanFrames(ctx, loc, frame)
		if err != nil {
			return zero, false, err
		}
	}

	if len(matches) == 0 {
		return zero, false, nil
	}
	if opts.ExpectSingle && len(matches) > 1 {
		visible := len(matches)
		if !opts.DisplayedOnly {
			visible = len(s.filterDisplayed(ctx, matches))
		}
		if visible > 1 {
			return zero, false, &MultipleFoundError{Locator: loc, Count: visible}
		}
	}
	return findResult{matches: matches, frame: foundIn}, true, nil
}

// queryWithRecovery issues the raw driver query, retrying the whole
// thing after a short sleep on transient faults up to the recovery cap.
// When the cap is exceeded, one full-page refresh is tried as a
// last-resort workaround; if that resolves the symptom the failure is
// downgraded to a warning, otherwise the original error is re-raised
// unchanged.
func (s *Session) queryWithRecovery(ctx context.Context, loc driver.Locator, parent *ElementHandle, frame driver.FrameContext) ([]driver.Element, error) {
	var firstErr error

	for attempt := 0; attempt <= s.cfg.MaxRecoveryAttempts; attempt++ {
		els, err := s.query(ctx, loc, parent, frame)
		if err == nil {
			return els, nil
		}
		if !driver.IsTransient(err) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
		s.logger.Debug("transient fault during query, retrying",
			"locator", loc.String(), "attempt", attempt+1, "error", err)
		if parent != nil {
			parent.stale = true
		}
		s.sleep(ctx, s.cfg.RecoverySleep)
	}

	// Last resort: a refresh clears most known-flaky staleness
	// signatures (document swapped mid-query, frame re-rendered).
	if s.cfg.RefreshOnFlaky && parent == nil {
		if err := s.drv.Refresh(ctx); err == nil {
			if els, err := s.query(ctx, loc, nil, frame); err == nil {
				s.logger.Warn("query recovered by page refresh", "locator", loc.String(), "cause", firstErr)
				return els, nil
			}
		}
	}
	return nil, firstErr
}

func (s *Session) query(ctx context.Context, loc driver.Locator, parent *ElementHandle, frame driver.FrameContext) ([]driver.Element, error) {
	if parent == nil {
		return s.drv.FindMatches(ctx, loc, frame)
	}
	if parent.stale || parent.el == nil {
		if err := parent.resolve(ctx); err != nil {
			return nil, err
		}
	}
	return parent.el.FindMatches(ctx, loc)
}

// filterDisplayed keeps matches the driver reports visible. Errors
// during the check exclude the element (fail-safe, not fail-stop).
func (s *Session) filterDisplayed(ctx context.Context, matches []match) []match {
	out := matches[:0:0]
	for _, m := range matches {
		visible, err := m.el.Displayed(ctx)
		if err != nil {
			s.logger.Debug("visibility check failed, excluding element", "error", err)
			continue
		}
		if visible {
			out = append(out, m)
		}
	}
	return out
}
