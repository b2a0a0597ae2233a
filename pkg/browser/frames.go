package browser

import (
	"context"

	"github.com/nextlevelbuilder/holdfast/pkg/driver"
)

// frameElements matches both kinds of frame-owning elements.
var frameElements = driver.CSS("iframe, frame")

// scanFrames locates loc somewhere in the frame tree reachable from
// base when the direct lookup came up empty. Two passes: a census of
// the tree level by level, then a breadth-first sweep that re-issues
// the displayed-only query per frame, shallow levels first, so a
// shallow target never costs a deep traversal.
//
// On the first hit the matched frame becomes the session's current
// frame — deliberate mutation of shared session state. When nothing
// matches anywhere, the session is left with no frame selected.
func (s *Session) scanFrames(ctx context.Context, loc driver.Locator, base driver.FrameContext) ([]match, driver.FrameContext, error) {
	levels := s.frameCensus(ctx, base)

	for depth := 1; depth < len(levels); depth++ {
		for _, fc := range levels[depth] {
			if err := s.switchFrame(ctx, fc); err != nil {
				s.logger.Debug("frame not selectable during scan", "frame", fc.Key(), "error", err)
				continue
			}
			els, err := s.drv.FindMatches(ctx, loc, fc)
			if err != nil {
				if driver.IsTransient(err) {
					continue
				}
				return nil, base, err
			}
			matches := s.filterDisplayed(ctx, asMatches(els))
			if len(matches) > 0 {
				s.logger.Debug("located in nested frame", "locator", loc.String(), "frame", fc.Key())
				return matches, fc, nil
			}
		}
	}

	// Nothing anywhere: leave default content selected.
	if err := s.switchFrame(ctx, driver.TopLevel()); err != nil {
		s.logger.Warn("default content re-selection failed after scan", "error", err)
	}
	return nil, driver.TopLevel(), nil
}

// frameCensus builds the per-level list of frame contexts reachable
// from base: level 0 is base itself, level n+1 the children of every
// level-n frame in index order, down to the configured depth bound.
// Branches that fail to enumerate are counted as empty rather than
// failing the census.
func (s *Session) frameCensus(ctx context.Context, base driver.FrameContext) [][]driver.FrameContext {
	levels := [][]driver.FrameContext{{base}}

	for depth := 0; depth < s.cfg.MaxScanDepth; depth++ {
		var next []driver.FrameContext
		for _, fc := range levels[depth] {
			els, err := s.drv.FindMatches(ctx, frameElements, fc)
			if err != nil {
				s.logger.Debug("frame census branch failed", "frame", fc.Key(), "error", err)
				continue
			}
			for i := range els {
				next = append(next, fc.ChildByIndex(i))
			}
		}
		if len(next) == 0 {
			break
		}
		levels = append(levels, next)
	}
	return levels
}
