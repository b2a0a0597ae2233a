// Package browser is the resilience layer between scenario code and a
// browser automation driver. It keeps element lookup, frame traversal,
// page identity and dialog lifecycles working through the flakiness of
// a live browser: stale references, frames appearing and disappearing,
// unexpected alerts, and races between an action and the DOM mutation
// it triggers.
package browser

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/holdfast/pkg/driver"
)

// Observer receives one record per completed resilience-layer step.
// Implementations must not block; the session calls it inline.
type Observer interface {
	Step(name string, start time.Time, err error, attrs map[string]string)
}

// Session owns exactly one driver session on behalf of exactly one
// logical test actor. Frame selection is a global property of that
// session; every component that moves it must save and restore the
// prior FrameContext around its operation. Session methods are not
// safe for concurrent use, by design.
type Session struct {
	ID string

	drv      driver.Driver
	cfg      Settings
	logger   *slog.Logger
	observer Observer

	current driver.FrameContext // session's selected frame
	pages   *PageRegistry
	open    *DialogWindow // canonical Open dialog, nil when none

	artifacts *artifacts
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets a custom logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithObserver attaches a step observer.
func WithObserver(o Observer) SessionOption {
	return func(s *Session) { s.observer = o }
}

// WithTopology sets the application-topology collaborator consulted
// for login decisions.
func WithTopology(t Topology) SessionOption {
	return func(s *Session) { s.pages.topo = t }
}

// NewSession wraps an already-started driver.
func NewSession(drv driver.Driver, cfg Settings, opts ...SessionOption) *Session {
	s := &Session{
		ID:      uuid.New().String(),
		drv:     drv,
		cfg:     cfg.Normalize(),
		logger:  slog.Default(),
		current: driver.TopLevel(),
	}
	s.pages = newPageRegistry(s)
	for _, o := range opts {
		o(s)
	}
	s.artifacts = newArtifacts(s.cfg.ArtifactsDir, s.logger)
	s.logger = s.logger.With("session", s.ID)
	return s
}

// Driver exposes the underlying adapter for pass-through page actions.
func (s *Session) Driver() driver.Driver { return s.drv }

// Settings returns the session's timing profile.
func (s *Session) Settings() Settings { return s.cfg }

// Pages returns the page object registry for this session.
func (s *Session) Pages() *PageRegistry { return s.pages }

// CurrentFrame returns the session's selected frame.
func (s *Session) CurrentFrame() driver.FrameContext { return s.current }

// Navigate loads url and resets frame selection to default content.
func (s *Session) Navigate(ctx context.Context, url string) error {
	start := time.Now()
	err := s.drv.Navigate(ctx, url)
	if err == nil {
		s.current = driver.TopLevel()
	}
	s.observe("navigate", start, err, map[string]string{"url": url})
	return err
}

// switchFrame moves both the session's view of the current frame and
// the driver's actual selection.
func (s *Session) switchFrame(ctx context.Context, fc driver.FrameContext) error {
	if err := s.drv.SwitchFrame(ctx, fc); err != nil {
		return err
	}
	s.current = fc
	return nil
}

// withFrameRestored runs fn and puts the frame selection back where it
// was on every exit path. If the prior frame cannot be re-selected
// (gone, detached), selection falls back to default content rather
// than being left dangling.
func (s *Session) withFrameRestored(ctx context.Context, fn func() error) error {
	saved := s.current
	defer func() {
		if err := s.switchFrame(ctx, saved); err != nil {
			s.logger.Warn("prior frame no longer selectable, falling back to default content",
				"frame", saved.Key(), "error", err)
			if err := s.switchFrame(ctx, driver.TopLevel()); err != nil {
				s.logger.Warn("default content re-selection failed", "error", err)
			}
		}
	}()
	return fn()
}

// guardAlert accepts an unexpected JS alert so it cannot wedge the
// session. The alert text is logged, never surfaced as an error.
func (s *Session) guardAlert(ctx context.Context) {
	text, accepted, err := s.drv.AcceptAlert(ctx)
	if err != nil {
		s.logger.Warn("alert guard failed", "error", err)
		return
	}
	if accepted {
		s.logger.Warn("accepted unexpected alert", "text", text)
	}
}

func (s *Session) observe(name string, start time.Time, err error, attrs map[string]string) {
	if s.observer == nil {
		return
	}
	s.observer.Step(name, start, err, attrs)
}

// sleep pauses cooperatively, honoring ctx.
func (s *Session) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
