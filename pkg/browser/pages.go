package browser

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LoginFunc performs one login (or logout+login) transition for a page.
type LoginFunc func(ctx context.Context) error

// Topology is the application-topology collaborator: it knows which
// (location, identity) pairs require login and how to perform the
// transition. Consumed, never implemented, by this package.
type Topology interface {
	NeedsLogin(location, identity string) bool
	ResolveLogin(page *PageObject, identity string) LoginFunc
}

// PageObject is the identity-scoped representation of a loaded page,
// identified by its (location, identity) pair. It is created on first
// request and mutated in place — never replaced — when revisited,
// including across identity changes.
type PageObject struct {
	ID       string
	Location string
	Identity string
	Kind     string

	// WindowHandle is the last-known window/tab the page lived in.
	WindowHandle string

	// TimeoutOverride replaces the session default for waits scoped to
	// this page; zero means no override.
	TimeoutOverride time.Duration

	// PendingLogin is set when topology says this page needs a login
	// that has not happened yet.
	PendingLogin bool

	// Data is free-form payload owned by scenario code.
	Data map[string]any
}

// mergeData refreshes the free-form payload on a revisit.
func (p *PageObject) mergeData(extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	if p.Data == nil {
		p.Data = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		p.Data[k] = v
	}
}

// PageRegistry is the identity-keyed page cache. It is an
// access-ordered list, not a map: the last entry overall is the
// current page, and lookups scan from most recent to oldest. There is
// no time-based eviction; growth across distinct keys is bounded only
// by the caller's explicit Clear.
type PageRegistry struct {
	session *Session
	factory *PageFactory
	topo    Topology
	entries []*PageObject
}

func newPageRegistry(s *Session) *PageRegistry {
	return &PageRegistry{
		session: s,
		factory: NewPageFactory(),
	}
}

// Factory exposes the page-kind constructor registry so callers can
// register kinds at startup.
func (r *PageRegistry) Factory() *PageFactory { return r.factory }

// GetOrCreate returns the cached page for (location, identity),
// constructing it on a miss via the page-kind factory. A hit under a
// different identity is an identity change: exactly one login
// transition is performed via topology before the page is returned.
// The touched entry always moves to the most-recent slot.
func (r *PageRegistry) GetOrCreate(ctx context.Context, location, identity, kind string, extra map[string]any) (*PageObject, error) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		p := r.entries[i]
		if p.Location != location {
			continue
		}

		if p.Identity == identity {
			p.mergeData(extra)
			r.touch(i)
			return p, nil
		}

		// Identity change on a known location: run the login
		// transition, then mutate the entry in place.
		if err := r.login(ctx, p, identity); err != nil {
			return nil, err
		}
		p.Identity = identity
		p.PendingLogin = false
		p.mergeData(extra)
		r.touch(i)
		return p, nil
	}

	p, err := r.factory.New(kind, location, identity)
	if err != nil {
		return nil, err
	}
	p.ID = uuid.New().String()
	p.mergeData(extra)
	if r.topo != nil && r.topo.NeedsLogin(location, identity) {
		p.PendingLogin = true
	}
	r.entries = append(r.entries, p)
	r.session.logger.Debug("page object created",
		"location", location, "identity", identity, "kind", kind)
	return p, nil
}

// Current returns the most recently touched page, nil when empty.
func (r *PageRegistry) Current() *PageObject {
	if len(r.entries) == 0 {
		return nil
	}
	return r.entries[len(r.entries)-1]
}

// Len returns the number of cached pages.
func (r *PageRegistry) Len() int { return len(r.entries) }

// Clear empties the cache. Callers do this when closing extraneous
// windows or tabs; nothing else ever deletes entries.
func (r *PageRegistry) Clear() {
	r.entries = nil
}

// touch moves entry i to the most-recent slot: remove the old slot,
// append. Insertion order is the access order.
func (r *PageRegistry) touch(i int) {
	p := r.entries[i]
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	r.entries = append(r.entries, p)
}

func (r *PageRegistry) login(ctx context.Context, p *PageObject, identity string) error {
	if r.topo == nil {
		r.session.logger.Warn("identity change without topology collaborator",
			"location", p.Location, "from", p.Identity, "to", identity)
		return nil
	}
	fn := r.topo.ResolveLogin(p, identity)
	if fn == nil {
		return nil
	}
	start := time.Now()
	err := fn(ctx)
	r.session.observe("login", start, err, map[string]string{
		"location": p.Location,
		"identity": identity,
	})
	return err
}
