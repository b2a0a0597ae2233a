// Package driver defines the boundary between the resilience core and a
// concrete browser automation backend. The core speaks only in terms of
// Locator, FrameContext, the Driver/Element interfaces and the Kind
// error classification; backend-specific types never cross this line.
package driver

import (
	"context"
	"fmt"
	"strings"
)

// Strategy selects how a Locator expression is interpreted.
type Strategy string

const (
	StrategyCSS   Strategy = "css"
	StrategyXPath Strategy = "xpath"
)

// Locator is an immutable declarative element-finding strategy.
// Locators are plain values and compare with ==.
type Locator struct {
	Strategy Strategy
	Expr     string
}

// CSS builds a CSS selector locator.
func CSS(expr string) Locator { return Locator{Strategy: StrategyCSS, Expr: expr} }

// XPath builds an XPath locator.
func XPath(expr string) Locator { return Locator{Strategy: StrategyXPath, Expr: expr} }

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool { return l.Expr == "" }

func (l Locator) String() string {
	if l.IsZero() {
		return "<none>"
	}
	return fmt.Sprintf("%s=%s", l.Strategy, l.Expr)
}

// FrameRef identifies one frame hop: by ordinal index among sibling
// frame elements, by frame name/id, or by the locator of the owning
// frame element. Exactly one selector is meaningful per hop.
type FrameRef struct {
	Index int     // ordinal among siblings; meaningful when Name=="" and Owner is zero
	Name  string  // frame name or id attribute
	Owner Locator // locator of the owning <iframe>/<frame> element
}

func (r FrameRef) String() string {
	switch {
	case r.Name != "":
		return "name:" + r.Name
	case !r.Owner.IsZero():
		return "owner:" + r.Owner.String()
	default:
		return fmt.Sprintf("index:%d", r.Index)
	}
}

// FrameContext identifies a (possibly nested) document frame as the hop
// path from the top-level document. The zero FrameContext is the
// top-level document itself, so every context resolves to the root via
// a finite chain by construction.
type FrameContext struct {
	path []FrameRef
}

// TopLevel returns the default-content context.
func TopLevel() FrameContext { return FrameContext{} }

// IsTop reports whether fc is the top-level document.
func (fc FrameContext) IsTop() bool { return len(fc.path) == 0 }

// Depth returns the nesting depth; zero for the top-level document.
func (fc FrameContext) Depth() int { return len(fc.path) }

// Parent returns the enclosing context; the top-level context is its
// own parent.
func (fc FrameContext) Parent() FrameContext {
	if fc.IsTop() {
		return fc
	}
	return FrameContext{path: fc.path[:len(fc.path)-1]}
}

// Path returns a copy of the hop chain from the root down.
func (fc FrameContext) Path() []FrameRef {
	out := make([]FrameRef, len(fc.path))
	copy(out, fc.path)
	return out
}

// ChildByIndex descends into the i-th frame element of fc.
func (fc FrameContext) ChildByIndex(i int) FrameContext {
	return fc.child(FrameRef{Index: i})
}

// ChildByName descends into the frame named name inside fc.
func (fc FrameContext) ChildByName(name string) FrameContext {
	return fc.child(FrameRef{Name: name})
}

// ChildByOwner descends into the frame whose owning element matches loc.
func (fc FrameContext) ChildByOwner(loc Locator) FrameContext {
	return fc.child(FrameRef{Owner: loc})
}

func (fc FrameContext) child(ref FrameRef) FrameContext {
	path := make([]FrameRef, len(fc.path)+1)
	copy(path, fc.path)
	path[len(fc.path)] = ref
	return FrameContext{path: path}
}

// Equal reports whether two contexts name the same frame path.
func (fc FrameContext) Equal(other FrameContext) bool {
	if len(fc.path) != len(other.path) {
		return false
	}
	for i := range fc.path {
		if fc.path[i] != other.path[i] {
			return false
		}
	}
	return true
}

// Key returns a stable string form usable as a cache key.
func (fc FrameContext) Key() string {
	if fc.IsTop() {
		return "top"
	}
	parts := make([]string, len(fc.path))
	for i, r := range fc.path {
		parts[i] = r.String()
	}
	return strings.Join(parts, "/")
}

func (fc FrameContext) String() string { return fc.Key() }

// Element is a native handle to one DOM element. Operations may fail
// with a classified *Error; callers decide whether to retry based on
// the kind, never on backend-specific types.
type Element interface {
	Click(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Displayed(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	ScrollIntoView(ctx context.Context) error

	// FindMatches queries descendants of this element.
	FindMatches(ctx context.Context, loc Locator) ([]Element, error)
}

// Driver is the browser automation backend consumed by the core.
// Frame selection is a global property of the one underlying session;
// components that change it are responsible for save/restore.
type Driver interface {
	// FindMatches queries the document of frame for loc. A miss is a
	// nil slice with nil error; errors are reserved for driver faults.
	FindMatches(ctx context.Context, loc Locator, frame FrameContext) ([]Element, error)

	// SwitchFrame makes frame the session's active frame. The zero
	// FrameContext selects default content.
	SwitchFrame(ctx context.Context, frame FrameContext) error

	// ActiveFrame returns the session's currently selected frame.
	ActiveFrame() FrameContext

	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error

	// AcceptAlert accepts a pending JS dialog if one is open, returning
	// its message text and whether anything was accepted.
	AcceptAlert(ctx context.Context) (text string, accepted bool, err error)

	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}
