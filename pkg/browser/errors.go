package browser

import (
	"fmt"

	"github.com/nextlevelbuilder/holdfast/pkg/driver"
)

// MultipleFoundError reports that a lookup required a unique match but
// more than one visible element matched. Never retried: polling cannot
// resolve ambiguity.
type MultipleFoundError struct {
	Locator driver.Locator
	Count   int
}

func (e *MultipleFoundError) Error() string {
	return fmt.Sprintf("expected a single match for %s, found %d visible", e.Locator, e.Count)
}

// StructuralError marks a programming or configuration mistake, such as
// asking for an unregistered page kind. Always fatal, never retried.
type StructuralError struct {
	Msg string
}

func (e *StructuralError) Error() string { return "structural: " + e.Msg }

func structuralf(format string, args ...any) *StructuralError {
	return &StructuralError{Msg: fmt.Sprintf(format, args...)}
}
