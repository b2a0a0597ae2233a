package config

import (
	"regexp"
	"strings"
)

const DefaultScenarioID = "scenario"

var (
	validIDRe    = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	leadingDash  = regexp.MustCompile(`^-+`)
	trailingDash = regexp.MustCompile(`-+$`)
)

// NormalizeScenarioID converts a user-provided scenario name into an
// identifier safe for artifact paths and trace attributes:
//   - Lowercase, max 64 chars
//   - Only [a-z0-9_-] allowed
//   - Invalid chars replaced with "-"
//   - Leading/trailing dashes stripped
//   - Empty result defaults to "scenario"
func NormalizeScenarioID(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return DefaultScenarioID
	}

	lower := strings.ToLower(trimmed)
	if validIDRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "-")
	result = leadingDash.ReplaceAllString(result, "")
	result = trailingDash.ReplaceAllString(result, "")

	if len(result) > 64 {
		result = result[:64]
	}

	if result == "" {
		return DefaultScenarioID
	}
	return result
}
