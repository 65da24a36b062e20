// Package strings normalizes the free-form string lists the lifecycle
// services assemble, such as underwriting conditions and renewal document
// requirements.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each entry, drops blanks and removes duplicates while
// preserving first-seen order. Condition lists built from several rules can
// name the same requirement more than once; callers present each one once.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}

// DedupeAndTrimLower is DedupeAndTrim with case folding, for lists whose
// entries come from operator input rather than fixed literals.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
