// Package mentions extracts @-referenced agent identifiers from free text.
package mentions

import "regexp"

var mentionPattern = regexp.MustCompile(`@([A-Za-z0-9_]+)`)

// Extract returns the set of agent identifiers referenced in text via the
// @identifier grammar. Duplicates collapse; order is not meaningful.
// Extracted identifiers are not validated against registered agents —
// a mention of an agent that doesn't exist is still recorded downstream, not an error.
func Extract(text string) map[string]struct{} {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	ids := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		ids[m[1]] = struct{}{}
	}
	return ids
}

// ExtractSlice is Extract with a deterministic, sorted-by-first-occurrence
// slice result, convenient for callers that need stable ordering in tests
// or API responses.
func ExtractSlice(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
