// Package privacy redacts personal data from values bound for a model.
package privacy

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Placeholder replaces every redacted match.
const Placeholder = "[REDACTED]"

// Order matters: SSNs and card numbers are taken before the looser phone
// pattern can claim their digits.
var patterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
	regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`),
	regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
	regexp.MustCompile(`(?:\+?\d{1,2}[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
}

// RedactString replaces SSNs, 16-digit numbers, email addresses and phone
// numbers in s.
func RedactString(s string) string {
	for _, p := range patterns {
		s = p.ReplaceAllString(s, Placeholder)
	}
	return s
}

// RedactTree returns a copy of a decoded JSON tree with every string leaf
// redacted. Object keys, array order and non-string leaves are unchanged.
func RedactTree(v any) any {
	switch t := v.(type) {
	case string:
		return RedactString(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = RedactTree(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = RedactTree(child)
		}
		return out
	default:
		return v
	}
}

// Redact returns a deep copy of v with every string leaf of its JSON form
// redacted. v itself is not modified.
func Redact[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("encode value: %w", err)
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return out, fmt.Errorf("decode tree: %w", err)
	}
	data, err = json.Marshal(RedactTree(tree))
	if err != nil {
		return out, fmt.Errorf("encode redacted tree: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode redacted value: %w", err)
	}
	return out, nil
}
