// Package fingerprint normalises certificate content hashes used as lookup keys.
package fingerprint

import (
	"slices"
	"strings"
)

// Normalize trims surrounding whitespace and lowercases a hex fingerprint so
// that "ABCD " and "abcd" address the same lookup entry.
func Normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Dedupe returns the distinct normalised fingerprints of values in order of
// first occurrence, skipping blanks. It is meant for batch-sized inputs.
//
//	Dedupe([]string{" AB ", "cd", "ab", ""}) // []string{"ab", "cd"}
func Dedupe(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if fp := Normalize(v); fp != "" && !slices.Contains(out, fp) {
			out = append(out, fp)
		}
	}
	return out
}
