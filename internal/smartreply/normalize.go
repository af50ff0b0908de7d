package smartreply

import "strings"

// Normalize returns the canonical form used for keyword and pattern matching.
// Only case is folded; surrounding whitespace is kept.
func Normalize(text string) string {
	return strings.ToLower(text)
}

// normalizeTrimmed is Normalize plus trimming, used for question detection.
func normalizeTrimmed(text string) string {
	return strings.TrimSpace(Normalize(text))
}
