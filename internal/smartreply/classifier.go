package smartreply

import "strings"

// Kind tells which responder handles a message.
type Kind string

const (
	KindStatement Kind = "statement"
	KindQuestion  Kind = "question"
)

// questionStarters are checked in order, each followed by a single space so
// that e.g. "island" does not count as "is".
var questionStarters = []string{
	"who", "what", "when", "where", "why", "how", "is", "are", "was", "were",
	"will", "would", "can", "could", "should", "may", "might", "do", "does", "did",
}

// IsQuestion reports whether text ends with a question mark or opens with an
// interrogative word.
func IsQuestion(text string) bool {
	normalized := normalizeTrimmed(text)
	if strings.HasSuffix(normalized, "?") {
		return true
	}

	for _, starter := range questionStarters {
		if strings.HasPrefix(normalized, starter+" ") {
			return true
		}
	}
	return false
}

// Classify maps IsQuestion onto a Kind.
func Classify(text string) Kind {
	if IsQuestion(text) {
		return KindQuestion
	}
	return KindStatement
}
