// Package smartreply proposes quick replies for the latest inbound chat
// message. Questions are answered from ordered phrasing patterns; everything
// else is matched against keyword categories whose replies are shuffled.
package smartreply

import (
	"errors"
	"strings"
)

// DefaultCount is the number of suggestions shown per message.
const DefaultCount = 3

// ErrLocalSender is returned when suggestions are requested for a message
// the local user wrote.
var ErrLocalSender = errors.New("smartreply: suggestions are only generated for the remote party's messages")

// Sender identifies who wrote the message being answered.
type Sender int

const (
	SenderRemote Sender = iota
	SenderLocal
)

// Request is one suggestion lookup.
type Request struct {
	Text   string
	Sender Sender
	Count  int
}

// Suggestion is the outcome of a lookup. Categories and Pattern name what
// matched; they are informational only.
type Suggestion struct {
	Kind       Kind
	Categories []string
	Pattern    string
	Replies    []string
}

// Engine holds read-only reply tables and the random source used by the
// statement path. It is safe for concurrent use.
type Engine struct {
	categories []ReplyCategory
	general    []string
	patterns   []QuestionPattern
	fallback   []string
	src        Source
}

// Option configures an Engine.
type Option func(*Engine)

// WithSource replaces the shuffle source, typically with NewSeededSource in tests.
func WithSource(src Source) Option {
	return func(e *Engine) {
		if src != nil {
			e.src = src
		}
	}
}

// New returns an Engine over the built-in reply tables.
func New(opts ...Option) *Engine {
	e := &Engine{
		categories: replyCategories,
		general:    generalResponses,
		patterns:   questionPatterns,
		fallback:   questionFallback,
		src:        globalSource{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Suggest classifies req.Text and returns up to req.Count replies for it. Any
// text is accepted; bytes that are not valid UTF-8 never match a keyword.
func (e *Engine) Suggest(req Request) (*Suggestion, error) {
	if req.Sender != SenderRemote {
		return nil, ErrLocalSender
	}
	if Classify(req.Text) == KindQuestion {
		pattern, replies := e.questionReplies(req.Text, req.Count)
		return &Suggestion{Kind: KindQuestion, Pattern: pattern, Replies: replies}, nil
	}

	categories, replies := e.statementReplies(req.Text, req.Count)
	return &Suggestion{Kind: KindStatement, Categories: categories, Replies: replies}, nil
}

// Replies is Suggest for a remote message, returning only the reply strings.
func (e *Engine) Replies(text string, count int) ([]string, error) {
	s, err := e.Suggest(Request{Text: text, Sender: SenderRemote, Count: count})
	if err != nil {
		return nil, err
	}
	return s.Replies, nil
}

// StatementReplies runs the keyword-category responder regardless of whether
// text looks like a question.
func (e *Engine) StatementReplies(text string, count int) []string {
	_, replies := e.statementReplies(text, count)
	return replies
}

// QuestionReplies runs the question-pattern responder regardless of whether
// text looks like a question.
func (e *Engine) QuestionReplies(text string, count int) []string {
	_, replies := e.questionReplies(text, count)
	return replies
}

func (e *Engine) statementReplies(text string, count int) ([]string, []string) {
	normalized := Normalize(text)

	var matched []string
	var candidates []string
	for _, category := range e.categories {
		if containsAny(normalized, category.Keywords) {
			matched = append(matched, category.Name)
			candidates = append(candidates, category.Responses...)
		}
	}

	if len(candidates) == 0 {
		return nil, head(e.general, count)
	}

	Permute(candidates, e.src)
	return matched, head(candidates, count)
}

func (e *Engine) questionReplies(text string, count int) (string, []string) {
	normalized := Normalize(text)
	for _, p := range e.patterns {
		if p.Match(normalized) {
			return p.Name, head(p.Responses, count)
		}
	}
	return "", head(e.fallback, count)
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
