package smartreply

import (
	"fmt"
	"regexp"
	"strings"
)

// ReplyCategory groups the keywords of one conversational intent with the
// canned replies offered when any of them appears in a message.
type ReplyCategory struct {
	Name      string
	Keywords  []string
	Responses []string
}

// QuestionPattern is a phrasing rule with its own replies. Patterns are
// evaluated in table order and the first match wins.
type QuestionPattern struct {
	Name      string
	Match     func(normalized string) bool
	Responses []string
}

// Keywords are matched as substrings of the lowercased message, so short
// keywords such as "hi" or "no" also fire inside longer words.
var replyCategories = []ReplyCategory{
	{
		Name:     "greeting",
		Keywords: []string{"hello", "hi", "hey", "greetings", "morning", "afternoon", "evening"},
		Responses: []string{
			"Hi there! How are you?",
			"Hello! Great to hear from you.",
			"Hey! How's your day going?",
			"Hello! What can I help you with today?",
		},
	},
	{
		Name:     "wellbeing",
		Keywords: []string{"how are you", "how's it going", "how do you do", "what's up"},
		Responses: []string{
			"I'm doing well, thanks for asking!",
			"All good here, how about you?",
			"Pretty good, thanks! How about yourself?",
			"Doing great! What's new with you?",
		},
	},
	{
		Name:     "thanks",
		Keywords: []string{"thanks", "thank you", "appreciate", "grateful", "cheers"},
		Responses: []string{
			"You're welcome!",
			"No problem at all!",
			"Happy to help!",
			"Anytime!",
		},
	},
	{
		Name:     "help",
		Keywords: []string{"help", "assist", "support", "guidance"},
		Responses: []string{
			"I'd be happy to help! What do you need?",
			"Sure, what do you need help with?",
			"I'm here to assist. Could you provide more details?",
			"Of course! Tell me more about what you need.",
		},
	},
	{
		Name:     "apology",
		Keywords: []string{"sorry", "apologize", "apologies", "my bad", "my fault"},
		Responses: []string{
			"No worries at all!",
			"It's completely fine.",
			"Don't worry about it!",
			"No need to apologize!",
		},
	},
	{
		Name:     "affirmative",
		Keywords: []string{"yes", "yeah", "sure", "ok", "okay", "alright", "definitely"},
		Responses: []string{
			"Great! Let's proceed.",
			"Excellent! What's next?",
			"Perfect! I'll note that down.",
			"Awesome, thanks for confirming.",
		},
	},
	{
		Name:     "negative",
		Keywords: []string{"no", "nope", "not really", "negative", "i don't think so"},
		Responses: []string{
			"I understand. Would you prefer something else?",
			"No problem. What would work better for you?",
			"Got it. Is there an alternative you'd prefer?",
			"That's fine. What would you suggest instead?",
		},
	},
	{
		Name:     "scheduling",
		Keywords: []string{"meeting", "schedule", "calendar", "availability", "free time", "when can"},
		Responses: []string{
			"I'm available tomorrow afternoon.",
			"How about meeting on Friday?",
			"I could do a call next Monday.",
			"Let me check my calendar and get back to you.",
		},
	},
	{
		Name:     "project",
		Keywords: []string{"project", "status", "update", "progress"},
		Responses: []string{
			"The project is on track for completion.",
			"We've made good progress this week.",
			"I'll send you the latest status report.",
			"Everything is proceeding as planned.",
		},
	},
	{
		Name:     "farewell",
		Keywords: []string{"bye", "goodbye", "see you", "talk later", "got to go", "gotta go", "catch you later"},
		Responses: []string{
			"Talk to you later!",
			"Goodbye, have a great day!",
			"See you soon!",
			"Take care!",
		},
	},
}

// generalResponses are offered, unshuffled, when no category matches.
var generalResponses = []string{
	"I understand. Tell me more.",
	"Interesting! Could you elaborate?",
	"Got it. What else?",
	"Thanks for sharing that.",
	"I see what you mean.",
	"That makes sense.",
}

var (
	whereIsPattern = regexp.MustCompile(`(?i)where\s+(is|are)`)
	whenIsPattern  = regexp.MustCompile(`(?i)when\s+(is|will|can|should)`)
)

var questionPatterns = []QuestionPattern{
	{
		Name:  "how_are_you",
		Match: func(s string) bool { return strings.Contains(s, "how are you") },
		Responses: []string{
			"I'm doing well, thanks for asking!",
			"Great! How about yourself?",
			"Pretty good, thanks!",
		},
	},
	{
		Name:  "where",
		Match: whereIsPattern.MatchString,
		Responses: []string{
			"Let me check the location for you.",
			"I believe it's in the usual place.",
			"I'll send you the address.",
		},
	},
	{
		Name:  "when",
		Match: whenIsPattern.MatchString,
		Responses: []string{
			"How about tomorrow?",
			"I'm free next week.",
			"Let me check my calendar and get back to you.",
		},
	},
}

// questionFallback is used when no question pattern matches.
var questionFallback = []string{
	"That's a good question. Let me think about it.",
	"I'm not entirely sure, but I'll find out for you.",
	"Interesting question! What do you think?",
	"Let me get back to you on that.",
}

// Categories returns a copy of the keyword category table in matching order.
func Categories() []ReplyCategory {
	out := make([]ReplyCategory, len(replyCategories))
	for i, c := range replyCategories {
		out[i] = ReplyCategory{
			Name:      c.Name,
			Keywords:  append([]string(nil), c.Keywords...),
			Responses: append([]string(nil), c.Responses...),
		}
	}
	return out
}

// validateTables checks the table invariants: every category has lowercase,
// non-empty keywords and at least one response; every pattern has a matcher
// and replies.
func validateTables(categories []ReplyCategory, patterns []QuestionPattern) error {
	for _, c := range categories {
		if c.Name == "" {
			return fmt.Errorf("category without name")
		}
		if len(c.Keywords) == 0 {
			return fmt.Errorf("category %q has no keywords", c.Name)
		}
		if len(c.Responses) == 0 {
			return fmt.Errorf("category %q has no responses", c.Name)
		}
		for _, k := range c.Keywords {
			if k == "" || k != strings.ToLower(k) {
				return fmt.Errorf("category %q has invalid keyword %q", c.Name, k)
			}
		}
	}
	for _, p := range patterns {
		if p.Match == nil {
			return fmt.Errorf("question pattern %q has no matcher", p.Name)
		}
		if len(p.Responses) == 0 {
			return fmt.Errorf("question pattern %q has no responses", p.Name)
		}
	}
	return nil
}
