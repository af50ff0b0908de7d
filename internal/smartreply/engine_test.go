package smartreply

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func categoryResponses(t *testing.T, names ...string) []string {
	t.Helper()
	var out []string
	for _, name := range names {
		found := false
		for _, c := range replyCategories {
			if c.Name == name {
				out = append(out, c.Responses...)
				found = true
			}
		}
		require.True(t, found, "unknown category %q", name)
	}
	return out
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "  hello there  ", Normalize("  HeLLo There  "))
	assert.Equal(t, "hello there", normalizeTrimmed("  HeLLo There  "))
}

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"question mark", "Is it ready?", true},
		{"only question mark", "?", true},
		{"question mark with trailing space", "really?   ", true},
		{"starter without punctuation", "what time works for you", true},
		{"upper case starter", "WHAT time works", true},
		{"starter with trailing punctuation", "did you get my email!", true},
		{"leading whitespace is trimmed", "   how do I do this", true},
		{"starter must be followed by space", "whatever happened", false},
		{"starter as word prefix", "island trip next week", false},
		{"bare starter", "who", false},
		{"plain statement", "nice weather today", false},
		{"statement with period", "Thanks.", false},
		{"empty", "", false},
		{"whitespace only", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuestion(tt.text))
			if tt.want {
				assert.Equal(t, KindQuestion, Classify(tt.text))
			} else {
				assert.Equal(t, KindStatement, Classify(tt.text))
			}
		})
	}
}

func TestStatementReplies_SingleCategory(t *testing.T) {
	e := New()

	got, err := e.Suggest(Request{Text: "hello there", Count: 10})
	require.NoError(t, err)
	assert.Equal(t, KindStatement, got.Kind)
	assert.Equal(t, []string{"greeting"}, got.Categories)
	assert.ElementsMatch(t, categoryResponses(t, "greeting"), got.Replies)
}

func TestStatementReplies_MultipleCategories(t *testing.T) {
	e := New()

	got, err := e.Suggest(Request{Text: "hello, thanks a lot", Count: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"greeting", "thanks"}, got.Categories)
	assert.ElementsMatch(t, categoryResponses(t, "greeting", "thanks"), got.Replies)
}

func TestStatementReplies_TruncatesCombinedPool(t *testing.T) {
	e := New()
	pool := categoryResponses(t, "thanks", "help")

	for i := 0; i < 20; i++ {
		got, err := e.Suggest(Request{Text: "Thanks so much for the help", Count: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"thanks", "help"}, got.Categories)
		require.Len(t, got.Replies, 2)
		assert.Subset(t, pool, got.Replies)
		assert.NotEqual(t, got.Replies[0], got.Replies[1])
	}
}

func TestStatementReplies_NoMatchUsesGeneralResponses(t *testing.T) {
	e := New()

	first := e.StatementReplies("xyzabc123", 3)
	second := e.StatementReplies("xyzabc123", 3)
	assert.Equal(t, generalResponses[:3], first)
	assert.Equal(t, first, second)

	assert.Equal(t, generalResponses, e.StatementReplies("xyzabc123", 10))
}

func TestStatementReplies_DegenerateInput(t *testing.T) {
	e := New()

	for _, text := range []string{"", "     ", strings.Repeat("z", 100000)} {
		got, err := e.Suggest(Request{Text: text, Count: DefaultCount})
		require.NoError(t, err)
		assert.Equal(t, KindStatement, got.Kind)
		assert.Empty(t, got.Categories)
		assert.Equal(t, generalResponses[:DefaultCount], got.Replies)
	}
}

// Keywords match as substrings, so short keywords fire inside other words.
// These cases pin that behaviour down.
func TestStatementReplies_SubstringCollisions(t *testing.T) {
	e := New()

	tests := []struct {
		text     string
		category string
	}{
		{"i think so", "greeting"},            // "think" contains "hi"
		{"this works", "greeting"},            // "this" contains "hi"
		{"i know", "negative"},                // "know" contains "no"
		{"let me take a look", "affirmative"}, // "look" contains "ok"
		{"see you tomorrow", "farewell"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := e.Suggest(Request{Text: tt.text, Count: DefaultCount})
			require.NoError(t, err)
			assert.Contains(t, got.Categories, tt.category)
		})
	}
}

// The negative phrase keyword is stored lowercased, so the capitalised phrase
// matches it; "think" also drags in the greetings.
func TestStatementReplies_NegativePhraseCollidesWithGreeting(t *testing.T) {
	e := New()

	got, err := e.Suggest(Request{Text: "I don't think so", Count: 100})
	require.NoError(t, err)
	assert.Equal(t, KindStatement, got.Kind)
	assert.ElementsMatch(t, []string{"greeting", "negative"}, got.Categories)
	assert.ElementsMatch(t, categoryResponses(t, "greeting", "negative"), got.Replies)
}

func TestStatementReplies_KeywordsAreCaseInsensitive(t *testing.T) {
	e := New()

	got, err := e.Suggest(Request{Text: "I DON'T THINK SO", Count: 100})
	require.NoError(t, err)
	assert.Contains(t, got.Categories, "negative")
}

func TestStatementReplies_SeededSourceIsReproducible(t *testing.T) {
	a := New(WithSource(NewSeededSource(42)))
	b := New(WithSource(NewSeededSource(42)))

	for i := 0; i < 10; i++ {
		assert.Equal(t,
			a.StatementReplies("hello, sorry about the meeting", 5),
			b.StatementReplies("hello, sorry about the meeting", 5))
	}
}

func TestPermute_IsPermutation(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	shuffled := append([]string(nil), items...)

	Permute(shuffled, NewSeededSource(7))
	assert.ElementsMatch(t, items, shuffled)

	Permute(nil, NewSeededSource(7))
	single := []string{"x"}
	Permute(single, NewSeededSource(7))
	assert.Equal(t, []string{"x"}, single)
}

func TestPermute_Uniform(t *testing.T) {
	const rounds = 60000
	src := NewSeededSource(1)
	counts := map[string]int{}

	for i := 0; i < rounds; i++ {
		items := []string{"a", "b", "c"}
		Permute(items, src)
		counts[strings.Join(items, "")]++
	}

	require.Len(t, counts, 6)
	for perm, n := range counts {
		assert.InDelta(t, rounds/6, n, 600, "permutation %s", perm)
	}
}

func TestQuestionReplies_Patterns(t *testing.T) {
	e := New()

	tests := []struct {
		name    string
		text    string
		pattern string
		want    []string
	}{
		{"how are you wins over generic starter", "how are you doing today?", "how_are_you", questionPatterns[0].Responses},
		{"where is", "Where is the office?", "where", questionPatterns[1].Responses},
		{"where are without question mark", "where are my keys", "where", questionPatterns[1].Responses},
		{"where with extra whitespace", "where   is it?", "where", questionPatterns[1].Responses},
		{"when will", "When will you arrive?", "when", questionPatterns[2].Responses},
		{"when can", "when can we meet?", "when", questionPatterns[2].Responses},
		{"how is does not match where", "Hi! How is everyone?", "", questionFallback[:3]},
		{"unmatched question", "What's up?", "", questionFallback[:3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Suggest(Request{Text: tt.text, Count: DefaultCount})
			require.NoError(t, err)
			assert.Equal(t, KindQuestion, got.Kind)
			assert.Equal(t, tt.pattern, got.Pattern)
			assert.Equal(t, tt.want, got.Replies)
		})
	}
}

func TestQuestionReplies_Deterministic(t *testing.T) {
	e := New()

	first, err := e.Replies("Where are we meeting?", 2)
	require.NoError(t, err)
	second, err := e.Replies("Where are we meeting?", 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, questionPatterns[1].Responses[:2], first)
}

func TestQuestionReplies_IgnoresClassification(t *testing.T) {
	e := New()
	assert.Equal(t, questionFallback, e.QuestionReplies("plain statement", 10))
}

func TestSuggest_LengthIsBoundedByCount(t *testing.T) {
	e := New()

	messages := map[string]int{
		"hello there":            4,
		"xyzabc123":              6,
		"how are you?":           3,
		"anything interesting?":  4,
		"hello, thanks, goodbye": 12,
	}

	for text, available := range messages {
		for n := -2; n <= 15; n++ {
			got, err := e.Replies(text, n)
			require.NoError(t, err)
			want := n
			if want < 0 {
				want = 0
			}
			if want > available {
				want = available
			}
			assert.Len(t, got, want, "text=%q n=%d", text, n)
		}
	}
}

func TestSuggest_Errors(t *testing.T) {
	e := New()

	_, err := e.Suggest(Request{Text: "hello", Sender: SenderLocal, Count: 3})
	assert.ErrorIs(t, err, ErrLocalSender)
}

func TestSuggest_AcceptsInvalidUTF8(t *testing.T) {
	e := New()

	got, err := e.Suggest(Request{Text: "hello \xff", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, KindStatement, got.Kind)
	assert.Equal(t, []string{"greeting"}, got.Categories)
	assert.Len(t, got.Replies, 3)
	assert.Subset(t, categoryResponses(t, "greeting"), got.Replies)

	replies, err := e.Replies("xyz\xfe", 3)
	require.NoError(t, err)
	assert.Equal(t, generalResponses[:3], replies)

	replies, err = e.Replies("\xfe\xff", 2)
	require.NoError(t, err)
	assert.Equal(t, generalResponses[:2], replies)
}

func TestSuggest_ConcurrentCallers(t *testing.T) {
	defer goleak.VerifyNone(t)

	e := New(WithSource(NewSeededSource(99)))
	pool := categoryResponses(t, "greeting", "thanks")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				got, err := e.Replies("hey, thank you", 3)
				assert.NoError(t, err)
				assert.Subset(t, pool, got)
			}
		}()
	}
	wg.Wait()
}

func TestTables_Invariants(t *testing.T) {
	require.NoError(t, validateTables(replyCategories, questionPatterns))
	assert.Len(t, questionFallback, 4)
	assert.Len(t, generalResponses, 6)

	assert.Error(t, validateTables([]ReplyCategory{{Name: "x", Responses: []string{"r"}}}, nil))
	assert.Error(t, validateTables([]ReplyCategory{{Name: "x", Keywords: []string{"k"}}}, nil))
	assert.Error(t, validateTables([]ReplyCategory{{Name: "x", Keywords: []string{"Upper"}, Responses: []string{"r"}}}, nil))
	assert.Error(t, validateTables(nil, []QuestionPattern{{Name: "p", Responses: []string{"r"}}}))
}

func TestCategories_ReturnsCopy(t *testing.T) {
	cats := Categories()
	require.Len(t, cats, len(replyCategories))

	cats[0].Responses[0] = "changed"
	cats[0].Keywords = nil
	assert.Equal(t, "Hi there! How are you?", replyCategories[0].Responses[0])
	assert.NotEmpty(t, replyCategories[0].Keywords)
}
