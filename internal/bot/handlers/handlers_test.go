package handlers

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/replybot/internal/config"
	"github.com/edgard/replybot/internal/database"
	"github.com/edgard/replybot/internal/logger"
	"github.com/edgard/replybot/internal/metrics"
	"github.com/edgard/replybot/internal/smartreply"
)

const (
	operatorID = int64(1)
	customerID = int64(500)
)

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	sent    []*bot.SendMessageParams
	edits   []*bot.EditMessageReplyMarkupParams
	answers []*bot.AnswerCallbackQueryParams
	failFor map[int64]error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 1000, failFor: map[int64]error{}}
}

func (f *fakeMessenger) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	chatID, _ := params.ChatID.(int64)
	if err := f.failFor[chatID]; err != nil {
		return nil, err
	}
	f.nextID++
	f.sent = append(f.sent, params)
	return &models.Message{
		ID:   f.nextID,
		Chat: models.Chat{ID: chatID},
		Date: int(time.Now().Unix()),
		Text: params.Text,
	}, nil
}

func (f *fakeMessenger) EditMessageReplyMarkup(_ context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, params)
	return &models.Message{ID: params.MessageID}, nil
}

func (f *fakeMessenger) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, params)
	return true, nil
}

func (f *fakeMessenger) sentTo(chatID int64) []*bot.SendMessageParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*bot.SendMessageParams
	for _, p := range f.sent {
		if id, _ := p.ChatID.(int64); id == chatID {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeMessenger) lastAnswer() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return ""
	}
	return f.answers[len(f.answers)-1].Text
}

func testConfig() *config.Config {
	return &config.Config{
		Telegram:    config.TelegramConfig{Token: "test", AdminUserID: operatorID, BotInfo: &models.User{ID: 99, Username: "replybot"}},
		Suggestions: config.SuggestionsConfig{Count: 3, TTL: time.Hour},
		Messages: config.MessagesConfig{
			Welcome:              "Welcome to @botname",
			Help:                 "help text",
			ErrorUnauthorizedMsg: "unauthorized",
			ErrorGeneralMsg:      "error",
			ReplyHintMsg:         "reply hint",
			UnknownConversation:  "unknown conversation",
			DeliveryFailedMsg:    "delivery failed",
			SuggestionExpiredMsg: "expired",
			SuggestionSentMsg:    "sent",
			SuggestUsageMsg:      "usage",
			NoConversationsMsg:   "no conversations",
			ConversationsUsage:   "conversations usage",
			NonTextMsg:           "(non-text)",
			ResetConfirmMsg:      "reset done",
			ResetErrorMsg:        "reset failed",
			ResetTimeoutMsg:      "reset timeout",
		},
	}
}

func newTestDeps(t *testing.T) HandlerDeps {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "handlers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	return HandlerDeps{
		Logger: logger.Discard(),
		Config: testConfig(),
		Store:  database.NewStore(db, logger.Discard()),
		Engine: smartreply.New(smartreply.WithSource(smartreply.NewSeededSource(1))),
	}
}

func customerUpdate(text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   10,
			Date: int(time.Now().Unix()),
			Text: text,
			Chat: models.Chat{ID: customerID, Type: models.ChatTypePrivate},
			From: &models.User{ID: customerID, FirstName: "Ada", Username: "ada"},
		},
	}
}

func operatorUpdate(text string, replyTo int) *models.Update {
	msg := &models.Message{
		ID:   20,
		Date: int(time.Now().Unix()),
		Text: text,
		Chat: models.Chat{ID: operatorID, Type: models.ChatTypePrivate},
		From: &models.User{ID: operatorID, FirstName: "Op"},
	}
	if replyTo != 0 {
		msg.ReplyToMessage = &models.Message{ID: replyTo, Chat: models.Chat{ID: operatorID}}
	}
	return &models.Update{ID: 2, Message: msg}
}

func callbackUpdate(from int64, data string, messageID int) *models.Update {
	return &models.Update{
		ID: 3,
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb-1",
			From: models.User{ID: from},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Message: &models.Message{ID: messageID, Chat: models.Chat{ID: operatorID}},
			},
		},
	}
}

func keyboardOf(t *testing.T, p *bot.SendMessageParams) *models.InlineKeyboardMarkup {
	t.Helper()
	kb, ok := p.ReplyMarkup.(*models.InlineKeyboardMarkup)
	require.True(t, ok, "expected inline keyboard, got %T", p.ReplyMarkup)
	return kb
}

func TestSuggestionCallbackData(t *testing.T) {
	data := suggestionCallbackData("3f1c", 2)
	assert.Equal(t, "sr:3f1c:2", data)

	id, idx, err := parseSuggestionCallbackData(data)
	require.NoError(t, err)
	assert.Equal(t, "3f1c", id)
	assert.Equal(t, 2, idx)

	for _, bad := range []string{"", "sr:", "sr:abc", "sr::1", "sr:abc:x", "sr:abc:-1", "xx:abc:1"} {
		_, _, err := parseSuggestionCallbackData(bad)
		assert.ErrorIs(t, err, errBadCallbackData, bad)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace (@ada)", displayName(&models.User{FirstName: "Ada", LastName: "Lovelace", Username: "ada"}))
	assert.Equal(t, "@ada", displayName(&models.User{Username: "ada"}))
	assert.Equal(t, "Ada", displayName(&models.User{FirstName: "Ada"}))
	assert.Equal(t, "user 7", displayName(&models.User{ID: 7}))
	assert.Equal(t, "unknown", displayName(nil))
}

func TestPreviewHelpers(t *testing.T) {
	assert.Equal(t, "line one line two", collapseWhitespace("  line one\n\n\tline   two "))
	assert.Equal(t, "héllo", truncate("héllo", 5))
	assert.Equal(t, "hé…", truncate("héllo", 2))
}

func TestRelay_CustomerMessageIsForwardedWithQuickReplies(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	ctx := context.Background()
	before := testutil.ToFloat64(metrics.InboundMessages)

	relayHandler{deps}.handle(ctx, m, customerUpdate("Where is the office?"))

	forwarded := m.sentTo(operatorID)
	require.Len(t, forwarded, 1)
	assert.Contains(t, forwarded[0].Text, "Ada (@ada)")
	assert.Contains(t, forwarded[0].Text, "Where is the office?")

	kb := keyboardOf(t, forwarded[0])
	require.Len(t, kb.InlineKeyboard, 3)
	assert.Equal(t, "Let me check the location for you.", kb.InlineKeyboard[0][0].Text)
	assert.True(t, strings.HasPrefix(kb.InlineKeyboard[0][0].CallbackData, "sr:"))
	assert.InDelta(t, before+1, testutil.ToFloat64(metrics.InboundMessages), 0.001)

	conv, err := deps.Store.GetConversationByChatID(ctx, customerID)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, "Where is the office?", conv.LastMessageText)

	stored, err := deps.Store.GetMessageByOperatorMessageID(ctx, 1001)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, conv.ID, stored.ConversationID)

	setID, _, err := parseSuggestionCallbackData(kb.InlineKeyboard[0][0].CallbackData)
	require.NoError(t, err)
	set, err := deps.Store.GetSuggestionSet(ctx, setID)
	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Equal(t, "question", set.Kind)
	assert.Equal(t, 1001, set.OperatorMessageID)
	assert.True(t, set.Active(time.Now()))
}

func TestRelay_NewMessageSupersedesQuickReplies(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	ctx := context.Background()
	h := relayHandler{deps}

	h.handle(ctx, m, customerUpdate("hello"))
	first := keyboardOf(t, m.sentTo(operatorID)[0])
	firstSetID, _, err := parseSuggestionCallbackData(first.InlineKeyboard[0][0].CallbackData)
	require.NoError(t, err)

	h.handle(ctx, m, customerUpdate("thanks for the help"))

	require.Len(t, m.edits, 1)
	assert.Equal(t, 1001, m.edits[0].MessageID)

	set, err := deps.Store.GetSuggestionSet(ctx, firstSetID)
	require.NoError(t, err)
	assert.True(t, set.ClearedAt.Valid)
	assert.False(t, set.SelectedIndex.Valid)

	h2 := suggestionCallbackHandler{deps}
	h2.handle(ctx, m, callbackUpdate(operatorID, first.InlineKeyboard[0][0].CallbackData, 1001))
	assert.Equal(t, "expired", m.lastAnswer())
	assert.Empty(t, m.sentTo(customerID))
}

func TestRelay_InvalidUTF8StillGetsQuickReplies(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()

	relayHandler{deps}.handle(context.Background(), m, customerUpdate("hello \xff"))

	forwarded := m.sentTo(operatorID)
	require.Len(t, forwarded, 1)
	kb := keyboardOf(t, forwarded[0])
	assert.Len(t, kb.InlineKeyboard, 3)
}

func TestRelay_NonTextMessageIsForwardedWithoutQuickReplies(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()

	update := customerUpdate("")
	update.Message.Photo = []models.PhotoSize{{FileID: "photo"}}
	relayHandler{deps}.handle(context.Background(), m, update)

	forwarded := m.sentTo(operatorID)
	require.Len(t, forwarded, 1)
	assert.Contains(t, forwarded[0].Text, "(non-text)")
	assert.Nil(t, forwarded[0].ReplyMarkup)
}

func TestRelay_IgnoresGroupsAndBots(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	h := relayHandler{deps}

	group := customerUpdate("hello")
	group.Message.Chat.Type = models.ChatTypeGroup
	h.handle(context.Background(), m, group)

	fromBot := customerUpdate("hello")
	fromBot.Message.From.IsBot = true
	h.handle(context.Background(), m, fromBot)

	h.handle(context.Background(), m, &models.Update{ID: 9})

	assert.Empty(t, m.sent)
}

func TestRelay_OperatorReplyIsDelivered(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	ctx := context.Background()
	h := relayHandler{deps}

	h.handle(ctx, m, customerUpdate("hello"))
	before := testutil.ToFloat64(metrics.OperatorReplies.WithLabelValues(metrics.SourceTyped))

	h.handle(ctx, m, operatorUpdate("Hi Ada, how can I help?", 1001))

	delivered := m.sentTo(customerID)
	require.Len(t, delivered, 1)
	assert.Equal(t, "Hi Ada, how can I help?", delivered[0].Text)
	assert.InDelta(t, before+1, testutil.ToFloat64(metrics.OperatorReplies.WithLabelValues(metrics.SourceTyped)), 0.001)

	require.Len(t, m.edits, 1, "quick replies are removed once the operator answers")

	msgs, err := deps.Store.GetRecentMessagesInChat(ctx, customerID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, database.DirectionOutbound, msgs[1].Direction)

	conv, err := deps.Store.GetConversationByChatID(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, how can I help?", conv.LastMessageText)
}

func TestRelay_OperatorWithoutReplyGetsHint(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	h := relayHandler{deps}

	h.handle(context.Background(), m, operatorUpdate("hello?", 0))
	h.handle(context.Background(), m, operatorUpdate("who is this?", 4242))

	sent := m.sentTo(operatorID)
	require.Len(t, sent, 2)
	assert.Equal(t, "reply hint", sent[0].Text)
	assert.Equal(t, "unknown conversation", sent[1].Text)
}

func TestRelay_DeliveryFailureIsReported(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	ctx := context.Background()
	h := relayHandler{deps}

	h.handle(ctx, m, customerUpdate("hello"))
	m.failFor[customerID] = errors.New("Forbidden: bot was blocked by the user")

	h.handle(ctx, m, operatorUpdate("anyone there?", 1001))

	sent := m.sentTo(operatorID)
	require.Len(t, sent, 2)
	assert.Equal(t, "delivery failed", sent[1].Text)
	assert.Empty(t, m.edits, "quick replies stay when nothing was delivered")
}

func TestSuggestionCallback_SelectsOnce(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	ctx := context.Background()

	relayHandler{deps}.handle(ctx, m, customerUpdate("how are you?"))
	kb := keyboardOf(t, m.sentTo(operatorID)[0])
	chip := kb.InlineKeyboard[1][0]

	h := suggestionCallbackHandler{deps}
	h.handle(ctx, m, callbackUpdate(operatorID, chip.CallbackData, 1001))

	delivered := m.sentTo(customerID)
	require.Len(t, delivered, 1)
	assert.Equal(t, chip.Text, delivered[0].Text)
	assert.Equal(t, "sent", m.lastAnswer())
	require.Len(t, m.edits, 1)
	assert.Equal(t, 1001, m.edits[0].MessageID)

	h.handle(ctx, m, callbackUpdate(operatorID, chip.CallbackData, 1001))
	assert.Len(t, m.sentTo(customerID), 1)
	assert.Equal(t, "expired", m.lastAnswer())

	setID, _, err := parseSuggestionCallbackData(chip.CallbackData)
	require.NoError(t, err)
	set, err := deps.Store.GetSuggestionSet(ctx, setID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), set.SelectedIndex.Int64)
}

func TestSuggestionCallback_InvalidData(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()

	suggestionCallbackHandler{deps}.handle(context.Background(), m, callbackUpdate(operatorID, "sr:bogus", 1))
	assert.Equal(t, "expired", m.lastAnswer())

	suggestionCallbackHandler{deps}.handle(context.Background(), m, callbackUpdate(operatorID, "sr:missing:0", 1))
	assert.Equal(t, "expired", m.lastAnswer())
	assert.Empty(t, m.sent)
}

func TestAdminOnly(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	ctx := context.Background()

	assert.True(t, authorize(ctx, deps, m, operatorUpdate("/reset", 0)))
	assert.Empty(t, m.sent)

	assert.False(t, authorize(ctx, deps, m, customerUpdate("/reset")))
	require.Len(t, m.sentTo(customerID), 1)
	assert.Equal(t, "unauthorized", m.sentTo(customerID)[0].Text)

	assert.True(t, authorize(ctx, deps, m, callbackUpdate(operatorID, "sr:x:0", 1)))
	assert.False(t, authorize(ctx, deps, m, callbackUpdate(customerID, "sr:x:0", 1)))
	require.Len(t, m.answers, 1)
	assert.True(t, m.answers[0].ShowAlert)
}

func TestStartAndHelp(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()

	startHandler{deps}.handle(context.Background(), m, customerUpdate("/start"))
	helpHandler{deps}.handle(context.Background(), m, operatorUpdate("/help", 0))

	assert.Equal(t, "Welcome to @replybot", m.sentTo(customerID)[0].Text)
	assert.Equal(t, "help text", m.sentTo(operatorID)[0].Text)
}

func TestSuggestCommand(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	h := suggestHandler{deps}

	h.handle(context.Background(), m, operatorUpdate("/suggest", 0))
	h.handle(context.Background(), m, operatorUpdate("/suggest   When will it ship?", 0))

	sent := m.sentTo(operatorID)
	require.Len(t, sent, 2)
	assert.Equal(t, "usage", sent[0].Text)
	assert.Equal(t, "Kind: question\nPattern: when\n\n1. How about tomorrow?\n2. I'm free next week.\n3. Let me check my calendar and get back to you.", sent[1].Text)
}

func TestFormatSuggestion(t *testing.T) {
	assert.Equal(t, "Kind: statement\nCategories: greeting, thanks\n\n1. Hi", FormatSuggestion(&smartreply.Suggestion{
		Kind: smartreply.KindStatement, Categories: []string{"greeting", "thanks"}, Replies: []string{"Hi"},
	}))
	assert.Equal(t, "Kind: statement\n\n(no replies)", FormatSuggestion(&smartreply.Suggestion{Kind: smartreply.KindStatement}))
}

func TestConversationsCommand(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	h := conversationsHandler{deps}

	h.handle(context.Background(), m, operatorUpdate("/conversations", 0))
	assert.Equal(t, "no conversations", m.sentTo(operatorID)[0].Text)

	relayHandler{deps}.handle(context.Background(), m, customerUpdate(strings.Repeat("long message ", 10)))
	h.handle(context.Background(), m, operatorUpdate("/conversations", 0))

	sent := m.sentTo(operatorID)
	listing := sent[len(sent)-1].Text
	assert.True(t, strings.HasPrefix(listing, "1. Ada (@ada) ["), listing)
	assert.Contains(t, listing, "…")
}

func TestConversationsCommand_Thread(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	ctx := context.Background()
	relay := relayHandler{deps}
	h := conversationsHandler{deps}

	relay.handle(ctx, m, customerUpdate("hello"))
	relay.handle(ctx, m, operatorUpdate("Hi Ada, how can I help?", 1001))

	h.handle(ctx, m, operatorUpdate("/conversations 1", 0))
	sent := m.sentTo(operatorID)
	thread := sent[len(sent)-1].Text
	lines := strings.Split(thread, "\n")
	require.Len(t, lines, 4, thread)
	assert.Equal(t, "💬 Ada (@ada)", lines[0])
	assert.True(t, strings.HasPrefix(lines[2], "👤 ["), lines[2])
	assert.True(t, strings.HasSuffix(lines[2], "] hello"), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "↩️ ["), lines[3])
	assert.True(t, strings.HasSuffix(lines[3], "] Hi Ada, how can I help?"), lines[3])

	for _, bad := range []string{"/conversations 2", "/conversations zero", "/conversations 0"} {
		h.handle(ctx, m, operatorUpdate(bad, 0))
		sent = m.sentTo(operatorID)
		assert.Equal(t, "conversations usage", sent[len(sent)-1].Text, bad)
	}
}

func TestResetCommand(t *testing.T) {
	deps := newTestDeps(t)
	m := newFakeMessenger()
	ctx := context.Background()

	relayHandler{deps}.handle(ctx, m, customerUpdate("hello"))
	resetHandler{deps}.handle(ctx, m, operatorUpdate("/reset", 0))

	sent := m.sentTo(operatorID)
	assert.Equal(t, "reset done", sent[len(sent)-1].Text)

	list, err := deps.Store.ListConversations(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestRegisterAllCommands(t *testing.T) {
	deps := newTestDeps(t)
	registered := RegisterAllCommands(deps)

	for _, name := range []string{"/start", "/help", "/suggest", "/conversations", "/reset", "suggestion_callback"} {
		h, ok := registered[name]
		require.True(t, ok, name)
		assert.NotNil(t, h.Handler, name)
	}
	assert.Empty(t, registered["/start"].Middleware)
	assert.Len(t, registered["/reset"].Middleware, 1)
	assert.Equal(t, bot.HandlerTypeCallbackQueryData, registered["suggestion_callback"].HandlerType)
	assert.Equal(t, bot.MatchTypePrefix, registered["suggestion_callback"].MatchType)
}
