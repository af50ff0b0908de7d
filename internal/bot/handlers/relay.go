package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/replybot/internal/database"
	"github.com/edgard/replybot/internal/metrics"
)

const (
	dbTimeout   = 5 * time.Second
	sendTimeout = 10 * time.Second

	// suggestionCallbackPrefix starts the callback data of every quick-reply
	// chip: "sr:<set id>:<index>".
	suggestionCallbackPrefix = "sr:"

	conversationPreviewLen = 60
)

var errBadCallbackData = errors.New("malformed suggestion callback data")

func suggestionCallbackData(setID string, index int) string {
	return suggestionCallbackPrefix + setID + ":" + strconv.Itoa(index)
}

func parseSuggestionCallbackData(data string) (string, int, error) {
	rest, ok := strings.CutPrefix(data, suggestionCallbackPrefix)
	if !ok {
		return "", 0, errBadCallbackData
	}
	setID, rawIndex, ok := strings.Cut(rest, ":")
	if !ok || setID == "" {
		return "", 0, errBadCallbackData
	}
	index, err := strconv.Atoi(rawIndex)
	if err != nil || index < 0 {
		return "", 0, errBadCallbackData
	}
	return setID, index, nil
}

// suggestionKeyboard lays out one chip per row.
func suggestionKeyboard(setID string, replies []string) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(replies))
	for i, reply := range replies {
		rows = append(rows, []models.InlineKeyboardButton{{
			Text:         reply,
			CallbackData: suggestionCallbackData(setID, i),
		}})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func displayName(u *models.User) string {
	if u == nil {
		return "unknown"
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Username != "" {
		if name == "" {
			return "@" + u.Username
		}
		return name + " (@" + u.Username + ")"
	}
	if name == "" {
		return "user " + strconv.FormatInt(u.ID, 10)
	}
	return name
}

// forwardText is the operator-side copy of an inbound customer message.
func forwardText(conv *database.Conversation, content string) string {
	return fmt.Sprintf("💬 %s\n\n%s", conv.Title, content)
}

// stripKeyboard removes the quick-reply chips from a forwarded message.
func stripKeyboard(ctx context.Context, deps HandlerDeps, m Messenger, set *database.SuggestionSet) {
	if set.OperatorMessageID == 0 {
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	_, err := m.EditMessageReplyMarkup(sendCtx, &bot.EditMessageReplyMarkupParams{
		ChatID:      set.OperatorChatID,
		MessageID:   set.OperatorMessageID,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{}},
	})
	if err != nil {
		deps.Logger.WarnContext(ctx, "Failed to remove quick replies",
			"error", err, "set_id", set.ID, "operator_message_id", set.OperatorMessageID)
	}
}

// clearSuggestions clears the active chips of a conversation and strips
// their keyboards.
func clearSuggestions(ctx context.Context, deps HandlerDeps, m Messenger, conversationID uint, reason string) {
	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cleared, err := deps.Store.ClearActiveSuggestionSets(dbCtx, conversationID, time.Now())
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to clear quick replies",
			"error", err, "conversation_id", conversationID, "reason", reason)
		return
	}
	for _, set := range cleared {
		stripKeyboard(ctx, deps, m, set)
	}
	if len(cleared) > 0 {
		metrics.SuggestionSetsCleared.WithLabelValues(reason).Add(float64(len(cleared)))
	}
}

// deliver sends an operator reply to the customer, records it and clears the
// conversation's remaining chips.
func deliver(ctx context.Context, deps HandlerDeps, m Messenger, conv *database.Conversation, text, source string) error {
	log := deps.Logger.With("conversation_id", conv.ID, "chat_id", conv.ChatID)

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	sent, err := m.SendMessage(sendCtx, &bot.SendMessageParams{ChatID: conv.ChatID, Text: text})
	cancel()
	if err != nil {
		log.ErrorContext(ctx, "Failed to deliver reply to customer", "error", err, "source", source)
		return fmt.Errorf("failed to deliver reply to chat %d: %w", conv.ChatID, err)
	}
	metrics.OperatorReplies.WithLabelValues(source).Inc()

	timestamp := time.Now()
	if sent != nil && sent.Date > 0 {
		timestamp = time.Unix(int64(sent.Date), 0)
	}
	outbound := &database.Message{
		ConversationID: conv.ID,
		ChatID:         conv.ChatID,
		UserID:         deps.Config.Telegram.AdminUserID,
		Direction:      database.DirectionOutbound,
		Content:        text,
		Timestamp:      timestamp,
	}
	dbCtx, dbCancel := context.WithTimeout(ctx, dbTimeout)
	if err := deps.Store.SaveMessage(dbCtx, outbound); err != nil {
		// The customer already has the reply; losing the record is not fatal.
		log.ErrorContext(ctx, "Failed to save outbound message", "error", err)
	}
	dbCancel()

	clearSuggestions(ctx, deps, m, conv.ID, metrics.ReasonReplied)
	log.InfoContext(ctx, "Reply delivered", "source", source)
	return nil
}

func notify(ctx context.Context, deps HandlerDeps, m Messenger, chatID int64, text string) {
	if _, err := m.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to send message", "error", err, "chat_id", chatID)
	}
}

// collapseWhitespace folds every whitespace run, newlines included, into a
// single space.
func collapseWhitespace(s string) string {
	var b strings.Builder
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteRune(' ')
				space = true
			}
			continue
		}
		b.WriteRune(r)
		space = false
	}
	return strings.TrimSpace(b.String())
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "…"
}
