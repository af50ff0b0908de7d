package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/replybot/internal/database"
)

const (
	conversationsListLimit = 20
	threadLimit            = 15
)

// NewConversationsHandler returns a handler for the /conversations command.
// Without arguments it lists recent conversations with a preview of their
// last message; /conversations <n> shows the latest messages of entry n.
func NewConversationsHandler(deps HandlerDeps) bot.HandlerFunc {
	return conversationsHandler{deps}.Handle
}

type conversationsHandler struct {
	deps HandlerDeps
}

func (h conversationsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h conversationsHandler) handle(ctx context.Context, m Messenger, update *models.Update) {
	log := h.deps.Logger.With("handler", "conversations")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	position := 0
	if arg := commandArgs(update.Message.Text); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > conversationsListLimit {
			notify(ctx, h.deps, m, chatID, h.deps.Config.Messages.ConversationsUsage)
			return
		}
		position = n
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	conversations, err := h.deps.Store.ListConversations(dbCtx, conversationsListLimit)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list conversations", "error", err)
		notify(ctx, h.deps, m, chatID, h.deps.Config.Messages.ErrorGeneralMsg)
		return
	}
	if len(conversations) == 0 {
		notify(ctx, h.deps, m, chatID, h.deps.Config.Messages.NoConversationsMsg)
		return
	}

	if position > 0 {
		if position > len(conversations) {
			notify(ctx, h.deps, m, chatID, h.deps.Config.Messages.ConversationsUsage)
			return
		}
		conv := conversations[position-1]
		messages, err := h.deps.Store.GetRecentMessagesInChat(dbCtx, conv.ChatID, threadLimit)
		if err != nil {
			log.ErrorContext(ctx, "Failed to load conversation thread", "error", err, "conversation_id", conv.ID)
			notify(ctx, h.deps, m, chatID, h.deps.Config.Messages.ErrorGeneralMsg)
			return
		}
		log.DebugContext(ctx, "Showing conversation thread", "conversation_id", conv.ID, "count", len(messages))
		notify(ctx, h.deps, m, chatID, formatThread(conv, messages))
		return
	}

	var sb strings.Builder
	for i, conv := range conversations {
		fmt.Fprintf(&sb, "%d. %s", i+1, conv.Title)
		if conv.LastMessageAt.Valid {
			fmt.Fprintf(&sb, " [%s]", conv.LastMessageAt.Time.UTC().Format("2006-01-02 15:04"))
		}
		if conv.LastMessageText != "" {
			fmt.Fprintf(&sb, "\n   %s", truncate(collapseWhitespace(conv.LastMessageText), conversationPreviewLen))
		}
		sb.WriteString("\n")
	}

	log.DebugContext(ctx, "Listing conversations", "count", len(conversations))
	notify(ctx, h.deps, m, chatID, strings.TrimRight(sb.String(), "\n"))
}

// formatThread renders messages oldest first, marking who wrote each one.
func formatThread(conv *database.Conversation, messages []database.Message) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "💬 %s\n", conv.Title)
	for _, msg := range messages {
		who := "👤"
		if msg.Direction == database.DirectionOutbound {
			who = "↩️"
		}
		fmt.Fprintf(&sb, "\n%s [%s] %s", who, msg.Timestamp.UTC().Format("15:04"), collapseWhitespace(msg.Content))
	}
	return sb.String()
}
