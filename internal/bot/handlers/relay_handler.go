package handlers

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/edgard/replybot/internal/database"
	"github.com/edgard/replybot/internal/metrics"
	"github.com/edgard/replybot/internal/smartreply"
)

type relayHandler struct {
	deps HandlerDeps
}

// NewRelayHandler returns the default handler. Customer messages in private
// chats are forwarded to the operator with quick replies; operator replies to
// a forwarded message are sent back to that customer.
func NewRelayHandler(deps HandlerDeps) bot.HandlerFunc {
	return relayHandler{deps}.Handle
}

func (h relayHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h relayHandler) handle(ctx context.Context, m Messenger, update *models.Update) {
	log := h.deps.Logger.With("handler", "relay")

	msg := update.Message
	if msg == nil || msg.From == nil {
		log.DebugContext(ctx, "Ignoring update without message or sender", "update_id", update.ID)
		return
	}

	if msg.From.ID == h.deps.Config.Telegram.AdminUserID {
		h.handleOperator(ctx, m, msg)
		return
	}

	if msg.Chat.Type != models.ChatTypePrivate {
		log.DebugContext(ctx, "Ignoring message outside a private chat", "chat_id", msg.Chat.ID, "chat_type", msg.Chat.Type)
		return
	}
	if msg.From.IsBot {
		log.DebugContext(ctx, "Ignoring message from a bot", "user_id", msg.From.ID)
		return
	}

	h.handleCustomer(ctx, m, msg)
}

func (h relayHandler) handleCustomer(ctx context.Context, m Messenger, msg *models.Message) {
	deps := h.deps
	log := deps.Logger.With("handler", "relay", "chat_id", msg.Chat.ID, "user_id", msg.From.ID)
	metrics.InboundMessages.Inc()

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	hasText := text != ""
	if !hasText {
		text = deps.Config.Messages.NonTextMsg
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	conv := &database.Conversation{ChatID: msg.Chat.ID, UserID: msg.From.ID, Title: displayName(msg.From)}
	if err := deps.Store.UpsertConversation(dbCtx, conv); err != nil {
		log.ErrorContext(ctx, "Failed to record conversation", "error", err)
		notify(ctx, deps, m, deps.Config.OperatorChatID(), forwardText(&database.Conversation{Title: displayName(msg.From)}, text))
		return
	}

	timestamp := time.Unix(int64(msg.Date), 0)
	if msg.Date == 0 {
		timestamp = time.Now()
	}
	inbound := &database.Message{
		ConversationID: conv.ID,
		ChatID:         conv.ChatID,
		UserID:         conv.UserID,
		Direction:      database.DirectionInbound,
		Content:        text,
		Timestamp:      timestamp,
	}
	if err := deps.Store.SaveMessage(dbCtx, inbound); err != nil {
		log.ErrorContext(ctx, "Failed to save inbound message", "error", err)
		notify(ctx, deps, m, deps.Config.OperatorChatID(), forwardText(conv, text))
		return
	}

	clearSuggestions(ctx, deps, m, conv.ID, metrics.ReasonSuperseded)

	var suggestion *smartreply.Suggestion
	if hasText {
		s, err := deps.Engine.Suggest(smartreply.Request{
			Text:   text,
			Sender: smartreply.SenderRemote,
			Count:  deps.Config.Suggestions.Count,
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to generate quick replies", "error", err)
		} else {
			suggestion = s
		}
	}

	setID := uuid.NewString()
	params := &bot.SendMessageParams{
		ChatID: deps.Config.OperatorChatID(),
		Text:   forwardText(conv, text),
	}
	if suggestion != nil && len(suggestion.Replies) > 0 {
		params.ReplyMarkup = suggestionKeyboard(setID, suggestion.Replies)
	}

	sendCtx, sendCancel := context.WithTimeout(ctx, sendTimeout)
	forwarded, err := m.SendMessage(sendCtx, params)
	sendCancel()
	if err != nil {
		log.ErrorContext(ctx, "Failed to forward message to operator", "error", err)
		return
	}

	linkCtx, linkCancel := context.WithTimeout(ctx, dbTimeout)
	defer linkCancel()

	if err := deps.Store.SetOperatorMessageID(linkCtx, inbound.ID, forwarded.ID); err != nil {
		log.ErrorContext(ctx, "Failed to link forwarded message", "error", err, "message_id", inbound.ID)
	}

	if params.ReplyMarkup == nil {
		log.InfoContext(ctx, "Message forwarded without quick replies", "message_id", inbound.ID)
		return
	}

	now := time.Now()
	set := &database.SuggestionSet{
		ID:                setID,
		ConversationID:    conv.ID,
		MessageID:         inbound.ID,
		OperatorChatID:    deps.Config.OperatorChatID(),
		OperatorMessageID: forwarded.ID,
		Kind:              string(suggestion.Kind),
		Replies:           database.StringList(suggestion.Replies),
		CreatedAt:         now,
		ExpiresAt:         now.Add(deps.Config.Suggestions.TTL),
	}
	if err := deps.Store.SaveSuggestionSet(linkCtx, set); err != nil {
		log.ErrorContext(ctx, "Failed to save quick replies, removing them", "error", err, "set_id", setID)
		stripKeyboard(ctx, deps, m, set)
		return
	}

	metrics.SuggestionsGenerated.WithLabelValues(set.Kind).Inc()
	metrics.SuggestionCandidates.Observe(float64(len(set.Replies)))
	log.InfoContext(ctx, "Message forwarded with quick replies",
		"message_id", inbound.ID, "kind", set.Kind, "categories", suggestion.Categories,
		"pattern", suggestion.Pattern, "replies", len(set.Replies))
}

func (h relayHandler) handleOperator(ctx context.Context, m Messenger, msg *models.Message) {
	deps := h.deps
	log := deps.Logger.With("handler", "relay", "chat_id", msg.Chat.ID)
	chatID := msg.Chat.ID

	if msg.ReplyToMessage == nil || msg.Text == "" {
		notify(ctx, deps, m, chatID, deps.Config.Messages.ReplyHintMsg)
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	forwarded, err := deps.Store.GetMessageByOperatorMessageID(dbCtx, msg.ReplyToMessage.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up replied message", "error", err)
		notify(ctx, deps, m, chatID, deps.Config.Messages.ErrorGeneralMsg)
		return
	}
	if forwarded == nil {
		log.InfoContext(ctx, "Operator replied to a message that is not a forwarded customer message",
			"reply_to_message_id", msg.ReplyToMessage.ID)
		notify(ctx, deps, m, chatID, deps.Config.Messages.UnknownConversation)
		return
	}

	conv, err := deps.Store.GetConversation(dbCtx, forwarded.ConversationID)
	if err != nil || conv == nil {
		log.ErrorContext(ctx, "Failed to load conversation", "error", err, "conversation_id", forwarded.ConversationID)
		notify(ctx, deps, m, chatID, deps.Config.Messages.UnknownConversation)
		return
	}

	if err := deliver(ctx, deps, m, conv, msg.Text, metrics.SourceTyped); err != nil {
		notify(ctx, deps, m, chatID, deps.Config.Messages.DeliveryFailedMsg)
	}
}
