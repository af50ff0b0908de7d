package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/replybot/internal/database"
	"github.com/edgard/replybot/internal/metrics"
)

type suggestionCallbackHandler struct {
	deps HandlerDeps
}

// NewSuggestionCallbackHandler returns a handler for taps on quick-reply
// chips. The chosen text is sent to the customer exactly once.
func NewSuggestionCallbackHandler(deps HandlerDeps) bot.HandlerFunc {
	return suggestionCallbackHandler{deps}.Handle
}

func (h suggestionCallbackHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h suggestionCallbackHandler) handle(ctx context.Context, m Messenger, update *models.Update) {
	deps := h.deps
	log := deps.Logger.With("handler", "suggestion_callback")

	cq := update.CallbackQuery
	if cq == nil {
		log.WarnContext(ctx, "Callback handler received update without callback query", "update_id", update.ID)
		return
	}

	setID, index, err := parseSuggestionCallbackData(cq.Data)
	if err != nil {
		log.WarnContext(ctx, "Invalid callback data", "data", cq.Data)
		h.answer(ctx, m, cq.ID, deps.Config.Messages.SuggestionExpiredMsg)
		return
	}
	log = log.With("set_id", setID, "index", index)

	dbCtx, cancel := context.WithTimeout(ctx, dbTimeout)
	set, err := deps.Store.SelectSuggestion(dbCtx, setID, index, time.Now())
	cancel()

	switch {
	case errors.Is(err, database.ErrSuggestionSetInactive),
		errors.Is(err, database.ErrSuggestionSetNotFound),
		errors.Is(err, database.ErrSuggestionIndexOutOfRange):
		log.InfoContext(ctx, "Quick reply is no longer available", "reason", err)
		h.answer(ctx, m, cq.ID, deps.Config.Messages.SuggestionExpiredMsg)
		h.stripCallbackKeyboard(ctx, m, cq)
		return
	case err != nil:
		log.ErrorContext(ctx, "Failed to record quick reply selection", "error", err)
		h.answer(ctx, m, cq.ID, deps.Config.Messages.ErrorGeneralMsg)
		return
	}

	metrics.SuggestionSetsCleared.WithLabelValues(metrics.ReasonSelected).Inc()
	stripKeyboard(ctx, deps, m, set)

	dbCtx, cancel = context.WithTimeout(ctx, dbTimeout)
	conv, err := deps.Store.GetConversation(dbCtx, set.ConversationID)
	cancel()
	if err != nil || conv == nil {
		log.ErrorContext(ctx, "Failed to load conversation for quick reply", "error", err, "conversation_id", set.ConversationID)
		h.answer(ctx, m, cq.ID, deps.Config.Messages.UnknownConversation)
		return
	}

	if err := deliver(ctx, deps, m, conv, set.Replies[index], metrics.SourceSuggestion); err != nil {
		h.answer(ctx, m, cq.ID, deps.Config.Messages.DeliveryFailedMsg)
		return
	}
	h.answer(ctx, m, cq.ID, deps.Config.Messages.SuggestionSentMsg)
}

func (h suggestionCallbackHandler) answer(ctx context.Context, m Messenger, callbackID, text string) {
	_, err := m.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to answer callback query", "error", err, "callback_id", callbackID)
	}
}

// stripCallbackKeyboard removes stale chips from the message the tap came from.
func (h suggestionCallbackHandler) stripCallbackKeyboard(ctx context.Context, m Messenger, cq *models.CallbackQuery) {
	msg := cq.Message.Message
	if msg == nil {
		return
	}
	stripKeyboard(ctx, h.deps, m, &database.SuggestionSet{
		OperatorChatID:    msg.Chat.ID,
		OperatorMessageID: msg.ID,
	})
}
