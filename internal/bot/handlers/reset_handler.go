package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const resetTimeout = 30 * time.Second

// NewResetHandler returns a handler for the /reset command.
func NewResetHandler(deps HandlerDeps) bot.HandlerFunc {
	return resetHandler{deps}.Handle
}

type resetHandler struct {
	deps HandlerDeps
}

func (h resetHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h resetHandler) handle(ctx context.Context, m Messenger, update *models.Update) {
	log := h.deps.Logger.With("handler", "reset")
	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Reset handler called with nil Message or From", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	log.InfoContext(ctx, "Operator requested data reset", "chat_id", chatID, "user_id", update.Message.From.ID)

	timeoutCtx, cancel := context.WithTimeout(ctx, resetTimeout)
	defer cancel()

	err := h.deps.Store.DeleteAllData(timeoutCtx)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.WarnContext(ctx, "Reset operation timed out or was cancelled", "chat_id", chatID)
		notify(ctx, h.deps, m, chatID, h.deps.Config.Messages.ResetTimeoutMsg)
		return
	}

	if err != nil {
		log.ErrorContext(ctx, "Failed to reset data", "error", err, "chat_id", chatID)
		notify(ctx, h.deps, m, chatID, h.deps.Config.Messages.ResetErrorMsg)
		return
	}

	log.InfoContext(ctx, "Deleted all conversations, messages and quick replies", "chat_id", chatID)
	notify(ctx, h.deps, m, chatID, h.deps.Config.Messages.ResetConfirmMsg)
}
