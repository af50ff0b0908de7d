// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// AdminOnly creates a middleware that checks if the sender of a message or
// callback query is the configured operator. Anyone else is told they are not
// authorized and the update stops here.
func AdminOnly(deps HandlerDeps) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			if !authorize(ctx, deps, b, update) {
				return
			}
			next(ctx, b, update)
		}
	}
}

func authorize(ctx context.Context, deps HandlerDeps, m Messenger, update *models.Update) bool {
	adminID := deps.Config.Telegram.AdminUserID
	log := deps.Logger.With("middleware", "AdminOnly")

	switch {
	case update.Message != nil && update.Message.From != nil:
		userID := update.Message.From.ID
		if userID == adminID {
			return true
		}
		chatID := update.Message.Chat.ID
		log.WarnContext(ctx, "Unauthorized access attempt", "user_id", userID, "chat_id", chatID)

		_, err := m.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   deps.Config.Messages.ErrorUnauthorizedMsg,
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to send unauthorized message", "error", err, "chat_id", chatID)
		}
		return false

	case update.CallbackQuery != nil:
		userID := update.CallbackQuery.From.ID
		if userID == adminID {
			return true
		}
		log.WarnContext(ctx, "Unauthorized callback query", "user_id", userID)

		_, err := m.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: update.CallbackQuery.ID,
			Text:            deps.Config.Messages.ErrorUnauthorizedMsg,
			ShowAlert:       true,
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to answer unauthorized callback", "error", err, "user_id", userID)
		}
		return false
	}

	// No sender information; nothing to check against.
	return true
}
