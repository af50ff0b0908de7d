package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/replybot/internal/metrics"
)

const (
	expirySweepTimeout  = time.Minute
	keyboardEditTimeout = 10 * time.Second
)

// newSuggestionExpiryTask clears quick replies whose TTL has passed and
// removes their keyboards from the operator chat.
func newSuggestionExpiryTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "suggestion_expiry")

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, expirySweepTimeout)
		defer cancel()

		expired, err := deps.Store.ClearExpiredSuggestionSets(ctx, time.Now())
		if err != nil {
			log.ErrorContext(ctx, "Failed to clear expired quick replies", "error", err)
			return fmt.Errorf("suggestion expiry failed: %w", err)
		}
		if len(expired) == 0 {
			log.DebugContext(ctx, "No expired quick replies")
			return nil
		}
		metrics.SuggestionSetsCleared.WithLabelValues(metrics.ReasonExpired).Add(float64(len(expired)))

		failed := 0
		for _, set := range expired {
			if set.OperatorMessageID == 0 || deps.Keyboards == nil {
				continue
			}
			editCtx, editCancel := context.WithTimeout(ctx, keyboardEditTimeout)
			_, err := deps.Keyboards.EditMessageReplyMarkup(editCtx, &bot.EditMessageReplyMarkupParams{
				ChatID:      set.OperatorChatID,
				MessageID:   set.OperatorMessageID,
				ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{}},
			})
			editCancel()
			if err != nil {
				// Usually the message was deleted or is too old to edit.
				failed++
				log.DebugContext(ctx, "Failed to remove expired keyboard", "error", err, "set_id", set.ID)
			}
		}

		log.InfoContext(ctx, "Cleared expired quick replies", "count", len(expired), "keyboard_errors", failed)
		return nil
	}
}
