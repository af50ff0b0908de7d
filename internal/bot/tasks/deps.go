// Package tasks implements the scheduled tasks of the relay bot and their
// registration.
package tasks

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/replybot/internal/config"
	"github.com/edgard/replybot/internal/database"
)

// KeyboardEditor removes inline keyboards from messages already sent.
// *bot.Bot satisfies it.
type KeyboardEditor interface {
	EditMessageReplyMarkup(ctx context.Context, params *bot.EditMessageReplyMarkupParams) (*models.Message, error)
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	Config    *config.Config
	Keyboards KeyboardEditor
}
