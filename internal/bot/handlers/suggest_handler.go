package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/replybot/internal/smartreply"
)

// NewSuggestHandler returns a handler for /suggest <text>, which previews the
// quick replies a customer message would get.
func NewSuggestHandler(deps HandlerDeps) bot.HandlerFunc {
	return suggestHandler{deps}.Handle
}

type suggestHandler struct {
	deps HandlerDeps
}

func (h suggestHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handle(ctx, b, update)
}

func (h suggestHandler) handle(ctx context.Context, m Messenger, update *models.Update) {
	log := h.deps.Logger.With("handler", "suggest")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	text := commandArgs(update.Message.Text)
	if text == "" {
		notify(ctx, h.deps, m, chatID, h.deps.Config.Messages.SuggestUsageMsg)
		return
	}

	suggestion, err := h.deps.Engine.Suggest(smartreply.Request{
		Text:   text,
		Sender: smartreply.SenderRemote,
		Count:  h.deps.Config.Suggestions.Count,
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to preview quick replies", "error", err)
		notify(ctx, h.deps, m, chatID, h.deps.Config.Messages.ErrorGeneralMsg)
		return
	}

	log.DebugContext(ctx, "Previewed quick replies", "kind", suggestion.Kind, "replies", len(suggestion.Replies))
	notify(ctx, h.deps, m, chatID, FormatSuggestion(suggestion))
}

// FormatSuggestion renders a suggestion as plain text.
func FormatSuggestion(s *smartreply.Suggestion) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Kind: %s\n", s.Kind)
	if s.Pattern != "" {
		fmt.Fprintf(&sb, "Pattern: %s\n", s.Pattern)
	}
	if len(s.Categories) > 0 {
		fmt.Fprintf(&sb, "Categories: %s\n", strings.Join(s.Categories, ", "))
	}
	if len(s.Replies) == 0 {
		sb.WriteString("\n(no replies)")
		return sb.String()
	}
	sb.WriteString("\n")
	for i, reply := range s.Replies {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, reply)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// commandArgs returns the text after the leading /command token.
func commandArgs(text string) string {
	_, args, _ := strings.Cut(strings.TrimSpace(text), " ")
	return strings.TrimSpace(args)
}
