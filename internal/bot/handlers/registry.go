package handlers

import (
	"github.com/go-telegram/bot"
)

// RegisteredHandler represents a command handler with its description and middleware.
// It encapsulates all information needed to register and document a command.
type RegisteredHandler struct {
	HandlerType bot.HandlerType
	Pattern     string
	Handler     bot.HandlerFunc
	Middleware  []bot.Middleware
	MatchType   bot.MatchType
}

// RegisterAllCommands initializes and returns a map of all available bot commands.
// It configures each command with appropriate handlers and middleware.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["/start"] = RegisteredHandler{
		HandlerType: bot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   bot.MatchTypeCommandStartOnly,
	}

	adminMiddleware := []bot.Middleware{AdminOnly(deps)}

	handlers["/help"] = RegisteredHandler{
		HandlerType: bot.HandlerTypeMessageText,
		Pattern:     "help",
		Handler:     NewHelpHandler(deps),
		MatchType:   bot.MatchTypeCommandStartOnly,
		Middleware:  adminMiddleware,
	}
	handlers["/suggest"] = RegisteredHandler{
		HandlerType: bot.HandlerTypeMessageText,
		Pattern:     "suggest",
		Handler:     NewSuggestHandler(deps),
		MatchType:   bot.MatchTypeCommandStartOnly,
		Middleware:  adminMiddleware,
	}
	handlers["/conversations"] = RegisteredHandler{
		HandlerType: bot.HandlerTypeMessageText,
		Pattern:     "conversations",
		Handler:     NewConversationsHandler(deps),
		MatchType:   bot.MatchTypeCommandStartOnly,
		Middleware:  adminMiddleware,
	}
	handlers["/reset"] = RegisteredHandler{
		HandlerType: bot.HandlerTypeMessageText,
		Pattern:     "reset",
		Handler:     NewResetHandler(deps),
		MatchType:   bot.MatchTypeCommandStartOnly,
		Middleware:  adminMiddleware,
	}
	handlers["suggestion_callback"] = RegisteredHandler{
		HandlerType: bot.HandlerTypeCallbackQueryData,
		Pattern:     suggestionCallbackPrefix,
		Handler:     NewSuggestionCallbackHandler(deps),
		MatchType:   bot.MatchTypePrefix,
		Middleware:  adminMiddleware,
	}

	return handlers
}
