package config

import "time"

// Default values for optional settings.
const (
	DefaultLogLevel            = "info"
	DefaultDBPath              = "replybot.db"
	DefaultSuggestionCount     = 3
	DefaultSuggestionTTL       = 24 * time.Hour
	DefaultSuggestionRetention = 7 * 24 * time.Hour
	DefaultMaintenanceCron     = "0 0 4 * * *"
	DefaultExpirySweepCron     = "0 */10 * * * *"
)

// Names of the scheduled tasks, used as keys under scheduler.tasks.
const (
	TaskSQLMaintenance   = "sql_maintenance"
	TaskSuggestionExpiry = "suggestion_expiry"
)

const (
	envPrefix  = "BOT"
	configType = "yaml"

	defaultWelcomeMessage = "👋 Hi! Send me a message and our team will get back to you shortly."
	defaultHelpMessage    = "Customer messages are forwarded here with quick replies.\n\n" +
		"• Tap a quick reply to send it.\n" +
		"• Or reply to a forwarded message to answer in your own words.\n\n" +
		"/suggest <text> – preview quick replies\n" +
		"/conversations – recent conversations\n" +
		"/conversations <n> – latest messages of conversation n\n" +
		"/reset – delete all stored data"
)

func defaultValues() map[string]any {
	return map[string]any{
		"logger.level": DefaultLogLevel,
		"logger.json":  false,

		"telegram.token":         "",
		"telegram.admin_user_id": 0,

		"database.path": DefaultDBPath,

		"suggestions.count":     DefaultSuggestionCount,
		"suggestions.ttl":       DefaultSuggestionTTL,
		"suggestions.retention": DefaultSuggestionRetention,

		"metrics.addr": "",

		"scheduler.tasks." + TaskSQLMaintenance + ".enabled":    true,
		"scheduler.tasks." + TaskSQLMaintenance + ".schedule":   DefaultMaintenanceCron,
		"scheduler.tasks." + TaskSuggestionExpiry + ".enabled":  true,
		"scheduler.tasks." + TaskSuggestionExpiry + ".schedule": DefaultExpirySweepCron,

		"messages.welcome":              defaultWelcomeMessage,
		"messages.help":                 defaultHelpMessage,
		"messages.error_unauthorized":   "🚫 You are not authorized to use this command.",
		"messages.error_general":        "❌ Something went wrong. Please try again later.",
		"messages.reply_hint":           "ℹ️ Reply to a forwarded message to answer that customer.",
		"messages.unknown_conversation": "🤷 I can't find the conversation for that message.",
		"messages.delivery_failed":      "⚠️ The message could not be delivered.",
		"messages.suggestion_expired":   "⌛ These quick replies are no longer available.",
		"messages.suggestion_sent":      "✅ Sent",
		"messages.suggest_usage":        "Usage: /suggest <message text>",
		"messages.no_conversations":     "No conversations yet.",
		"messages.conversations_usage":  "Usage: /conversations [number from the list]",
		"messages.non_text":             "📎 (non-text message)",
		"messages.reset_confirm":        "🔄 All conversations and messages have been deleted.",
		"messages.reset_error":          "❌ Failed to delete stored data.",
		"messages.reset_timeout":        "⏱️ Deleting stored data took too long. Please try again.",
	}
}
