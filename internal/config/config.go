// Package config loads the replybot configuration from defaults, an optional
// YAML file and BOT_* environment variables, and validates the result.
package config

import (
	"time"

	"github.com/go-telegram/bot/models"
)

// Config is the root configuration of the bot.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Suggestions SuggestionsConfig `mapstructure:"suggestions"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Messages    MessagesConfig    `mapstructure:"messages"`
}

// LoggerConfig controls slog output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot token and the operator's identity. Every
// inbound customer message is forwarded to the operator's private chat.
type TelegramConfig struct {
	Token       string `mapstructure:"token"         validate:"required"`
	AdminUserID int64  `mapstructure:"admin_user_id" validate:"required,gt=0"`

	// BotInfo is filled from getMe at startup.
	BotInfo *models.User `mapstructure:"-"`
}

// DatabaseConfig points at the SQLite database file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SuggestionsConfig tunes the quick-reply chips shown to the operator.
// Cleared sets are kept for Retention before maintenance deletes them.
type SuggestionsConfig struct {
	Count     int           `mapstructure:"count"     validate:"min=0,max=8"`
	TTL       time.Duration `mapstructure:"ttl"       validate:"min=1m,max=168h"`
	Retention time.Duration `mapstructure:"retention" validate:"min=1h"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// SchedulerConfig maps task names to their schedule.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig enables a registered task on a cron schedule (with seconds).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MessagesConfig holds every user-facing text the bot sends.
type MessagesConfig struct {
	Welcome              string `mapstructure:"welcome"                validate:"required"`
	Help                 string `mapstructure:"help"                   validate:"required"`
	ErrorUnauthorizedMsg string `mapstructure:"error_unauthorized"     validate:"required"`
	ErrorGeneralMsg      string `mapstructure:"error_general"          validate:"required"`
	ReplyHintMsg         string `mapstructure:"reply_hint"             validate:"required"`
	UnknownConversation  string `mapstructure:"unknown_conversation"   validate:"required"`
	DeliveryFailedMsg    string `mapstructure:"delivery_failed"        validate:"required"`
	SuggestionExpiredMsg string `mapstructure:"suggestion_expired"     validate:"required"`
	SuggestionSentMsg    string `mapstructure:"suggestion_sent"        validate:"required"`
	SuggestUsageMsg      string `mapstructure:"suggest_usage"          validate:"required"`
	NoConversationsMsg   string `mapstructure:"no_conversations"       validate:"required"`
	ConversationsUsage   string `mapstructure:"conversations_usage"    validate:"required"`
	NonTextMsg           string `mapstructure:"non_text"               validate:"required"`
	ResetConfirmMsg      string `mapstructure:"reset_confirm"          validate:"required"`
	ResetErrorMsg        string `mapstructure:"reset_error"            validate:"required"`
	ResetTimeoutMsg      string `mapstructure:"reset_timeout"          validate:"required"`
}

// OperatorChatID is the chat customer messages are forwarded to. In a private
// chat the chat ID equals the user ID.
func (c *Config) OperatorChatID() int64 {
	return c.Telegram.AdminUserID
}

// BotUsername returns the bot's username, or "" before getMe has run.
func (c *Config) BotUsername() string {
	if c.Telegram.BotInfo == nil {
		return ""
	}
	return c.Telegram.BotInfo.Username
}
