package database

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Direction tells whether a message came from the customer or went to them.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Conversation is one customer's private chat with the bot.
type Conversation struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	ChatID          int64        `db:"chat_id"`
	UserID          int64        `db:"user_id"`
	Title           string       `db:"title"`
	LastMessageText string       `db:"last_message_text"`
	LastMessageAt   sql.NullTime `db:"last_message_at"`
}

// Message is a single relayed message. Inbound messages carry the ID of their
// forwarded copy in the operator chat so replies to it can be routed back.
type Message struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	ConversationID    uint      `db:"conversation_id"`
	ChatID            int64     `db:"chat_id"`
	UserID            int64     `db:"user_id"`
	Direction         Direction `db:"direction"`
	Content           string    `db:"content"`
	OperatorMessageID int       `db:"operator_message_id"`
	Timestamp         time.Time `db:"timestamp"`
}

// SuggestionSet is the group of quick-reply chips offered for one inbound
// message. It is active until ClearedAt is set.
type SuggestionSet struct {
	ID                string        `db:"id"`
	ConversationID    uint          `db:"conversation_id"`
	MessageID         uint          `db:"message_id"`
	OperatorChatID    int64         `db:"operator_chat_id"`
	OperatorMessageID int           `db:"operator_message_id"`
	Kind              string        `db:"kind"`
	Replies           StringList    `db:"replies"`
	CreatedAt         time.Time     `db:"created_at"`
	ExpiresAt         time.Time     `db:"expires_at"`
	ClearedAt         sql.NullTime  `db:"cleared_at"`
	SelectedIndex     sql.NullInt64 `db:"selected_index"`
}

// Active reports whether the set can still be selected at now.
func (s *SuggestionSet) Active(now time.Time) bool {
	return !s.ClearedAt.Valid && now.Before(s.ExpiresAt)
}

// StringList is stored as a JSON array in a TEXT column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}

	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode string list: %w", err)
	}
	*l = out
	return nil
}
