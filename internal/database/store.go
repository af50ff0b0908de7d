package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrSuggestionSetNotFound is returned when a suggestion set ID is unknown.
	ErrSuggestionSetNotFound = errors.New("suggestion set not found")
	// ErrSuggestionSetInactive is returned when a set was already cleared or
	// has expired.
	ErrSuggestionSetInactive = errors.New("suggestion set is no longer active")
	// ErrSuggestionIndexOutOfRange is returned for a chip index the set doesn't have.
	ErrSuggestionIndexOutOfRange = errors.New("suggestion index out of range")
)

// Store defines the persistence operations of the relay.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// UpsertConversation creates the conversation for conv.ChatID or refreshes
	// its title and user. conv.ID and timestamps are filled in.
	UpsertConversation(ctx context.Context, conv *Conversation) error

	// GetConversation returns a conversation by ID, or nil, nil if not found.
	GetConversation(ctx context.Context, id uint) (*Conversation, error)

	// GetConversationByChatID returns a conversation by chat ID, or nil, nil if not found.
	GetConversationByChatID(ctx context.Context, chatID int64) (*Conversation, error)

	// ListConversations returns the most recently active conversations.
	ListConversations(ctx context.Context, limit int) ([]*Conversation, error)

	// SaveMessage inserts a message and updates its conversation's
	// last-message preview in the same transaction.
	SaveMessage(ctx context.Context, message *Message) error

	// SetOperatorMessageID records the forwarded copy of an inbound message.
	SetOperatorMessageID(ctx context.Context, messageID uint, operatorMessageID int) error

	// GetMessageByOperatorMessageID finds the inbound message whose forwarded
	// copy has the given ID, or nil, nil if there is none.
	GetMessageByOperatorMessageID(ctx context.Context, operatorMessageID int) (*Message, error)

	// GetRecentMessagesInChat returns up to limit messages of a chat, oldest first.
	GetRecentMessagesInChat(ctx context.Context, chatID int64, limit int) ([]Message, error)

	// SaveSuggestionSet inserts a new, active suggestion set.
	SaveSuggestionSet(ctx context.Context, set *SuggestionSet) error

	// GetSuggestionSet returns a set by ID, or nil, nil if not found.
	GetSuggestionSet(ctx context.Context, id string) (*SuggestionSet, error)

	// ClearActiveSuggestionSets clears every active set of a conversation and
	// returns the sets it cleared.
	ClearActiveSuggestionSets(ctx context.Context, conversationID uint, now time.Time) ([]*SuggestionSet, error)

	// SelectSuggestion atomically records the chosen chip and clears the set.
	// Only the first selection of a set succeeds.
	SelectSuggestion(ctx context.Context, id string, index int, now time.Time) (*SuggestionSet, error)

	// ClearExpiredSuggestionSets clears active sets whose expiry has passed
	// and returns them.
	ClearExpiredSuggestionSets(ctx context.Context, now time.Time) ([]*SuggestionSet, error)

	// PruneSuggestionSets deletes sets cleared before clearedBefore and
	// returns how many were removed. Active sets are never deleted.
	PruneSuggestionSets(ctx context.Context, clearedBefore time.Time) (int, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error

	// DeleteAllData deletes all conversations, messages and suggestion sets
	// in a single transaction.
	DeleteAllData(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

const (
	conversationColumns = `id, chat_id, user_id, title, last_message_text, last_message_at, created_at, updated_at`
	messageColumns      = `id, conversation_id, chat_id, user_id, direction, content, operator_message_id, timestamp, created_at, updated_at`
	suggestionColumns   = `id, conversation_id, message_id, operator_chat_id, operator_message_id, kind, replies, created_at, expires_at, cleared_at, selected_index`
)

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn in a transaction, rolling back unless fn succeeds and the
// commit goes through.
func (s *sqlxStore) withTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction", "operation", op, "error", err)
		return fmt.Errorf("failed to begin transaction for %s: %w", op, err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back transaction", "operation", op, "error", rollbackErr)
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "operation", op, "error", err)
		return fmt.Errorf("failed to commit transaction for %s: %w", op, err)
	}
	tx = nil
	return nil
}

func (s *sqlxStore) UpsertConversation(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return fmt.Errorf("cannot save nil conversation")
	}
	if conv.ChatID == 0 {
		return fmt.Errorf("conversation must have a non-zero chat_id")
	}
	if conv.UserID == 0 {
		return fmt.Errorf("conversation must have a non-zero user_id")
	}

	now := time.Now().UTC()
	err := s.withTx(ctx, "upsert conversation", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO conversations (chat_id, user_id, title, last_message_text, created_at, updated_at)
            VALUES (?, ?, ?, '', ?, ?)
            ON CONFLICT (chat_id) DO UPDATE SET
                user_id = excluded.user_id,
                title = excluded.title,
                updated_at = excluded.updated_at;
        `, conv.ChatID, conv.UserID, conv.Title, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert conversation for chat %d: %w", conv.ChatID, err)
		}

		return tx.GetContext(ctx, conv,
			`SELECT `+conversationColumns+` FROM conversations WHERE chat_id = ?`, conv.ChatID)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error upserting conversation", "chat_id", conv.ChatID, "error", err)
		return err
	}

	s.logger.DebugContext(ctx, "Conversation upserted", "conversation_id", conv.ID, "chat_id", conv.ChatID)
	return nil
}

func (s *sqlxStore) GetConversation(ctx context.Context, id uint) (*Conversation, error) {
	if id == 0 {
		return nil, fmt.Errorf("conversation id cannot be zero")
	}
	return s.getConversation(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
}

func (s *sqlxStore) GetConversationByChatID(ctx context.Context, chatID int64) (*Conversation, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}
	return s.getConversation(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE chat_id = ?`, chatID)
}

func (s *sqlxStore) getConversation(ctx context.Context, query string, arg any) (*Conversation, error) {
	var conv Conversation
	err := s.db.GetContext(ctx, &conv, query, arg)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting conversation", "key", arg, "error", err)
		return nil, fmt.Errorf("failed to get conversation %v: %w", arg, err)
	}
	return &conv, nil
}

func (s *sqlxStore) ListConversations(ctx context.Context, limit int) ([]*Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var conversations []*Conversation
	err := s.db.SelectContext(ctx, &conversations, `
        SELECT `+conversationColumns+`
        FROM conversations
        ORDER BY (SELECT MAX(m.id) FROM messages m WHERE m.conversation_id = conversations.id) DESC, id DESC
        LIMIT ?;
    `, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing conversations", "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return conversations, nil
}

func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.ConversationID == 0 {
		return fmt.Errorf("message must have a non-zero conversation_id")
	}
	if message.ChatID == 0 {
		return fmt.Errorf("message must have a non-zero chat_id")
	}
	if message.Direction != DirectionInbound && message.Direction != DirectionOutbound {
		return fmt.Errorf("message has invalid direction %q", message.Direction)
	}
	if message.Content == "" {
		return fmt.Errorf("message must have non-empty content")
	}
	if message.Timestamp.IsZero() {
		return fmt.Errorf("message must have a non-zero timestamp")
	}

	now := time.Now().UTC()
	message.CreatedAt = now
	message.UpdatedAt = now
	message.Timestamp = message.Timestamp.UTC()

	err := s.withTx(ctx, "save message", func(tx *sqlx.Tx) error {
		result, err := tx.NamedExecContext(ctx, `
            INSERT INTO messages (conversation_id, chat_id, user_id, direction, content, operator_message_id, timestamp, created_at, updated_at)
            VALUES (:conversation_id, :chat_id, :user_id, :direction, :content, :operator_message_id, :timestamp, :created_at, :updated_at);
        `, message)
		if err != nil {
			return fmt.Errorf("failed to save message (chat %d): %w", message.ChatID, err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read inserted message id: %w", err)
		}
		//nolint:gosec // integer overflow conversion is acceptable here
		message.ID = uint(id)

		result, err = tx.ExecContext(ctx, `
            UPDATE conversations SET last_message_text = ?, last_message_at = ?, updated_at = ?
            WHERE id = ?;
        `, message.Content, message.Timestamp, now, message.ConversationID)
		if err != nil {
			return fmt.Errorf("failed to update conversation %d: %w", message.ConversationID, err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected != 1 {
			return fmt.Errorf("conversation %d does not exist", message.ConversationID)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message",
			"conversation_id", message.ConversationID, "chat_id", message.ChatID, "error", err)
		return err
	}

	s.logger.DebugContext(ctx, "Message saved successfully",
		"conversation_id", message.ConversationID, "message_id", message.ID, "direction", message.Direction)
	return nil
}

func (s *sqlxStore) SetOperatorMessageID(ctx context.Context, messageID uint, operatorMessageID int) error {
	if messageID == 0 || operatorMessageID == 0 {
		return fmt.Errorf("message id and operator message id must be non-zero")
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET operator_message_id = ?, updated_at = ? WHERE id = ?`,
		operatorMessageID, time.Now().UTC(), messageID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error linking operator message", "message_id", messageID, "error", err)
		return fmt.Errorf("failed to set operator message id for message %d: %w", messageID, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("message %d does not exist", messageID)
	}
	return nil
}

func (s *sqlxStore) GetMessageByOperatorMessageID(ctx context.Context, operatorMessageID int) (*Message, error) {
	if operatorMessageID == 0 {
		return nil, fmt.Errorf("operator message id cannot be zero")
	}

	var msg Message
	err := s.db.GetContext(ctx, &msg, `
        SELECT `+messageColumns+`
        FROM messages
        WHERE operator_message_id = ? AND direction = ?
        ORDER BY id DESC
        LIMIT 1;
    `, operatorMessageID, DirectionInbound)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error finding message by operator message id",
			"operator_message_id", operatorMessageID, "error", err)
		return nil, fmt.Errorf("failed to find message for operator message %d: %w", operatorMessageID, err)
	}
	return &msg, nil
}

func (s *sqlxStore) GetRecentMessagesInChat(ctx context.Context, chatID int64, limit int) ([]Message, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}

	if limit <= 0 {
		limit = 20
		s.logger.DebugContext(ctx, "Invalid limit provided, using default", "chat_id", chatID, "default_limit", limit)
	} else if limit > 100 {
		limit = 100
		s.logger.DebugContext(ctx, "Limit exceeded maximum value, capping", "chat_id", chatID, "capped_limit", limit)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []Message
	err := s.db.SelectContext(ctx, &messages, `
        SELECT `+messageColumns+`
        FROM messages
        WHERE chat_id = ?
        ORDER BY id DESC
        LIMIT ?;
    `, chatID, limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent messages", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get recent messages for chat %d: %w", chatID, err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (s *sqlxStore) SaveSuggestionSet(ctx context.Context, set *SuggestionSet) error {
	if set == nil {
		return fmt.Errorf("cannot save nil suggestion set")
	}
	if set.ID == "" {
		return fmt.Errorf("suggestion set must have an id")
	}
	if set.ConversationID == 0 || set.MessageID == 0 {
		return fmt.Errorf("suggestion set must reference a conversation and a message")
	}
	if set.ExpiresAt.IsZero() {
		return fmt.Errorf("suggestion set must have an expiry")
	}

	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now().UTC()
	}
	set.CreatedAt = set.CreatedAt.UTC()
	set.ExpiresAt = set.ExpiresAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
        INSERT INTO suggestion_sets (id, conversation_id, message_id, operator_chat_id, operator_message_id, kind, replies, created_at, expires_at, cleared_at, selected_index)
        VALUES (:id, :conversation_id, :message_id, :operator_chat_id, :operator_message_id, :kind, :replies, :created_at, :expires_at, :cleared_at, :selected_index);
    `, set)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving suggestion set", "set_id", set.ID, "error", err)
		return fmt.Errorf("failed to save suggestion set %s: %w", set.ID, err)
	}

	s.logger.DebugContext(ctx, "Suggestion set saved",
		"set_id", set.ID, "conversation_id", set.ConversationID, "replies", len(set.Replies))
	return nil
}

func (s *sqlxStore) GetSuggestionSet(ctx context.Context, id string) (*SuggestionSet, error) {
	if id == "" {
		return nil, fmt.Errorf("suggestion set id cannot be empty")
	}
	return getSuggestionSet(ctx, s.db, id)
}

func getSuggestionSet(ctx context.Context, q sqlx.QueryerContext, id string) (*SuggestionSet, error) {
	var set SuggestionSet
	err := sqlx.GetContext(ctx, q, &set, `SELECT `+suggestionColumns+` FROM suggestion_sets WHERE id = ?`, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get suggestion set %s: %w", id, err)
	}
	return &set, nil
}

func (s *sqlxStore) ClearActiveSuggestionSets(ctx context.Context, conversationID uint, now time.Time) ([]*SuggestionSet, error) {
	if conversationID == 0 {
		return nil, fmt.Errorf("conversation id cannot be zero")
	}

	var cleared []*SuggestionSet
	err := s.withTx(ctx, "clear suggestion sets", func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &cleared, `
            SELECT `+suggestionColumns+`
            FROM suggestion_sets
            WHERE conversation_id = ? AND cleared_at IS NULL;
        `, conversationID); err != nil {
			return fmt.Errorf("failed to load active suggestion sets: %w", err)
		}
		return clearSets(ctx, tx, cleared, now)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error clearing suggestion sets", "conversation_id", conversationID, "error", err)
		return nil, err
	}

	if len(cleared) > 0 {
		s.logger.DebugContext(ctx, "Cleared active suggestion sets", "conversation_id", conversationID, "count", len(cleared))
	}
	return cleared, nil
}

func (s *sqlxStore) SelectSuggestion(ctx context.Context, id string, index int, now time.Time) (*SuggestionSet, error) {
	if id == "" {
		return nil, fmt.Errorf("suggestion set id cannot be empty")
	}

	var selected *SuggestionSet
	err := s.withTx(ctx, "select suggestion", func(tx *sqlx.Tx) error {
		set, err := getSuggestionSet(ctx, tx, id)
		if err != nil {
			return err
		}
		if set == nil {
			return ErrSuggestionSetNotFound
		}
		if !set.Active(now) {
			return ErrSuggestionSetInactive
		}
		if index < 0 || index >= len(set.Replies) {
			return ErrSuggestionIndexOutOfRange
		}

		result, err := tx.ExecContext(ctx, `
            UPDATE suggestion_sets SET cleared_at = ?, selected_index = ?
            WHERE id = ? AND cleared_at IS NULL;
        `, now.UTC(), index, id)
		if err != nil {
			return fmt.Errorf("failed to record suggestion selection: %w", err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected != 1 {
			return ErrSuggestionSetInactive
		}

		set.ClearedAt = sql.NullTime{Time: now.UTC(), Valid: true}
		set.SelectedIndex = sql.NullInt64{Int64: int64(index), Valid: true}
		selected = set
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrSuggestionSetInactive) && !errors.Is(err, ErrSuggestionSetNotFound) {
			s.logger.ErrorContext(ctx, "Error selecting suggestion", "set_id", id, "index", index, "error", err)
		}
		return nil, err
	}
	return selected, nil
}

func (s *sqlxStore) ClearExpiredSuggestionSets(ctx context.Context, now time.Time) ([]*SuggestionSet, error) {
	var expired []*SuggestionSet
	err := s.withTx(ctx, "clear expired suggestion sets", func(tx *sqlx.Tx) error {
		var active []*SuggestionSet
		if err := tx.SelectContext(ctx, &active,
			`SELECT `+suggestionColumns+` FROM suggestion_sets WHERE cleared_at IS NULL`); err != nil {
			return fmt.Errorf("failed to load active suggestion sets: %w", err)
		}
		for _, set := range active {
			if !set.Active(now) {
				expired = append(expired, set)
			}
		}
		return clearSets(ctx, tx, expired, now)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error clearing expired suggestion sets", "error", err)
		return nil, err
	}
	return expired, nil
}

// clearSets marks sets as cleared at now, in place and in the database.
func clearSets(ctx context.Context, tx *sqlx.Tx, sets []*SuggestionSet, now time.Time) error {
	if len(sets) == 0 {
		return nil
	}

	ids := make([]string, len(sets))
	for i, set := range sets {
		ids[i] = set.ID
	}

	query, args, err := sqlx.In(`UPDATE suggestion_sets SET cleared_at = ? WHERE cleared_at IS NULL AND id IN (?)`, now.UTC(), ids)
	if err != nil {
		return fmt.Errorf("failed to build clear query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to clear suggestion sets: %w", err)
	}

	for _, set := range sets {
		set.ClearedAt = sql.NullTime{Time: now.UTC(), Valid: true}
	}
	return nil
}

func (s *sqlxStore) PruneSuggestionSets(ctx context.Context, clearedBefore time.Time) (int, error) {
	var stale []string
	err := s.withTx(ctx, "prune suggestion sets", func(tx *sqlx.Tx) error {
		var cleared []*SuggestionSet
		if err := tx.SelectContext(ctx, &cleared,
			`SELECT `+suggestionColumns+` FROM suggestion_sets WHERE cleared_at IS NOT NULL`); err != nil {
			return fmt.Errorf("failed to load cleared suggestion sets: %w", err)
		}
		for _, set := range cleared {
			if set.ClearedAt.Time.Before(clearedBefore) {
				stale = append(stale, set.ID)
			}
		}
		if len(stale) == 0 {
			return nil
		}

		query, args, err := sqlx.In(`DELETE FROM suggestion_sets WHERE cleared_at IS NOT NULL AND id IN (?)`, stale)
		if err != nil {
			return fmt.Errorf("failed to build prune query: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to delete suggestion sets: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error pruning suggestion sets", "error", err)
		return 0, err
	}

	s.logger.DebugContext(ctx, "Pruned suggestion sets", "count", len(stale))
	return len(stale), nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}

func (s *sqlxStore) DeleteAllData(ctx context.Context) error {
	counts := make(map[string]int64, 3)
	err := s.withTx(ctx, "data reset", func(tx *sqlx.Tx) error {
		// children first; foreign keys are not enforced by default in SQLite
		for _, table := range []string{"suggestion_sets", "messages", "conversations"} {
			result, err := tx.ExecContext(ctx, "DELETE FROM "+table)
			if err != nil {
				return fmt.Errorf("failed to delete %s during reset: %w", table, err)
			}
			counts[table], _ = result.RowsAffected()
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Error resetting data", "error", err)
		return err
	}

	s.logger.InfoContext(ctx, "Successfully reset all data",
		"suggestion_sets_deleted", counts["suggestion_sets"],
		"messages_deleted", counts["messages"],
		"conversations_deleted", counts["conversations"])
	return nil
}
