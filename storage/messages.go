package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gennadis/chatengine/internal/chat"
)

type messageRow struct {
	chat.Message
	SessionID string `db:"session_id"`
}

// Messages is a storage for messages
type Messages struct {
	db *sqlx.DB
}

// NewMessages creates a new Messages storage
func NewMessages(db *sqlx.DB) (*Messages, error) {
	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		content TEXT NOT NULL,
		is_user BOOLEAN NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		image TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	)
	`
	if _, err := db.Exec(createMessagesTable); err != nil {
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}

	return &Messages{db: db}, nil
}

// ReadBySessionID returns messages for a specific session_id in insertion order
func (m *Messages) ReadBySessionID(ctx context.Context, sessionID string) ([]chat.Message, error) {
	var rows []messageRow
	err := m.db.SelectContext(ctx, &rows,
		"SELECT id, session_id, content, is_user, timestamp, image FROM messages WHERE session_id = ? ORDER BY timestamp ASC, rowid ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for session_id %s: %w", sessionID, err)
	}

	messages := make([]chat.Message, len(rows))
	for i, row := range rows {
		messages[i] = row.Message
	}
	slog.Debug("read messages by session_id",
		slog.String("session_id", sessionID),
		slog.Int("count", len(messages)),
	)
	return messages, nil
}

// Write writes a message of sessionID, ignoring it if already stored.
// Local handle references do not outlive the process and are not kept.
func (m *Messages) Write(ctx context.Context, tx sqlx.ExecerContext, sessionID string, message chat.Message) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	if message.HasLocalImage() {
		message.Image = ""
	}
	insertQuery := "INSERT OR IGNORE INTO messages (id, session_id, content, is_user, timestamp, image) VALUES (?, ?, ?, ?, ?, ?)"
	if _, err := tx.ExecContext(ctx, insertQuery, message.ID, sessionID, message.Text, message.IsUser, message.Timestamp.UTC(), message.Image); err != nil {
		return fmt.Errorf("failed to insert message %s: %w", message.ID, err)
	}

	slog.Debug("message added to messages",
		slog.String("id", message.ID),
		slog.String("session_id", sessionID),
		slog.String("role", string(message.Role())),
		slog.Time("timestamp", message.Timestamp),
	)
	return nil
}

// DeleteBySessionID deletes every message of the session
func (m *Messages) DeleteBySessionID(ctx context.Context, tx sqlx.ExecerContext, sessionID string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to delete messages by session_id %s: %w", sessionID, err)
	}

	slog.Debug("messages deleted from messages",
		slog.String("session_id", sessionID),
	)
	return nil
}
