package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gennadis/chatengine/internal/chat"
)

// Sessions is a storage for session headers
type Sessions struct {
	db *sqlx.DB
}

// NewSessions creates a new Sessions storage
func NewSessions(db *sqlx.DB) (*Sessions, error) {
	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)
	`
	if _, err := db.Exec(createSessionsTable); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &Sessions{db: db}, nil
}

// Read returns all sessions, most recent first. Messages are not loaded.
func (s *Sessions) Read(ctx context.Context) ([]chat.Session, error) {
	var sessions []chat.Session
	err := s.db.SelectContext(ctx, &sessions, "SELECT id, title, created_at FROM sessions ORDER BY created_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}

	slog.Debug("read sessions",
		slog.Int("count", len(sessions)),
	)
	return sessions, nil
}

// Write inserts the session or updates the title of an existing one
func (s *Sessions) Write(ctx context.Context, tx sqlx.ExecerContext, session chat.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	upsertQuery := `
	INSERT INTO sessions (id, title, created_at) VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET title = excluded.title
	`
	if _, err := tx.ExecContext(ctx, upsertQuery, session.ID, session.Title, session.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to write session %s: %w", session.ID, err)
	}

	slog.Debug("session written to sessions",
		slog.String("id", session.ID),
		slog.String("title", session.Title),
		slog.Time("created_at", session.CreatedAt),
	)
	return nil
}

// Delete deletes the session by id. It reports whether a row was removed.
func (s *Sessions) Delete(ctx context.Context, tx sqlx.ExecerContext, id string) (bool, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session by id %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to count deleted sessions: %w", err)
	}

	slog.Debug("session deleted from sessions",
		slog.String("id", id),
		slog.Int64("rows", n),
	)
	return n > 0, nil
}
