package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/gennadis/chatengine/internal/chat"
)

// History is a local history backend: it lists, deletes and saves whole sessions.
type History struct {
	db       *sqlx.DB
	sessions *Sessions
	messages *Messages
}

// NewHistory creates the history tables in db
func NewHistory(db *sqlx.DB) (*History, error) {
	sessions, err := NewSessions(db)
	if err != nil {
		return nil, err
	}
	messages, err := NewMessages(db)
	if err != nil {
		return nil, err
	}
	return &History{db: db, sessions: sessions, messages: messages}, nil
}

// ListSessions returns every stored session with its messages, most recent first.
func (h *History) ListSessions(ctx context.Context) ([]*chat.Session, error) {
	headers, err := h.sessions.Read(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*chat.Session, 0, len(headers))
	for i := range headers {
		session := headers[i]
		messages, err := h.messages.ReadBySessionID(ctx, session.ID)
		if err != nil {
			return nil, err
		}
		session.Messages = messages
		if session.Title == "" {
			session.Title = chat.HistoryTitle
		}
		out = append(out, &session)
	}
	return out, nil
}

// SaveSession stores the session header and any messages not stored yet.
func (h *History) SaveSession(ctx context.Context, session *chat.Session) error {
	return h.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := h.sessions.Write(ctx, tx, *session); err != nil {
			return err
		}
		for _, message := range session.Messages {
			if err := h.messages.Write(ctx, tx, session.ID, message); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSession removes the session and its messages. Unknown ids are not an error.
func (h *History) DeleteSession(ctx context.Context, id string) error {
	return h.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := h.messages.DeleteBySessionID(ctx, tx, id); err != nil {
			return err
		}
		found, err := h.sessions.Delete(ctx, tx, id)
		if err != nil {
			return err
		}
		if !found {
			slog.Debug("session not stored", slog.String("id", id))
		}
		return nil
	})
}

// Close closes the database
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := h.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
