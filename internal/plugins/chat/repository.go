package chat

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ChatRepository defines data access for chat messages.
type ChatRepository interface {
	Create(ctx context.Context, msg *Message) error

	// ListBefore returns up to limit messages older than before, newest
	// first. A zero before means now.
	ListBefore(ctx context.Context, gameID string, before time.Time, limit int) ([]Message, error)
}

type chatRepository struct {
	db *sql.DB
}

// NewChatRepository creates a repository backed by the given DB pool.
func NewChatRepository(db *sql.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) Create(ctx context.Context, msg *Message) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, game_id, role_state_id, author, body, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.GameID, msg.RoleStateID, msg.Author, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting chat message: %w", err)
	}
	return nil
}

func (r *chatRepository) ListBefore(ctx context.Context, gameID string, before time.Time, limit int) ([]Message, error) {
	if before.IsZero() {
		before = time.Now().UTC().Add(time.Second)
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, game_id, role_state_id, author, body, created_at
		 FROM chat_messages
		 WHERE game_id = ? AND created_at < ?
		 ORDER BY created_at DESC
		 LIMIT ?`, gameID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var roleStateID sql.NullString
		if err := rows.Scan(&m.ID, &m.GameID, &roleStateID, &m.Author, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chat message: %w", err)
		}
		if roleStateID.Valid {
			m.RoleStateID = &roleStateID.String
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
