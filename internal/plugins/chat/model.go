// Package chat stores per-game messages and pushes them to connected
// clients over the game channel.
package chat

import "time"

// MaxBodyLength is the longest message body accepted, in characters.
const MaxBodyLength = 2000

// Message is one chat line. RoleStateID is nil for operator messages.
type Message struct {
	ID          string    `json:"id"`
	GameID      string    `json:"game_id"`
	RoleStateID *string   `json:"role_state_id,omitempty"`
	Author      string    `json:"author"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// PostInput is the body of POST /api/v1/games/:gameID/chat.
type PostInput struct {
	Body string `json:"body"`
}
