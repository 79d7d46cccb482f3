// Package games runs scenarios as games. A game owns one role state per
// assigned role; role states hold the applied tags the engine reads and
// are written only through this package so that every write bumps the
// version and is pushed to clients.
package games

import (
	"time"

	"github.com/keyxmakerx/larp/internal/engine"
	"github.com/keyxmakerx/larp/internal/plugins/access"
)

// Status is the lifecycle stage of a game.
type Status string

const (
	StatusPlanned  Status = "planned"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Statuses lists every status, matching the games.status ENUM.
func Statuses() []Status {
	return []Status{StatusPlanned, StatusActive, StatusFinished}
}

// CanTransition reports whether a game may move from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPlanned:
		return next == StatusActive || next == StatusFinished
	case StatusActive:
		return next == StatusFinished
	default:
		return false
	}
}

// Game is one run of a scenario.
type Game struct {
	ID         string     `json:"id"`
	ScenarioID string     `json:"scenario_id"`
	Name       string     `json:"name"`
	Status     Status     `json:"status"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// IsActive reports whether actions may be performed.
func (g *Game) IsActive() bool { return g.Status == StatusActive }

// CreateGameInput is the body of POST /api/v1/games.
type CreateGameInput struct {
	ScenarioID string     `json:"scenario_id"`
	Name       string     `json:"name"`
	StartsAt   *time.Time `json:"starts_at"`
}

// AssignRoleInput assigns a scenario role to a player.
type AssignRoleInput struct {
	RoleID      string `json:"role_id"`
	PlayerEmail string `json:"player_email"`
}

// AssignRoleResult carries the new holder and the player's key. The raw
// key is returned once.
type AssignRoleResult struct {
	RoleState *engine.RoleState       `json:"role_state"`
	AccessKey *access.CreateKeyResult `json:"access_key"`
}

// TagApplication is one entry of a full tag list written by an operator.
// A nil AppliedAt means now.
type TagApplication struct {
	TagID     engine.TagID `json:"tag_id"`
	AppliedAt *time.Time   `json:"applied_at,omitempty"`
}

// ReplaceTagsInput replaces every applied tag of a role state.
type ReplaceTagsInput struct {
	Tags []TagApplication `json:"tags"`
}
