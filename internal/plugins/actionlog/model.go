// Package actionlog records every resolved action. Entries are written
// once, after the holder's new tags are persisted, and never updated or
// deleted. Operators read the whole game's feed; players read their own
// history.
package actionlog

import (
	"time"

	"github.com/keyxmakerx/larp/internal/engine"
)

// Entry is one performed action. Tag sets are copies of the definitions
// at the time of resolution so later catalog edits do not rewrite history.
type Entry struct {
	ID                   string       `json:"id"`
	GameID               string       `json:"game_id"`
	ActionID             string       `json:"action_id"`
	ActionName           string       `json:"action_name"`
	PerformerRoleStateID string       `json:"performer_role_state_id"`
	TargetItemID         *string      `json:"target_item_id,omitempty"`
	Succeeded            bool         `json:"succeeded"`
	Message              string       `json:"message"`
	AppliedTags          []engine.Tag `json:"applied_tags"`
	RemovedTags          []engine.Tag `json:"removed_tags"`
	CreatedAt            time.Time    `json:"created_at"`
}

// Filter narrows a listing. Zero fields are ignored; GameID is required.
type Filter struct {
	GameID               string
	PerformerRoleStateID string
	TargetItemID         string
	Succeeded            *bool
	Since                time.Time
	Until                time.Time
	Limit                int
	Offset               int
}

// Page is one page of a listing.
type Page struct {
	Entries []Entry `json:"data"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"per_page"`
}
