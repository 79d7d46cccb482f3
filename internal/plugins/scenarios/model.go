// Package scenarios is the catalog a game is played from: tag
// definitions, roles, items with QR codes, and the tag-gated actions
// offered on them. Games reference a scenario; the catalog itself never
// changes while it is played.
package scenarios

import (
	"time"

	"github.com/keyxmakerx/larp/internal/engine"
)

// Scenario groups the definitions for one LARP.
type Scenario struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Role is a character a player can be assigned in a game.
type Role struct {
	ID          string    `json:"id"`
	ScenarioID  string    `json:"scenario_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Item is a physical prop. Players reach its actions by scanning QRCode.
type Item struct {
	ID          string    `json:"id"`
	ScenarioID  string    `json:"scenario_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	QRCode      string    `json:"qr_code"`
	CreatedAt   time.Time `json:"created_at"`
}

// Action is an engine action as stored in the catalog. ItemID is nil for
// actions a role can attempt anywhere.
type Action struct {
	engine.Action
	ScenarioID string    `json:"scenario_id"`
	ItemID     *string   `json:"item_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// TagSetKind names one of the eight tag sets of an action. Values match
// the action_tags.kind ENUM.
type TagSetKind string

const (
	KindRequiredToDisplay  TagSetKind = "required_to_display"
	KindForbiddenToDisplay TagSetKind = "forbidden_to_display"
	KindRequiredToSucceed  TagSetKind = "required_to_succeed"
	KindForbiddenToSucceed TagSetKind = "forbidden_to_succeed"
	KindApplyOnSuccess     TagSetKind = "apply_on_success"
	KindApplyOnFailure     TagSetKind = "apply_on_failure"
	KindRemoveOnSuccess    TagSetKind = "remove_on_success"
	KindRemoveOnFailure    TagSetKind = "remove_on_failure"
)

// TagSetKinds lists every kind in storage order.
func TagSetKinds() []TagSetKind {
	return []TagSetKind{
		KindRequiredToDisplay,
		KindForbiddenToDisplay,
		KindRequiredToSucceed,
		KindForbiddenToSucceed,
		KindApplyOnSuccess,
		KindApplyOnFailure,
		KindRemoveOnSuccess,
		KindRemoveOnFailure,
	}
}

// Valid reports whether k is a known kind.
func (k TagSetKind) Valid() bool {
	for _, known := range TagSetKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// TagSet returns a pointer to the set of a stored under kind, or nil for
// an unknown kind.
func TagSet(a *engine.Action, kind TagSetKind) *engine.TagSet {
	switch kind {
	case KindRequiredToDisplay:
		return &a.RequiredTagsToDisplay
	case KindForbiddenToDisplay:
		return &a.ForbiddenTagsToDisplay
	case KindRequiredToSucceed:
		return &a.RequiredTagsToSucceed
	case KindForbiddenToSucceed:
		return &a.ForbiddenTagsToSucceed
	case KindApplyOnSuccess:
		return &a.TagsToApplyOnSuccess
	case KindApplyOnFailure:
		return &a.TagsToApplyOnFailure
	case KindRemoveOnSuccess:
		return &a.TagsToRemoveOnSuccess
	case KindRemoveOnFailure:
		return &a.TagsToRemoveOnFailure
	default:
		return nil
	}
}

// --- Inputs ---

// CreateScenarioInput is the body of POST /api/v1/scenarios.
type CreateScenarioInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateTagInput defines a tag.
type CreateTagInput struct {
	Value               string `json:"value"`
	IsUnique            bool   `json:"is_unique"`
	ExpiresAfterMinutes int    `json:"expires_after_minutes"`
}

// CreateRoleInput defines a role.
type CreateRoleInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateItemInput defines an item. The QR code is generated.
type CreateItemInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateActionInput defines an action. Tags maps each kind to tag IDs of
// the same scenario; omitted kinds are empty sets.
type CreateActionInput struct {
	ItemID           string                        `json:"item_id"`
	Name             string                        `json:"name"`
	Description      string                        `json:"description"`
	MessageOnSuccess string                        `json:"message_on_success"`
	MessageOnFailure string                        `json:"message_on_failure"`
	Tags             map[TagSetKind][]engine.TagID `json:"tags"`
}
