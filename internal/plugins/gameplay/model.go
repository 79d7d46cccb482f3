// Package gameplay is where players act. It loads the holder and the
// catalog, asks the engine what is visible and what happens, persists the
// result through the games plugin and records it in the action log. The
// server is the only place an outcome is applied; clients may preview but
// never write.
package gameplay

import (
	"github.com/keyxmakerx/larp/internal/engine"
	"github.com/keyxmakerx/larp/internal/plugins/scenarios"
)

// SubmitRequest asks to perform an action. TargetItemID is the scanned
// item, if any.
type SubmitRequest struct {
	GameID               string  `json:"-"`
	PerformerRoleStateID string  `json:"performer_role_state_id"`
	ActionID             string  `json:"action_id"`
	TargetItemID         *string `json:"target_item_id,omitempty"`
}

// ScanResult is what a player sees after scanning an item's QR code.
type ScanResult struct {
	Item    *scenarios.Item    `json:"item"`
	Actions []scenarios.Action `json:"actions"`
}

// PreviewResult is a dry run of an action.
type PreviewResult struct {
	ActionID string         `json:"action_id"`
	Outcome  engine.Outcome `json:"outcome"`
}
