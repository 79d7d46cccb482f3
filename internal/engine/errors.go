package engine

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyTagValue is returned by Tag.Validate for blank values.
	ErrEmptyTagValue = errors.New("tag value is required")

	// ErrNoPendingDecision is returned when a reconciliation decision is
	// confirmed while none is awaiting the user.
	ErrNoPendingDecision = errors.New("no reconciliation decision is pending")

	// ErrUnknownConfirmation is returned by Confirm for an answer other
	// than accept-incoming or keep-local.
	ErrUnknownConfirmation = errors.New("unknown reconciliation confirmation")
)

// Branch names one outcome branch of an action.
type Branch string

const (
	BranchSuccess Branch = "success"
	BranchFailure Branch = "failure"
)

// Collision is a tag that an action both applies and removes on the same
// branch.
type Collision struct {
	Branch Branch `json:"branch"`
	TagID  TagID  `json:"tag_id"`
}

// InvalidActionError reports an action definition that cannot be resolved.
type InvalidActionError struct {
	ActionID string

	// Collisions lists tags present in both the apply and remove set of a
	// branch.
	Collisions []Collision

	// Unidentified lists the names of tag sets holding a tag without an ID.
	Unidentified []string
}

func (e *InvalidActionError) Error() string {
	var parts []string
	for _, c := range e.Collisions {
		parts = append(parts, fmt.Sprintf("tag %q is both applied and removed on %s", c.TagID, c.Branch))
	}
	for _, set := range e.Unidentified {
		parts = append(parts, fmt.Sprintf("%s contains a tag without an id", set))
	}
	name := e.ActionID
	if name == "" {
		name = "(unsaved)"
	}
	return fmt.Sprintf("invalid action %s: %s", name, strings.Join(parts, "; "))
}

// HolderNotFoundError reports that a role state does not belong to the game
// an action was resolved in.
type HolderNotFoundError struct {
	HolderID string
	GameID   string
}

func (e *HolderNotFoundError) Error() string {
	return fmt.Sprintf("role state %q is not assigned to game %q", e.HolderID, e.GameID)
}

// IsInvalidAction reports whether err is or wraps an *InvalidActionError.
func IsInvalidAction(err error) bool {
	var target *InvalidActionError
	return errors.As(err, &target)
}

// IsHolderNotFound reports whether err is or wraps a *HolderNotFoundError.
func IsHolderNotFound(err error) bool {
	var target *HolderNotFoundError
	return errors.As(err, &target)
}
