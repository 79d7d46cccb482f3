package engine

import "time"

// Action is a scripted thing a holder can attempt. Display gating and
// success gating are independent: an action can be offered and still fail.
type Action struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	MessageOnSuccess string `json:"message_on_success"`
	MessageOnFailure string `json:"message_on_failure"`

	RequiredTagsToDisplay  TagSet `json:"required_tags_to_display"`
	ForbiddenTagsToDisplay TagSet `json:"forbidden_tags_to_display"`
	RequiredTagsToSucceed  TagSet `json:"required_tags_to_succeed"`
	ForbiddenTagsToSucceed TagSet `json:"forbidden_tags_to_succeed"`

	TagsToApplyOnSuccess  TagSet `json:"tags_to_apply_on_success"`
	TagsToApplyOnFailure  TagSet `json:"tags_to_apply_on_failure"`
	TagsToRemoveOnSuccess TagSet `json:"tags_to_remove_on_success"`
	TagsToRemoveOnFailure TagSet `json:"tags_to_remove_on_failure"`
}

type namedSet struct {
	name string
	set  TagSet
}

func (a Action) namedSets() []namedSet {
	return []namedSet{
		{"required_tags_to_display", a.RequiredTagsToDisplay},
		{"forbidden_tags_to_display", a.ForbiddenTagsToDisplay},
		{"required_tags_to_succeed", a.RequiredTagsToSucceed},
		{"forbidden_tags_to_succeed", a.ForbiddenTagsToSucceed},
		{"tags_to_apply_on_success", a.TagsToApplyOnSuccess},
		{"tags_to_apply_on_failure", a.TagsToApplyOnFailure},
		{"tags_to_remove_on_success", a.TagsToRemoveOnSuccess},
		{"tags_to_remove_on_failure", a.TagsToRemoveOnFailure},
	}
}

// Validate returns an *InvalidActionError when a tag is both applied and
// removed on the same branch, or when any tag set holds an unsaved tag.
func (a Action) Validate() error {
	invalid := &InvalidActionError{ActionID: a.ID}

	for _, ns := range a.namedSets() {
		for _, t := range ns.set {
			if t.ID == "" {
				invalid.Unidentified = append(invalid.Unidentified, ns.name)
				break
			}
		}
	}

	invalid.Collisions = append(invalid.Collisions, collisions(BranchSuccess, a.TagsToApplyOnSuccess, a.TagsToRemoveOnSuccess)...)
	invalid.Collisions = append(invalid.Collisions, collisions(BranchFailure, a.TagsToApplyOnFailure, a.TagsToRemoveOnFailure)...)

	if len(invalid.Collisions) == 0 && len(invalid.Unidentified) == 0 {
		return nil
	}
	return invalid
}

func collisions(branch Branch, apply, remove TagSet) []Collision {
	var out []Collision
	for _, id := range apply.IDs() {
		if remove.Contains(id) {
			out = append(out, Collision{Branch: branch, TagID: id})
		}
	}
	return out
}

// Outcome is the computed result of resolving an action. It is never
// persisted by the engine; ApplyOutcome turns it into new holder state.
type Outcome struct {
	Visible bool `json:"visible"`

	// Succeeded is nil when the action is not visible.
	Succeeded    *bool  `json:"succeeded"`
	Message      string `json:"message"`
	TagsToAdd    TagSet `json:"tags_to_add"`
	TagsToRemove TagSet `json:"tags_to_remove"`
}

// Success reports whether the outcome took the success branch.
func (o Outcome) Success() bool {
	return o.Succeeded != nil && *o.Succeeded
}

// Resolve computes what performing action would do to holder at now. It
// does not modify the holder; use ApplyOutcome for that.
func Resolve(action Action, holder RoleState, now time.Time) (Outcome, error) {
	if err := action.Validate(); err != nil {
		return Outcome{}, err
	}

	active := ActiveTagsOf(holder, now)
	if !IsVisible(action, active) {
		return Outcome{TagsToAdd: TagSet{}, TagsToRemove: TagSet{}}, nil
	}

	succeeded := WouldSucceed(action, active)
	out := Outcome{Visible: true, Succeeded: &succeeded}
	if succeeded {
		out.Message = action.MessageOnSuccess
		out.TagsToAdd = action.TagsToApplyOnSuccess.clone()
		out.TagsToRemove = action.TagsToRemoveOnSuccess.clone()
	} else {
		out.Message = action.MessageOnFailure
		out.TagsToAdd = action.TagsToApplyOnFailure.clone()
		out.TagsToRemove = action.TagsToRemoveOnFailure.clone()
	}
	return out, nil
}

// VisibleActions returns the actions that may be offered to holder at now,
// preserving order. Invalid actions are reported rather than skipped.
func VisibleActions(actions []Action, holder RoleState, now time.Time) ([]Action, error) {
	active := ActiveTagsOf(holder, now)
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if IsVisible(a, active) {
			out = append(out, a)
		}
	}
	return out, nil
}
