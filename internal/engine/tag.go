// Package engine resolves tag-gated game actions.
//
// Everything in this package is a pure function over values: the holder's
// applied tags, an action definition, and an explicit reference time. No
// function performs I/O, reads a clock, or mutates its inputs. Callers
// (the gameplay service on the server, the tagsync tracker on clients)
// fetch state, call into the engine, and persist or display the result.
package engine

import (
	"strings"
	"time"
)

// TagID is the persisted identity of a scenario tag. Tags that have not
// been saved yet carry an empty ID and never match anything.
type TagID string

// Tag is a status marker defined by a scenario.
type Tag struct {
	ID       TagID  `json:"id,omitempty"`
	Value    string `json:"value"`
	IsUnique bool   `json:"is_unique"`

	// ExpiresAfterMinutes of zero or less means the tag never expires.
	ExpiresAfterMinutes int `json:"expires_after_minutes,omitempty"`
}

// Validate checks the tag's own invariants.
func (t Tag) Validate() error {
	if strings.TrimSpace(t.Value) == "" {
		return ErrEmptyTagValue
	}
	return nil
}

// Expires reports whether applications of this tag lapse over time.
func (t Tag) Expires() bool {
	return t.ExpiresAfterMinutes > 0
}

// Lifetime returns how long an application of the tag stays active, or
// zero for tags that never expire.
func (t Tag) Lifetime() time.Duration {
	if !t.Expires() {
		return 0
	}
	return time.Duration(t.ExpiresAfterMinutes) * time.Minute
}

// AppliedTag is a tag bound to a holder at a point in time.
type AppliedTag struct {
	Tag       Tag       `json:"tag"`
	HolderID  string    `json:"holder_id"`
	AppliedAt time.Time `json:"applied_at"`
}

// TagSet is a collection of tags matched by ID.
type TagSet []Tag

// Contains reports whether a tag with the given ID is in the set. An empty
// ID is never contained.
func (s TagSet) Contains(id TagID) bool {
	if id == "" {
		return false
	}
	for _, t := range s {
		if t.ID == id {
			return true
		}
	}
	return false
}

// IDs returns the distinct non-empty tag IDs in the set, in first-seen order.
func (s TagSet) IDs() []TagID {
	ids := make([]TagID, 0, len(s))
	seen := make(map[TagID]struct{}, len(s))
	for _, t := range s {
		if t.ID == "" {
			continue
		}
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		ids = append(ids, t.ID)
	}
	return ids
}

// Union returns the tags of s followed by the tags of other that s does
// not already contain.
func (s TagSet) Union(other TagSet) TagSet {
	out := s.clone()
	for _, t := range other {
		if t.ID != "" && out.Contains(t.ID) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// clone returns a copy that never aliases s. Nil and empty sets both come
// back as an empty, non-nil set so that JSON encodes them as [].
func (s TagSet) clone() TagSet {
	out := make(TagSet, len(s))
	copy(out, s)
	return out
}

func (s TagSet) index() map[TagID]struct{} {
	idx := make(map[TagID]struct{}, len(s))
	for _, t := range s {
		if t.ID != "" {
			idx[t.ID] = struct{}{}
		}
	}
	return idx
}

// RoleState is the holder of applied tags: one scenario role played by one
// player in one game.
type RoleState struct {
	ID          string       `json:"id"`
	GameID      string       `json:"game_id"`
	RoleID      string       `json:"role_id"`
	PlayerEmail string       `json:"player_email,omitempty"`
	AppliedTags []AppliedTag `json:"applied_tags"`
	Version     int64        `json:"version"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Clone returns a copy whose applied-tag slice is not shared with h.
func (h RoleState) Clone() RoleState {
	out := h
	out.AppliedTags = cloneApplied(h.AppliedTags)
	return out
}

// Snapshot returns the holder's applied tags as a push/reconcile snapshot.
func (h RoleState) Snapshot() Snapshot {
	return Snapshot{
		HolderID:    h.ID,
		AppliedTags: cloneApplied(h.AppliedTags),
		Version:     h.Version,
	}
}

// WithSnapshot returns a copy of h carrying the snapshot's tags and version.
func (h RoleState) WithSnapshot(s Snapshot) RoleState {
	out := h
	out.AppliedTags = cloneApplied(s.AppliedTags)
	out.Version = s.Version
	return out
}

func cloneApplied(tags []AppliedTag) []AppliedTag {
	if tags == nil {
		return nil
	}
	out := make([]AppliedTag, len(tags))
	copy(out, tags)
	return out
}
