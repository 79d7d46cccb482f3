package engine

import "time"

// ActiveTagsOf returns the distinct tags the holder carries at now, with
// expired applications filtered out. Stacked applications of one tag
// appear once.
func ActiveTagsOf(holder RoleState, now time.Time) TagSet {
	active := make(TagSet, 0, len(holder.AppliedTags))
	seen := make(map[TagID]struct{}, len(holder.AppliedTags))
	for _, at := range holder.AppliedTags {
		if IsExpired(at, now) {
			continue
		}
		if at.Tag.ID != "" {
			if _, ok := seen[at.Tag.ID]; ok {
				continue
			}
			seen[at.Tag.ID] = struct{}{}
		}
		active = append(active, at.Tag)
	}
	return active
}

// HasAll reports whether every tag of required is active. An empty
// requirement is always met.
func HasAll(active, required TagSet) bool {
	if len(required) == 0 {
		return true
	}
	idx := active.index()
	for _, t := range required {
		if _, ok := idx[t.ID]; !ok {
			return false
		}
	}
	return true
}

// HasNone reports whether no tag of forbidden is active. An empty
// prohibition is always met.
func HasNone(active, forbidden TagSet) bool {
	if len(forbidden) == 0 {
		return true
	}
	idx := active.index()
	for _, t := range forbidden {
		if _, ok := idx[t.ID]; ok {
			return false
		}
	}
	return true
}

// IsVisible reports whether the action may be offered to a holder with the
// given active tags.
func IsVisible(action Action, active TagSet) bool {
	return HasAll(active, action.RequiredTagsToDisplay) &&
		HasNone(active, action.ForbiddenTagsToDisplay)
}

// WouldSucceed reports whether the action takes its success branch for a
// holder with the given active tags. Visibility is checked separately.
func WouldSucceed(action Action, active TagSet) bool {
	return HasAll(active, action.RequiredTagsToSucceed) &&
		HasNone(active, action.ForbiddenTagsToSucceed)
}
