package engine

import "time"

// ApplyOutcome returns the holder state that results from outcome, stamping
// newly applied tags with now. Every application whose tag ID is in
// TagsToRemove is dropped first. A unique tag that the holder already
// carries, active or lapsed, is refreshed in place so the holder never has
// two entries with its ID; non-unique tags stack as separate entries.
// A hidden outcome yields an unchanged copy.
func ApplyOutcome(holder RoleState, outcome Outcome, now time.Time) RoleState {
	next := holder.Clone()
	if !outcome.Visible {
		return next
	}

	remove := outcome.TagsToRemove.index()
	kept := make([]AppliedTag, 0, len(next.AppliedTags)+len(outcome.TagsToAdd))
	for _, at := range next.AppliedTags {
		if _, ok := remove[at.Tag.ID]; ok && at.Tag.ID != "" {
			continue
		}
		kept = append(kept, at)
	}

	for _, tag := range outcome.TagsToAdd {
		if tag.IsUnique && tag.ID != "" {
			if i := indexOfTag(kept, tag.ID); i >= 0 {
				kept[i].Tag = tag
				kept[i].AppliedAt = now
				kept = dropTagAfter(kept, tag.ID, i)
				continue
			}
		}
		kept = append(kept, AppliedTag{Tag: tag, HolderID: holder.ID, AppliedAt: now})
	}

	next.AppliedTags = kept
	return next
}

func indexOfTag(tags []AppliedTag, id TagID) int {
	for i, at := range tags {
		if at.Tag.ID == id {
			return i
		}
	}
	return -1
}

// dropTagAfter removes entries with the given ID after position i. Data
// written before a tag became unique can hold duplicates.
func dropTagAfter(tags []AppliedTag, id TagID, i int) []AppliedTag {
	out := tags[:i+1]
	for _, at := range tags[i+1:] {
		if at.Tag.ID == id {
			continue
		}
		out = append(out, at)
	}
	return out
}
