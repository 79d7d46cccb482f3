package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

var (
	tagCursed   = Tag{ID: "cursed", Value: "Cursed"}
	tagHasKey   = Tag{ID: "hasKey", Value: "Has key"}
	tagDoorOpen = Tag{ID: "doorOpen", Value: "Door open", IsUnique: true}
	tagWounded  = Tag{ID: "wounded", Value: "Wounded"}
	tagPoisoned = Tag{ID: "poisoned", Value: "Poisoned", ExpiresAfterMinutes: 10}
)

// doorAction is the canonical door example: hidden from cursed holders,
// succeeds only with a key.
func doorAction() Action {
	return Action{
		ID:                     "door",
		Name:                   "Open the door",
		ForbiddenTagsToDisplay: TagSet{tagCursed},
		RequiredTagsToSucceed:  TagSet{tagHasKey},
		TagsToApplyOnSuccess:   TagSet{tagDoorOpen},
		MessageOnSuccess:       "The door opens",
		MessageOnFailure:       "The door stays shut",
	}
}

func holderWith(tags ...Tag) RoleState {
	h := RoleState{ID: "rs-1", GameID: "game-1", RoleID: "role-1", AppliedTags: []AppliedTag{}}
	for _, tag := range tags {
		h.AppliedTags = append(h.AppliedTags, AppliedTag{Tag: tag, HolderID: h.ID, AppliedAt: t0})
	}
	return h
}

// --- Tag model ---

func TestTagValidate(t *testing.T) {
	assert.NoError(t, Tag{Value: "Cursed"}.Validate())
	assert.ErrorIs(t, Tag{Value: "   "}.Validate(), ErrEmptyTagValue)
	assert.ErrorIs(t, Tag{}.Validate(), ErrEmptyTagValue)
}

func TestTagSet_ContainsIgnoresUnsavedTags(t *testing.T) {
	set := TagSet{{Value: "draft"}, tagHasKey}
	assert.True(t, set.Contains("hasKey"))
	assert.False(t, set.Contains(""))
	assert.Equal(t, []TagID{"hasKey"}, set.IDs())
}

func TestTagSet_Union(t *testing.T) {
	got := TagSet{tagHasKey}.Union(TagSet{tagHasKey, tagCursed})
	assert.Equal(t, TagSet{tagHasKey, tagCursed}, got)
}

func TestRoleStateClone_DoesNotShareTags(t *testing.T) {
	h := holderWith(tagHasKey)
	c := h.Clone()
	c.AppliedTags[0].Tag = tagCursed
	assert.Equal(t, tagHasKey, h.AppliedTags[0].Tag)
}

// --- Expiry ---

func TestIsExpired_NeverExpiring(t *testing.T) {
	for _, minutes := range []int{0, -5} {
		at := AppliedTag{Tag: Tag{ID: "x", Value: "x", ExpiresAfterMinutes: minutes}, AppliedAt: t0}
		for _, now := range []time.Time{t0.Add(-time.Hour), t0, t0.Add(24 * 365 * time.Hour)} {
			assert.False(t, IsExpired(at, now), "minutes=%d now=%s", minutes, now)
		}
		_, ok := ExpiresAt(at)
		assert.False(t, ok)
	}
}

func TestIsExpired_BoundaryIsInclusive(t *testing.T) {
	for _, m := range []int{1, 10, 90} {
		at := AppliedTag{Tag: Tag{ID: "x", Value: "x", ExpiresAfterMinutes: m}, AppliedAt: t0}
		expiry := t0.Add(time.Duration(m) * time.Minute)

		assert.True(t, IsExpired(at, expiry), "expired at the instant")
		assert.False(t, IsExpired(at, expiry.Add(-time.Millisecond)), "active just before")
		assert.True(t, IsExpired(at, expiry.Add(time.Second)))
	}
}

func TestRemaining(t *testing.T) {
	at := AppliedTag{Tag: tagPoisoned, AppliedAt: t0}

	d, ok := Remaining(at, t0.Add(4*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 6*time.Minute, d)

	d, ok = Remaining(at, t0.Add(time.Hour))
	require.True(t, ok)
	assert.Zero(t, d)

	_, ok = Remaining(AppliedTag{Tag: tagHasKey, AppliedAt: t0}, t0)
	assert.False(t, ok)
}

// --- Predicates ---

func TestActiveTagsOf_FiltersExpiredAndDeduplicates(t *testing.T) {
	h := holderWith(tagWounded, tagWounded, tagPoisoned)

	active := ActiveTagsOf(h, t0.Add(time.Minute))
	assert.Equal(t, TagSet{tagWounded, tagPoisoned}, active)

	active = ActiveTagsOf(h, t0.Add(10*time.Minute))
	assert.Equal(t, TagSet{tagWounded}, active)
}

func TestHasAllHasNone_EmptySetsAreVacuous(t *testing.T) {
	assert.True(t, HasAll(nil, nil))
	assert.True(t, HasAll(TagSet{tagHasKey}, TagSet{}))
	assert.True(t, HasNone(nil, nil))
	assert.True(t, HasNone(TagSet{tagCursed}, TagSet{}))
}

func TestHasAll_MatchesByID(t *testing.T) {
	active := TagSet{{ID: "hasKey", Value: "renamed"}}
	assert.True(t, HasAll(active, TagSet{tagHasKey}))
	assert.False(t, HasAll(active, TagSet{tagHasKey, tagCursed}))
}

func TestPredicates_Monotonic(t *testing.T) {
	universe := []Tag{tagCursed, tagHasKey, tagDoorOpen, tagWounded}
	required := TagSet{tagHasKey, tagWounded}
	forbidden := TagSet{tagCursed}

	// Every subset of the universe, extended by each tag in turn.
	for mask := 0; mask < 1<<len(universe); mask++ {
		var active TagSet
		for i, tag := range universe {
			if mask&(1<<i) != 0 {
				active = append(active, tag)
			}
		}
		for _, extra := range universe {
			grown := append(append(TagSet{}, active...), extra)
			if HasAll(active, required) {
				assert.True(t, HasAll(grown, required), "hasAll turned false on adding %s", extra.ID)
			}
			if !HasNone(active, forbidden) {
				assert.False(t, HasNone(grown, forbidden), "hasNone turned true on adding %s", extra.ID)
			}
		}
	}
}

func TestVisibilityAndSuccessAreIndependent(t *testing.T) {
	a := doorAction()
	active := TagSet{}
	assert.True(t, IsVisible(a, active))
	assert.False(t, WouldSucceed(a, active))
}

// --- Resolver ---

func TestResolve_DoorOpensWithKey(t *testing.T) {
	out, err := Resolve(doorAction(), holderWith(tagHasKey), t0)
	require.NoError(t, err)

	assert.True(t, out.Visible)
	require.NotNil(t, out.Succeeded)
	assert.True(t, *out.Succeeded)
	assert.Equal(t, "The door opens", out.Message)
	assert.Equal(t, TagSet{tagDoorOpen}, out.TagsToAdd)
	assert.Empty(t, out.TagsToRemove)
}

func TestResolve_CursedHolderDoesNotSeeDoor(t *testing.T) {
	for _, h := range []RoleState{holderWith(tagCursed), holderWith(tagCursed, tagHasKey)} {
		out, err := Resolve(doorAction(), h, t0)
		require.NoError(t, err)

		assert.False(t, out.Visible)
		assert.Nil(t, out.Succeeded)
		assert.Empty(t, out.Message)
		assert.Empty(t, out.TagsToAdd)
		assert.Empty(t, out.TagsToRemove)
	}
}

func TestResolve_DoorStaysShutWithoutKey(t *testing.T) {
	out, err := Resolve(doorAction(), holderWith(), t0)
	require.NoError(t, err)

	assert.True(t, out.Visible)
	require.NotNil(t, out.Succeeded)
	assert.False(t, *out.Succeeded)
	assert.False(t, out.Success())
	assert.Equal(t, "The door stays shut", out.Message)
	assert.Empty(t, out.TagsToAdd)
}

func TestResolve_ExpiredTagDoesNotCount(t *testing.T) {
	a := Action{ID: "antidote", RequiredTagsToDisplay: TagSet{tagPoisoned}, MessageOnSuccess: "cured"}
	h := holderWith(tagPoisoned)

	out, err := Resolve(a, h, t0.Add(9*time.Minute))
	require.NoError(t, err)
	assert.True(t, out.Visible)

	out, err = Resolve(a, h, t0.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, out.Visible)
}

func TestResolve_Idempotent(t *testing.T) {
	a := doorAction()
	a.TagsToRemoveOnFailure = TagSet{tagWounded}
	h := holderWith(tagWounded)

	first, err := Resolve(a, h, t0)
	require.NoError(t, err)
	second, err := Resolve(a, h, t0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_DoesNotAliasAction(t *testing.T) {
	a := doorAction()
	out, err := Resolve(a, holderWith(tagHasKey), t0)
	require.NoError(t, err)

	out.TagsToAdd[0] = tagCursed
	assert.Equal(t, tagDoorOpen, a.TagsToApplyOnSuccess[0])
}

func TestResolve_RejectsApplyRemoveCollision(t *testing.T) {
	a := doorAction()
	a.TagsToRemoveOnSuccess = TagSet{tagDoorOpen}

	_, err := Resolve(a, holderWith(tagHasKey), t0)
	require.Error(t, err)
	assert.True(t, IsInvalidAction(err))

	var invalid *InvalidActionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, []Collision{{Branch: BranchSuccess, TagID: "doorOpen"}}, invalid.Collisions)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name         string
		action       Action
		collisions   []Collision
		unidentified []string
	}{
		{name: "valid", action: doorAction()},
		{
			name: "same tag on different branches is fine",
			action: Action{
				TagsToApplyOnSuccess:  TagSet{tagWounded},
				TagsToRemoveOnFailure: TagSet{tagWounded},
			},
		},
		{
			name: "failure branch collision",
			action: Action{
				TagsToApplyOnFailure:  TagSet{tagWounded},
				TagsToRemoveOnFailure: TagSet{tagWounded, tagCursed},
			},
			collisions: []Collision{{Branch: BranchFailure, TagID: "wounded"}},
		},
		{
			name:         "unsaved tag in gating set",
			action:       Action{RequiredTagsToSucceed: TagSet{{Value: "draft"}}},
			unidentified: []string{"required_tags_to_succeed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.action.Validate()
			if tt.collisions == nil && tt.unidentified == nil {
				assert.NoError(t, err)
				return
			}
			var invalid *InvalidActionError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.collisions, invalid.Collisions)
			assert.Equal(t, tt.unidentified, invalid.Unidentified)
		})
	}
}

func TestVisibleActions(t *testing.T) {
	search := Action{ID: "search", RequiredTagsToDisplay: TagSet{tagCursed}}
	got, err := VisibleActions([]Action{doorAction(), search}, holderWith(tagCursed), t0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "search", got[0].ID)
}

// --- Outcome application ---

func TestApplyOutcome_AddThenRemoveRoundTrip(t *testing.T) {
	h := holderWith(tagHasKey)
	add := Outcome{Visible: true, TagsToAdd: TagSet{tagWounded}}
	remove := Outcome{Visible: true, TagsToRemove: TagSet{tagWounded}}

	mid := ApplyOutcome(h, add, t0.Add(time.Minute))
	require.Len(t, mid.AppliedTags, 2)
	assert.Equal(t, t0.Add(time.Minute), mid.AppliedTags[1].AppliedAt)
	assert.Equal(t, h.ID, mid.AppliedTags[1].HolderID)

	end := ApplyOutcome(mid, remove, t0.Add(2*time.Minute))
	assert.Len(t, end.AppliedTags, len(h.AppliedTags))
}

func TestApplyOutcome_UniqueTagRefreshes(t *testing.T) {
	h := holderWith()
	out := Outcome{Visible: true, TagsToAdd: TagSet{tagDoorOpen}}

	h = ApplyOutcome(h, out, t0)
	h = ApplyOutcome(h, out, t0.Add(5*time.Minute))

	require.Len(t, h.AppliedTags, 1)
	assert.Equal(t, TagID("doorOpen"), h.AppliedTags[0].Tag.ID)
	assert.Equal(t, t0.Add(5*time.Minute), h.AppliedTags[0].AppliedAt)
}

func TestApplyOutcome_UniqueTagRefreshesLapsedEntry(t *testing.T) {
	stun := Tag{ID: "stun", Value: "Stunned", IsUnique: true, ExpiresAfterMinutes: 1}
	h := holderWith(stun)
	out := Outcome{Visible: true, TagsToAdd: TagSet{stun}}

	later := t0.Add(time.Hour)
	h = ApplyOutcome(h, out, later)

	require.Len(t, h.AppliedTags, 1)
	assert.False(t, IsExpired(h.AppliedTags[0], later))
}

func TestApplyOutcome_UniqueTagCollapsesLegacyDuplicates(t *testing.T) {
	h := holderWith(tagDoorOpen, tagHasKey, tagDoorOpen)
	h = ApplyOutcome(h, Outcome{Visible: true, TagsToAdd: TagSet{tagDoorOpen}}, t0.Add(time.Minute))

	require.Len(t, h.AppliedTags, 2)
	assert.Equal(t, TagID("doorOpen"), h.AppliedTags[0].Tag.ID)
	assert.Equal(t, TagID("hasKey"), h.AppliedTags[1].Tag.ID)
}

func TestApplyOutcome_NonUniqueTagsStack(t *testing.T) {
	h := holderWith(tagWounded)
	h = ApplyOutcome(h, Outcome{Visible: true, TagsToAdd: TagSet{tagWounded}}, t0.Add(time.Minute))

	assert.Len(t, h.AppliedTags, 2)
	assert.Equal(t, TagSet{tagWounded}, ActiveTagsOf(h, t0.Add(time.Minute)))
}

func TestApplyOutcome_RemoveDropsEveryStackedEntry(t *testing.T) {
	h := holderWith(tagWounded, tagWounded, tagHasKey)
	h = ApplyOutcome(h, Outcome{Visible: true, TagsToRemove: TagSet{tagWounded}}, t0)

	require.Len(t, h.AppliedTags, 1)
	assert.Equal(t, tagHasKey, h.AppliedTags[0].Tag)
}

func TestApplyOutcome_HiddenOutcomeIsNoOp(t *testing.T) {
	h := holderWith(tagCursed)
	out, err := Resolve(doorAction(), h, t0)
	require.NoError(t, err)

	next := ApplyOutcome(h, out, t0)
	assert.Equal(t, h, next)
}

func TestApplyOutcome_DoesNotMutateInput(t *testing.T) {
	h := holderWith(tagWounded)
	before := h.Clone()
	_ = ApplyOutcome(h, Outcome{Visible: true, TagsToRemove: TagSet{tagWounded}, TagsToAdd: TagSet{tagHasKey}}, t0)
	assert.Equal(t, before, h)
}

// --- Reconciler ---

func snapshotOf(version int64, tags ...Tag) Snapshot {
	return Snapshot{HolderID: "rs-1", AppliedTags: holderWith(tags...).AppliedTags, Version: version}
}

func TestReconcile_CleanAcceptsIncoming(t *testing.T) {
	local := LocalSnapshot{Snapshot: snapshotOf(1, tagHasKey)}
	incoming := snapshotOf(2, tagCursed)

	d := Reconcile(local, incoming)
	assert.Equal(t, DecisionAcceptIncoming, d.Kind)
	assert.Equal(t, incoming, d.Result)
}

func TestReconcile_DirtyPromptsWithBothSides(t *testing.T) {
	local := LocalSnapshot{Snapshot: snapshotOf(1, tagHasKey, tagWounded), Dirty: true}
	incoming := snapshotOf(2, tagCursed)

	d := Reconcile(local, incoming)
	assert.Equal(t, DecisionPromptUser, d.Kind)
	assert.Equal(t, local.Snapshot, d.Local)
	assert.Equal(t, incoming, d.Incoming)
	assert.Equal(t, local.Snapshot, d.Result)
}

func TestReconciler_CleanReceiveReplacesState(t *testing.T) {
	r := NewReconciler(snapshotOf(1, tagHasKey))
	incoming := snapshotOf(2, tagCursed)

	r, d := r.Receive(incoming)
	assert.Equal(t, DecisionAcceptIncoming, d.Kind)
	assert.Equal(t, StateClean, r.State())
	assert.Equal(t, incoming, r.Current())
}

func TestReconciler_KeepLocalRestoresDirtySnapshot(t *testing.T) {
	r := NewReconciler(snapshotOf(1, tagHasKey))
	edited := holderWith(tagHasKey, tagWounded).AppliedTags
	r = r.Edit(edited)
	require.Equal(t, StateDirty, r.State())
	dirty := r.Current()

	r, d := r.Receive(snapshotOf(2, tagCursed))
	assert.Equal(t, DecisionPromptUser, d.Kind)
	assert.Equal(t, StateAwaitingDecision, r.State())
	assert.Equal(t, dirty, r.Current(), "local edits are shown while awaiting")

	r, result, err := r.Confirm(ConfirmKeepLocal)
	require.NoError(t, err)
	assert.Equal(t, StateClean, r.State())
	assert.Equal(t, dirty, result)
	assert.Equal(t, dirty, r.Current())
}

func TestReconciler_AcceptIncomingDiscardsEdits(t *testing.T) {
	r := NewReconciler(snapshotOf(1, tagHasKey)).Edit(nil)
	incoming := snapshotOf(2, tagCursed)

	r, _ = r.Receive(incoming)
	r, result, err := r.Confirm(ConfirmAcceptIncoming)
	require.NoError(t, err)
	assert.Equal(t, incoming, result)
	assert.Equal(t, StateClean, r.State())
}

func TestReconciler_NewerPushReplacesPendingIncoming(t *testing.T) {
	r := NewReconciler(snapshotOf(1)).Edit(holderWith(tagWounded).AppliedTags)
	r, _ = r.Receive(snapshotOf(2, tagCursed))
	r, _ = r.Receive(snapshotOf(3, tagHasKey))

	d, ok := r.Pending()
	require.True(t, ok)
	assert.Equal(t, int64(3), d.Incoming.Version)
}

func TestReconciler_EditWhileAwaitingStaysAwaiting(t *testing.T) {
	r := NewReconciler(snapshotOf(1)).Edit(nil)
	r, _ = r.Receive(snapshotOf(2, tagCursed))
	r = r.Edit(holderWith(tagWounded).AppliedTags)

	assert.Equal(t, StateAwaitingDecision, r.State())
	d, ok := r.Pending()
	require.True(t, ok)
	assert.Equal(t, TagID("wounded"), d.Local.AppliedTags[0].Tag.ID)
}

func TestReconciler_SavedClearsPending(t *testing.T) {
	r := NewReconciler(snapshotOf(1)).Edit(nil)
	r, _ = r.Receive(snapshotOf(2, tagCursed))

	saved := snapshotOf(3, tagWounded)
	r = r.Saved(saved)
	assert.Equal(t, StateClean, r.State())
	assert.Equal(t, saved, r.Current())
	_, ok := r.Pending()
	assert.False(t, ok)
}

func TestReconciler_ConfirmWithoutPending(t *testing.T) {
	r := NewReconciler(snapshotOf(1))
	_, _, err := r.Confirm(ConfirmKeepLocal)
	assert.ErrorIs(t, err, ErrNoPendingDecision)

	r = r.Edit(nil)
	_, _, err = r.Confirm(ConfirmAcceptIncoming)
	assert.ErrorIs(t, err, ErrNoPendingDecision)
}

func TestReconciler_ConfirmRejectsUnknownAnswer(t *testing.T) {
	r := NewReconciler(snapshotOf(1, tagHasKey)).Edit(nil)
	r, _ = r.Receive(snapshotOf(2, tagCursed))

	next, _, err := r.Confirm(Confirmation(7))
	assert.ErrorIs(t, err, ErrUnknownConfirmation)
	assert.Equal(t, StateAwaitingDecision, next.State())
	_, pending := next.Pending()
	assert.True(t, pending)
}

func TestReconciler_IsAValue(t *testing.T) {
	clean := NewReconciler(snapshotOf(1))
	_ = clean.Edit(nil)
	assert.Equal(t, StateClean, clean.State())
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "AWAITING_DECISION", StateAwaitingDecision.String())
	assert.Equal(t, "PROMPT_USER", DecisionPromptUser.String())
}
