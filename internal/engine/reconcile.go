package engine

import "fmt"

// Snapshot is a holder's full applied-tag list at a version. Pushes always
// carry a complete replacement, never a delta.
type Snapshot struct {
	HolderID    string       `json:"holder_id"`
	AppliedTags []AppliedTag `json:"applied_tags"`
	Version     int64        `json:"version"`
}

// Clone returns a copy whose applied-tag slice is not shared with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.AppliedTags = cloneApplied(s.AppliedTags)
	return out
}

// LocalSnapshot is the client's copy of a holder, flagged when it carries
// unsaved edits.
type LocalSnapshot struct {
	Snapshot
	Dirty bool
}

// DecisionKind is what the caller must do with an incoming snapshot.
type DecisionKind int

const (
	// DecisionAcceptIncoming replaces local state with the incoming snapshot.
	DecisionAcceptIncoming DecisionKind = iota
	// DecisionPromptUser requires the user to choose between both sides.
	DecisionPromptUser
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAcceptIncoming:
		return "ACCEPT_INCOMING"
	case DecisionPromptUser:
		return "PROMPT_USER"
	default:
		return "UNKNOWN"
	}
}

// Decision is the result of reconciling a local snapshot with a push.
type Decision struct {
	Kind     DecisionKind
	Local    Snapshot
	Incoming Snapshot

	// Result is what the caller should display now: the incoming snapshot
	// when accepted, the untouched local snapshot while the user decides.
	Result Snapshot
}

// Reconcile decides how an incoming authoritative snapshot meets local
// state. Tag lists are never merged: the incoming list is a complete
// replacement, so the only choices are to take it or to ask.
func Reconcile(local LocalSnapshot, incoming Snapshot) Decision {
	d := Decision{Local: local.Snapshot.Clone(), Incoming: incoming.Clone()}
	if local.Dirty {
		d.Kind = DecisionPromptUser
		d.Result = local.Snapshot.Clone()
		return d
	}
	d.Kind = DecisionAcceptIncoming
	d.Result = incoming.Clone()
	return d
}

// State is the reconciler's position in its lifecycle.
type State int

const (
	StateClean State = iota
	StateDirty
	StateAwaitingDecision
)

func (s State) String() string {
	switch s {
	case StateClean:
		return "CLEAN"
	case StateDirty:
		return "DIRTY"
	case StateAwaitingDecision:
		return "AWAITING_DECISION"
	default:
		return "UNKNOWN"
	}
}

// Confirmation is the user's answer to a pending decision.
type Confirmation int

const (
	ConfirmAcceptIncoming Confirmation = iota
	ConfirmKeepLocal
)

// Reconciler tracks one holder's local tag state against pushes. It is a
// value: every method returns the next Reconciler and leaves the receiver
// untouched.
type Reconciler struct {
	state    State
	local    Snapshot
	incoming *Snapshot
}

// NewReconciler starts a clean reconciler at the given authoritative state.
func NewReconciler(initial Snapshot) Reconciler {
	return Reconciler{state: StateClean, local: initial.Clone()}
}

func (r Reconciler) State() State { return r.state }

// Current returns the snapshot to display: the local state, including
// unsaved edits and while a decision is pending.
func (r Reconciler) Current() Snapshot { return r.local.Clone() }

// Local returns the local state with its dirty flag.
func (r Reconciler) Local() LocalSnapshot {
	return LocalSnapshot{Snapshot: r.local.Clone(), Dirty: r.state != StateClean}
}

// Pending returns the decision awaiting the user, if any.
func (r Reconciler) Pending() (Decision, bool) {
	if r.state != StateAwaitingDecision || r.incoming == nil {
		return Decision{}, false
	}
	return Decision{
		Kind:     DecisionPromptUser,
		Local:    r.local.Clone(),
		Incoming: r.incoming.Clone(),
		Result:   r.local.Clone(),
	}, true
}

// Edit records a local change to the holder's tags. A pending decision
// stays pending, with the edit folded into its local side.
func (r Reconciler) Edit(tags []AppliedTag) Reconciler {
	next := r.copy()
	next.local.AppliedTags = cloneApplied(tags)
	if next.state == StateClean {
		next.state = StateDirty
	}
	return next
}

// Saved records that the backend accepted the local state and returned
// saved. Any pending push is superseded by the save.
func (r Reconciler) Saved(saved Snapshot) Reconciler {
	return Reconciler{state: StateClean, local: saved.Clone()}
}

// Receive feeds an incoming authoritative snapshot through Reconcile. While
// a decision is already pending, the newer push replaces the older one.
func (r Reconciler) Receive(incoming Snapshot) (Reconciler, Decision) {
	d := Reconcile(r.Local(), incoming)
	next := r.copy()
	switch d.Kind {
	case DecisionAcceptIncoming:
		next.state = StateClean
		next.local = d.Result.Clone()
		next.incoming = nil
	case DecisionPromptUser:
		in := incoming.Clone()
		next.state = StateAwaitingDecision
		next.incoming = &in
	}
	return next, d
}

// Confirm resolves the pending decision and returns the resulting state.
// Keeping local leaves the edits in place for the next save to overwrite
// the incoming state.
func (r Reconciler) Confirm(c Confirmation) (Reconciler, Snapshot, error) {
	if r.state != StateAwaitingDecision || r.incoming == nil {
		return r, r.Current(), ErrNoPendingDecision
	}
	next := Reconciler{state: StateClean}
	switch c {
	case ConfirmAcceptIncoming:
		next.local = r.incoming.Clone()
	case ConfirmKeepLocal:
		next.local = r.local.Clone()
	default:
		return r, r.Current(), fmt.Errorf("%w: %d", ErrUnknownConfirmation, int(c))
	}
	return next, next.local.Clone(), nil
}

func (r Reconciler) copy() Reconciler {
	out := Reconciler{state: r.state, local: r.local.Clone()}
	if r.incoming != nil {
		in := r.incoming.Clone()
		out.incoming = &in
	}
	return out
}
