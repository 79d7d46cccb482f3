// Package tagsync keeps a client's copy of one holder's tags in step with
// the server. It previews actions with the engine, shows the predicted
// result while a submission is in flight, and feeds every push from the
// server through the reconciler so unsaved edits are never overwritten
// without the user's say.
package tagsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/keyxmakerx/larp/internal/engine"
)

// ErrActionHidden is returned by Perform for an action the holder cannot
// see. Nothing is submitted.
var ErrActionHidden = errors.New("action is not available")

// ErrDecisionPending is returned by Save while a pushed state is waiting
// for the user. Answer it with AcceptIncoming or KeepLocal instead.
var ErrDecisionPending = errors.New("a newer server state is waiting for a decision")

// Feed delivers full snapshots of one holder. The channel closes when ctx
// ends or the connection drops.
type Feed interface {
	Subscribe(ctx context.Context, gameID, holderID string) (<-chan engine.Snapshot, error)
}

// Submitter sends an action to the server, which resolves it again and
// returns the log entry.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (*Receipt, error)
}

// Saver replaces the holder's tags on the server and returns the saved
// snapshot.
type Saver interface {
	SaveTags(ctx context.Context, gameID, holderID string, tags []engine.AppliedTag) (engine.Snapshot, error)
}

// Submission is an action request.
type Submission struct {
	GameID               string  `json:"-"`
	PerformerRoleStateID string  `json:"performer_role_state_id"`
	ActionID             string  `json:"action_id"`
	TargetItemID         *string `json:"target_item_id,omitempty"`
}

// Receipt is the server's log entry for a performed action.
type Receipt struct {
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

// Prompt asks the user to choose between unsaved local tags and a newer
// server state. Answer with AcceptIncoming or KeepLocal.
type Prompt struct {
	Local    engine.Snapshot
	Incoming engine.Snapshot
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source for previews and optimistic results.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithPushTimeout bounds how long a confirmed prediction stays on screen
// when the matching push never arrives.
func WithPushTimeout(d time.Duration) Option {
	return func(t *Tracker) { t.pushTimeout = d }
}

// WithBackOff sets the policy used to restart a dropped feed.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(t *Tracker) { t.newBackOff = newBackOff }
}

// Tracker follows one holder. It is safe for concurrent use: Run usually
// sits in its own goroutine while the UI calls the other methods.
type Tracker struct {
	feed      Feed
	submitter Submitter
	saver     Saver

	clock       func() time.Time
	newBackOff  func() backoff.BackOff
	pushTimeout time.Duration

	mu          sync.Mutex
	holder      engine.RoleState
	rec         engine.Reconciler
	seenVersion int64

	// edits counts local edits so a save can tell whether the tags it sent
	// are still the latest.
	edits uint64

	// optimistic is the predicted holder for submission seq; nil when
	// nothing is in flight. Once the server has answered, it expires at
	// optimisticUntil.
	optimistic      *engine.RoleState
	optimisticUntil time.Time
	seq             uint64

	prompts chan Prompt
}

// NewTracker starts tracking holder at its fetched state. Saver may be nil
// for clients that never edit tags directly.
func NewTracker(holder engine.RoleState, feed Feed, submitter Submitter, saver Saver, opts ...Option) *Tracker {
	t := &Tracker{
		feed:        feed,
		submitter:   submitter,
		saver:       saver,
		clock:       func() time.Time { return time.Now().UTC() },
		newBackOff:  defaultBackOff,
		pushTimeout: 10 * time.Second,
		holder:      holder.Clone(),
		rec:         engine.NewReconciler(holder.Snapshot()),
		seenVersion: holder.Version,
		prompts:     make(chan Prompt, 1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}

// View returns the holder as it should be displayed.
func (t *Tracker) View() engine.RoleState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.viewLocked()
}

func (t *Tracker) viewLocked() engine.RoleState {
	if t.optimistic != nil && !t.optimisticUntil.IsZero() && !t.clock().Before(t.optimisticUntil) {
		t.dropOptimisticLocked()
	}
	if t.optimistic != nil {
		return t.optimistic.Clone()
	}
	return t.holder.WithSnapshot(t.rec.Current())
}

func (t *Tracker) dropOptimisticLocked() {
	t.optimistic = nil
	t.optimisticUntil = time.Time{}
}

// State reports the reconciler state.
func (t *Tracker) State() engine.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rec.State()
}

// Visible filters actions down to those the holder may be offered now.
func (t *Tracker) Visible(actions []engine.Action) ([]engine.Action, error) {
	return engine.VisibleActions(actions, t.View(), t.clock())
}

// Preview resolves action against the displayed holder without changing
// anything.
func (t *Tracker) Preview(action engine.Action) (engine.Outcome, error) {
	return engine.Resolve(action, t.View(), t.clock())
}

// Perform submits action. Until the server's push arrives the view shows
// the locally predicted result. The prediction is dropped if the request
// fails or is cancelled, replaced if another Perform starts, and expires
// after the push timeout once the server has answered. The returned
// receipt is never applied locally.
func (t *Tracker) Perform(ctx context.Context, action engine.Action, targetItemID *string) (*Receipt, error) {
	t.mu.Lock()
	view := t.viewLocked()
	now := t.clock()
	outcome, err := engine.Resolve(action, view, now)
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	if !outcome.Visible {
		t.mu.Unlock()
		return nil, ErrActionHidden
	}
	predicted := engine.ApplyOutcome(view, outcome, now)
	t.seq++
	seq := t.seq
	t.optimistic = &predicted
	t.optimisticUntil = time.Time{}
	t.mu.Unlock()

	receipt, err := t.submitter.Submit(ctx, Submission{
		GameID:               t.holder.GameID,
		PerformerRoleStateID: t.holder.ID,
		ActionID:             action.ID,
		TargetItemID:         targetItemID,
	})

	t.mu.Lock()
	defer t.mu.Unlock()
	current := t.seq == seq && t.optimistic != nil
	if err != nil {
		if current {
			t.dropOptimisticLocked()
		}
		return nil, err
	}
	if current {
		t.optimisticUntil = t.clock().Add(t.pushTimeout)
	}
	return receipt, nil
}

// Edit replaces the local tag list, marking the tracker dirty. Any
// in-flight prediction is dropped from the view.
func (t *Tracker) Edit(tags []engine.AppliedTag) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rec = t.rec.Edit(tags)
	t.edits++
	t.dropOptimisticLocked()
	t.seq++
}

// Save writes the local tags to the server. It is a no-op while clean and
// fails with ErrDecisionPending while a conflict awaits the user. Edits
// made while the save is in flight stay dirty.
func (t *Tracker) Save(ctx context.Context) (engine.Snapshot, error) {
	t.mu.Lock()
	if t.rec.State() == engine.StateAwaitingDecision {
		t.mu.Unlock()
		return engine.Snapshot{}, ErrDecisionPending
	}
	local := t.rec.Local()
	gen := t.edits
	t.mu.Unlock()

	if !local.Dirty {
		return local.Snapshot, nil
	}
	return t.save(ctx, local.AppliedTags, gen)
}

// save sends tags, which were the local state at edit generation gen.
func (t *Tracker) save(ctx context.Context, tags []engine.AppliedTag, gen uint64) (engine.Snapshot, error) {
	if t.saver == nil {
		return engine.Snapshot{}, errors.New("tracker has no saver")
	}
	saved, err := t.saver.SaveTags(ctx, t.holder.GameID, t.holder.ID, tags)
	if err != nil {
		return engine.Snapshot{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if saved.Version > t.seenVersion {
		t.seenVersion = saved.Version
	}
	if t.edits != gen {
		return saved.Clone(), nil
	}
	t.rec = t.rec.Saved(saved)

	// The save's own push may have prompted before the response came back.
	select {
	case p := <-t.prompts:
		if p.Incoming.Version > saved.Version {
			t.prompts <- p
		}
	default:
	}
	return saved.Clone(), nil
}

// Pending returns the conflict awaiting the user, if any.
func (t *Tracker) Pending() (Prompt, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.rec.Pending()
	if !ok {
		return Prompt{}, false
	}
	return Prompt{Local: d.Local, Incoming: d.Incoming}, true
}

// Prompts delivers conflicts as they arise. Only the latest one is kept
// if the consumer falls behind.
func (t *Tracker) Prompts() <-chan Prompt {
	return t.prompts
}

// AcceptIncoming discards the local edits in favour of the server state.
func (t *Tracker) AcceptIncoming() (engine.Snapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next, snap, err := t.rec.Confirm(engine.ConfirmAcceptIncoming)
	if err != nil {
		return engine.Snapshot{}, err
	}
	t.rec = next
	return snap, nil
}

// KeepLocal keeps the local edits and saves them over the server state.
// If the save fails the edits stay local and dirty.
func (t *Tracker) KeepLocal(ctx context.Context) (engine.Snapshot, error) {
	t.mu.Lock()
	next, kept, err := t.rec.Confirm(engine.ConfirmKeepLocal)
	if err != nil {
		t.mu.Unlock()
		return engine.Snapshot{}, err
	}
	t.rec = next
	gen := t.edits
	t.mu.Unlock()

	saved, err := t.save(ctx, kept.AppliedTags, gen)
	if err != nil {
		t.mu.Lock()
		if t.edits == gen {
			t.rec = t.rec.Edit(kept.AppliedTags)
		}
		t.mu.Unlock()
		return engine.Snapshot{}, err
	}
	return saved, nil
}

// Run consumes the feed until ctx ends, resubscribing with backoff
// whenever the subscription fails or closes. It returns ctx's error.
func (t *Tracker) Run(ctx context.Context) error {
	b := t.newBackOff()
	for {
		snaps, err := t.feed.Subscribe(ctx, t.holder.GameID, t.holder.ID)
		if err == nil {
			if t.consume(ctx, snaps) {
				b.Reset()
			}
		} else if ctx.Err() == nil {
			slog.Warn("tag feed subscribe failed",
				slog.String("role_state_id", t.holder.ID),
				slog.Any("error", err),
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return errors.New("tag feed gave up reconnecting")
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// consume drains one subscription and reports whether anything arrived.
func (t *Tracker) consume(ctx context.Context, snaps <-chan engine.Snapshot) bool {
	got := false
	for {
		select {
		case <-ctx.Done():
			return got
		case snap, ok := <-snaps:
			if !ok {
				return got
			}
			got = true
			t.Receive(snap)
		}
	}
}

// Receive applies one pushed snapshot. Snapshots of other holders and
// versions no newer than the newest seen are ignored.
func (t *Tracker) Receive(snap engine.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap.HolderID != t.holder.ID {
		return
	}
	if snap.Version <= t.seenVersion {
		slog.Debug("ignoring stale snapshot",
			slog.String("role_state_id", t.holder.ID),
			slog.Int64("version", snap.Version),
			slog.Int64("seen_version", t.seenVersion),
		)
		return
	}
	t.seenVersion = snap.Version
	t.dropOptimisticLocked()

	next, d := t.rec.Receive(snap)
	t.rec = next
	if d.Kind != engine.DecisionPromptUser {
		return
	}

	p := Prompt{Local: d.Local, Incoming: d.Incoming}
	select {
	case <-t.prompts:
	default:
	}
	t.prompts <- p
}
