package gameplay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/engine"
	"github.com/keyxmakerx/larp/internal/plugins/actionlog"
	"github.com/keyxmakerx/larp/internal/plugins/games"
	"github.com/keyxmakerx/larp/internal/plugins/scenarios"
)

// Games is the part of the games plugin gameplay needs.
type Games interface {
	GetGame(ctx context.Context, id string) (*games.Game, error)
	GetRoleState(ctx context.Context, gameID, roleStateID string) (*engine.RoleState, error)
	ApplyResolved(ctx context.Context, holder engine.RoleState, expectedVersion int64, entry *actionlog.Entry) (*engine.RoleState, error)
}

// Catalog is the part of the scenario catalog gameplay reads.
type Catalog interface {
	GetAction(ctx context.Context, id string) (*scenarios.Action, error)
	GetItem(ctx context.Context, id string) (*scenarios.Item, error)
	FindItemByCode(ctx context.Context, code string) (*scenarios.Item, error)
	ItemActions(ctx context.Context, scenarioID, itemID string) ([]scenarios.Action, error)
	RoleActions(ctx context.Context, scenarioID string) ([]scenarios.Action, error)
}

// Log validates entries for performed actions before they are written
// along with the tags.
type Log interface {
	Prepare(entry *actionlog.Entry) error
}

// GameplayService lists, previews and performs actions.
type GameplayService interface {
	// AvailableActions returns the actions visible to the holder: the
	// item's when itemID is set, otherwise the role-level ones.
	AvailableActions(ctx context.Context, gameID, roleStateID, itemID string) ([]scenarios.Action, error)

	// ScanItem resolves a QR code to an item of the game's scenario and
	// the actions it offers the holder.
	ScanItem(ctx context.Context, gameID, roleStateID, code string) (*ScanResult, error)

	// Preview resolves an action without changing anything.
	Preview(ctx context.Context, gameID, roleStateID, actionID string) (*PreviewResult, error)

	// Perform resolves the action against the stored holder and persists
	// the new tags and the log entry in one write.
	Perform(ctx context.Context, req SubmitRequest) (*actionlog.Entry, error)
}

type gameplayService struct {
	games   Games
	catalog Catalog
	log     Log
	now     func() time.Time
}

// NewGameplayService creates a gameplay service.
func NewGameplayService(games Games, catalog Catalog, log Log) GameplayService {
	return &gameplayService{
		games:   games,
		catalog: catalog,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// resolveError maps engine errors to API errors.
func resolveError(err error) error {
	var invalid *engine.InvalidActionError
	if errors.As(err, &invalid) {
		return apperror.NewValidation(invalid.Error()).WithInternal(err)
	}
	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.NewInternal(err)
}

func errActionHidden() error {
	return apperror.NewValidation("action is not available")
}

// loadAction returns the action if it belongs to the game's scenario.
func (s *gameplayService) loadAction(ctx context.Context, g *games.Game, actionID string) (*scenarios.Action, error) {
	action, err := s.catalog.GetAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if action.ScenarioID != g.ScenarioID {
		return nil, apperror.NewNotFound("action not found")
	}
	return action, nil
}

func (s *gameplayService) AvailableActions(ctx context.Context, gameID, roleStateID, itemID string) ([]scenarios.Action, error) {
	g, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}

	var holder *engine.RoleState
	var candidates []scenarios.Action

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		holder, err = s.games.GetRoleState(egCtx, gameID, roleStateID)
		return err
	})
	eg.Go(func() error {
		if itemID == "" {
			var err error
			candidates, err = s.catalog.RoleActions(egCtx, g.ScenarioID)
			return err
		}
		item, err := s.catalog.GetItem(egCtx, itemID)
		if err != nil {
			return err
		}
		if item.ScenarioID != g.ScenarioID {
			return apperror.NewNotFound("item not found")
		}
		candidates, err = s.catalog.ItemActions(egCtx, g.ScenarioID, item.ID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return s.visible(*holder, candidates)
}

func (s *gameplayService) visible(holder engine.RoleState, candidates []scenarios.Action) ([]scenarios.Action, error) {
	plain := make([]engine.Action, len(candidates))
	for i, a := range candidates {
		plain[i] = a.Action
	}
	shown, err := engine.VisibleActions(plain, holder, s.now())
	if err != nil {
		return nil, resolveError(err)
	}

	keep := make(map[string]bool, len(shown))
	for _, a := range shown {
		keep[a.ID] = true
	}
	out := make([]scenarios.Action, 0, len(shown))
	for _, a := range candidates {
		if keep[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *gameplayService) ScanItem(ctx context.Context, gameID, roleStateID, code string) (*ScanResult, error) {
	g, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	item, err := s.catalog.FindItemByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if item.ScenarioID != g.ScenarioID {
		return nil, apperror.NewNotFound("item not found")
	}
	actions, err := s.AvailableActions(ctx, gameID, roleStateID, item.ID)
	if err != nil {
		return nil, err
	}
	return &ScanResult{Item: item, Actions: actions}, nil
}

func (s *gameplayService) Preview(ctx context.Context, gameID, roleStateID, actionID string) (*PreviewResult, error) {
	g, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	holder, err := s.games.GetRoleState(ctx, gameID, roleStateID)
	if err != nil {
		return nil, err
	}
	action, err := s.loadAction(ctx, g, actionID)
	if err != nil {
		return nil, err
	}

	outcome, err := engine.Resolve(action.Action, *holder, s.now())
	if err != nil {
		return nil, resolveError(err)
	}
	return &PreviewResult{ActionID: action.ID, Outcome: outcome}, nil
}

// Perform retries once when the holder changed between read and write;
// the retry resolves against the fresh state.
func (s *gameplayService) Perform(ctx context.Context, req SubmitRequest) (*actionlog.Entry, error) {
	g, err := s.games.GetGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	if !g.IsActive() {
		return nil, apperror.NewConflict("game is not active")
	}

	action, err := s.loadAction(ctx, g, req.ActionID)
	if err != nil {
		return nil, err
	}

	target := req.TargetItemID
	if target != nil && *target == "" {
		target = nil
	}
	if target != nil && (action.ItemID == nil || *action.ItemID != *target) {
		return nil, apperror.NewValidation("this item does not offer that action")
	}
	if target == nil {
		target = action.ItemID
	}

	entry := &actionlog.Entry{
		GameID:               g.ID,
		ActionID:             action.ID,
		ActionName:           action.Name,
		PerformerRoleStateID: req.PerformerRoleStateID,
		TargetItemID:         target,
	}
	for attempt := 0; ; attempt++ {
		holder, err := s.games.GetRoleState(ctx, req.GameID, req.PerformerRoleStateID)
		if err != nil {
			return nil, err
		}

		at := s.now()
		outcome, err := engine.Resolve(action.Action, *holder, at)
		if err != nil {
			return nil, resolveError(err)
		}
		if !outcome.Visible {
			return nil, errActionHidden()
		}

		entry.Succeeded = outcome.Success()
		entry.Message = outcome.Message
		entry.AppliedTags = outcome.TagsToAdd
		entry.RemovedTags = outcome.TagsToRemove
		entry.CreatedAt = at
		if err := s.log.Prepare(entry); err != nil {
			return nil, err
		}

		next := engine.ApplyOutcome(*holder, outcome, at)
		_, err = s.games.ApplyResolved(ctx, next, holder.Version, entry)
		if err == nil {
			break
		}
		if attempt == 0 && apperror.HasCode(err, http.StatusConflict) {
			slog.Debug("role state changed during perform, retrying",
				slog.String("role_state_id", req.PerformerRoleStateID),
				slog.String("action_id", action.ID),
			)
			continue
		}
		return nil, err
	}

	slog.Info("action performed",
		slog.String("game_id", g.ID),
		slog.String("role_state_id", req.PerformerRoleStateID),
		slog.String("action_id", action.ID),
		slog.Bool("succeeded", entry.Succeeded),
	)
	return entry, nil
}
