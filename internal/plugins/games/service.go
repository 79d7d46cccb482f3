package games

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/database"
	"github.com/keyxmakerx/larp/internal/engine"
	"github.com/keyxmakerx/larp/internal/plugins/access"
	"github.com/keyxmakerx/larp/internal/plugins/actionlog"
	"github.com/keyxmakerx/larp/internal/plugins/scenarios"
	"github.com/keyxmakerx/larp/internal/sanitize"
)

// Catalog is the part of the scenario catalog games read.
type Catalog interface {
	GetScenario(ctx context.Context, id string) (*scenarios.Scenario, error)
	GetRole(ctx context.Context, id string) (*scenarios.Role, error)
	ResolveTags(ctx context.Context, scenarioID string, ids []engine.TagID) (map[engine.TagID]engine.Tag, error)
}

// KeyIssuer creates access keys for assigned players.
type KeyIssuer interface {
	CreateKey(ctx context.Context, input access.CreateKeyInput) (*access.CreateKeyResult, error)
}

// SnapshotPublisher pushes a holder's new tag state to connected clients.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, gameID string, snapshot engine.Snapshot) error
}

// GameService manages games and the role states played in them.
type GameService interface {
	CreateGame(ctx context.Context, input CreateGameInput) (*Game, error)
	GetGame(ctx context.Context, id string) (*Game, error)
	ListGames(ctx context.Context) ([]Game, error)
	StartGame(ctx context.Context, id string) (*Game, error)
	FinishGame(ctx context.Context, id string) (*Game, error)

	AssignRole(ctx context.Context, gameID string, input AssignRoleInput) (*AssignRoleResult, error)

	// GetRoleState returns the holder if it belongs to the game. A holder
	// of another game is reported as not assigned, never as forbidden.
	GetRoleState(ctx context.Context, gameID, roleStateID string) (*engine.RoleState, error)
	ListRoleStates(ctx context.Context, gameID string) ([]engine.RoleState, error)
	FindRoleStateForPlayer(ctx context.Context, gameID, email string) (*engine.RoleState, error)
	CheckHolder(ctx context.Context, gameID, roleStateID string) error

	// ReplaceAppliedTags overwrites the holder's tags without a version
	// check: the last writer wins.
	ReplaceAppliedTags(ctx context.Context, gameID, roleStateID string, input ReplaceTagsInput) (*engine.RoleState, error)

	// ApplyResolved persists a holder produced by the engine from the
	// state read at expectedVersion, together with the action's log
	// entry: both are written or neither is. A concurrent write makes it
	// fail with 409.
	ApplyResolved(ctx context.Context, holder engine.RoleState, expectedVersion int64, entry *actionlog.Entry) (*engine.RoleState, error)
}

type gameService struct {
	repo      GameRepository
	catalog   Catalog
	keys      KeyIssuer
	publisher SnapshotPublisher
	now       func() time.Time
}

// NewGameService creates a game service.
func NewGameService(repo GameRepository, catalog Catalog, keys KeyIssuer, publisher SnapshotPublisher) GameService {
	return &gameService{
		repo:      repo,
		catalog:   catalog,
		keys:      keys,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func wrapRepoError(op string, err error) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.NewInternal(fmt.Errorf("%s: %w", op, err))
}

// notAssigned is the 404 for holders missing from a game. It wraps the
// engine error so callers can still match it.
func notAssigned(gameID, roleStateID string) error {
	return apperror.NewNotFound("user is not assigned to this game").
		WithInternal(&engine.HolderNotFoundError{HolderID: roleStateID, GameID: gameID})
}

// --- Games ---

func (s *gameService) CreateGame(ctx context.Context, input CreateGameInput) (*Game, error) {
	name := sanitize.Text(input.Name)
	if name == "" {
		return nil, apperror.NewBadRequest("game name is required")
	}
	if len(name) > 200 {
		return nil, apperror.NewBadRequest("game name must be at most 200 characters")
	}
	if strings.TrimSpace(input.ScenarioID) == "" {
		return nil, apperror.NewBadRequest("scenario ID is required")
	}
	if _, err := s.catalog.GetScenario(ctx, input.ScenarioID); err != nil {
		if apperror.HasCode(err, 404) {
			return nil, apperror.NewBadRequest("scenario not found")
		}
		return nil, err
	}

	now := s.now()
	g := &Game{
		ID:         uuid.NewString(),
		ScenarioID: input.ScenarioID,
		Name:       name,
		Status:     StatusPlanned,
		StartsAt:   input.StartsAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateGame(ctx, g); err != nil {
		return nil, wrapRepoError("creating game", err)
	}

	slog.Info("game created",
		slog.String("game_id", g.ID),
		slog.String("scenario_id", g.ScenarioID),
		slog.String("name", g.Name),
	)
	return g, nil
}

func (s *gameService) GetGame(ctx context.Context, id string) (*Game, error) {
	return s.repo.FindGame(ctx, id)
}

func (s *gameService) ListGames(ctx context.Context) ([]Game, error) {
	out, err := s.repo.ListGames(ctx)
	if err != nil {
		return nil, wrapRepoError("listing games", err)
	}
	if out == nil {
		out = []Game{}
	}
	return out, nil
}

func (s *gameService) StartGame(ctx context.Context, id string) (*Game, error) {
	return s.transition(ctx, id, StatusActive)
}

func (s *gameService) FinishGame(ctx context.Context, id string) (*Game, error) {
	return s.transition(ctx, id, StatusFinished)
}

func (s *gameService) transition(ctx context.Context, id string, next Status) (*Game, error) {
	g, err := s.repo.FindGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if !g.Status.CanTransition(next) {
		return nil, apperror.NewConflict(fmt.Sprintf("cannot move a %s game to %s", g.Status, next))
	}

	now := s.now()
	g.Status = next
	g.UpdatedAt = now
	switch next {
	case StatusActive:
		g.StartedAt = &now
	case StatusFinished:
		g.FinishedAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, g); err != nil {
		return nil, wrapRepoError("updating game status", err)
	}

	slog.Info("game status changed", slog.String("game_id", g.ID), slog.String("status", string(next)))
	return g, nil
}

// --- Role states ---

// AssignRole creates the holder for a role and issues the player's key.
// The role must come from the game's scenario.
func (s *gameService) AssignRole(ctx context.Context, gameID string, input AssignRoleInput) (*AssignRoleResult, error) {
	g, err := s.repo.FindGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Status == StatusFinished {
		return nil, apperror.NewConflict("game is finished")
	}

	email := strings.ToLower(strings.TrimSpace(input.PlayerEmail))
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperror.NewBadRequest("invalid player email")
		}
	}

	role, err := s.catalog.GetRole(ctx, input.RoleID)
	if err != nil {
		if apperror.HasCode(err, 404) {
			return nil, apperror.NewBadRequest("role not found")
		}
		return nil, err
	}
	if role.ScenarioID != g.ScenarioID {
		return nil, apperror.NewBadRequest("role belongs to another scenario")
	}

	rs := &engine.RoleState{
		ID:          uuid.NewString(),
		GameID:      g.ID,
		RoleID:      role.ID,
		PlayerEmail: email,
		Version:     1,
		UpdatedAt:   s.now(),
	}
	if err := s.repo.CreateRoleState(ctx, rs); err != nil {
		return nil, wrapRepoError("creating role state", err)
	}

	keyName := role.Name
	if email != "" {
		keyName = role.Name + " (" + email + ")"
	}
	key, err := s.keys.CreateKey(ctx, access.CreateKeyInput{
		Name:        keyName,
		Scope:       access.ScopePlayer,
		GameID:      g.ID,
		RoleStateID: rs.ID,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("role assigned",
		slog.String("game_id", g.ID),
		slog.String("role_id", role.ID),
		slog.String("role_state_id", rs.ID),
	)
	return &AssignRoleResult{RoleState: rs, AccessKey: key}, nil
}

func (s *gameService) GetRoleState(ctx context.Context, gameID, roleStateID string) (*engine.RoleState, error) {
	rs, err := s.repo.FindRoleState(ctx, roleStateID)
	if apperror.HasCode(err, 404) {
		return nil, notAssigned(gameID, roleStateID)
	}
	if err != nil {
		return nil, wrapRepoError("loading role state", err)
	}
	if rs.GameID != gameID {
		return nil, notAssigned(gameID, roleStateID)
	}
	return rs, nil
}

func (s *gameService) ListRoleStates(ctx context.Context, gameID string) ([]engine.RoleState, error) {
	out, err := s.repo.ListRoleStates(ctx, gameID)
	if err != nil {
		return nil, wrapRepoError("listing role states", err)
	}
	if out == nil {
		out = []engine.RoleState{}
	}
	return out, nil
}

func (s *gameService) FindRoleStateForPlayer(ctx context.Context, gameID, email string) (*engine.RoleState, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperror.NewBadRequest("player email is required")
	}
	rs, err := s.repo.FindRoleStateByPlayer(ctx, gameID, email)
	if err != nil {
		return nil, wrapRepoError("finding role state", err)
	}
	return rs, nil
}

func (s *gameService) CheckHolder(ctx context.Context, gameID, roleStateID string) error {
	_, err := s.GetRoleState(ctx, gameID, roleStateID)
	return err
}

func (s *gameService) ReplaceAppliedTags(ctx context.Context, gameID, roleStateID string, input ReplaceTagsInput) (*engine.RoleState, error) {
	g, err := s.repo.FindGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	rs, err := s.GetRoleState(ctx, gameID, roleStateID)
	if err != nil {
		return nil, err
	}

	ids := make([]engine.TagID, 0, len(input.Tags))
	for _, ta := range input.Tags {
		if ta.TagID == "" {
			return nil, apperror.NewBadRequest("tag ID is required")
		}
		ids = append(ids, ta.TagID)
	}
	defs, err := s.catalog.ResolveTags(ctx, g.ScenarioID, ids)
	if err != nil {
		return nil, err
	}

	now := s.now()
	applied := make([]engine.AppliedTag, 0, len(input.Tags))
	seenUnique := make(map[engine.TagID]bool)
	for _, ta := range input.Tags {
		def := defs[ta.TagID]
		if def.IsUnique {
			if seenUnique[def.ID] {
				return nil, apperror.NewBadRequest(fmt.Sprintf("unique tag %q listed twice", def.Value))
			}
			seenUnique[def.ID] = true
		}
		at := now
		if ta.AppliedAt != nil {
			if ta.AppliedAt.After(now) {
				return nil, apperror.NewBadRequest("applied_at cannot be in the future")
			}
			at = ta.AppliedAt.UTC()
		}
		applied = append(applied, engine.AppliedTag{Tag: def, HolderID: rs.ID, AppliedAt: at})
	}

	rs.AppliedTags = applied
	return s.save(ctx, rs, 0, nil)
}

func (s *gameService) ApplyResolved(ctx context.Context, holder engine.RoleState, expectedVersion int64, entry *actionlog.Entry) (*engine.RoleState, error) {
	if expectedVersion <= 0 {
		return nil, apperror.NewInternal(fmt.Errorf("apply resolved: invalid expected version %d", expectedVersion))
	}
	rs := holder.Clone()
	for i := range rs.AppliedTags {
		rs.AppliedTags[i].HolderID = rs.ID
	}
	return s.save(ctx, &rs, expectedVersion, entry)
}

// save persists the holder and the optional log entry, then publishes its
// snapshot once committed. Publish failures are logged: clients
// resynchronise on their next load.
func (s *gameService) save(ctx context.Context, rs *engine.RoleState, expectedVersion int64, entry *actionlog.Entry) (*engine.RoleState, error) {
	now := s.now()
	version, err := s.repo.SaveAppliedTags(ctx, rs, expectedVersion, now, entry)
	if errors.Is(err, errVersionMismatch) || database.IsRetryable(err) {
		return nil, apperror.NewConflict("role state changed, reload and try again").WithInternal(err)
	}
	if err != nil {
		return nil, wrapRepoError("saving applied tags", err)
	}
	rs.Version = version
	rs.UpdatedAt = now

	if s.publisher != nil {
		if err := s.publisher.PublishSnapshot(ctx, rs.GameID, rs.Snapshot()); err != nil {
			slog.Warn("failed to publish tag snapshot",
				slog.String("game_id", rs.GameID),
				slog.String("role_state_id", rs.ID),
				slog.Any("error", err),
			)
		}
	}

	slog.Debug("applied tags saved",
		slog.String("role_state_id", rs.ID),
		slog.Int64("version", version),
		slog.Int("tags", len(rs.AppliedTags)),
	)
	return rs, nil
}
