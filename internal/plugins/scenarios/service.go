package scenarios

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/engine"
	"github.com/keyxmakerx/larp/internal/sanitize"
)

const (
	maxNameLength     = 200
	maxTagValueLength = 100
)

// ScenarioService manages the catalog and serves it to games and
// gameplay.
type ScenarioService interface {
	CreateScenario(ctx context.Context, input CreateScenarioInput) (*Scenario, error)
	GetScenario(ctx context.Context, id string) (*Scenario, error)
	ListScenarios(ctx context.Context) ([]Scenario, error)

	CreateTag(ctx context.Context, scenarioID string, input CreateTagInput) (*engine.Tag, error)
	ListTags(ctx context.Context, scenarioID string) ([]engine.Tag, error)

	// ResolveTags returns the definitions of the given tag IDs, which must
	// all belong to the scenario.
	ResolveTags(ctx context.Context, scenarioID string, ids []engine.TagID) (map[engine.TagID]engine.Tag, error)

	CreateRole(ctx context.Context, scenarioID string, input CreateRoleInput) (*Role, error)
	GetRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context, scenarioID string) ([]Role, error)

	CreateItem(ctx context.Context, scenarioID string, input CreateItemInput) (*Item, error)
	GetItem(ctx context.Context, id string) (*Item, error)
	FindItemByCode(ctx context.Context, code string) (*Item, error)
	ListItems(ctx context.Context, scenarioID string) ([]Item, error)

	CreateAction(ctx context.Context, scenarioID string, input CreateActionInput) (*Action, error)
	GetAction(ctx context.Context, id string) (*Action, error)
	ListActions(ctx context.Context, scenarioID string) ([]Action, error)

	// ItemActions lists the actions offered by scanning an item.
	ItemActions(ctx context.Context, scenarioID, itemID string) ([]Action, error)

	// RoleActions lists the actions not tied to any item.
	RoleActions(ctx context.Context, scenarioID string) ([]Action, error)
}

type scenarioService struct {
	repo ScenarioRepository
	now  func() time.Time
}

// NewScenarioService creates a scenario service with the given repository.
func NewScenarioService(repo ScenarioRepository) ScenarioService {
	return &scenarioService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// cleanName sanitizes a display name and checks its length.
func cleanName(field, raw string, max int) (string, error) {
	name := sanitize.Text(raw)
	if name == "" {
		return "", apperror.NewBadRequest(field + " is required")
	}
	if utf8.RuneCountInString(name) > max {
		return "", apperror.NewBadRequest(fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return name, nil
}

func wrapRepoError(op string, err error) error {
	if _, ok := apperror.As(err); ok {
		return err
	}
	return apperror.NewInternal(fmt.Errorf("%s: %w", op, err))
}

// --- Scenarios ---

func (s *scenarioService) CreateScenario(ctx context.Context, input CreateScenarioInput) (*Scenario, error) {
	name, err := cleanName("scenario name", input.Name, maxNameLength)
	if err != nil {
		return nil, err
	}
	scenario := &Scenario{
		ID:          uuid.NewString(),
		Name:        name,
		Description: sanitize.HTML(strings.TrimSpace(input.Description)),
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateScenario(ctx, scenario); err != nil {
		return nil, wrapRepoError("creating scenario", err)
	}
	slog.Info("scenario created", slog.String("scenario_id", scenario.ID), slog.String("name", scenario.Name))
	return scenario, nil
}

func (s *scenarioService) GetScenario(ctx context.Context, id string) (*Scenario, error) {
	return s.repo.FindScenario(ctx, id)
}

func (s *scenarioService) ListScenarios(ctx context.Context) ([]Scenario, error) {
	out, err := s.repo.ListScenarios(ctx)
	if err != nil {
		return nil, wrapRepoError("listing scenarios", err)
	}
	return nonNil(out), nil
}

// --- Tags ---

func (s *scenarioService) CreateTag(ctx context.Context, scenarioID string, input CreateTagInput) (*engine.Tag, error) {
	tag := &engine.Tag{
		ID:                  engine.TagID(uuid.NewString()),
		Value:               sanitize.Text(input.Value),
		IsUnique:            input.IsUnique,
		ExpiresAfterMinutes: input.ExpiresAfterMinutes,
	}
	if err := tag.Validate(); err != nil {
		return nil, apperror.NewBadRequest("tag value is required")
	}
	if utf8.RuneCountInString(tag.Value) > maxTagValueLength {
		return nil, apperror.NewBadRequest(fmt.Sprintf("tag value must be at most %d characters", maxTagValueLength))
	}
	if tag.ExpiresAfterMinutes < 0 {
		return nil, apperror.NewBadRequest("expires_after_minutes cannot be negative")
	}

	if err := s.repo.CreateTag(ctx, scenarioID, tag); err != nil {
		return nil, wrapRepoError("creating tag", err)
	}
	slog.Info("tag created",
		slog.String("scenario_id", scenarioID),
		slog.String("tag_id", string(tag.ID)),
		slog.String("value", tag.Value),
	)
	return tag, nil
}

func (s *scenarioService) ListTags(ctx context.Context, scenarioID string) ([]engine.Tag, error) {
	out, err := s.repo.ListTags(ctx, scenarioID)
	if err != nil {
		return nil, wrapRepoError("listing tags", err)
	}
	return nonNil(out), nil
}

func (s *scenarioService) ResolveTags(ctx context.Context, scenarioID string, ids []engine.TagID) (map[engine.TagID]engine.Tag, error) {
	resolved := make(map[engine.TagID]engine.Tag, len(ids))
	if len(ids) == 0 {
		return resolved, nil
	}

	tags, err := s.repo.ListTags(ctx, scenarioID)
	if err != nil {
		return nil, wrapRepoError("listing tags", err)
	}
	known := make(map[engine.TagID]engine.Tag, len(tags))
	for _, t := range tags {
		known[t.ID] = t
	}

	var unknown []string
	for _, id := range ids {
		t, ok := known[id]
		if !ok {
			unknown = append(unknown, string(id))
			continue
		}
		resolved[id] = t
	}
	if len(unknown) > 0 {
		return nil, apperror.NewBadRequest("unknown tags for this scenario: " + strings.Join(unknown, ", "))
	}
	return resolved, nil
}

// --- Roles ---

func (s *scenarioService) CreateRole(ctx context.Context, scenarioID string, input CreateRoleInput) (*Role, error) {
	name, err := cleanName("role name", input.Name, maxNameLength)
	if err != nil {
		return nil, err
	}
	role := &Role{
		ID:          uuid.NewString(),
		ScenarioID:  scenarioID,
		Name:        name,
		Description: sanitize.HTML(strings.TrimSpace(input.Description)),
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, wrapRepoError("creating role", err)
	}
	return role, nil
}

func (s *scenarioService) GetRole(ctx context.Context, id string) (*Role, error) {
	return s.repo.FindRole(ctx, id)
}

func (s *scenarioService) ListRoles(ctx context.Context, scenarioID string) ([]Role, error) {
	out, err := s.repo.ListRoles(ctx, scenarioID)
	if err != nil {
		return nil, wrapRepoError("listing roles", err)
	}
	return nonNil(out), nil
}

// --- Items ---

// CreateItem stores an item with a fresh QR code. The code is a random
// UUID so that codes cannot be guessed from item names.
func (s *scenarioService) CreateItem(ctx context.Context, scenarioID string, input CreateItemInput) (*Item, error) {
	name, err := cleanName("item name", input.Name, maxNameLength)
	if err != nil {
		return nil, err
	}
	item := &Item{
		ID:          uuid.NewString(),
		ScenarioID:  scenarioID,
		Name:        name,
		Description: sanitize.HTML(strings.TrimSpace(input.Description)),
		QRCode:      uuid.NewString(),
		CreatedAt:   s.now(),
	}
	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, wrapRepoError("creating item", err)
	}
	return item, nil
}

func (s *scenarioService) GetItem(ctx context.Context, id string) (*Item, error) {
	return s.repo.FindItem(ctx, id)
}

func (s *scenarioService) FindItemByCode(ctx context.Context, code string) (*Item, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperror.NewBadRequest("QR code is required")
	}
	return s.repo.FindItemByCode(ctx, code)
}

func (s *scenarioService) ListItems(ctx context.Context, scenarioID string) ([]Item, error) {
	out, err := s.repo.ListItems(ctx, scenarioID)
	if err != nil {
		return nil, wrapRepoError("listing items", err)
	}
	return nonNil(out), nil
}

// --- Actions ---

// CreateAction resolves the tag IDs of every set against the scenario and
// rejects actions the engine would refuse to resolve.
func (s *scenarioService) CreateAction(ctx context.Context, scenarioID string, input CreateActionInput) (*Action, error) {
	name, err := cleanName("action name", input.Name, maxNameLength)
	if err != nil {
		return nil, err
	}

	action := &Action{
		Action: engine.Action{
			ID:               uuid.NewString(),
			Name:             name,
			Description:      sanitize.HTML(strings.TrimSpace(input.Description)),
			MessageOnSuccess: sanitize.HTML(strings.TrimSpace(input.MessageOnSuccess)),
			MessageOnFailure: sanitize.HTML(strings.TrimSpace(input.MessageOnFailure)),
		},
		ScenarioID: scenarioID,
		CreatedAt:  s.now(),
	}

	if input.ItemID != "" {
		item, err := s.repo.FindItem(ctx, input.ItemID)
		if err != nil {
			return nil, err
		}
		if item.ScenarioID != scenarioID {
			return nil, apperror.NewBadRequest("item belongs to another scenario")
		}
		action.ItemID = &item.ID
	}

	var ids []engine.TagID
	for kind, kindIDs := range input.Tags {
		if !kind.Valid() {
			return nil, apperror.NewBadRequest(fmt.Sprintf("unknown tag set %q", kind))
		}
		ids = append(ids, kindIDs...)
	}
	defs, err := s.ResolveTags(ctx, scenarioID, ids)
	if err != nil {
		return nil, err
	}
	for _, kind := range TagSetKinds() {
		set := TagSet(&action.Action, kind)
		seen := make(map[engine.TagID]bool)
		for _, id := range input.Tags[kind] {
			if seen[id] {
				continue
			}
			seen[id] = true
			*set = append(*set, defs[id])
		}
	}

	if err := action.Validate(); err != nil {
		var invalid *engine.InvalidActionError
		if errors.As(err, &invalid) {
			return nil, apperror.NewValidation(invalid.Error())
		}
		return nil, apperror.NewInternal(err)
	}

	if err := s.repo.CreateAction(ctx, action); err != nil {
		return nil, wrapRepoError("creating action", err)
	}
	slog.Info("action created",
		slog.String("scenario_id", scenarioID),
		slog.String("action_id", action.ID),
		slog.String("name", action.Name),
	)
	return action, nil
}

func (s *scenarioService) GetAction(ctx context.Context, id string) (*Action, error) {
	return s.repo.FindAction(ctx, id)
}

func (s *scenarioService) ListActions(ctx context.Context, scenarioID string) ([]Action, error) {
	return s.listActions(ctx, ActionFilter{ScenarioID: scenarioID})
}

func (s *scenarioService) ItemActions(ctx context.Context, scenarioID, itemID string) ([]Action, error) {
	return s.listActions(ctx, ActionFilter{ScenarioID: scenarioID, ItemID: itemID})
}

func (s *scenarioService) RoleActions(ctx context.Context, scenarioID string) ([]Action, error) {
	return s.listActions(ctx, ActionFilter{ScenarioID: scenarioID, RoleLevel: true})
}

func (s *scenarioService) listActions(ctx context.Context, filter ActionFilter) ([]Action, error) {
	out, err := s.repo.ListActions(ctx, filter)
	if err != nil {
		return nil, wrapRepoError("listing actions", err)
	}
	return nonNil(out), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
