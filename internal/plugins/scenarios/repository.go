package scenarios

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/database"
	"github.com/keyxmakerx/larp/internal/engine"
)

// ScenarioRepository defines data access for the scenario catalog.
type ScenarioRepository interface {
	CreateScenario(ctx context.Context, s *Scenario) error
	FindScenario(ctx context.Context, id string) (*Scenario, error)
	ListScenarios(ctx context.Context) ([]Scenario, error)

	CreateTag(ctx context.Context, scenarioID string, tag *engine.Tag) error
	FindTag(ctx context.Context, id engine.TagID) (*engine.Tag, string, error)
	ListTags(ctx context.Context, scenarioID string) ([]engine.Tag, error)

	CreateRole(ctx context.Context, role *Role) error
	FindRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context, scenarioID string) ([]Role, error)

	CreateItem(ctx context.Context, item *Item) error
	FindItem(ctx context.Context, id string) (*Item, error)
	FindItemByCode(ctx context.Context, code string) (*Item, error)
	ListItems(ctx context.Context, scenarioID string) ([]Item, error)

	// CreateAction stores the action and its tag sets in one transaction.
	CreateAction(ctx context.Context, action *Action) error
	FindAction(ctx context.Context, id string) (*Action, error)
	ListActions(ctx context.Context, filter ActionFilter) ([]Action, error)
}

// ActionFilter selects catalog actions. ItemID and RoleLevel are
// exclusive; with neither set every action of the scenario is listed.
type ActionFilter struct {
	ScenarioID string
	ItemID     string
	RoleLevel  bool
}

type scenarioRepository struct {
	db *sql.DB
}

// NewScenarioRepository creates a repository backed by the given DB pool.
func NewScenarioRepository(db *sql.DB) ScenarioRepository {
	return &scenarioRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// --- Scenarios ---

func (r *scenarioRepository) CreateScenario(ctx context.Context, s *Scenario) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scenarios (id, name, description, created_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.Name, s.Description, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting scenario: %w", err)
	}
	return nil
}

func (r *scenarioRepository) FindScenario(ctx context.Context, id string) (*Scenario, error) {
	var s Scenario
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at FROM scenarios WHERE id = ?`, id,
	).Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("scenario not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying scenario: %w", err)
	}
	return &s, nil
}

func (r *scenarioRepository) ListScenarios(ctx context.Context) ([]Scenario, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, description, created_at FROM scenarios ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing scenarios: %w", err)
	}
	defer rows.Close()

	var out []Scenario
	for rows.Next() {
		var s Scenario
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning scenario: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// --- Tags ---

func (r *scenarioRepository) CreateTag(ctx context.Context, scenarioID string, tag *engine.Tag) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scenario_tags (id, scenario_id, value, is_unique, expires_after_minutes)
		 VALUES (?, ?, ?, ?, ?)`,
		tag.ID, scenarioID, tag.Value, tag.IsUnique, tag.ExpiresAfterMinutes)
	if database.IsDuplicate(err) {
		return apperror.NewConflict(fmt.Sprintf("tag %q already exists in this scenario", tag.Value))
	}
	if database.IsForeignKeyViolation(err) {
		return apperror.NewNotFound("scenario not found")
	}
	if err != nil {
		return fmt.Errorf("inserting tag: %w", err)
	}
	return nil
}

const tagColumns = `id, value, is_unique, expires_after_minutes`

func scanTag(s scanner) (engine.Tag, error) {
	var t engine.Tag
	err := s.Scan(&t.ID, &t.Value, &t.IsUnique, &t.ExpiresAfterMinutes)
	return t, err
}

// FindTag returns the tag and the scenario it belongs to.
func (r *scenarioRepository) FindTag(ctx context.Context, id engine.TagID) (*engine.Tag, string, error) {
	var t engine.Tag
	var scenarioID string
	err := r.db.QueryRowContext(ctx,
		`SELECT `+tagColumns+`, scenario_id FROM scenario_tags WHERE id = ?`, id,
	).Scan(&t.ID, &t.Value, &t.IsUnique, &t.ExpiresAfterMinutes, &scenarioID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", apperror.NewNotFound("tag not found")
	}
	if err != nil {
		return nil, "", fmt.Errorf("querying tag: %w", err)
	}
	return &t, scenarioID, nil
}

func (r *scenarioRepository) ListTags(ctx context.Context, scenarioID string) ([]engine.Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tagColumns+` FROM scenario_tags WHERE scenario_id = ? ORDER BY value`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	var out []engine.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- Roles ---

func (r *scenarioRepository) CreateRole(ctx context.Context, role *Role) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scenario_roles (id, scenario_id, name, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		role.ID, role.ScenarioID, role.Name, role.Description, role.CreatedAt)
	if database.IsForeignKeyViolation(err) {
		return apperror.NewNotFound("scenario not found")
	}
	if err != nil {
		return fmt.Errorf("inserting role: %w", err)
	}
	return nil
}

func (r *scenarioRepository) FindRole(ctx context.Context, id string) (*Role, error) {
	var role Role
	err := r.db.QueryRowContext(ctx,
		`SELECT id, scenario_id, name, description, created_at FROM scenario_roles WHERE id = ?`, id,
	).Scan(&role.ID, &role.ScenarioID, &role.Name, &role.Description, &role.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("role not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying role: %w", err)
	}
	return &role, nil
}

func (r *scenarioRepository) ListRoles(ctx context.Context, scenarioID string) ([]Role, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, scenario_id, name, description, created_at
		 FROM scenario_roles WHERE scenario_id = ? ORDER BY name`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.ScenarioID, &role.Name, &role.Description, &role.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// --- Items ---

const itemColumns = `id, scenario_id, name, description, qr_code, created_at`

func scanItem(s scanner) (*Item, error) {
	var it Item
	if err := s.Scan(&it.ID, &it.ScenarioID, &it.Name, &it.Description, &it.QRCode, &it.CreatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *scenarioRepository) CreateItem(ctx context.Context, item *Item) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scenario_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.ScenarioID, item.Name, item.Description, item.QRCode, item.CreatedAt)
	if database.IsForeignKeyViolation(err) {
		return apperror.NewNotFound("scenario not found")
	}
	if err != nil {
		return fmt.Errorf("inserting item: %w", err)
	}
	return nil
}

func (r *scenarioRepository) findItemBy(ctx context.Context, column, value string) (*Item, error) {
	item, err := scanItem(r.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM scenario_items WHERE `+column+` = ?`, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("item not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying item: %w", err)
	}
	return item, nil
}

func (r *scenarioRepository) FindItem(ctx context.Context, id string) (*Item, error) {
	return r.findItemBy(ctx, "id", id)
}

func (r *scenarioRepository) FindItemByCode(ctx context.Context, code string) (*Item, error) {
	return r.findItemBy(ctx, "qr_code", code)
}

func (r *scenarioRepository) ListItems(ctx context.Context, scenarioID string) ([]Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM scenario_items WHERE scenario_id = ? ORDER BY name`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		out = append(out, *it)
	}
	return out, rows.Err()
}

// --- Actions ---

func (r *scenarioRepository) CreateAction(ctx context.Context, action *Action) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO scenario_actions
		 (id, scenario_id, item_id, name, description, message_on_success, message_on_failure, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID, action.ScenarioID, action.ItemID, action.Name, action.Description,
		action.MessageOnSuccess, action.MessageOnFailure, action.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting action: %w", err)
	}

	insert := sq.Insert("action_tags").Columns("action_id", "tag_id", "kind")
	rows := 0
	for _, kind := range TagSetKinds() {
		for _, tag := range *TagSet(&action.Action, kind) {
			insert = insert.Values(action.ID, tag.ID, string(kind))
			rows++
		}
	}
	if rows > 0 {
		query, args, err := insert.ToSql()
		if err != nil {
			return fmt.Errorf("building action tag insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting action tags: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing action: %w", err)
	}
	return nil
}

var actionSelect = sq.Select(
	"id", "scenario_id", "item_id", "name", "description",
	"message_on_success", "message_on_failure", "created_at",
).From("scenario_actions")

func scanAction(s scanner) (*Action, error) {
	var a Action
	var itemID sql.NullString
	if err := s.Scan(&a.ID, &a.ScenarioID, &itemID, &a.Name, &a.Description,
		&a.MessageOnSuccess, &a.MessageOnFailure, &a.CreatedAt); err != nil {
		return nil, err
	}
	if itemID.Valid {
		a.ItemID = &itemID.String
	}
	return &a, nil
}

func (r *scenarioRepository) FindAction(ctx context.Context, id string) (*Action, error) {
	actions, err := r.queryActions(ctx, actionSelect.Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return nil, apperror.NewNotFound("action not found")
	}
	return &actions[0], nil
}

func (r *scenarioRepository) ListActions(ctx context.Context, filter ActionFilter) ([]Action, error) {
	q := actionSelect.Where(sq.Eq{"scenario_id": filter.ScenarioID}).OrderBy("name")
	switch {
	case filter.ItemID != "":
		q = q.Where(sq.Eq{"item_id": filter.ItemID})
	case filter.RoleLevel:
		q = q.Where(sq.Eq{"item_id": nil})
	}
	return r.queryActions(ctx, q)
}

// queryActions runs q and fills the tag sets of every returned action
// with a second query over action_tags.
func (r *scenarioRepository) queryActions(ctx context.Context, q sq.SelectBuilder) ([]Action, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building action query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying actions: %w", err)
	}
	defer rows.Close()

	var actions []Action
	byID := make(map[string]int)
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning action: %w", err)
		}
		byID[a.ID] = len(actions)
		actions = append(actions, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(actions) == 0 {
		return actions, nil
	}

	ids := make([]string, 0, len(actions))
	for _, a := range actions {
		ids = append(ids, a.ID)
	}

	query, args, err = sq.Select("at.action_id", "at.kind", "t.id", "t.value", "t.is_unique", "t.expires_after_minutes").
		From("action_tags at").
		Join("scenario_tags t ON t.id = at.tag_id").
		Where(sq.Eq{"at.action_id": ids}).
		OrderBy("t.value").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building action tag query: %w", err)
	}
	tagRows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying action tags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		var actionID string
		var kind TagSetKind
		var t engine.Tag
		if err := tagRows.Scan(&actionID, &kind, &t.ID, &t.Value, &t.IsUnique, &t.ExpiresAfterMinutes); err != nil {
			return nil, fmt.Errorf("scanning action tag: %w", err)
		}
		i, ok := byID[actionID]
		if !ok {
			continue
		}
		if set := TagSet(&actions[i].Action, kind); set != nil {
			*set = append(*set, t)
		}
	}
	return actions, tagRows.Err()
}
