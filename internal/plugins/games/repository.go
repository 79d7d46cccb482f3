package games

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/database"
	"github.com/keyxmakerx/larp/internal/engine"
	"github.com/keyxmakerx/larp/internal/plugins/actionlog"
)

// errVersionMismatch is returned by SaveAppliedTags when the stored
// version is not the expected one.
var errVersionMismatch = errors.New("role state version mismatch")

// GameRepository defines data access for games and role states.
type GameRepository interface {
	CreateGame(ctx context.Context, g *Game) error
	FindGame(ctx context.Context, id string) (*Game, error)
	ListGames(ctx context.Context) ([]Game, error)
	UpdateStatus(ctx context.Context, g *Game) error

	CreateRoleState(ctx context.Context, rs *engine.RoleState) error
	FindRoleState(ctx context.Context, id string) (*engine.RoleState, error)
	FindRoleStateByPlayer(ctx context.Context, gameID, email string) (*engine.RoleState, error)
	ListRoleStates(ctx context.Context, gameID string) ([]engine.RoleState, error)

	// SaveAppliedTags replaces the holder's applied tags and bumps its
	// version. With expectedVersion > 0 the write fails with
	// errVersionMismatch unless the stored version still matches. A
	// non-nil entry is inserted into the action log in the same
	// transaction. It returns the new version.
	SaveAppliedTags(ctx context.Context, rs *engine.RoleState, expectedVersion int64, at time.Time, entry *actionlog.Entry) (int64, error)
}

type gameRepository struct {
	db *sql.DB
}

// NewGameRepository creates a repository backed by the given DB pool.
func NewGameRepository(db *sql.DB) GameRepository {
	return &gameRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

// --- Games ---

const gameColumns = `id, scenario_id, name, status, starts_at, started_at, finished_at, created_at, updated_at`

func scanGame(s scanner) (*Game, error) {
	var g Game
	var startsAt, startedAt, finishedAt sql.NullTime
	if err := s.Scan(&g.ID, &g.ScenarioID, &g.Name, &g.Status,
		&startsAt, &startedAt, &finishedAt, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.StartsAt = nullTime(startsAt)
	g.StartedAt = nullTime(startedAt)
	g.FinishedAt = nullTime(finishedAt)
	return &g, nil
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func (r *gameRepository) CreateGame(ctx context.Context, g *Game) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO games (`+gameColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.ScenarioID, g.Name, g.Status, g.StartsAt, g.StartedAt, g.FinishedAt, g.CreatedAt, g.UpdatedAt)
	if database.IsForeignKeyViolation(err) {
		return apperror.NewBadRequest("scenario not found")
	}
	if err != nil {
		return fmt.Errorf("inserting game: %w", err)
	}
	return nil
}

func (r *gameRepository) FindGame(ctx context.Context, id string) (*Game, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("game not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying game: %w", err)
	}
	return g, nil
}

func (r *gameRepository) ListGames(ctx context.Context) ([]Game, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+gameColumns+` FROM games ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing games: %w", err)
	}
	defer rows.Close()

	var out []Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (r *gameRepository) UpdateStatus(ctx context.Context, g *Game) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE games SET status = ?, started_at = ?, finished_at = ?, updated_at = ? WHERE id = ?`,
		g.Status, g.StartedAt, g.FinishedAt, g.UpdatedAt, g.ID)
	if err != nil {
		return fmt.Errorf("updating game status: %w", err)
	}
	return nil
}

// --- Role states ---

const roleStateColumns = `id, game_id, role_id, player_email, version, updated_at`

func (r *gameRepository) CreateRoleState(ctx context.Context, rs *engine.RoleState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO role_states (`+roleStateColumns+`, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rs.ID, rs.GameID, rs.RoleID, rs.PlayerEmail, rs.Version, rs.UpdatedAt, rs.UpdatedAt)
	if database.IsDuplicate(err) {
		return apperror.NewConflict("this role is already assigned in the game")
	}
	if database.IsForeignKeyViolation(err) {
		return apperror.NewBadRequest("unknown game or role")
	}
	if err != nil {
		return fmt.Errorf("inserting role state: %w", err)
	}
	return nil
}

func (r *gameRepository) FindRoleState(ctx context.Context, id string) (*engine.RoleState, error) {
	states, err := r.queryRoleStates(ctx, sq.Select(roleStateColumns).From("role_states").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, apperror.NewNotFound("role state not found")
	}
	return &states[0], nil
}

func (r *gameRepository) FindRoleStateByPlayer(ctx context.Context, gameID, email string) (*engine.RoleState, error) {
	states, err := r.queryRoleStates(ctx, sq.Select(roleStateColumns).From("role_states").
		Where(sq.Eq{"game_id": gameID, "player_email": email}).
		OrderBy("created_at").
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, apperror.NewNotFound("user is not assigned to this game")
	}
	return &states[0], nil
}

func (r *gameRepository) ListRoleStates(ctx context.Context, gameID string) ([]engine.RoleState, error) {
	return r.queryRoleStates(ctx, sq.Select(roleStateColumns).From("role_states").
		Where(sq.Eq{"game_id": gameID}).
		OrderBy("created_at"))
}

// queryRoleStates loads the selected role states and their applied tags,
// joined with the tag definitions, in insertion order.
func (r *gameRepository) queryRoleStates(ctx context.Context, q sq.SelectBuilder) ([]engine.RoleState, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building role state query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying role states: %w", err)
	}
	defer rows.Close()

	var states []engine.RoleState
	byID := make(map[string]int)
	for rows.Next() {
		var rs engine.RoleState
		if err := rows.Scan(&rs.ID, &rs.GameID, &rs.RoleID, &rs.PlayerEmail, &rs.Version, &rs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning role state: %w", err)
		}
		byID[rs.ID] = len(states)
		states = append(states, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return states, nil
	}

	ids := make([]string, 0, len(states))
	for _, rs := range states {
		ids = append(ids, rs.ID)
	}
	query, args, err = sq.Select("a.role_state_id", "a.applied_at", "t.id", "t.value", "t.is_unique", "t.expires_after_minutes").
		From("applied_tags a").
		Join("scenario_tags t ON t.id = a.tag_id").
		Where(sq.Eq{"a.role_state_id": ids}).
		OrderBy("a.role_state_id", "a.position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building applied tag query: %w", err)
	}
	tagRows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying applied tags: %w", err)
	}
	defer tagRows.Close()

	for tagRows.Next() {
		at, err := scanAppliedTag(tagRows)
		if err != nil {
			return nil, err
		}
		if i, ok := byID[at.HolderID]; ok {
			states[i].AppliedTags = append(states[i].AppliedTags, at)
		}
	}
	return states, tagRows.Err()
}

// scanAppliedTag reads a row of the applied tag query: holder, time, then
// the tag's columns.
func scanAppliedTag(s scanner) (engine.AppliedTag, error) {
	var at engine.AppliedTag
	if err := s.Scan(&at.HolderID, &at.AppliedAt, &at.Tag.ID, &at.Tag.Value, &at.Tag.IsUnique, &at.Tag.ExpiresAfterMinutes); err != nil {
		return engine.AppliedTag{}, fmt.Errorf("scanning applied tag: %w", err)
	}
	return at, nil
}

// appliedTagsInsert builds the multi-row insert for the holder's tags,
// keeping their order in the position column.
func appliedTagsInsert(rs *engine.RoleState) sq.InsertBuilder {
	insert := sq.Insert("applied_tags").Columns("role_state_id", "tag_id", "position", "applied_at")
	for i, t := range rs.AppliedTags {
		insert = insert.Values(rs.ID, t.Tag.ID, i, t.AppliedAt)
	}
	return insert
}

func (r *gameRepository) SaveAppliedTags(ctx context.Context, rs *engine.RoleState, expectedVersion int64, at time.Time, entry *actionlog.Entry) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM role_states WHERE id = ? FOR UPDATE`, rs.ID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperror.NewNotFound("role state not found")
	}
	if err != nil {
		return 0, fmt.Errorf("locking role state: %w", err)
	}
	if expectedVersion > 0 && current != expectedVersion {
		return 0, errVersionMismatch
	}

	next := current + 1
	if _, err := tx.ExecContext(ctx,
		`UPDATE role_states SET version = ?, updated_at = ? WHERE id = ?`, next, at, rs.ID); err != nil {
		return 0, fmt.Errorf("bumping role state version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM applied_tags WHERE role_state_id = ?`, rs.ID); err != nil {
		return 0, fmt.Errorf("clearing applied tags: %w", err)
	}

	if len(rs.AppliedTags) > 0 {
		query, args, err := appliedTagsInsert(rs).ToSql()
		if err != nil {
			return 0, fmt.Errorf("building applied tag insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if database.IsForeignKeyViolation(err) {
				return 0, apperror.NewBadRequest("unknown tag")
			}
			return 0, fmt.Errorf("inserting applied tags: %w", err)
		}
	}

	if entry != nil {
		if err := actionlog.InsertEntry(ctx, tx, entry); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing applied tags: %w", err)
	}
	return next, nil
}
