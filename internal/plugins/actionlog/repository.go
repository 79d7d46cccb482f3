package actionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/engine"
)

// LogRepository defines read access to the action log. Entries are only
// ever inserted, with InsertEntry; there is no update or delete.
type LogRepository interface {
	// FindByID returns one entry.
	FindByID(ctx context.Context, id string) (*Entry, error)

	// List returns entries matching the filter, most recent first, along
	// with the total number of matches ignoring Limit and Offset.
	List(ctx context.Context, filter Filter) ([]Entry, int, error)
}

type logRepository struct {
	db *sql.DB
}

// NewLogRepository creates a new repository backed by the given DB pool.
func NewLogRepository(db *sql.DB) LogRepository {
	return &logRepository{db: db}
}

const entryColumns = `id, game_id, action_id, action_name, performer_role_state_id, target_item_id,
	succeeded, message, applied_tags, removed_tags, created_at`

// Execer runs a statement. Both *sql.DB and *sql.Tx satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// InsertEntry stores the entry with its tag sets serialized as JSON. Nil
// sets are stored as empty arrays. Passing a *sql.Tx makes the entry
// part of a larger write.
func InsertEntry(ctx context.Context, db Execer, entry *Entry) error {
	applied, err := marshalTags(entry.AppliedTags)
	if err != nil {
		return err
	}
	removed, err := marshalTags(entry.RemovedTags)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx,
		`INSERT INTO action_log (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.GameID, entry.ActionID, entry.ActionName, entry.PerformerRoleStateID,
		entry.TargetItemID, entry.Succeeded, entry.Message, applied, removed, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting action log entry: %w", err)
	}
	return nil
}

func marshalTags(tags []engine.Tag) ([]byte, error) {
	if tags == nil {
		tags = []engine.Tag{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("marshaling tags: %w", err)
	}
	return b, nil
}

// FindByID returns a single entry.
func (r *logRepository) FindByID(ctx context.Context, id string) (*Entry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM action_log WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying action log entry: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, apperror.NewNotFound("log entry not found")
	}
	return &entries[0], nil
}

// applyFilter adds the filter's WHERE clauses to a query.
func applyFilter(q sq.SelectBuilder, f Filter) sq.SelectBuilder {
	q = q.Where(sq.Eq{"game_id": f.GameID})
	if f.PerformerRoleStateID != "" {
		q = q.Where(sq.Eq{"performer_role_state_id": f.PerformerRoleStateID})
	}
	if f.TargetItemID != "" {
		q = q.Where(sq.Eq{"target_item_id": f.TargetItemID})
	}
	if f.Succeeded != nil {
		q = q.Where(sq.Eq{"succeeded": *f.Succeeded})
	}
	if !f.Since.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": f.Since})
	}
	if !f.Until.IsZero() {
		q = q.Where(sq.Lt{"created_at": f.Until})
	}
	return q
}

// List counts the matches, then fetches the requested page.
func (r *logRepository) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	countSQL, countArgs, err := applyFilter(sq.Select("COUNT(*)").From("action_log"), filter).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building count query: %w", err)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting action log entries: %w", err)
	}

	q := applyFilter(sq.Select(entryColumns).From("action_log"), filter).
		OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("building list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing action log entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// scanEntries reads rows selected with entryColumns.
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var itemID sql.NullString
		var applied, removed []byte
		if err := rows.Scan(
			&e.ID, &e.GameID, &e.ActionID, &e.ActionName, &e.PerformerRoleStateID, &itemID,
			&e.Succeeded, &e.Message, &applied, &removed, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning action log entry: %w", err)
		}
		if itemID.Valid {
			e.TargetItemID = &itemID.String
		}
		if err := unmarshalTags(applied, &e.AppliedTags); err != nil {
			return nil, err
		}
		if err := unmarshalTags(removed, &e.RemovedTags); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var errEmptyTags = errors.New("empty tag column")

func unmarshalTags(raw []byte, dst *[]engine.Tag) error {
	if len(raw) == 0 {
		return fmt.Errorf("decoding tags: %w", errEmptyTags)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding tags: %w", err)
	}
	return nil
}
