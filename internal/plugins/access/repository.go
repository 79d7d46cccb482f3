package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/database"
)

// KeyRepository defines data access for access keys.
type KeyRepository interface {
	Create(ctx context.Context, key *Key) error
	FindByID(ctx context.Context, id string) (*Key, error)

	// FindByPrefix returns every key sharing the prefix. Prefixes are not
	// unique, so callers verify each candidate's hash.
	FindByPrefix(ctx context.Context, prefix string) ([]Key, error)

	ListByGame(ctx context.Context, gameID string) ([]Key, error)
	SetActive(ctx context.Context, id string, active bool) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

type keyRepository struct {
	db *sql.DB
}

// NewKeyRepository creates a repository backed by the given DB pool.
func NewKeyRepository(db *sql.DB) KeyRepository {
	return &keyRepository{db: db}
}

const keyColumns = `id, name, scope, game_id, role_state_id, key_prefix, key_hash, is_active, last_used_at, created_at`

func (r *keyRepository) Create(ctx context.Context, key *Key) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_keys (`+keyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
		key.ID, key.Name, key.Scope, key.GameID, key.RoleStateID,
		key.KeyPrefix, key.KeyHash, key.IsActive, key.CreatedAt,
	)
	if database.IsForeignKeyViolation(err) {
		return apperror.NewBadRequest("unknown game or role state")
	}
	if err != nil {
		return fmt.Errorf("inserting access key: %w", err)
	}
	return nil
}

func (r *keyRepository) FindByID(ctx context.Context, id string) (*Key, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+keyColumns+` FROM access_keys WHERE id = ?`, id)
	k, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("access key not found")
	}
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (r *keyRepository) FindByPrefix(ctx context.Context, prefix string) ([]Key, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM access_keys WHERE key_prefix = ?`, prefix)
	if err != nil {
		return nil, fmt.Errorf("finding access keys by prefix: %w", err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

func (r *keyRepository) ListByGame(ctx context.Context, gameID string) ([]Key, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM access_keys WHERE game_id = ? ORDER BY created_at DESC`, gameID)
	if err != nil {
		return nil, fmt.Errorf("listing access keys: %w", err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

func (r *keyRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE access_keys SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("updating access key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MariaDB reports 0 rows for no-op updates as well, so confirm existence.
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *keyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE access_keys SET last_used_at = ? WHERE id = ?`, at, id); err != nil {
		return fmt.Errorf("touching access key: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(s scanner) (*Key, error) {
	var k Key
	var gameID, roleStateID sql.NullString
	var lastUsed sql.NullTime
	if err := s.Scan(&k.ID, &k.Name, &k.Scope, &gameID, &roleStateID,
		&k.KeyPrefix, &k.KeyHash, &k.IsActive, &lastUsed, &k.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning access key: %w", err)
	}
	if gameID.Valid {
		k.GameID = &gameID.String
	}
	if roleStateID.Valid {
		k.RoleStateID = &roleStateID.String
	}
	if lastUsed.Valid {
		k.LastUsedAt = &lastUsed.Time
	}
	return &k, nil
}

func scanKeys(rows *sql.Rows) ([]Key, error) {
	var keys []Key
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}
