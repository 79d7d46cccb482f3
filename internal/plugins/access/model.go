// Package access issues and verifies access keys. Every API call carries
// a key in the Authorization header: admin keys manage scenarios and
// games, operator keys run one game, and player keys act for one role
// state in one game.
package access

import "time"

// Scope is what a key may do. Scopes are ordered: admin includes operator,
// operator includes player.
type Scope string

const (
	ScopeAdmin    Scope = "admin"
	ScopeOperator Scope = "operator"
	ScopePlayer   Scope = "player"
)

// Scopes lists every scope, matching the access_keys.scope ENUM.
func Scopes() []Scope {
	return []Scope{ScopeAdmin, ScopeOperator, ScopePlayer}
}

func (s Scope) rank() int {
	switch s {
	case ScopeAdmin:
		return 3
	case ScopeOperator:
		return 2
	case ScopePlayer:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool { return s.rank() > 0 }

// Includes reports whether a key with scope s may do what required allows.
func (s Scope) Includes(required Scope) bool {
	return s.Valid() && s.rank() >= required.rank()
}

// Key is a stored access key. The raw key is shown once at creation and
// only its bcrypt hash is kept.
type Key struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Scope       Scope      `json:"scope"`
	GameID      *string    `json:"game_id,omitempty"`
	RoleStateID *string    `json:"role_state_id,omitempty"`
	KeyPrefix   string     `json:"key_prefix"`
	KeyHash     string     `json:"-"`
	IsActive    bool       `json:"is_active"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// AllowsGame reports whether the key may act in the given game.
func (k *Key) AllowsGame(gameID string) bool {
	if k.Scope == ScopeAdmin {
		return true
	}
	return k.GameID != nil && *k.GameID == gameID
}

// AllowsRoleState reports whether the key may act for the given role
// state. Operators and admins may act for any holder in their games.
func (k *Key) AllowsRoleState(roleStateID string) bool {
	if k.Scope != ScopePlayer {
		return true
	}
	return k.RoleStateID != nil && *k.RoleStateID == roleStateID
}

// CreateKeyInput describes a key to issue.
type CreateKeyInput struct {
	Name        string `json:"name"`
	Scope       Scope  `json:"scope"`
	GameID      string `json:"game_id"`
	RoleStateID string `json:"role_state_id"`
}

// CreateKeyResult carries the raw key, which is never stored.
type CreateKeyResult struct {
	Key    *Key   `json:"key"`
	RawKey string `json:"raw_key"`
}
