package access

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/keyxmakerx/larp/internal/apperror"
)

const (
	keyPrefix = "larp_"

	// keyBytes is the number of random bytes in a generated key.
	keyBytes = 24

	// keyPrefixLen covers "larp_" plus 8 hex characters.
	keyPrefixLen = len(keyPrefix) + 8

	// touchInterval throttles last_used_at writes.
	touchInterval = time.Minute
)

// bcryptCost is lowered in tests.
var bcryptCost = bcrypt.DefaultCost

// KeyService manages access keys.
type KeyService interface {
	CreateKey(ctx context.Context, input CreateKeyInput) (*CreateKeyResult, error)
	Authenticate(ctx context.Context, rawKey string) (*Key, error)
	GetKey(ctx context.Context, id string) (*Key, error)
	ListByGame(ctx context.Context, gameID string) ([]Key, error)
	Revoke(ctx context.Context, id string) error
}

type keyService struct {
	repo KeyRepository
	now  func() time.Time
}

// NewKeyService creates a key service with the given repository.
func NewKeyService(repo KeyRepository) KeyService {
	return &keyService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// CreateKey generates a key and stores its bcrypt hash. Player keys must
// name a role state, game-scoped keys a game, and admin keys neither.
func (s *keyService) CreateKey(ctx context.Context, input CreateKeyInput) (*CreateKeyResult, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperror.NewBadRequest("key name is required")
	}
	if len(name) > 100 {
		return nil, apperror.NewBadRequest("key name must be at most 100 characters")
	}

	key := &Key{
		ID:        uuid.NewString(),
		Name:      name,
		Scope:     input.Scope,
		IsActive:  true,
		CreatedAt: s.now(),
	}

	switch input.Scope {
	case ScopeAdmin:
		if input.GameID != "" || input.RoleStateID != "" {
			return nil, apperror.NewBadRequest("admin keys are not bound to a game")
		}
	case ScopeOperator:
		if input.GameID == "" {
			return nil, apperror.NewBadRequest("game ID is required for operator keys")
		}
		if input.RoleStateID != "" {
			return nil, apperror.NewBadRequest("operator keys are not bound to a role state")
		}
		key.GameID = &input.GameID
	case ScopePlayer:
		if input.GameID == "" || input.RoleStateID == "" {
			return nil, apperror.NewBadRequest("game ID and role state ID are required for player keys")
		}
		key.GameID = &input.GameID
		key.RoleStateID = &input.RoleStateID
	default:
		return nil, apperror.NewBadRequest(fmt.Sprintf("invalid scope: %q", input.Scope))
	}

	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating key: %w", err))
	}
	rawKey := keyPrefix + hex.EncodeToString(raw)
	key.KeyPrefix = rawKey[:keyPrefixLen]

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcryptCost)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing key: %w", err))
	}
	key.KeyHash = string(hash)

	if err := s.repo.Create(ctx, key); err != nil {
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("creating key: %w", err))
	}

	slog.Info("access key created",
		slog.String("key_id", key.ID),
		slog.String("prefix", key.KeyPrefix),
		slog.String("scope", string(key.Scope)),
	)

	return &CreateKeyResult{Key: key, RawKey: rawKey}, nil
}

// Authenticate resolves a raw key. Every failure is the same 401 so that
// callers cannot probe which keys exist.
func (s *keyService) Authenticate(ctx context.Context, rawKey string) (*Key, error) {
	invalid := apperror.NewUnauthorized("invalid access key")
	if !strings.HasPrefix(rawKey, keyPrefix) || len(rawKey) < keyPrefixLen {
		return nil, invalid
	}

	candidates, err := s.repo.FindByPrefix(ctx, rawKey[:keyPrefixLen])
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("looking up key: %w", err))
	}

	for i := range candidates {
		key := &candidates[i]
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(rawKey)) != nil {
			continue
		}
		if !key.IsActive {
			return nil, apperror.NewUnauthorized("access key has been revoked")
		}
		s.touch(ctx, key)
		return key, nil
	}
	return nil, invalid
}

func (s *keyService) touch(ctx context.Context, key *Key) {
	now := s.now()
	if key.LastUsedAt != nil && now.Sub(*key.LastUsedAt) < touchInterval {
		return
	}
	if err := s.repo.TouchLastUsed(ctx, key.ID, now); err != nil {
		slog.Warn("failed to record key use", slog.String("key_id", key.ID), slog.Any("error", err))
		return
	}
	key.LastUsedAt = &now
}

func (s *keyService) GetKey(ctx context.Context, id string) (*Key, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *keyService) ListByGame(ctx context.Context, gameID string) ([]Key, error) {
	keys, err := s.repo.ListByGame(ctx, gameID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing keys: %w", err))
	}
	if keys == nil {
		keys = []Key{}
	}
	return keys, nil
}

// Revoke deactivates a key. Revoked keys stay listed for the operator.
func (s *keyService) Revoke(ctx context.Context, id string) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		if _, ok := apperror.As(err); ok {
			return err
		}
		return apperror.NewInternal(fmt.Errorf("revoking key: %w", err))
	}
	slog.Info("access key revoked", slog.String("key_id", id))
	return nil
}
