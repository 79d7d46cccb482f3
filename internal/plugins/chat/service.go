package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/sanitize"
)

const (
	defaultHistory = 50
	maxHistory     = 200
)

// Broadcaster pushes a stored message to the game's clients.
type Broadcaster interface {
	PublishChat(ctx context.Context, gameID string, message any) error
}

// ChatService posts and lists chat messages.
type ChatService interface {
	// Post stores a message from author and broadcasts it. roleStateID is
	// empty for operators.
	Post(ctx context.Context, gameID, roleStateID, author string, input PostInput) (*Message, error)
	History(ctx context.Context, gameID string, before time.Time, limit int) ([]Message, error)
}

type chatService struct {
	repo        ChatRepository
	broadcaster Broadcaster
	now         func() time.Time
}

// NewChatService creates a chat service.
func NewChatService(repo ChatRepository, broadcaster Broadcaster) ChatService {
	return &chatService{
		repo:        repo,
		broadcaster: broadcaster,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *chatService) Post(ctx context.Context, gameID, roleStateID, author string, input PostInput) (*Message, error) {
	body := sanitize.Text(input.Body)
	if body == "" {
		return nil, apperror.NewBadRequest("message is empty")
	}
	if utf8.RuneCountInString(body) > MaxBodyLength {
		return nil, apperror.NewBadRequest(fmt.Sprintf("message must be at most %d characters", MaxBodyLength))
	}

	msg := &Message{
		ID:        uuid.NewString(),
		GameID:    gameID,
		Author:    sanitize.Text(author),
		Body:      body,
		CreatedAt: s.now(),
	}
	if roleStateID != "" {
		msg.RoleStateID = &roleStateID
	}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("storing chat message: %w", err))
	}

	if err := s.broadcaster.PublishChat(ctx, gameID, msg); err != nil {
		slog.Warn("failed to broadcast chat message",
			slog.String("game_id", gameID),
			slog.String("message_id", msg.ID),
			slog.Any("error", err),
		)
	}
	return msg, nil
}

func (s *chatService) History(ctx context.Context, gameID string, before time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultHistory
	}
	if limit > maxHistory {
		limit = maxHistory
	}
	out, err := s.repo.ListBefore(ctx, gameID, before, limit)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing chat: %w", err))
	}
	if out == nil {
		out = []Message{}
	}
	return out, nil
}
