package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/keyxmakerx/larp/internal/apperror"
)

type mockChatRepo struct {
	createFn     func(ctx context.Context, msg *Message) error
	listBeforeFn func(ctx context.Context, gameID string, before time.Time, limit int) ([]Message, error)
}

func (m *mockChatRepo) Create(ctx context.Context, msg *Message) error {
	if m.createFn != nil {
		return m.createFn(ctx, msg)
	}
	return nil
}

func (m *mockChatRepo) ListBefore(ctx context.Context, gameID string, before time.Time, limit int) ([]Message, error) {
	if m.listBeforeFn != nil {
		return m.listBeforeFn(ctx, gameID, before, limit)
	}
	return nil, nil
}

type mockBroadcaster struct {
	sent []any
	err  error
}

func (m *mockBroadcaster) PublishChat(ctx context.Context, gameID string, message any) error {
	m.sent = append(m.sent, message)
	return m.err
}

func assertAppError(t *testing.T, err error, expectedCode int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with code %d, got nil", expectedCode)
	}
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T: %v", err, err)
	}
	if appErr.Code != expectedCode {
		t.Errorf("expected status %d, got %d (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

func TestPost_StoresAndBroadcasts(t *testing.T) {
	var stored *Message
	b := &mockBroadcaster{}
	svc := NewChatService(&mockChatRepo{createFn: func(ctx context.Context, msg *Message) error {
		stored = msg
		return nil
	}}, b)

	msg, err := svc.Post(context.Background(), "g1", "rs1", "Mira", PostInput{Body: " <b>Torches</b>   lit "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Body != "Torches lit" {
		t.Errorf("expected sanitized body, got %q", msg.Body)
	}
	if msg.RoleStateID == nil || *msg.RoleStateID != "rs1" {
		t.Errorf("expected role state rs1, got %v", msg.RoleStateID)
	}
	if stored != msg || len(b.sent) != 1 || b.sent[0] != msg {
		t.Error("expected message stored then broadcast")
	}
}

func TestPost_OperatorHasNoRoleState(t *testing.T) {
	svc := NewChatService(&mockChatRepo{}, &mockBroadcaster{})
	msg, err := svc.Post(context.Background(), "g1", "", "GM", PostInput{Body: "Ten minutes left"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.RoleStateID != nil {
		t.Errorf("expected no role state, got %v", *msg.RoleStateID)
	}
}

func TestPost_Validation(t *testing.T) {
	svc := NewChatService(&mockChatRepo{}, &mockBroadcaster{})
	for _, body := range []string{"", "   ", "<script></script>", strings.Repeat("a", MaxBodyLength+1)} {
		_, err := svc.Post(context.Background(), "g1", "", "GM", PostInput{Body: body})
		assertAppError(t, err, 400)
	}
}

func TestPost_BroadcastFailureIsNotFatal(t *testing.T) {
	svc := NewChatService(&mockChatRepo{}, &mockBroadcaster{err: errors.New("redis down")})
	if _, err := svc.Post(context.Background(), "g1", "", "GM", PostInput{Body: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPost_RepoError(t *testing.T) {
	b := &mockBroadcaster{}
	svc := NewChatService(&mockChatRepo{createFn: func(ctx context.Context, msg *Message) error {
		return errors.New("db error")
	}}, b)
	_, err := svc.Post(context.Background(), "g1", "", "GM", PostInput{Body: "hi"})
	assertAppError(t, err, 500)
	if len(b.sent) != 0 {
		t.Error("expected nothing broadcast")
	}
}

func TestHistory_ClampsLimit(t *testing.T) {
	var gotLimit int
	svc := NewChatService(&mockChatRepo{listBeforeFn: func(ctx context.Context, gameID string, before time.Time, limit int) ([]Message, error) {
		gotLimit = limit
		return nil, nil
	}}, &mockBroadcaster{})

	tests := []struct{ in, want int }{{0, defaultHistory}, {-3, defaultHistory}, {10, 10}, {5000, maxHistory}}
	for _, tt := range tests {
		out, err := svc.History(context.Background(), "g1", time.Time{}, tt.in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotLimit != tt.want {
			t.Errorf("limit %d: expected %d, got %d", tt.in, tt.want, gotLimit)
		}
		if out == nil {
			t.Error("expected empty slice, got nil")
		}
	}
}
