package actionlog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/keyxmakerx/larp/internal/apperror"
	"github.com/keyxmakerx/larp/internal/engine"
)

// --- Mock Repository ---

type mockLogRepo struct {
	findByIDFn func(ctx context.Context, id string) (*Entry, error)
	listFn     func(ctx context.Context, filter Filter) ([]Entry, int, error)
}

func (m *mockLogRepo) FindByID(ctx context.Context, id string) (*Entry, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, apperror.NewNotFound("log entry not found")
}

func (m *mockLogRepo) List(ctx context.Context, filter Filter) ([]Entry, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return nil, 0, nil
}

// --- Test Helpers ---

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

// --- Prepare Tests ---

func TestPrepare_FillsIDAndTime(t *testing.T) {
	entry := &Entry{GameID: "g1", ActionID: "a1", PerformerRoleStateID: "rs1"}
	if err := NewLogService(&mockLogRepo{}).Prepare(entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID == "" || entry.CreatedAt.IsZero() {
		t.Errorf("expected generated ID and timestamp, got %+v", entry)
	}
}

func TestPrepare_KeepsGivenIDAndTime(t *testing.T) {
	at := time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC)
	entry := &Entry{ID: "log1", GameID: "g1", ActionID: "a1", PerformerRoleStateID: "rs1", CreatedAt: at}
	if err := NewLogService(&mockLogRepo{}).Prepare(entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.ID != "log1" || !entry.CreatedAt.Equal(at) {
		t.Errorf("expected given values kept, got %+v", entry)
	}
}

func TestPrepare_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{"no game", Entry{ActionID: "a1", PerformerRoleStateID: "rs1"}},
		{"no action", Entry{GameID: "g1", PerformerRoleStateID: "rs1"}},
		{"no performer", Entry{GameID: "g1", ActionID: "a1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewLogService(&mockLogRepo{})
			assertAppError(t, svc.Prepare(&tt.entry), 400)
		})
	}
}

// --- InsertEntry Tests ---

type recordingExecer struct {
	query string
	args  []any
	err   error
}

func (r *recordingExecer) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	r.query, r.args = query, args
	return nil, r.err
}

func TestInsertEntry_StoresNilSetsAsEmptyArrays(t *testing.T) {
	exec := &recordingExecer{}
	entry := &Entry{
		ID: "log1", GameID: "g1", ActionID: "a1", PerformerRoleStateID: "rs1",
		AppliedTags: []engine.Tag{{ID: "t1", Value: "cursed"}},
	}
	if err := InsertEntry(context.Background(), exec, entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(exec.query, "INSERT INTO action_log") || len(exec.args) != 11 {
		t.Fatalf("unexpected statement %q with %d args", exec.query, len(exec.args))
	}
	if applied := string(exec.args[8].([]byte)); !strings.Contains(applied, `"cursed"`) {
		t.Errorf("expected applied tags serialized, got %s", applied)
	}
	if removed := string(exec.args[9].([]byte)); removed != "[]" {
		t.Errorf("expected empty removed set, got %s", removed)
	}
}

func TestInsertEntry_WrapsExecError(t *testing.T) {
	exec := &recordingExecer{err: errors.New("db error")}
	err := InsertEntry(context.Background(), exec, &Entry{ID: "log1", GameID: "g1", ActionID: "a1", PerformerRoleStateID: "rs1"})
	if err == nil || !errors.Is(err, exec.err) {
		t.Errorf("expected wrapped db error, got %v", err)
	}
}

// --- Read Tests ---

func TestGet_OtherGameIsNotFound(t *testing.T) {
	svc := NewLogService(&mockLogRepo{findByIDFn: func(ctx context.Context, id string) (*Entry, error) {
		return &Entry{ID: id, GameID: "g2"}, nil
	}})
	_, err := svc.Get(context.Background(), "g1", "e1")
	assertAppError(t, err, 404)
}

func TestPlayerHistory_FiltersByPerformer(t *testing.T) {
	var got Filter
	svc := NewLogService(&mockLogRepo{listFn: func(ctx context.Context, filter Filter) ([]Entry, int, error) {
		got = filter
		return nil, 0, nil
	}})

	page, err := svc.PlayerHistory(context.Background(), "g1", "rs1", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.GameID != "g1" || got.PerformerRoleStateID != "rs1" {
		t.Errorf("unexpected filter %+v", got)
	}
	if got.Limit != perPage || got.Offset != 2*perPage {
		t.Errorf("expected page 3 window, got limit %d offset %d", got.Limit, got.Offset)
	}
	if page.Entries == nil || page.Page != 3 {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestAdminFeed_ClampsPage(t *testing.T) {
	var got Filter
	svc := NewLogService(&mockLogRepo{listFn: func(ctx context.Context, filter Filter) ([]Entry, int, error) {
		got = filter
		return []Entry{{ID: "e1"}}, 1, nil
	}})

	page, err := svc.AdminFeed(context.Background(), Filter{GameID: "g1"}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Page != 1 || got.Offset != 0 || page.Total != 1 {
		t.Errorf("unexpected page %+v, filter %+v", page, got)
	}
}

func TestAdminFeed_InvalidRange(t *testing.T) {
	now := time.Now()
	svc := NewLogService(&mockLogRepo{})
	_, err := svc.AdminFeed(context.Background(), Filter{GameID: "g1", Since: now, Until: now.Add(-time.Hour)}, 1)
	assertAppError(t, err, 400)
}

func TestApplyFilter_BuildsWhereClause(t *testing.T) {
	ok := true
	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	q := applyFilter(sq.Select("id").From("action_log"), Filter{
		GameID:               "g1",
		PerformerRoleStateID: "rs1",
		Succeeded:            &ok,
		Since:                since,
	})
	query, args, err := q.ToSql()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "SELECT id FROM action_log WHERE game_id = ? AND performer_role_state_id = ? AND succeeded = ? AND created_at >= ?"
	if query != want {
		t.Errorf("unexpected query:\n got %s\nwant %s", query, want)
	}
	if len(args) != 4 {
		t.Errorf("expected 4 args, got %v", args)
	}
}
