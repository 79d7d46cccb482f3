package actionlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/keyxmakerx/larp/internal/apperror"
)

// perPage is the number of entries per page of a feed.
const perPage = 50

// LogService validates and reads action log entries.
type LogService interface {
	// Prepare validates an entry and fills in ID and CreatedAt when
	// empty. Entries are written with InsertEntry inside the transaction
	// that applies the action's tags.
	Prepare(entry *Entry) error

	// Get returns an entry if it belongs to the game.
	Get(ctx context.Context, gameID, id string) (*Entry, error)

	// AdminFeed returns the game's entries, most recent first, narrowed by
	// the filter. Pages are 1-indexed.
	AdminFeed(ctx context.Context, filter Filter, page int) (*Page, error)

	// PlayerHistory returns the actions one role state performed.
	PlayerHistory(ctx context.Context, gameID, roleStateID string, page int) (*Page, error)
}

type logService struct {
	repo LogRepository
	now  func() time.Time
}

// NewLogService creates a new log service with the given repository.
func NewLogService(repo LogRepository) LogService {
	return &logService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *logService) Prepare(entry *Entry) error {
	if entry.GameID == "" {
		return apperror.NewBadRequest("game ID is required for log entry")
	}
	if entry.ActionID == "" {
		return apperror.NewBadRequest("action ID is required for log entry")
	}
	if entry.PerformerRoleStateID == "" {
		return apperror.NewBadRequest("performer is required for log entry")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	return nil
}

func (s *logService) Get(ctx context.Context, gameID, id string) (*Entry, error) {
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if _, ok := apperror.As(err); ok {
			return nil, err
		}
		return nil, apperror.NewInternal(fmt.Errorf("loading log entry: %w", err))
	}
	if e.GameID != gameID {
		return nil, apperror.NewNotFound("log entry not found")
	}
	return e, nil
}

func (s *logService) AdminFeed(ctx context.Context, filter Filter, page int) (*Page, error) {
	if filter.GameID == "" {
		return nil, apperror.NewBadRequest("game ID is required")
	}
	if !filter.Since.IsZero() && !filter.Until.IsZero() && !filter.Since.Before(filter.Until) {
		return nil, apperror.NewBadRequest("since must be before until")
	}
	return s.page(ctx, filter, page)
}

func (s *logService) PlayerHistory(ctx context.Context, gameID, roleStateID string, page int) (*Page, error) {
	if roleStateID == "" {
		return nil, apperror.NewBadRequest("role state ID is required")
	}
	return s.page(ctx, Filter{GameID: gameID, PerformerRoleStateID: roleStateID}, page)
}

// page clamps page to 1 and applies the page size.
func (s *logService) page(ctx context.Context, filter Filter, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing action log: %w", err))
	}
	if entries == nil {
		entries = []Entry{}
	}
	return &Page{Entries: entries, Total: total, Page: page, PerPage: perPage}, nil
}
