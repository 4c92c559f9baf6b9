package ports

import (
	"context"
	"time"

	"github.com/viralforge/fieldcapture/internal/domain"
)

type UserRepository interface {
	GetByID(ctx context.Context, userID string) (domain.User, error)
	Upsert(ctx context.Context, user domain.User) error
}

type BlockRepository interface {
	ListActive(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, block domain.Block) error
}

// ReplaceSessionParams groups the writes of one replacement.
// Repositories apply them atomically.
type ReplaceSessionParams struct {
	OldSessionID string
	New          domain.Session
	ReplacedAt   time.Time
}

// ReplaceSessionResult reports how many sample rows were deactivated.
type ReplaceSessionResult struct {
	ReplacedCount int
	Inserted      int
}

type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByID(ctx context.Context, sessionID string) (domain.Session, error)
	// ListActiveOn returns active sessions for (bloque, modo) whose fecha is day.
	ListActiveOn(ctx context.Context, bloque string, modo domain.Mode, day string) ([]domain.SessionSummary, error)
	Replace(ctx context.Context, params ReplaceSessionParams) (ReplaceSessionResult, error)
}
