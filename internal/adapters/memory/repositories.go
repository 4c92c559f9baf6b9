package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/ports"
)

type Repositories struct {
	Users    *UserRepository
	Blocks   *BlockRepository
	Sessions *SessionRepository
}

func NewRepositories() *Repositories {
	return &Repositories{
		Users:    &UserRepository{users: make(map[string]domain.User)},
		Blocks:   &BlockRepository{blocks: make(map[string]domain.Block)},
		Sessions: &SessionRepository{sessions: make(map[string]domain.Session)},
	}
}

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func (r *UserRepository) GetByID(_ context.Context, userID string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) Upsert(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.users[user.UserID]; ok && !existing.CreatedAt.IsZero() {
		user.CreatedAt = existing.CreatedAt
	}
	r.users[user.UserID] = user
	return nil
}

type BlockRepository struct {
	mu     sync.RWMutex
	blocks map[string]domain.Block
}

func (r *BlockRepository) ListActive(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.blocks))
	for name, b := range r.blocks {
		if b.Active {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *BlockRepository) Upsert(_ context.Context, block domain.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[block.Name] = block
	return nil
}

// SessionRepository keeps replaced sessions; sample rows share the
// session's active flag.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func (r *SessionRepository) Create(_ context.Context, session domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[session.SessionID]; exists {
		return fmt.Errorf("%w: session %s exists", domain.ErrConflict, session.SessionID)
	}
	r.sessions[session.SessionID] = cloneSession(session)
	return nil
}

func (r *SessionRepository) GetByID(_ context.Context, sessionID string) (domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrNotFound
	}
	return cloneSession(session), nil
}

func (r *SessionRepository) ListActiveOn(_ context.Context, bloque string, modo domain.Mode, day string) ([]domain.SessionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []domain.Session
	for _, s := range r.sessions {
		if s.Active && s.Bloque == bloque && s.Modo == modo && s.Fecha == day {
			matches = append(matches, s)
		}
	}
	slices.SortFunc(matches, func(a, b domain.Session) int { return a.CreatedAt.Compare(b.CreatedAt) })
	out := make([]domain.SessionSummary, 0, len(matches))
	for _, s := range matches {
		out = append(out, domain.SessionSummary{SessionID: s.SessionID, Count: len(s.Samples)})
	}
	return out, nil
}

func (r *SessionRepository) Replace(_ context.Context, params ports.ReplaceSessionParams) (ports.ReplaceSessionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.sessions[params.OldSessionID]
	if !ok {
		return ports.ReplaceSessionResult{}, domain.ErrNotFound
	}
	if !old.Active {
		return ports.ReplaceSessionResult{}, fmt.Errorf("%w: session %s already replaced", domain.ErrConflict, old.SessionID)
	}
	if _, exists := r.sessions[params.New.SessionID]; exists {
		return ports.ReplaceSessionResult{}, fmt.Errorf("%w: session %s exists", domain.ErrConflict, params.New.SessionID)
	}
	old.Active = false
	old.ReplacedBy = params.New.SessionID
	r.sessions[old.SessionID] = old
	r.sessions[params.New.SessionID] = cloneSession(params.New)
	return ports.ReplaceSessionResult{ReplacedCount: len(old.Samples), Inserted: len(params.New.Samples)}, nil
}

func cloneSession(s domain.Session) domain.Session {
	s.Samples = append([]domain.Sample(nil), s.Samples...)
	return s
}
