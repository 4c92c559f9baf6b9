package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/ports"
)

type Service struct {
	cfg       Config
	users     ports.UserRepository
	blocks    ports.BlockRepository
	sessions  ports.SessionRepository
	cache     ports.BlockCache
	publisher ports.EventPublisher
	hasher    ports.PINHasher
	nowFn     func() time.Time
}

type Dependencies struct {
	Config    Config
	Users     ports.UserRepository
	Blocks    ports.BlockRepository
	Sessions  ports.SessionRepository
	Cache     ports.BlockCache
	Publisher ports.EventPublisher
	Hasher    ports.PINHasher
	Now       func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "fieldcapture-api"
	}
	if cfg.MaxSampleRows <= 0 {
		cfg.MaxSampleRows = 500
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:       cfg,
		users:     deps.Users,
		blocks:    deps.Blocks,
		sessions:  deps.Sessions,
		cache:     deps.Cache,
		publisher: deps.Publisher,
		hasher:    deps.Hasher,
		nowFn:     nowFn,
	}
}

// Defaults returns the capture configuration clients validate against.
func (s *Service) Defaults() domain.ConfigDocument {
	return s.cfg.Capture.Document()
}

func (s *Service) Ping() PingResponse {
	now := s.nowFn().In(s.cfg.Location)
	return PingResponse{TZ: s.cfg.Location.String(), Now: now.Format(time.RFC3339)}
}

func (s *Service) Authenticate(ctx context.Context, creds Credentials) (AuthResponse, error) {
	user, err := s.verify(ctx, creds)
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{User: UserView{UserID: user.UserID, Role: user.Role}}, nil
}

func (s *Service) ActiveBlocks(ctx context.Context, creds Credentials) (BlocksResponse, error) {
	if _, err := s.verify(ctx, creds); err != nil {
		return BlocksResponse{}, err
	}
	blocks, err := s.activeBlocks(ctx)
	if err != nil {
		return BlocksResponse{}, err
	}
	return BlocksResponse{Bloques: blocks}, nil
}

// ListSessionsToday lists active sessions created today in the service
// timezone for (bloque, modo).
func (s *Service) ListSessionsToday(ctx context.Context, req ListSessionsRequest) (ListSessionsResponse, error) {
	if _, err := s.verify(ctx, req.Credentials); err != nil {
		return ListSessionsResponse{}, err
	}
	bloque := strings.TrimSpace(req.Bloque)
	if bloque == "" {
		return ListSessionsResponse{}, domain.NewValidationError("Bloque requerido.")
	}
	modo, err := domain.ParseMode(string(req.Modo))
	if err != nil {
		return ListSessionsResponse{}, domain.NewValidationError("Modo inválido.")
	}
	fecha := s.today()
	items, err := s.sessions.ListActiveOn(ctx, bloque, modo, fecha)
	if err != nil {
		return ListSessionsResponse{}, err
	}
	if items == nil {
		items = []domain.SessionSummary{}
	}
	return ListSessionsResponse{Sessions: items, Fecha: fecha}, nil
}

func (s *Service) GetSession(ctx context.Context, req GetSessionRequest) (GetSessionResponse, error) {
	if _, err := s.verifyAdmin(ctx, req.Credentials); err != nil {
		return GetSessionResponse{}, err
	}
	id := strings.TrimSpace(req.SessionID)
	if id == "" {
		return GetSessionResponse{}, domain.NewValidationError("session_id requerido.")
	}
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return GetSessionResponse{}, err
	}
	return GetSessionResponse{Session: session}, nil
}

// Submit stores a new session. A same-day active session for the same
// (bloque, modo) marks it duplicate without rejecting it.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	user, err := s.verify(ctx, req.Credentials)
	if err != nil {
		return SubmitResponse{}, err
	}
	submission, err := s.validateSubmission(ctx, req.Payload)
	if err != nil {
		return SubmitResponse{}, err
	}

	now := s.nowFn()
	fecha := s.today()
	existing, err := s.sessions.ListActiveOn(ctx, submission.Bloque, submission.Modo, fecha)
	if err != nil {
		return SubmitResponse{}, err
	}
	session := s.newSession(submission, user.UserID, fecha, now)
	session.Duplicate = len(existing) > 0
	if err := s.sessions.Create(ctx, session); err != nil {
		return SubmitResponse{}, err
	}

	s.publishSubmitted(ctx, session)
	return SubmitResponse{SessionID: session.SessionID, DuplicateWarning: session.Duplicate, Inserted: len(session.Samples)}, nil
}

// ReplaceSession supersedes an active session in one transaction. The old
// session and its sample rows stay stored as inactive.
func (s *Service) ReplaceSession(ctx context.Context, req ReplaceRequest) (ReplaceResponse, error) {
	user, err := s.verifyAdmin(ctx, req.Credentials)
	if err != nil {
		return ReplaceResponse{}, err
	}
	oldID := strings.TrimSpace(req.Payload.OldSessionID)
	if oldID == "" {
		return ReplaceResponse{}, domain.NewValidationError("old_session_id requerido.")
	}
	old, err := s.sessions.GetByID(ctx, oldID)
	if err != nil {
		return ReplaceResponse{}, err
	}
	if !old.Active {
		return ReplaceResponse{}, fmt.Errorf("%w: session %s already replaced", domain.ErrConflict, oldID)
	}
	submission, err := s.validateSubmission(ctx, req.Payload.Submission)
	if err != nil {
		return ReplaceResponse{}, err
	}

	now := s.nowFn()
	fecha := s.today()
	existing, err := s.sessions.ListActiveOn(ctx, submission.Bloque, submission.Modo, fecha)
	if err != nil {
		return ReplaceResponse{}, err
	}
	session := s.newSession(submission, user.UserID, fecha, now)
	session.Replaces = oldID
	for _, item := range existing {
		if item.SessionID != oldID {
			session.Duplicate = true
		}
	}

	result, err := s.sessions.Replace(ctx, ports.ReplaceSessionParams{OldSessionID: oldID, New: session, ReplacedAt: now})
	if err != nil {
		return ReplaceResponse{}, err
	}
	s.publishReplaced(ctx, old, session, result)
	return ReplaceResponse{SessionIDNew: session.SessionID, ReplacedCount: result.ReplacedCount, Inserted: result.Inserted}, nil
}

func (s *Service) validateSubmission(ctx context.Context, in domain.Submission) (domain.Submission, error) {
	out := in
	out.Bloque = strings.TrimSpace(in.Bloque)
	out.Observacion = strings.TrimSpace(in.Observacion)

	active, err := s.activeBlocks(ctx)
	if err != nil {
		return domain.Submission{}, err
	}
	idx := sort.SearchStrings(active, out.Bloque)
	if out.Bloque == "" || idx >= len(active) || active[idx] != out.Bloque {
		return domain.Submission{}, domain.NewValidationError("Bloque no ACTIVO.")
	}
	modo, err := domain.ParseMode(string(in.Modo))
	if err != nil {
		return domain.Submission{}, domain.NewValidationError("Modo inválido.")
	}
	out.Modo = modo
	if out.N < 1 || out.N > s.cfg.MaxSampleRows {
		return domain.Submission{}, domain.NewValidationError("N inválido.")
	}
	if len(out.Samples) != out.N {
		return domain.Submission{}, domain.NewValidationError(fmt.Sprintf("Se esperaban %d muestras, llegaron %d.", out.N, len(out.Samples)))
	}
	if err := domain.ValidateSamples(s.cfg.Capture, modo, out.Samples); err != nil {
		return domain.Submission{}, err
	}
	// Fields outside the mode are never stored.
	samples := make([]domain.Sample, len(out.Samples))
	for i, sample := range out.Samples {
		for _, f := range modo.Columns() {
			samples[i].Put(f, sample.Get(f))
		}
	}
	out.Samples = samples
	return out, nil
}

func (s *Service) newSession(sub domain.Submission, userID, fecha string, now time.Time) domain.Session {
	return domain.Session{
		SessionID:   uuid.NewString(),
		Bloque:      sub.Bloque,
		Modo:        sub.Modo,
		N:           sub.N,
		Observacion: sub.Observacion,
		Samples:     sub.Samples,
		Fecha:       fecha,
		UserID:      userID,
		Active:      true,
		CreatedAt:   now,
	}
}

func (s *Service) verify(ctx context.Context, creds Credentials) (domain.User, error) {
	userID := strings.TrimSpace(creds.UserID)
	pin := strings.TrimSpace(creds.PIN)
	if userID == "" || pin == "" {
		return domain.User{}, fmt.Errorf("%w: missing credentials", domain.ErrUnauthorized)
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, fmt.Errorf("%w: unknown user", domain.ErrUnauthorized)
		}
		return domain.User{}, err
	}
	if !user.Active {
		return domain.User{}, fmt.Errorf("%w: inactive user", domain.ErrUnauthorized)
	}
	if err := s.hasher.Compare(user.PINHash, pin); err != nil {
		return domain.User{}, fmt.Errorf("%w: pin mismatch", domain.ErrUnauthorized)
	}
	return user, nil
}

func (s *Service) verifyAdmin(ctx context.Context, creds Credentials) (domain.User, error) {
	user, err := s.verify(ctx, creds)
	if err != nil {
		return domain.User{}, err
	}
	if user.Role != domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("%w: admin role required", domain.ErrForbidden)
	}
	return user, nil
}

// activeBlocks reads through the cache when one is configured. Cache
// failures fall back to storage.
func (s *Service) activeBlocks(ctx context.Context) ([]string, error) {
	if s.cache != nil {
		blocks, found, err := s.cache.GetActiveBlocks(ctx)
		if err == nil && found {
			return blocks, nil
		}
		if err != nil {
			s.warn(ctx, "block_cache_get", err)
		}
	}
	blocks, err := s.blocks.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(blocks)
	if blocks == nil {
		blocks = []string{}
	}
	if s.cache != nil {
		if err := s.cache.PutActiveBlocks(ctx, blocks, s.cfg.BlocksTTL); err != nil {
			s.warn(ctx, "block_cache_put", err)
		}
	}
	return blocks, nil
}

func (s *Service) today() string {
	return s.nowFn().In(s.cfg.Location).Format(domain.DateLayout)
}

func (s *Service) warn(ctx context.Context, operation string, err error) {
	slog.Default().WarnContext(ctx, "non-fatal dependency failure",
		"service", s.cfg.ServiceName,
		"module", "application",
		"layer", "application",
		"operation", operation,
		"outcome", "failure",
		"error", err,
	)
}
