package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/fieldcapture/internal/contracts"
	"github.com/viralforge/fieldcapture/internal/domain"
	"github.com/viralforge/fieldcapture/internal/ports"
)

// publishEvent is best effort: the session is already committed, so a
// broker failure is logged and never surfaces to the client.
func (s *Service) publishEvent(ctx context.Context, eventType, partitionKey string, data any) {
	if s.publisher == nil {
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		s.warn(ctx, "encode_event", err)
		return
	}
	env := contracts.EventEnvelope{
		EventID:          uuid.NewString(),
		EventType:        eventType,
		OccurredAt:       s.nowFn(),
		PartitionKeyPath: "data.bloque",
		PartitionKey:     partitionKey,
		SourceService:    s.cfg.ServiceName,
		TraceID:          requestIDFromContext(ctx),
		SchemaVersion:    "v1",
		Data:             raw,
	}
	if !env.Valid() {
		s.warn(ctx, "encode_envelope", fmt.Errorf("%w: incomplete event envelope for %s", domain.ErrInvalidInput, eventType))
		return
	}
	payload, err := json.Marshal(env)
	if err != nil {
		s.warn(ctx, "encode_envelope", err)
		return
	}
	if err := s.publisher.Publish(ctx, eventType, partitionKey, payload); err != nil {
		s.warn(ctx, "publish_event", err)
		return
	}
	slog.Default().DebugContext(ctx, "event published",
		"service", s.cfg.ServiceName,
		"module", "application",
		"layer", "application",
		"operation", "publish_event",
		"outcome", "success",
		"event_type", eventType,
	)
}

func (s *Service) publishSubmitted(ctx context.Context, session domain.Session) {
	s.publishEvent(ctx, domain.EventSessionSubmitted, session.Bloque, contracts.SessionSubmittedPayload{
		SessionID:   session.SessionID,
		Bloque:      session.Bloque,
		Modo:        string(session.Modo),
		N:           session.N,
		UserID:      session.UserID,
		Fecha:       session.Fecha,
		Duplicate:   session.Duplicate,
		SubmittedAt: session.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Service) publishReplaced(ctx context.Context, old, session domain.Session, result ports.ReplaceSessionResult) {
	s.publishEvent(ctx, domain.EventSessionReplaced, session.Bloque, contracts.SessionReplacedPayload{
		OldSessionID:  old.SessionID,
		NewSessionID:  session.SessionID,
		Bloque:        session.Bloque,
		Modo:          string(session.Modo),
		ReplacedCount: result.ReplacedCount,
		Inserted:      result.Inserted,
		UserID:        session.UserID,
		ReplacedAt:    session.CreatedAt.UTC().Format(time.RFC3339),
	})
}

type requestIDKey struct{}

// WithRequestID tags ctx so events carry the originating request as trace id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id set by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDFromContext falls back to a fresh id for calls made outside a request.
func requestIDFromContext(ctx context.Context) string {
	if id := RequestID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
