package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/fieldcapture/internal/application"
	"github.com/viralforge/fieldcapture/internal/domain"
)

const requestIDHeader = "X-Request-Id"

// requestIDMiddleware tags the request context through the application
// package, so events published while serving it carry the same id.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(application.WithRequestID(r.Context(), reqID)))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			httpLogger().ErrorContext(r.Context(), "panic recovered",
				"operation", "http_panic_recovery",
				"outcome", "failure",
				"request_id", requestIDFromContext(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rec,
			)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Error interno.")
		}()
		next.ServeHTTP(w, r)
	})
}

// responseMeter records what the handler wrote for the access log.
type responseMeter struct {
	http.ResponseWriter
	status  int
	written int
}

func (m *responseMeter) WriteHeader(status int) {
	if m.status == 0 {
		m.status = status
	}
	m.ResponseWriter.WriteHeader(status)
}

func (m *responseMeter) Write(p []byte) (int, error) {
	if m.status == 0 {
		m.status = http.StatusOK
	}
	n, err := m.ResponseWriter.Write(p)
	m.written += n
	return n, err
}

func (m *responseMeter) code() int {
	if m.status == 0 {
		return http.StatusOK
	}
	return m.status
}

func accessLevel(status int) (slog.Level, string) {
	switch {
	case status >= 500:
		return slog.LevelError, "failure"
	case status >= 400:
		return slog.LevelWarn, "failure"
	default:
		return slog.LevelInfo, "success"
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		meter := &responseMeter{ResponseWriter: w}
		next.ServeHTTP(meter, r)

		status := meter.code()
		level, outcome := accessLevel(status)
		httpLogger().Log(r.Context(), level, "http request completed",
			"operation", "http_request",
			"outcome", outcome,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", status,
			"bytes", meter.written,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFromContext(r.Context()),
		)
	})
}

func requestIDFromContext(ctx context.Context) string {
	return application.RequestID(ctx)
}

// mapDomainError returns status, code and the operator-facing message.
func mapDomainError(err error) (int, string, string) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", ve.Reason
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "BAD_REQUEST", "Solicitud inválida."
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Usuario o PIN inválido."
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "Acción permitida solo para admin."
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Sesión no encontrada."
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT", "La sesión ya fue reemplazada."
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Error interno."
	}
}
