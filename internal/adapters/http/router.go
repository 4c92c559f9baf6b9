package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/viralforge/fieldcapture/internal/application"
)

// Handler exposes the action endpoint over the application service.
type Handler struct {
	service *application.Service
	ready   func(context.Context) error
	actions map[string]actionFunc
}

type HandlerOption func(*Handler)

// WithReadiness sets the check behind /readyz.
func WithReadiness(check func(context.Context) error) HandlerOption {
	return func(h *Handler) { h.ready = check }
}

func NewHandler(service *application.Service, opts ...HandlerOption) *Handler {
	h := &Handler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	h.actions = h.registerActions()
	return h
}

// NewRouter mounts the single action endpoint at / and /exec.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)
	r.Post("/", handler.dispatch)
	r.Post("/exec", handler.dispatch)
	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "alive"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			logHTTPOperationError(r.Context(), "readyz", http.StatusServiceUnavailable, "NOT_READY", "dependency check failed", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "status": "not_ready"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ready"})
}
