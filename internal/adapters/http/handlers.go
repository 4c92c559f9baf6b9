package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/viralforge/fieldcapture/internal/application"
	"github.com/viralforge/fieldcapture/internal/domain"
)

const maxBodyBytes = 1 << 20

type actionFunc func(ctx context.Context, body []byte) (any, error)

func (h *Handler) registerActions() map[string]actionFunc {
	return map[string]actionFunc{
		domain.ActionDefaults: func(context.Context, []byte) (any, error) {
			return h.service.Defaults(), nil
		},
		domain.ActionPing: func(context.Context, []byte) (any, error) {
			return h.service.Ping(), nil
		},
		domain.ActionAuth: func(ctx context.Context, body []byte) (any, error) {
			var req application.Credentials
			if err := decodeAction(body, &req); err != nil {
				return nil, err
			}
			return h.service.Authenticate(ctx, req)
		},
		domain.ActionGetBlocks: func(ctx context.Context, body []byte) (any, error) {
			var req application.Credentials
			if err := decodeAction(body, &req); err != nil {
				return nil, err
			}
			return h.service.ActiveBlocks(ctx, req)
		},
		domain.ActionListSessionsToday: func(ctx context.Context, body []byte) (any, error) {
			var req application.ListSessionsRequest
			if err := decodeAction(body, &req); err != nil {
				return nil, err
			}
			return h.service.ListSessionsToday(ctx, req)
		},
		domain.ActionGetSession: func(ctx context.Context, body []byte) (any, error) {
			var req application.GetSessionRequest
			if err := decodeAction(body, &req); err != nil {
				return nil, err
			}
			return h.service.GetSession(ctx, req)
		},
		domain.ActionSubmit: func(ctx context.Context, body []byte) (any, error) {
			var req application.SubmitRequest
			if err := decodeAction(body, &req); err != nil {
				return nil, err
			}
			return h.service.Submit(ctx, req)
		},
		domain.ActionReplaceSession: func(ctx context.Context, body []byte) (any, error) {
			var req application.ReplaceRequest
			if err := decodeAction(body, &req); err != nil {
				return nil, err
			}
			return h.service.ReplaceSession(ctx, req)
		},
	}
}

// dispatch reads {action, ...params} from a text/plain or JSON body and
// always answers with a JSON object carrying ok.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		writeFailure(ctx, w, "read_body", http.StatusBadRequest, "BAD_REQUEST", "Solicitud inválida.", err)
		return
	}
	var envelope struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeFailure(ctx, w, "decode_body", http.StatusBadRequest, "BAD_REQUEST", "Solicitud inválida.", err)
		return
	}
	action := strings.TrimSpace(envelope.Action)
	fn, ok := h.actions[action]
	if !ok {
		writeFailure(ctx, w, "dispatch", http.StatusBadRequest, "UNKNOWN_ACTION", "Acción desconocida: "+action, nil)
		return
	}

	result, err := fn(ctx, body)
	if err != nil {
		writeMappedError(ctx, w, action, err)
		return
	}
	writeOK(w, result)
}

func decodeAction(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
