package http

import (
	"context"
	"encoding/json"
	"net/http"
)

type apiError struct {
	OK    bool   `json:"ok"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeOK flattens payload's fields next to ok:true.
func writeOK(w http.ResponseWriter, payload any) {
	out := map[string]json.RawMessage{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err == nil {
			err = json.Unmarshal(raw, &out)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Error interno.")
			return
		}
	}
	out["ok"] = json.RawMessage("true")
	writeJSON(w, http.StatusOK, out)
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{OK: false, Code: code, Error: message})
}

func writeFailure(ctx context.Context, w http.ResponseWriter, operation string, status int, code, message string, err error) {
	logHTTPOperationError(ctx, operation, status, code, message, err)
	writeError(w, status, code, message)
}

func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapDomainError(err)
	writeFailure(ctx, w, operation, status, code, msg, err)
}
