package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks a missing or malformed configuration. It is fatal at startup.
	ErrConfig = errors.New("configuration error")
	// ErrTimeout is returned when a backend call exceeds the request budget.
	ErrTimeout = errors.New("request timed out")
	// ErrNetwork covers transport failures before a response body was read.
	ErrNetwork = errors.New("network error")
	// ErrDecode is returned when a response body is not a JSON object.
	ErrDecode = errors.New("decode error")
	// ErrValidation is a local precondition failure. No backend call is made.
	ErrValidation = errors.New("validation error")
	// ErrBackend wraps an ok=false reply; the message comes from the server verbatim.
	ErrBackend = errors.New("backend error")
	// ErrBusy rejects an intent while a call of the same kind is still pending.
	ErrBusy = errors.New("action already in progress")

	ErrUnauthenticated = errors.New("not authenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrConflict        = errors.New("conflict")
)

// ValidationError reports the first field that failed a local check.
// Row is 1-based and zero when the failure is not tied to a sample row.
type ValidationError struct {
	Row    int
	Field  Field
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError builds a ValidationError that is not tied to a row.
func NewValidationError(reason string) *ValidationError {
	return &ValidationError{Reason: reason}
}

// InvalidSampleError reports an out-of-range or unparsable value at row.
func InvalidSampleError(row int, field Field) *ValidationError {
	return &ValidationError{Row: row, Field: field, Reason: field.invalidMessage(row)}
}

// BackendError carries the message of an ok=false reply.
type BackendError struct {
	Action  string
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s falló", e.Action)
	}
	return e.Message
}

func (e *BackendError) Unwrap() error { return ErrBackend }

// CallError is a RemoteClient failure. It matches both its taxonomy
// sentinel (Kind) and the underlying cause.
type CallError struct {
	Action string
	Kind   error
	Err    error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Action, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Action, e.Kind, e.Err)
}

func (e *CallError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// UserMessage renders err the way the view shows it to the operator.
func UserMessage(err error) string {
	var ve *ValidationError
	var be *BackendError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Reason
	case errors.As(err, &be):
		return be.Error()
	case errors.Is(err, ErrTimeout):
		return "Timeout backend"
	case errors.Is(err, ErrBusy):
		return "Operación en curso, espera la respuesta."
	case errors.Is(err, ErrUnauthenticated):
		return "Sesión no iniciada."
	case errors.Is(err, ErrForbidden):
		return "Acción permitida solo para admin."
	case errors.Is(err, ErrConfig):
		return "Configuración inválida: " + err.Error()
	case errors.Is(err, ErrDecode):
		return "Respuesta inválida del servidor."
	case errors.Is(err, ErrNetwork):
		return "Error de red: " + err.Error()
	default:
		return err.Error()
	}
}
