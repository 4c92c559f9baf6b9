package ports

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/viralforge/fieldcapture/internal/domain"
)

// Backend issues one action call against the remote endpoint.
// Implementations make exactly one attempt and never interpret ok.
type Backend interface {
	Call(ctx context.Context, action string, data map[string]any) (Reply, error)
}

// Reply is a decoded response object. Fields stay raw until a caller asks for them.
type Reply map[string]json.RawMessage

// OK reports the reply's ok flag. A missing or non-boolean flag is false.
func (r Reply) OK() bool {
	var ok bool
	if raw, found := r["ok"]; found {
		_ = json.Unmarshal(raw, &ok)
	}
	return ok
}

// ErrorMessage is the server supplied error text, if any.
func (r Reply) ErrorMessage() string {
	var msg string
	if raw, found := r["error"]; found {
		_ = json.Unmarshal(raw, &msg)
	}
	return msg
}

// Field decodes a single top-level field into v.
func (r Reply) Field(name string, v any) error {
	raw, found := r[name]
	if !found {
		return fmt.Errorf("%w: missing field %q", domain.ErrDecode, name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: field %q: %v", domain.ErrDecode, name, err)
	}
	return nil
}

// Decode re-encodes the whole reply into v.
func (r Reply) Decode(v any) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return nil
}
