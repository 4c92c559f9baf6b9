package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Measurement is an optional numeric value. Unset values travel as "".
type Measurement struct {
	Value float64
	Set   bool
}

func Value(v float64) Measurement { return Measurement{Value: v, Set: true} }

func (m Measurement) MarshalJSON() ([]byte, error) {
	if !m.Set {
		return []byte(`""`), nil
	}
	return json.Marshal(m.Value)
}

func (m *Measurement) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Measurement{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if strings.TrimSpace(s) == "" {
			*m = Measurement{}
			return nil
		}
		v, ok := ParseNumber(s)
		if !ok {
			return fmt.Errorf("%w: measurement %q", ErrInvalidInput, s)
		}
		*m = Value(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: measurement: %v", ErrInvalidInput, err)
	}
	*m = Value(v)
	return nil
}

// Text renders the value for a grid cell.
func (m Measurement) Text() string {
	if !m.Set {
		return ""
	}
	return strconv.FormatFloat(m.Value, 'f', -1, 64)
}

// Sample is one grid row.
type Sample struct {
	AlturaCM     Measurement `json:"altura_cm"`
	EstructuraCM Measurement `json:"estructura_cm"`
	DiametroMM   Measurement `json:"diametro_mm"`
}

func (s Sample) Get(f Field) Measurement {
	switch f {
	case FieldAltura:
		return s.AlturaCM
	case FieldEstructura:
		return s.EstructuraCM
	case FieldDiametro:
		return s.DiametroMM
	default:
		return Measurement{}
	}
}

func (s *Sample) Put(f Field, m Measurement) {
	switch f {
	case FieldAltura:
		s.AlturaCM = m
	case FieldEstructura:
		s.EstructuraCM = m
	case FieldDiametro:
		s.DiametroMM = m
	}
}

// Prefill converts samples into per-row cell texts.
func Prefill(samples []Sample) []map[Field]string {
	out := make([]map[Field]string, 0, len(samples))
	for _, s := range samples {
		row := make(map[Field]string, len(AllFields))
		for _, f := range AllFields {
			row[f] = s.Get(f).Text()
		}
		out = append(out, row)
	}
	return out
}

// Submission is the payload of submit.
type Submission struct {
	Bloque      string   `json:"bloque"`
	Modo        Mode     `json:"modo"`
	N           int      `json:"n"`
	Observacion string   `json:"observacion"`
	Samples     []Sample `json:"samples"`
}

// Replacement is the payload of replace_session.
type Replacement struct {
	OldSessionID string `json:"old_session_id"`
	Submission
}

// Session is one stored batch. Replaced sessions stay stored with Active=false.
type Session struct {
	SessionID   string    `json:"session_id"`
	Bloque      string    `json:"bloque"`
	Modo        Mode      `json:"modo"`
	N           int       `json:"n"`
	Observacion string    `json:"observacion"`
	Samples     []Sample  `json:"samples"`
	Fecha       string    `json:"fecha,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Duplicate   bool      `json:"duplicate"`
	Active      bool      `json:"active"`
	Replaces    string    `json:"replaces,omitempty"`
	ReplacedBy  string    `json:"replaced_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionSummary is one row of list_sessions_today.
type SessionSummary struct {
	SessionID string `json:"session_id"`
	Count     int    `json:"count"`
}

const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
)

// User is a backend account. The PIN is only ever stored hashed.
type User struct {
	UserID    string
	PINHash   string
	Role      string
	Active    bool
	CreatedAt time.Time
}

// Block is a bloque known to the backend.
type Block struct {
	Name   string
	Active bool
}
