package domain

import (
	"fmt"
	"strings"
)

// Mode selects the grid shape and the set of fields validated per sample.
type Mode string

const (
	ModeAltura   Mode = "ALTURA"
	ModeCompleto Mode = "COMPLETO"
)

func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(raw))) {
	case ModeAltura:
		return ModeAltura, nil
	case ModeCompleto:
		return ModeCompleto, nil
	default:
		return "", fmt.Errorf("%w: modo %q", ErrInvalidInput, raw)
	}
}

func (m Mode) Valid() bool { return m == ModeAltura || m == ModeCompleto }

// Columns returns the fields captured per row, in display order.
func (m Mode) Columns() []Field {
	if m == ModeCompleto {
		return []Field{FieldAltura, FieldEstructura, FieldDiametro}
	}
	return []Field{FieldAltura}
}

// Requires reports whether f must hold a value for a sample in this mode.
func (m Mode) Requires(f Field) bool {
	for _, c := range m.Columns() {
		if c == f {
			return true
		}
	}
	return false
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeCompleto {
		return ModeAltura
	}
	return ModeCompleto
}
