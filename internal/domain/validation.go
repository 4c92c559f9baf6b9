package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Range is an inclusive numeric bound.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// ParseNumber trims raw, accepts one comma as decimal separator and
// rejects empty or non-finite input.
func ParseNumber(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	s = strings.Replace(s, ",", ".", 1)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// InRange parses raw and checks it against r.
func InRange(raw string, r Range) bool {
	v, ok := ParseNumber(raw)
	return ok && r.Contains(v)
}

// Defaults are the initial row counts per mode.
type Defaults struct {
	NAltura   int `json:"nAltura" yaml:"nAltura"`
	NCompleto int `json:"nCompleto" yaml:"nCompleto"`
}

// ConfigDocument is the wire shape of the defaults action.
type ConfigDocument struct {
	Defaults   Defaults        `json:"defaults" yaml:"defaults"`
	Validation map[Field]Range `json:"validation" yaml:"validation"`
}

// ValidationConfig is an immutable, fully populated range table.
type ValidationConfig struct {
	defaults Defaults
	ranges   map[Field]Range
}

// NewValidationConfig checks that every field has a range and both
// defaults are positive.
func NewValidationConfig(doc ConfigDocument) (ValidationConfig, error) {
	if doc.Defaults.NAltura <= 0 || doc.Defaults.NCompleto <= 0 {
		return ValidationConfig{}, fmt.Errorf("%w: defaults must be positive", ErrConfig)
	}
	ranges := make(map[Field]Range, len(AllFields))
	for _, f := range AllFields {
		r, ok := doc.Validation[f]
		if !ok {
			return ValidationConfig{}, fmt.Errorf("%w: missing validation range for %s", ErrConfig, f)
		}
		if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Min > r.Max {
			return ValidationConfig{}, fmt.Errorf("%w: invalid range for %s", ErrConfig, f)
		}
		ranges[f] = r
	}
	return ValidationConfig{defaults: doc.Defaults, ranges: ranges}, nil
}

// Loaded reports whether the config came from NewValidationConfig.
func (c ValidationConfig) Loaded() bool { return c.ranges != nil }

func (c ValidationConfig) Defaults() Defaults { return c.defaults }

// DefaultRows is the initial n for mode.
func (c ValidationConfig) DefaultRows(m Mode) int {
	if m == ModeCompleto {
		return c.defaults.NCompleto
	}
	return c.defaults.NAltura
}

func (c ValidationConfig) Range(f Field) Range { return c.ranges[f] }

// Document returns the wire form of the config.
func (c ValidationConfig) Document() ConfigDocument {
	ranges := make(map[Field]Range, len(c.ranges))
	for f, r := range c.ranges {
		ranges[f] = r
	}
	return ConfigDocument{Defaults: c.defaults, Validation: ranges}
}

// Accepts reports whether raw is a valid value for f.
func (c ValidationConfig) Accepts(f Field, raw string) bool {
	r, ok := c.ranges[f]
	return ok && InRange(raw, r)
}

// ValidateSamples stops at the first sample with a field out of range.
// Fields are checked in column order: altura, estructura, diametro.
func ValidateSamples(c ValidationConfig, m Mode, samples []Sample) error {
	for i, s := range samples {
		for _, f := range m.Columns() {
			meas := s.Get(f)
			if !meas.Set || !c.Range(f).Contains(meas.Value) {
				return InvalidSampleError(i+1, f)
			}
		}
	}
	return nil
}
