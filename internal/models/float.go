package models

import (
	"math"
	"strconv"
	"strings"
)

// Float is a float64 that decodes from JSON numbers or numeric strings.
// Telemetry sources are inconsistent about quoting, so unparseable values
// decode as NaN instead of failing the whole sample batch; consumers drop
// non-finite values.
type Float float64

// Valid reports whether the value is finite.
func (f Float) Valid() bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

// UnmarshalJSON accepts numbers, numeric strings, and null.
func (f *Float) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" || s == "null" {
		*f = Float(math.NaN())
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = Float(math.NaN())
		return nil
	}
	*f = Float(v)
	return nil
}

// MarshalJSON emits a plain number, or null for non-finite values.
func (f Float) MarshalJSON() ([]byte, error) {
	if !f.Valid() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(float64(f), 'f', -1, 64)), nil
}
