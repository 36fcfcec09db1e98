// Package severity maps vendor severity values onto the 0..4 ordinal scale.
package severity

import (
	"math"
	"strconv"
	"strings"
)

const (
	Informational = 0
	Low           = 1
	Medium        = 2
	High          = 3
	Critical      = 4
)

// Default is returned for missing or unrecognized values.
const Default = Low

var labels = map[string]int{
	"Informational": Informational,
	"Info":          Informational,
	"Low":           Low,
	"Medium":        Medium,
	"High":          High,
	"Critical":      Critical,
}

var names = [...]string{"Informational", "Low", "Medium", "High", "Critical"}

// Ordinal returns the severity ordinal of v, it never fails. Labels are
// matched case sensitively after trimming spaces.
func Ordinal(v any) int {
	n, _ := Lookup(v)
	return n
}

// Lookup is Ordinal which also reports whether v was recognized. A missing
// value is recognized as Low.
func Lookup(v any) (int, bool) {
	switch x := v.(type) {
	case nil:
		return Default, true
	case int:
		return Clamp(x), true
	case int8:
		return Clamp(int(x)), true
	case int16:
		return Clamp(int(x)), true
	case int32:
		return Clamp(int(x)), true
	case int64:
		return clamp64(x), true
	case uint:
		return clampU64(uint64(x)), true
	case uint8:
		return clampU64(uint64(x)), true
	case uint16:
		return clampU64(uint64(x)), true
	case uint32:
		return clampU64(uint64(x)), true
	case uint64:
		return clampU64(x), true
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case bool:
		// a YAML "yes" ends up here
		if x {
			return Low, false
		}
		return Informational, false
	case string:
		return fromString(x)
	default:
		return Default, false
	}
}

// Clamp bounds n to [Informational, Critical].
func Clamp(n int) int {
	return max(Informational, min(Critical, n))
}

// Label returns the canonical label of an ordinal, out of range values are
// clamped first.
func Label(n int) string {
	return names[Clamp(n)]
}

func clamp64(n int64) int {
	return int(max(Informational, min(Critical, n)))
}

func clampU64(n uint64) int {
	return int(min(Critical, n))
}

// JSON numbers decode to float64, so integral floats count as integers.
func fromFloat(f float64) (int, bool) {
	if math.IsNaN(f) || f != math.Trunc(f) {
		return Default, false
	}
	switch {
	case f < Informational:
		return Informational, true
	case f > Critical:
		return Critical, true
	}
	return int(f), true
}

func fromString(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return Clamp(n), true
	}
	if n, ok := labels[s]; ok {
		return n, true
	}
	return Default, false
}
