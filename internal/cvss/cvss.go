// Package cvss turns loosely typed impact scores into values in [Min, Max].
package cvss

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	gocvss20 "github.com/pandatix/go-cvss/20"
	gocvss30 "github.com/pandatix/go-cvss/30"
	gocvss31 "github.com/pandatix/go-cvss/31"
	gocvss40 "github.com/pandatix/go-cvss/40"
)

const (
	Min = 0.0
	Max = 10.0
)

var ErrVector = errors.New("unsupported CVSS vector")

// Clamp converts v to a float and bounds it to [Min, Max]. Values which are
// not numbers, or strings which do not parse as one, count as 0. Clamp is
// idempotent.
func Clamp(v any) float64 {
	f, _ := toFloat(v)
	return clamp(f)
}

// Parse is Clamp which also reports whether v held a number.
func Parse(v any) (float64, bool) {
	f, ok := toFloat(v)
	return clamp(f), ok
}

// FromVector computes the base score of a CVSS v2, v3.0, v3.1 or v4.0
// vector string.
func FromVector(vector string) (float64, error) {
	vector = strings.TrimSpace(vector)
	switch {
	case strings.HasPrefix(vector, "CVSS:4.0/"):
		c, err := gocvss40.ParseVector(vector)
		if err != nil {
			return 0, fmt.Errorf("parsing CVSS 4.0 vector: %w", err)
		}
		return clamp(c.Score()), nil
	case strings.HasPrefix(vector, "CVSS:3.1/"):
		c, err := gocvss31.ParseVector(vector)
		if err != nil {
			return 0, fmt.Errorf("parsing CVSS 3.1 vector: %w", err)
		}
		return clamp(c.BaseScore()), nil
	case strings.HasPrefix(vector, "CVSS:3.0/"):
		c, err := gocvss30.ParseVector(vector)
		if err != nil {
			return 0, fmt.Errorf("parsing CVSS 3.0 vector: %w", err)
		}
		return clamp(c.BaseScore()), nil
	case strings.HasPrefix(vector, "AV:"):
		c, err := gocvss20.ParseVector(vector)
		if err != nil {
			return 0, fmt.Errorf("parsing CVSS 2.0 vector: %w", err)
		}
		return clamp(c.BaseScore()), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrVector, vector)
}

func clamp(f float64) float64 {
	if math.IsNaN(f) {
		return Min
	}
	return max(Min, min(Max, f))
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
