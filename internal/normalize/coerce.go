package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/riftlens/internal/metrics"
)

// Warning records one malformed value that was replaced by a sentinel.
type Warning struct {
	MatchID     string
	Participant string
	Field       string
	Value       any
}

func (w Warning) String() string {
	return fmt.Sprintf("match %s participant %s: field %s: malformed value %v", w.MatchID, w.Participant, w.Field, w.Value)
}

// coercer reads loosely typed fields and collects warnings for malformed values.
type coercer struct {
	matchID     string
	participant string
	warnings    []Warning
}

func (c *coercer) warn(field string, v any) {
	metrics.ObserveNormalizeWarning(field)
	c.warnings = append(c.warnings, Warning{MatchID: c.matchID, Participant: c.participant, Field: field, Value: v})
}

// number parses v. present is false for absent values; ok is false for malformed ones.
func number(v any) (f float64, present, ok bool) {
	switch x := v.(type) {
	case nil:
		return 0, false, true
	case json.Number:
		f, err := x.Float64()
		return f, true, err == nil
	case float64:
		return x, true, true
	case float32:
		return float64(x), true, true
	case int:
		return float64(x), true, true
	case int64:
		return float64(x), true, true
	case int32:
		return float64(x), true, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, true, false
		}
		return f, true, true
	default:
		return 0, true, false
	}
}

// float returns the field as float64, or sentinel with a warning when malformed.
func (c *coercer) float(m map[string]any, key string, sentinel float64) float64 {
	f, _, ok := number(m[key])
	if !ok {
		c.warn(key, m[key])
		return sentinel
	}
	return f
}

// int returns the field truncated to int, or 0 with a warning when malformed
// or outside the int32 range. Riot counters and ids all fit in int32.
func (c *coercer) int(m map[string]any, key string) int {
	f, _, ok := number(m[key])
	if !ok || f < math.MinInt32 || f > math.MaxInt32 {
		c.warn(key, m[key])
		return 0
	}
	return int(f)
}

// int64 is int for millisecond timestamps, bounded by what a float64 holds
// exactly.
func (c *coercer) int64(m map[string]any, key string) int64 {
	const maxExact = 1 << 53
	f, _, ok := number(m[key])
	if !ok || f < -maxExact || f > maxExact {
		c.warn(key, m[key])
		return 0
	}
	return int64(f)
}

// optionalFloat is float but also reports whether the field was present and valid.
func (c *coercer) optionalFloat(m map[string]any, key string, sentinel float64) (float64, bool) {
	f, present, ok := number(m[key])
	if !ok {
		c.warn(key, m[key])
		return sentinel, false
	}
	return f, present
}

func (c *coercer) str(m map[string]any, key string) string {
	switch x := m[key].(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		c.warn(key, x)
		return ""
	}
}

// boolean accepts JSON booleans and "true"/"false" text. Anything else is false.
func (c *coercer) boolean(m map[string]any, key string) bool {
	switch x := m[key].(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			c.warn(key, x)
			return false
		}
		return b
	default:
		c.warn(key, x)
		return false
	}
}
