// Package scoring turns whatever the evaluation backend sends back into
// a stable shape the client can render.
package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	MinScore = 0.0
	MaxScore = 10.0

	// Values above this are read as percentages.
	percentThreshold = 10.0
)

var numericToken = regexp.MustCompile(`-?\d+(\.\d+)?`)

// ParseScore converts a raw score into a value on the 0-10 scale.
//
// Finite numbers above 10 are treated as 0-100 and divided by 10, then
// clamped. Anything else is stringified and the first signed decimal
// token is used. Nil, NaN, infinities, objects and text without digits
// yield nil.
func ParseScore(raw any) *float64 {
	switch v := raw.(type) {
	case nil:
		return nil
	case float64:
		return fromNumber(v)
	case float32:
		return fromNumber(float64(v))
	case int:
		return fromNumber(float64(v))
	case int32:
		return fromNumber(float64(v))
	case int64:
		return fromNumber(float64(v))
	case uint:
		return fromNumber(float64(v))
	case uint32:
		return fromNumber(float64(v))
	case uint64:
		return fromNumber(float64(v))
	case *float64:
		if v == nil {
			return nil
		}
		return fromNumber(*v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return fromNumber(f)
		}
		return fromText(v.String())
	case string:
		return fromText(v)
	case map[string]any:
		// objects carry no score of their own
		return nil
	default:
		return fromText(stringify(v))
	}
}

func fromNumber(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if v > percentThreshold {
		v = v / 10
	}
	return ptr(Clamp(v))
}

func fromText(s string) *float64 {
	token := numericToken.FindString(strings.TrimSpace(s))
	if token == "" {
		return nil
	}
	v, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return nil
	}
	return fromNumber(v)
}

// Clamp bounds v to [MinScore, MaxScore].
func Clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}

// IsFinite reports whether v is present and neither NaN nor infinite.
func IsFinite(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

// FormatScore renders a score with one decimal, or N/A when absent.
func FormatScore(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f", *v)
}

func ptr(v float64) *float64 {
	return &v
}
