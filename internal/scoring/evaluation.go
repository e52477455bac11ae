package scoring

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags which shape a RawEvaluation arrived in.
type Kind int

const (
	KindEmpty Kind = iota
	KindStructured
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindText:
		return "text"
	default:
		return "empty"
	}
}

// RawEvaluation is the evaluator's verdict for one answer, before
// normalization. It is resolved once, when it enters the process:
// objects become Structured, strings holding a JSON object become
// Structured, other strings become Text, everything else is Empty.
type RawEvaluation struct {
	kind   Kind
	fields map[string]any
	text   string
}

// FromFields wraps an already decoded object.
func FromFields(fields map[string]any) RawEvaluation {
	if fields == nil {
		return RawEvaluation{}
	}
	return RawEvaluation{kind: KindStructured, fields: fields}
}

// FromText resolves a string payload. A string that decodes to a JSON
// object is treated as structured; one that fails to decode is kept as
// free-form feedback.
func FromText(s string) RawEvaluation {
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return RawEvaluation{kind: KindText, text: s}
	}
	if fields, ok := decoded.(map[string]any); ok {
		return FromFields(fields)
	}
	return RawEvaluation{}
}

// ParseRaw resolves an arbitrary decoded JSON value.
func ParseRaw(v any) RawEvaluation {
	switch val := v.(type) {
	case RawEvaluation:
		return val
	case map[string]any:
		return FromFields(val)
	case string:
		return FromText(val)
	default:
		return RawEvaluation{}
	}
}

func (r RawEvaluation) Kind() Kind { return r.kind }

// Fields returns the structured payload, nil unless Kind is KindStructured.
func (r RawEvaluation) Fields() map[string]any { return r.fields }

// Text returns the free-form payload, empty unless Kind is KindText.
func (r RawEvaluation) Text() string { return r.text }

func (r RawEvaluation) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case KindStructured:
		return json.Marshal(r.fields)
	case KindText:
		return json.Marshal(r.text)
	default:
		return []byte("null"), nil
	}
}

func (r *RawEvaluation) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = ParseRaw(v)
	return nil
}

// Subscores holds the five per-dimension scores, each 0-10 or absent.
type Subscores struct {
	Accuracy     *float64 `json:"accuracy"`
	Completeness *float64 `json:"completeness"`
	Clarity      *float64 `json:"clarity"`
	Depth        *float64 `json:"depth"`
	Relevance    *float64 `json:"relevance"`
}

// Evaluation is the normalized, render-ready form of a RawEvaluation.
// Lists are never nil.
type Evaluation struct {
	Score        *float64  `json:"score"`
	Strengths    []string  `json:"strengths"`
	Improvements []string  `json:"improvements"`
	Detailed     string    `json:"detailed"`
	Subscores    Subscores `json:"subscores"`
}

// Source field precedence. Earlier producers used score, improvements
// and model_answer; current ones use overall_score, weaknesses plus
// suggestions, and detailed_feedback.
var (
	scoreFields             = []string{"overall_score", "score"}
	strengthFields          = []string{"strengths"}
	improvementFields       = []string{"weaknesses", "suggestions"}
	legacyImprovementFields = []string{"improvements"}
	detailedFields          = []string{"detailed_feedback", "model_answer"}

	subscoreFields = []struct {
		field  string
		target func(*Subscores) **float64
	}{
		{"accuracy_score", func(s *Subscores) **float64 { return &s.Accuracy }},
		{"completeness_score", func(s *Subscores) **float64 { return &s.Completeness }},
		{"clarity_score", func(s *Subscores) **float64 { return &s.Clarity }},
		{"depth_score", func(s *Subscores) **float64 { return &s.Depth }},
		{"relevance_score", func(s *Subscores) **float64 { return &s.Relevance }},
	}
)

const detailSeparator = "\n\n"

// Coerce normalizes a RawEvaluation. It never fails; malformed parts
// degrade to absent scores, empty lists or passthrough text.
func Coerce(raw RawEvaluation) Evaluation {
	switch raw.kind {
	case KindStructured:
		return coerceFields(raw.fields)
	case KindText:
		ev := emptyEvaluation()
		ev.Detailed = raw.text
		return ev
	default:
		return emptyEvaluation()
	}
}

func emptyEvaluation() Evaluation {
	return Evaluation{
		Strengths:    []string{},
		Improvements: []string{},
	}
}

func coerceFields(fields map[string]any) Evaluation {
	ev := emptyEvaluation()

	if v, ok := firstPresent(fields, scoreFields); ok {
		ev.Score = ParseScore(v)
	}

	for _, name := range strengthFields {
		ev.Strengths = append(ev.Strengths, toStrings(fields[name])...)
	}

	for _, name := range improvementFields {
		ev.Improvements = append(ev.Improvements, toStrings(fields[name])...)
	}
	if len(ev.Improvements) == 0 {
		for _, name := range legacyImprovementFields {
			ev.Improvements = append(ev.Improvements, toStrings(fields[name])...)
		}
	}

	var parts []string
	for _, name := range detailedFields {
		if v := fields[name]; truthy(v) {
			parts = append(parts, stringify(v))
		}
	}
	ev.Detailed = strings.Join(parts, detailSeparator)

	for _, sf := range subscoreFields {
		*sf.target(&ev.Subscores) = ParseScore(fields[sf.field])
	}

	return ev
}

// Fields maps a normalized evaluation back onto current producer field
// names. Coerce(FromFields(ev.Fields())) returns ev unchanged.
func (e Evaluation) Fields() map[string]any {
	fields := map[string]any{
		"overall_score":     optional(e.Score),
		"strengths":         append([]string{}, e.Strengths...),
		"weaknesses":        append([]string{}, e.Improvements...),
		"detailed_feedback": e.Detailed,
	}
	for _, sf := range subscoreFields {
		s := e.Subscores
		fields[sf.field] = optional(*sf.target(&s))
	}
	return fields
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// firstPresent returns the first field that exists and is not null.
func firstPresent(fields map[string]any, names []string) (any, bool) {
	for _, name := range names {
		if v, ok := fields[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// toStrings accepts a single value or a list. Falsy values give an empty
// list; null list elements and elements that render empty are dropped.
func toStrings(v any) []string {
	if !truthy(v) {
		return nil
	}
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			// null elements are dropped, not rendered as "null"
			if item == nil {
				continue
			}
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		out := make([]string, 0, len(val))
		for _, s := range val {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{stringify(val)}
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0 && !math.IsNaN(val)
	case int:
		return val != 0
	case int64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = stringify(item)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
