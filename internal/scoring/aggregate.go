package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CelebrationThreshold is the total a session must beat to be celebrated.
const CelebrationThreshold = 8.0

// EmptyResultsMessage is shown when a session has nothing to score.
const EmptyResultsMessage = "No evaluations available."

// Entry is one question together with its raw evaluation.
type Entry struct {
	Question   string        `json:"question"`
	Evaluation RawEvaluation `json:"evaluation"`
}

// EvaluationSet maps question text to its raw evaluation, remembering
// first-insertion order. Questions are identified by their text, so two
// questions with the same wording share one slot and the last write wins.
type EvaluationSet struct {
	order []string
	byKey map[string]RawEvaluation
}

func NewEvaluationSet() *EvaluationSet {
	return &EvaluationSet{byKey: make(map[string]RawEvaluation)}
}

// Put stores raw under question, keeping the original position on overwrite.
func (s *EvaluationSet) Put(question string, raw RawEvaluation) {
	if s.byKey == nil {
		s.byKey = make(map[string]RawEvaluation)
	}
	if _, exists := s.byKey[question]; !exists {
		s.order = append(s.order, question)
	}
	s.byKey[question] = raw
}

func (s *EvaluationSet) Get(question string) (RawEvaluation, bool) {
	if s == nil {
		return RawEvaluation{}, false
	}
	raw, ok := s.byKey[question]
	return raw, ok
}

func (s *EvaluationSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Entries returns the set in insertion order.
func (s *EvaluationSet) Entries() []Entry {
	if s == nil {
		return nil
	}
	entries := make([]Entry, 0, len(s.order))
	for _, q := range s.order {
		entries = append(entries, Entry{Question: q, Evaluation: s.byKey[q]})
	}
	return entries
}

// MarshalJSON writes the set as a JSON object in insertion order.
func (s *EvaluationSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("{}"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, q := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(q)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.byKey[q])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving key order.
func (s *EvaluationSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = EvaluationSet{byKey: make(map[string]RawEvaluation)}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("evaluations: expected object, got %v", tok)
	}

	set := NewEvaluationSet()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("evaluations: expected string key, got %v", keyTok)
		}
		var raw RawEvaluation
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		set.Put(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = *set
	return nil
}

// Item is a normalized evaluation labelled with its question.
type Item struct {
	Question string `json:"question"`
	Evaluation
}

// Results is the end-of-session summary.
type Results struct {
	Items []Item `json:"items"`
	// Computed is the mean of present item scores.
	Computed *float64 `json:"computed_total"`
	// Total is what gets displayed: the external total when one was
	// supplied, otherwise Computed.
	Total     *float64 `json:"total"`
	Celebrate bool     `json:"celebrate"`
}

// Empty reports whether there was nothing to evaluate.
func (r Results) Empty() bool {
	return len(r.Items) == 0
}

// TotalLabel renders the total for display.
func (r Results) TotalLabel() string {
	return FormatScore(r.Total)
}

// Aggregate normalizes every entry and derives the session total.
// A finite external total takes precedence over the computed mean.
func Aggregate(set *EvaluationSet, external *float64) Results {
	entries := set.Entries()
	res := Results{Items: make([]Item, 0, len(entries))}

	var sum float64
	var n int
	for _, e := range entries {
		ev := Coerce(e.Evaluation)
		res.Items = append(res.Items, Item{Question: e.Question, Evaluation: ev})
		if IsFinite(ev.Score) {
			sum += *ev.Score
			n++
		}
	}

	if n > 0 {
		res.Computed = ptr(Clamp(sum / float64(n)))
	}

	switch {
	case IsFinite(external):
		res.Total = ptr(Clamp(*external))
	case res.Computed != nil:
		res.Total = ptr(Clamp(*res.Computed))
	}

	res.Celebrate = Celebrates(res.Total)
	return res
}

// Celebrates reports whether total is strictly above the threshold.
func Celebrates(total *float64) bool {
	return total != nil && *total > CelebrationThreshold
}
