package lid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

type Score struct {
	Label string
	Prob  float64
}

// Scores is a language to probability mapping ranked by descending
// probability.
type Scores []Score

// TopK returns the first min(k, len(s)) entries.
func (s Scores) TopK(k int) Scores {
	if k <= 0 {
		return Scores{}
	}
	return s[:min(k, len(s)):min(k, len(s))]
}

// Top returns the highest ranked entry.
func (s Scores) Top() (Score, bool) {
	if len(s) == 0 {
		return Score{}, false
	}
	return s[0], true
}

func (s Scores) Map() map[string]float64 {
	m := make(map[string]float64, len(s))
	for _, e := range s {
		m[e.Label] = e.Prob
	}
	return m
}

// MarshalJSON encodes the scores as a JSON object whose keys appear in rank
// order.
func (s Scores) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Label)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Prob)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal score for %q: %w", e.Label, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SanitizeLabel keeps only letters and digits, dropping any punctuation or
// whitespace a backend may attach to a language code.
func SanitizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, label)
}

// Synthesize builds the distribution used when a backend could only produce
// a single predicted label: label gets probability p, and the remaining
// 1-p is split evenly across the first k-1 other vocabulary languages.
func Synthesize(label string, vocab Vocabulary, k int, p float64) (Scores, error) {
	if !vocab.Contains(label) {
		return nil, fmt.Errorf("%w: language %q is not part of the vocabulary", ErrFormat, label)
	}
	if p <= 0.5 || p > 1 {
		return nil, fmt.Errorf("fallback probability should be in the range (0.5, 1]")
	}
	if k < 1 {
		return nil, fmt.Errorf("k should be a positive number")
	}

	out := Scores{{Label: label, Prob: p}}
	if k == 1 {
		return out, nil
	}

	others := min(k-1, vocab.Len()-1)
	if others == 0 {
		return out, nil
	}
	rest := (1 - p) / float64(others)
	for i := 0; i < vocab.Len() && len(out) < others+1; i++ {
		if code := vocab.Code(i); code != label {
			out = append(out, Score{Label: code, Prob: rest})
		}
	}

	return out, nil
}
